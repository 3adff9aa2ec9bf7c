// Package lookup holds the allow-list of library calls that may be
// evaluated at analysis time. Every entry is side-effect free and either
// returns a value or fails with an evaluation error for the arguments that
// would make it throw.
package lookup

import (
	"math"
	"math/bits"
	"sort"
	"strconv"
	"strings"

	"deobf/internal/value"
)

// Func evaluates one call. For instance methods args[0] is the receiver.
// Implementations are only invoked when every argument is known.
type Func func(args []value.Value) (value.Value, error)

// Registry maps call keys to evaluators.
type Registry struct {
	funcs map[string]Func
}

// Key formats the lookup key of a method reference.
func Key(owner, name, desc string) string { return owner + "." + name + desc }

// Default returns the registry with every built-in evaluator.
func Default() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	registerMath(r)
	registerBits(r)
	registerStrings(r)
	return r
}

// Empty returns a registry that evaluates nothing.
func Empty() *Registry { return &Registry{funcs: map[string]Func{}} }

// Register adds or replaces an evaluator.
func (r *Registry) Register(key string, fn Func) { r.funcs[key] = fn }

// Lookup returns the evaluator for a method reference.
func (r *Registry) Lookup(owner, name, desc string) (Func, bool) {
	if r == nil {
		return nil, false
	}
	fn, ok := r.funcs[Key(owner, name, desc)]
	return fn, ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.funcs))
	for k := range r.funcs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Restrict returns a registry limited by the allow and deny patterns. An
// empty allow list keeps everything. A pattern ending in "*" matches by
// prefix, so "java/lang/Math.*" allows every Math entry.
func (r *Registry) Restrict(allow, deny []string) *Registry {
	out := &Registry{funcs: make(map[string]Func)}
	for k, fn := range r.funcs {
		if len(allow) > 0 && !matchAny(allow, k) {
			continue
		}
		if matchAny(deny, k) {
			continue
		}
		out.funcs[k] = fn
	}
	return out
}

func matchAny(patterns []string, key string) bool {
	for _, p := range patterns {
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(key, strings.TrimSuffix(p, "*")) {
				return true
			}
		} else if p == key {
			return true
		}
	}
	return false
}

const (
	mathClass    = "java/lang/Math"
	integerClass = "java/lang/Integer"
	longClass    = "java/lang/Long"
	stringClass  = "java/lang/String"
)

func registerMath(r *Registry) {
	r.Register(Key(mathClass, "min", "(II)I"), func(a []value.Value) (value.Value, error) {
		return value.KnownInt(min(a[0].Int(), a[1].Int())), nil
	})
	r.Register(Key(mathClass, "max", "(II)I"), func(a []value.Value) (value.Value, error) {
		return value.KnownInt(max(a[0].Int(), a[1].Int())), nil
	})
	r.Register(Key(mathClass, "min", "(JJ)J"), func(a []value.Value) (value.Value, error) {
		return value.KnownLong(min(a[0].Long(), a[1].Long())), nil
	})
	r.Register(Key(mathClass, "max", "(JJ)J"), func(a []value.Value) (value.Value, error) {
		return value.KnownLong(max(a[0].Long(), a[1].Long())), nil
	})
	r.Register(Key(mathClass, "min", "(FF)F"), func(a []value.Value) (value.Value, error) {
		return value.KnownFloat(float32(javaMin(float64(a[0].Float()), float64(a[1].Float())))), nil
	})
	r.Register(Key(mathClass, "max", "(FF)F"), func(a []value.Value) (value.Value, error) {
		return value.KnownFloat(float32(javaMax(float64(a[0].Float()), float64(a[1].Float())))), nil
	})
	r.Register(Key(mathClass, "min", "(DD)D"), func(a []value.Value) (value.Value, error) {
		return value.KnownDouble(javaMin(a[0].Double(), a[1].Double())), nil
	})
	r.Register(Key(mathClass, "max", "(DD)D"), func(a []value.Value) (value.Value, error) {
		return value.KnownDouble(javaMax(a[0].Double(), a[1].Double())), nil
	})
	r.Register(Key(mathClass, "abs", "(I)I"), func(a []value.Value) (value.Value, error) {
		v := a[0].Int()
		if v < 0 {
			v = -v
		}
		return value.KnownInt(v), nil
	})
	r.Register(Key(mathClass, "abs", "(J)J"), func(a []value.Value) (value.Value, error) {
		v := a[0].Long()
		if v < 0 {
			v = -v
		}
		return value.KnownLong(v), nil
	})
	r.Register(Key(mathClass, "abs", "(F)F"), func(a []value.Value) (value.Value, error) {
		return value.KnownFloat(float32(math.Abs(float64(a[0].Float())))), nil
	})
	r.Register(Key(mathClass, "abs", "(D)D"), func(a []value.Value) (value.Value, error) {
		return value.KnownDouble(math.Abs(a[0].Double())), nil
	})
}

// javaMin follows Math.min: NaN wins and -0.0 is smaller than 0.0.
func javaMin(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case x == 0 && y == 0:
		if math.Signbit(x) {
			return x
		}
		return y
	case x < y:
		return x
	}
	return y
}

func javaMax(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case x == 0 && y == 0:
		if math.Signbit(x) {
			return y
		}
		return x
	case x > y:
		return x
	}
	return y
}

func registerBits(r *Registry) {
	unaryInt := func(name string, fn func(uint32) int32) {
		r.Register(Key(integerClass, name, "(I)I"), func(a []value.Value) (value.Value, error) {
			return value.KnownInt(fn(uint32(a[0].Int()))), nil
		})
	}
	unaryInt("bitCount", func(x uint32) int32 { return int32(bits.OnesCount32(x)) })
	unaryInt("reverse", func(x uint32) int32 { return int32(bits.Reverse32(x)) })
	unaryInt("reverseBytes", func(x uint32) int32 { return int32(bits.ReverseBytes32(x)) })
	unaryInt("numberOfLeadingZeros", func(x uint32) int32 { return int32(bits.LeadingZeros32(x)) })
	unaryInt("numberOfTrailingZeros", func(x uint32) int32 { return int32(bits.TrailingZeros32(x)) })
	unaryInt("highestOneBit", func(x uint32) int32 {
		if x == 0 {
			return 0
		}
		return int32(uint32(1) << (31 - bits.LeadingZeros32(x)))
	})
	r.Register(Key(integerClass, "rotateLeft", "(II)I"), func(a []value.Value) (value.Value, error) {
		return value.KnownInt(int32(bits.RotateLeft32(uint32(a[0].Int()), int(a[1].Int()&31)))), nil
	})
	r.Register(Key(integerClass, "rotateRight", "(II)I"), func(a []value.Value) (value.Value, error) {
		return value.KnownInt(int32(bits.RotateLeft32(uint32(a[0].Int()), -int(a[1].Int()&31)))), nil
	})

	unaryLong := func(name, desc string, fn func(uint64) value.Value) {
		r.Register(Key(longClass, name, desc), func(a []value.Value) (value.Value, error) {
			return fn(uint64(a[0].Long())), nil
		})
	}
	unaryLong("bitCount", "(J)I", func(x uint64) value.Value { return value.KnownInt(int32(bits.OnesCount64(x))) })
	unaryLong("reverse", "(J)J", func(x uint64) value.Value { return value.KnownLong(int64(bits.Reverse64(x))) })
	unaryLong("reverseBytes", "(J)J", func(x uint64) value.Value { return value.KnownLong(int64(bits.ReverseBytes64(x))) })
	unaryLong("numberOfLeadingZeros", "(J)I", func(x uint64) value.Value {
		return value.KnownInt(int32(bits.LeadingZeros64(x)))
	})
	unaryLong("numberOfTrailingZeros", "(J)I", func(x uint64) value.Value {
		return value.KnownInt(int32(bits.TrailingZeros64(x)))
	})
	r.Register(Key(longClass, "rotateLeft", "(JI)J"), func(a []value.Value) (value.Value, error) {
		return value.KnownLong(int64(bits.RotateLeft64(uint64(a[0].Long()), int(a[1].Int()&63)))), nil
	})
	r.Register(Key(longClass, "rotateRight", "(JI)J"), func(a []value.Value) (value.Value, error) {
		return value.KnownLong(int64(bits.RotateLeft64(uint64(a[0].Long()), -int(a[1].Int()&63)))), nil
	})

	r.Register(Key(integerClass, "parseInt", "(Ljava/lang/String;)I"), func(a []value.Value) (value.Value, error) {
		if a[0].IsNull() {
			return value.UnknownInt(), value.ErrNullReference
		}
		s := a[0].Str()
		// Integer.parseInt accepts a leading '+' but no whitespace or underscores.
		if strings.ContainsAny(s, " _\t\n") {
			return value.UnknownInt(), value.ErrInvalidOperand
		}
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return value.UnknownInt(), value.ErrInvalidOperand
		}
		return value.KnownInt(int32(n)), nil
	})
	r.Register(Key(integerClass, "toString", "(I)Ljava/lang/String;"), func(a []value.Value) (value.Value, error) {
		return value.ValueOf(a[0], 'I')
	})
	r.Register(Key(longClass, "toString", "(J)Ljava/lang/String;"), func(a []value.Value) (value.Value, error) {
		return value.ValueOf(a[0], 'J')
	})
}

func registerStrings(r *Registry) {
	for _, c := range []byte{'Z', 'C', 'I', 'J', 'F', 'D'} {
		r.Register(Key(stringClass, "valueOf", "("+string(c)+")Ljava/lang/String;"), func(a []value.Value) (value.Value, error) {
			return value.ValueOf(a[0], c)
		})
	}
	r.Register(Key(stringClass, "length", "()I"), func(a []value.Value) (value.Value, error) {
		return value.Length(a[0])
	})
	r.Register(Key(stringClass, "isEmpty", "()Z"), func(a []value.Value) (value.Value, error) {
		return value.IsEmpty(a[0])
	})
	r.Register(Key(stringClass, "hashCode", "()I"), func(a []value.Value) (value.Value, error) {
		return value.HashCode(a[0])
	})
	r.Register(Key(stringClass, "charAt", "(I)C"), func(a []value.Value) (value.Value, error) {
		return value.CharAt(a[0], a[1])
	})
	r.Register(Key(stringClass, "concat", "(Ljava/lang/String;)Ljava/lang/String;"), func(a []value.Value) (value.Value, error) {
		return value.Concat(a[0], a[1])
	})
	r.Register(Key(stringClass, "indexOf", "(I)I"), func(a []value.Value) (value.Value, error) {
		return value.IndexOf(a[0], a[1])
	})
	r.Register(Key(stringClass, "indexOf", "(Ljava/lang/String;)I"), func(a []value.Value) (value.Value, error) {
		return value.IndexOf(a[0], a[1])
	})
	r.Register(Key(stringClass, "substring", "(I)Ljava/lang/String;"), func(a []value.Value) (value.Value, error) {
		return value.Substring(a[0], a[1], value.Top())
	})
	r.Register(Key(stringClass, "substring", "(II)Ljava/lang/String;"), func(a []value.Value) (value.Value, error) {
		return value.Substring(a[0], a[1], a[2])
	})
	r.Register(Key(stringClass, "equals", "(Ljava/lang/Object;)Z"), func(a []value.Value) (value.Value, error) {
		return value.StringEquals(a[0], a[1])
	})
	r.Register(Key(stringClass, "toString", "()Ljava/lang/String;"), func(a []value.Value) (value.Value, error) {
		return a[0], nil
	})
	r.Register(ToCharArrayKey, func(a []value.Value) (value.Value, error) {
		return value.ToCharArray(a[0], 0)
	})
}

// ToCharArrayKey names the one evaluator that allocates. The interpreter
// gives its result the allocation identity of the call site.
var ToCharArrayKey = Key(stringClass, "toCharArray", "()[C")
