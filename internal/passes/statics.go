package passes

import (
	"strings"

	"deobf/internal/jvm"
	"deobf/internal/transform"
	"deobf/internal/value"
)

const clinit = "<clinit>"

// StaticValueCollection records the values of static fields written only by
// their class initializer. A field qualifies when it is final or private and
// no code of its class or its nested classes assigns it outside <clinit>.
type StaticValueCollection struct{}

func (*StaticValueCollection) Name() string { return StaticValueCollectionName }

func (*StaticValueCollection) Description() string {
	return "collect the values static fields receive in their initializer"
}

func (*StaticValueCollection) TransformClass(ctx *transform.Context, cls *jvm.Class) (bool, error) {
	candidates := make(map[transform.FieldRef]*jvm.Field)
	for _, f := range cls.Fields {
		if f.Access&jvm.AccStatic == 0 || f.Access&(jvm.AccFinal|jvm.AccPrivate) == 0 {
			continue
		}
		candidates[transform.FieldRef{Owner: cls.Name, Name: f.Name, Desc: f.Desc}] = f
	}
	if len(candidates) == 0 {
		return false, nil
	}
	for _, other := range nestOf(ctx, cls) {
		for _, m := range other.Methods {
			if m.Code == nil || (other.Name == cls.Name && m.Name == clinit) {
				continue
			}
			for _, in := range m.Code.Insns {
				if in.Op == jvm.PUTSTATIC && in.Owner == cls.Name {
					delete(candidates, transform.FieldRef{Owner: in.Owner, Name: in.Name, Desc: in.Desc})
				}
			}
		}
	}

	vals := make(map[transform.FieldRef]value.Value, len(candidates))
	for ref, f := range candidates {
		if f.Value != nil {
			vals[ref] = value.FromConstant(f.Value)
		} else {
			vals[ref] = value.Zero(f.Desc)
		}
	}
	if m := cls.Method(clinit, "()V"); m != nil && m.Code != nil {
		fm, err := analyzeCurrent(ctx, cls, m)
		if err != nil {
			// nothing written by a broken initializer is known
			for _, in := range m.Code.Insns {
				if in.Op == jvm.PUTSTATIC {
					delete(vals, transform.FieldRef{Owner: in.Owner, Name: in.Name, Desc: in.Desc})
				}
			}
			store(ctx, vals)
			return false, err
		}
		written := make(map[transform.FieldRef]bool)
		flow := false
		for i, in := range m.Code.Insns {
			switch {
			case in.Op == jvm.LABEL:
				flow = flow || m.Code.References(in.Label) > 0
				continue
			case !fm.Reachable(i):
				continue
			case in.Op == jvm.PUTSTATIC:
				ref := transform.FieldRef{Owner: in.Owner, Name: in.Name, Desc: in.Desc}
				cur, ok := vals[ref]
				if !ok {
					break
				}
				top, ok := fm.At(i).Peek(0)
				if !ok {
					delete(vals, ref)
					break
				}
				// the first store on the straight path from entry replaces
				// the initial value
				if !written[ref] && !flow {
					vals[ref] = top
				} else {
					vals[ref] = value.Merge(cur, top)
				}
				written[ref] = true
			}
			if jvm.IsJump(in.Op) || jvm.IsTerminal(in.Op) {
				flow = true
			}
		}
	}
	store(ctx, vals)
	return false, nil
}

func store(ctx *transform.Context, vals map[transform.FieldRef]value.Value) {
	for ref, v := range vals {
		ctx.Statics().Set(ref, v)
	}
}

// nestOf returns cls and the classes nested in it, which may assign its
// private fields directly.
func nestOf(ctx *transform.Context, cls *jvm.Class) []*jvm.Class {
	out := []*jvm.Class{cls}
	prefix := cls.Name + "$"
	for _, c := range ctx.Classes() {
		if strings.HasPrefix(c.Name, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// StaticValueInlining replaces reads of collected static fields whose value
// is a known constant with a push of that constant.
type StaticValueInlining struct{}

func (*StaticValueInlining) Name() string { return StaticValueInliningName }

func (*StaticValueInlining) Description() string {
	return "inline static fields holding a known constant"
}

func (*StaticValueInlining) Dependencies() []string {
	return []string{StaticValueCollectionName}
}

func (*StaticValueInlining) TransformMethod(ctx *transform.Context, cls *jvm.Class, m *jvm.Method) (*jvm.Code, bool, error) {
	code := m.Code
	statics := ctx.Statics()
	if statics.Len() == 0 {
		return nil, false, nil
	}
	var out []jvm.Insn
	for i, in := range code.Insns {
		if in.Op != jvm.GETSTATIC || (m.Name == clinit && in.Owner == cls.Name) {
			continue
		}
		v, ok := statics.Get(transform.FieldRef{Owner: in.Owner, Name: in.Name, Desc: in.Desc})
		if !ok {
			continue
		}
		push, ok := v.Instruction()
		if !ok {
			continue
		}
		if out == nil {
			out = append([]jvm.Insn(nil), code.Insns...)
		}
		out[i] = push
	}
	if out == nil {
		return nil, false, nil
	}
	return rebuild(code, out), true, nil
}
