package lookup

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deobf/internal/value"
)

func call(t *testing.T, r *Registry, owner, name, desc string, args ...value.Value) (value.Value, error) {
	t.Helper()
	fn, ok := r.Lookup(owner, name, desc)
	require.Truef(t, ok, "%s not registered", Key(owner, name, desc))
	return fn(args)
}

func TestMathEntries(t *testing.T) {
	r := Default()
	v, err := call(t, r, "java/lang/Math", "min", "(II)I", value.KnownInt(3), value.KnownInt(-2))
	require.NoError(t, err)
	assert.Equal(t, int32(-2), v.Int())

	v, err = call(t, r, "java/lang/Math", "abs", "(I)I", value.KnownInt(math.MinInt32))
	require.NoError(t, err)
	assert.Equal(t, int32(math.MinInt32), v.Int())

	v, err = call(t, r, "java/lang/Math", "max", "(DD)D", value.KnownDouble(math.NaN()), value.KnownDouble(1))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v.Double()))

	v, err = call(t, r, "java/lang/Math", "min", "(DD)D", value.KnownDouble(0), value.KnownDouble(math.Copysign(0, -1)))
	require.NoError(t, err)
	assert.True(t, math.Signbit(v.Double()))
}

func TestBitEntries(t *testing.T) {
	r := Default()
	v, err := call(t, r, "java/lang/Integer", "bitCount", "(I)I", value.KnownInt(-1))
	require.NoError(t, err)
	assert.Equal(t, int32(32), v.Int())

	v, err = call(t, r, "java/lang/Integer", "rotateLeft", "(II)I", value.KnownInt(1), value.KnownInt(33))
	require.NoError(t, err)
	assert.Equal(t, int32(2), v.Int())

	v, err = call(t, r, "java/lang/Integer", "highestOneBit", "(I)I", value.KnownInt(100))
	require.NoError(t, err)
	assert.Equal(t, int32(64), v.Int())

	v, err = call(t, r, "java/lang/Long", "numberOfTrailingZeros", "(J)I", value.KnownLong(1<<40))
	require.NoError(t, err)
	assert.Equal(t, value.Int, v.Kind())
	assert.Equal(t, int32(40), v.Int())
}

func TestParseInt(t *testing.T) {
	r := Default()
	v, err := call(t, r, "java/lang/Integer", "parseInt", "(Ljava/lang/String;)I", value.KnownString("-42"))
	require.NoError(t, err)
	assert.Equal(t, int32(-42), v.Int())

	for _, bad := range []string{"", "12a", " 1", "99999999999"} {
		_, err = call(t, r, "java/lang/Integer", "parseInt", "(Ljava/lang/String;)I", value.KnownString(bad))
		assert.Truef(t, errors.Is(err, value.ErrEvaluation), "parseInt(%q) should fail", bad)
	}
}

func TestStringEntries(t *testing.T) {
	r := Default()
	s := value.KnownString("hello")
	v, err := call(t, r, "java/lang/String", "length", "()I", s)
	require.NoError(t, err)
	assert.Equal(t, int32(5), v.Int())

	v, err = call(t, r, "java/lang/String", "substring", "(I)Ljava/lang/String;", s, value.KnownInt(3))
	require.NoError(t, err)
	assert.Equal(t, "lo", v.Str())

	_, err = call(t, r, "java/lang/String", "charAt", "(I)C", s, value.KnownInt(9))
	assert.True(t, errors.Is(err, value.ErrIndexOutOfBounds))

	v, err = call(t, r, "java/lang/String", "valueOf", "(I)Ljava/lang/String;", value.KnownInt(7))
	require.NoError(t, err)
	assert.Equal(t, "7", v.Str())
}

func TestRestrict(t *testing.T) {
	r := Default().Restrict([]string{"java/lang/Math.*"}, []string{"java/lang/Math.abs(I)I"})
	_, ok := r.Lookup("java/lang/Math", "min", "(II)I")
	assert.True(t, ok)
	_, ok = r.Lookup("java/lang/Math", "abs", "(I)I")
	assert.False(t, ok)
	_, ok = r.Lookup("java/lang/String", "length", "()I")
	assert.False(t, ok)

	all := Default().Restrict(nil, nil)
	assert.Equal(t, Default().Keys(), all.Keys())
}

func TestNilRegistryLooksUpNothing(t *testing.T) {
	var r *Registry
	_, ok := r.Lookup("java/lang/Math", "min", "(II)I")
	assert.False(t, ok)
}
