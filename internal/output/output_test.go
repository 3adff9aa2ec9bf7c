package output

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deobf/internal/jvm"
	"deobf/internal/lookup"
	"deobf/internal/mapping"
	"deobf/internal/transform"
)

func sample() *jvm.Class {
	return &jvm.Class{
		Name:  "p/T",
		Super: "java/lang/Object",
		Methods: []*jvm.Method{
			{Access: jvm.AccPublic | jvm.AccStatic, Name: "m", Desc: "()I", Code: jvm.NewBuilder().
				LdcString("hi").
				Invoke(jvm.INVOKEVIRTUAL, "java/lang/String", "length", "()I").
				Op(jvm.IRETURN).
				Op(jvm.NOP).
				Build()},
			{Access: jvm.AccPublic | jvm.AccAbstract, Name: "a", Desc: "()V"},
		},
	}
}

func TestNewReport(t *testing.T) {
	maps := mapping.New()
	maps.AddField("E", "a", "LE;", "RED")
	res := &transform.Result{
		Classes:  map[string]*jvm.Class{"b": {Name: "b"}, "a": {Name: "a"}},
		Methods:  map[string][]string{"a": {"m()V"}},
		Removed:  []string{"c"},
		Mappings: maps,
		Failures: []*transform.Failure{{
			Key: transform.FailureKey{Transformer: "x", Class: "a", Method: "m()V"},
			Err: errors.New("boom"),
		}},
		Passes: 2,
	}
	r := NewReport(res)
	assert.Equal(t, 2, r.Passes)
	assert.Equal(t, []ClassChange{{Class: "a", Methods: []string{"m()V"}}, {Class: "b"}}, r.Changed)
	assert.Equal(t, []string{"c"}, r.Removed)
	require.Len(t, r.Mappings, 1)
	assert.Equal(t, "RED", r.Mappings[0].NewName)
	assert.Equal(t, []FailureEntry{{Transformer: "x", Class: "a", Method: "m()V", Error: "boom"}}, r.Failures)

	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, WriteReport(path, r))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var back Report
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *r, back)
}

func TestRecords(t *testing.T) {
	methods, edges, strs := Records([]*jvm.Class{sample()}, lookup.Default())

	require.Len(t, methods, 1, "methods without code are skipped")
	assert.Equal(t, "m", methods[0].Name)
	assert.Equal(t, 4, methods[0].Insns)
	assert.Equal(t, 1, methods[0].Dead)
	assert.Equal(t, 1, methods[0].DeadBlocks)
	assert.Empty(t, methods[0].Error)

	require.Len(t, edges, 1)
	assert.Equal(t, "p/T.m()I", edges[0].FromMethod)
	assert.Equal(t, "java/lang/String.length()I", edges[0].Target)
	assert.Equal(t, "invokevirtual", edges[0].Kind)
	assert.True(t, edges[0].Pure)

	require.Len(t, strs, 1)
	assert.Equal(t, "hi", strs[0].Value)
	assert.Equal(t, 0, strs[0].Index)
}

func TestWriteRecords(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	methods, edges, strs := Records([]*jvm.Class{sample()}, lookup.Default())
	require.NoError(t, WriteRecords(dir, methods, edges, strs))
	for _, name := range []string{"methods.jsonl", "call_edges.jsonl", "string_refs.jsonl"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, 1, strings.Count(string(data), "\n"), name)
	}
}

func TestWriteASM(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteASM(dir, sample(), nil))
	data, err := os.ReadFile(filepath.Join(dir, "asm", "p", "T.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "class p/T extends java/lang/Object\n"))
	assert.Contains(t, string(data), "invokevirtual")
}
