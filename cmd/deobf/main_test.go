package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deobf/internal/jvm"
	"deobf/internal/output"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func writeBundle(t *testing.T) string {
	t.Helper()
	cls := &jvm.Class{
		Access: jvm.AccPublic | jvm.AccSuper,
		Name:   "p/T",
		Super:  "java/lang/Object",
		Methods: []*jvm.Method{{
			Access: jvm.AccPublic | jvm.AccStatic,
			Name:   "m",
			Desc:   "()I",
			Code:   jvm.NewBuilder().Op(jvm.ICONST_1, jvm.ICONST_2, jvm.IADD, jvm.IRETURN).Build(),
		}},
	}
	path := filepath.Join(t.TempDir(), "bundle.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jvm.Save(f, jvm.NewBundle(cls)))
	require.NoError(t, f.Close())
	return path
}

func TestRunWritesBundleAndReport(t *testing.T) {
	in := writeBundle(t)
	dir := filepath.Dir(in)
	out := filepath.Join(dir, "out.json")
	report := filepath.Join(dir, "result.json")

	execute(t, "run", "--in", in, "--out", out, "--report", report, "--transform", "constant-folding")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	b, err := jvm.Load(f)
	require.NoError(t, err)
	cls, ok := b.Get("p/T")
	require.True(t, ok)
	code := cls.Method("m", "()I").Code
	require.Len(t, code.Insns, 2)
	assert.Equal(t, jvm.ICONST_3, code.Insns[0].Op)

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	var r output.Report
	require.NoError(t, json.Unmarshal(data, &r))
	assert.Equal(t, []output.ClassChange{{Class: "p/T", Methods: []string{"m()I"}}}, r.Changed)
	assert.Empty(t, r.Failures)
}

func TestRunDryRunLeavesInput(t *testing.T) {
	in := writeBundle(t)
	before, err := os.ReadFile(in)
	require.NoError(t, err)

	got := execute(t, "run", "--in", in, "--dry-run")
	assert.Contains(t, got, "1 classes would change")

	after, err := os.ReadFile(in)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDisasm(t *testing.T) {
	got := execute(t, "disasm", "--in", writeBundle(t), "--class", "p/T")
	assert.Contains(t, got, "class p/T extends java/lang/Object")
	assert.Contains(t, got, "    iadd\n")
}

func TestCFG(t *testing.T) {
	in := writeBundle(t)
	assert.Contains(t, execute(t, "cfg", "--in", in, "--class", "p/T", "--method", "m"), "digraph")
	assert.NotEmpty(t, execute(t, "cfg", "--in", in, "--hierarchy"))
}

func TestListAndSchema(t *testing.T) {
	got := execute(t, "list")
	assert.Contains(t, got, "constant-folding")
	assert.Contains(t, got, "static-value-collection")

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(execute(t, "schema")), &schema))
	assert.Contains(t, schema, "properties")
}
