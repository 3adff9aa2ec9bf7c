package render

import (
	"strings"
	"testing"

	"deobf/internal/disasm"
	"deobf/internal/jvm"
)

func TestCFGDOT_DeadAndExceptionEdges(t *testing.T) {
	//   0: A:
	//   1: invokestatic T.f()V
	//   2: B:
	//   3: return
	//   4: C:        handler for [A, B)
	//   5: pop
	//   6: return
	code := jvm.NewBuilder().
		Label(1).
		Invoke(jvm.INVOKESTATIC, "T", "f", "()V").
		Label(2).
		Op(jvm.RETURN).
		Label(3).
		Op(jvm.POP, jvm.RETURN).
		Try(1, 2, 3, "").
		Build()
	cfg := disasm.BuildCFG("T.m()V", code)
	reachable := func(i int) bool { return i < 4 }
	dot := CFGDOT(cfg, reachable, NASA)

	if !strings.HasPrefix(dot, "digraph cfg {") {
		t.Fatalf("unexpected header: %.40s", dot)
	}
	if !strings.Contains(dot, "bb0 -> bb1 [color=\""+NASA.EdgeException+"\", style=dashed]") {
		t.Errorf("missing exception edge:\n%s", dot)
	}
	if !strings.Contains(dot, "fillcolor=\""+NASA.DeadFill+"\"") {
		t.Errorf("handler block should render as dead:\n%s", dot)
	}
	if !strings.Contains(dot, "invokestatic T.f()V") {
		t.Errorf("missing instruction text:\n%s", dot)
	}
}

func TestCFGDOT_Empty(t *testing.T) {
	if dot := CFGDOT(disasm.FuncCFG{Name: "x"}, nil, NASA); dot != "" {
		t.Errorf("expected empty output, got %q", dot)
	}
}

func TestClassgraphDOT(t *testing.T) {
	methods := []disasm.MethodRecord{
		{Class: "p/A", Name: "a", Desc: "()V"},
		{Class: "p/A", Name: "b", Desc: "()V"},
		{Class: "p/B", Name: "c", Desc: "()V"},
	}
	edges := []disasm.CallEdgeRecord{
		{FromMethod: "p/A.a()V", Target: "p/B.c()V"},
		{FromMethod: "p/A.b()V", Target: "p/B.c()V"},
		{FromMethod: "p/A.a()V", Target: "p/A.b()V"},
		{FromMethod: "p/B.c()V", Target: "java/lang/String.length()I"},
	}
	dot := ClassgraphDOT(methods, edges, "classes", NASA, 0)

	if !strings.Contains(dot, dotID("p/A")+" -> "+dotID("p/B")) {
		t.Errorf("missing A -> B edge:\n%s", dot)
	}
	if !strings.Contains(dot, dotID("p/B")+" -> "+dotID("(library)")) {
		t.Errorf("missing library edge:\n%s", dot)
	}
	if strings.Count(dot, "subgraph cluster_") != 1 || !strings.Contains(dot, `label="p";`) {
		t.Errorf("classes of package p should share one cluster:\n%s", dot)
	}
	if strings.Contains(dot, dotID("p/A")+" -> "+dotID("p/A")) {
		t.Errorf("intra-class edge rendered:\n%s", dot)
	}
	if dot != ClassgraphDOT(methods, edges, "classes", NASA, 0) {
		t.Error("non-deterministic output")
	}
}

func TestDotID(t *testing.T) {
	if got := dotID("p/A$1"); got != "n_p_002fA_00241" {
		t.Errorf("dotID = %q", got)
	}
}
