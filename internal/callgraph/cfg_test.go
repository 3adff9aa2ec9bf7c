package callgraph

import (
	"testing"

	"github.com/zboralski/lattice/render"

	"deobf/internal/jvm"
)

func TestBuildCFG_DOTOutput(t *testing.T) {
	// entry (B0):
	//   0: invokestatic Foo.bar()I
	//   1: ifeq A               ; conditional -> B2
	//
	// fallthrough path (B1):
	//   2: invokestatic Baz.qux()V
	//   3: goto B               ; jump -> B3
	//
	// taken path (B2):
	//   4: A:
	//   5: invokestatic Quux.run()V
	//   6: return
	//
	// join (B3):
	//   7: B:
	//   8: return
	code := jvm.NewBuilder().
		Invoke(jvm.INVOKESTATIC, "Foo", "bar", "()I").
		Jump(jvm.IFEQ, 1).
		Invoke(jvm.INVOKESTATIC, "Baz", "qux", "()V").
		Jump(jvm.GOTO, 2).
		Label(1).
		Invoke(jvm.INVOKESTATIC, "Quux", "run", "()V").
		Op(jvm.RETURN).
		Label(2).
		Op(jvm.RETURN).
		Build()

	cfg := BuildCFG([]MethodInfo{{Name: "MyClass.myMethod()V", Code: code}})

	if len(cfg.Funcs) != 1 {
		t.Fatalf("expected 1 method, got %d", len(cfg.Funcs))
	}
	f := cfg.Funcs[0]
	if f.Name != "MyClass.myMethod()V" {
		t.Errorf("method name = %q", f.Name)
	}
	if len(f.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(f.Blocks))
	}

	b0 := f.Blocks[0]
	if len(b0.Calls) != 1 || b0.Calls[0].Callee != "Foo.bar()I" {
		t.Errorf("B0 calls = %+v", b0.Calls)
	}
	if len(b0.Succs) != 2 {
		t.Errorf("B0 succs = %+v", b0.Succs)
	}

	b1 := f.Blocks[1]
	if len(b1.Calls) != 1 || b1.Calls[0].Callee != "Baz.qux()V" {
		t.Errorf("B1 calls = %+v", b1.Calls)
	}
	if len(b1.Succs) != 1 || b1.Succs[0].BlockID != 3 {
		t.Errorf("B1 succs = %+v", b1.Succs)
	}

	b2 := f.Blocks[2]
	if len(b2.Calls) != 1 || b2.Calls[0].Callee != "Quux.run()V" {
		t.Errorf("B2 calls = %+v", b2.Calls)
	}
	if !b2.Term {
		t.Error("B2 should be terminal")
	}
	if !f.Blocks[3].Term {
		t.Error("B3 should be terminal")
	}

	dot := render.DOTCFG(cfg, "deobf CFG example")
	if dot == "" {
		t.Error("expected non-empty DOT output")
	}
}

func TestBuildCallGraph_DOTOutput(t *testing.T) {
	call := func(owner, name string) jvm.Insn {
		return jvm.MethodInsn(jvm.INVOKESTATIC, owner, name, "()V")
	}
	methods := []MethodInfo{
		{Name: "Main.main()V", Code: &jvm.Code{Insns: []jvm.Insn{call("Foo", "init"), call("Bar", "run"), call("Bar", "run"), jvm.Op(jvm.RETURN)}}},
		{Name: "Foo.init()V", Code: &jvm.Code{Insns: []jvm.Insn{call("Logger", "log"), jvm.Op(jvm.RETURN)}}},
		{Name: "Bar.run()V", Code: &jvm.Code{Insns: []jvm.Insn{call("Logger", "log"), jvm.Op(jvm.RETURN)}}},
		{Name: "Logger.log()V", Code: &jvm.Code{Insns: []jvm.Insn{jvm.Op(jvm.RETURN)}}},
	}

	cg := BuildCallGraph(methods)

	if len(cg.Nodes) != 4 {
		t.Errorf("expected 4 nodes, got %d", len(cg.Nodes))
	}

	dot := render.DOT(cg, "deobf call graph example")
	if dot == "" {
		t.Error("expected non-empty DOT output")
	}
}

func TestBuildSummaryCFG(t *testing.T) {
	code := jvm.NewBuilder().
		LdcString("secret").
		Invoke(jvm.INVOKEVIRTUAL, "java/lang/String", "length", "()I").
		LdcString("secret").
		Invoke(jvm.INVOKEVIRTUAL, "java/lang/String", "length", "()I").
		Op(jvm.IADD, jvm.IRETURN).
		Build()
	f := BuildSummaryCFG("K.f()I", code)
	if len(f.Blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(f.Blocks))
	}
	calls := f.Blocks[0].Calls
	if len(calls) != 2 {
		t.Fatalf("calls = %+v, want 2 distinct entries", calls)
	}
	if calls[0].Callee != `"secret"` || calls[1].Callee != "java/lang/String.length()I" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestFromClassesSkipsAbstract(t *testing.T) {
	cls := &jvm.Class{Name: "p/A", Methods: []*jvm.Method{
		{Name: "run", Desc: "()V", Access: jvm.AccAbstract},
		{Name: "go", Desc: "()V", Code: &jvm.Code{Insns: []jvm.Insn{jvm.Op(jvm.RETURN)}}},
	}}
	got := FromClasses([]*jvm.Class{cls})
	if len(got) != 1 || got[0].Name != "p/A.go()V" {
		t.Errorf("FromClasses = %+v", got)
	}
}
