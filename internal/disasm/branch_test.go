package disasm

import (
	"testing"

	"deobf/internal/jvm"
)

func TestDecodeBranch_Return(t *testing.T) {
	for _, op := range []jvm.Opcode{jvm.RETURN, jvm.IRETURN, jvm.ARETURN, jvm.ATHROW} {
		bi := DecodeBranch(jvm.Op(op))
		if bi == nil {
			t.Fatalf("%s: expected terminator", op)
		}
		if !bi.IsRet {
			t.Errorf("%s: expected IsRet=true", op)
		}
		if len(bi.Edges) != 0 {
			t.Errorf("%s: edges = %d, want 0", op, len(bi.Edges))
		}
	}
}

func TestDecodeBranch_Goto(t *testing.T) {
	bi := DecodeBranch(jvm.Jump(jvm.GOTO, 7))
	if bi == nil {
		t.Fatal("expected goto")
	}
	if bi.Cond {
		t.Error("goto should not be conditional")
	}
	if len(bi.Edges) != 1 || bi.Edges[0].Target != 7 || bi.Edges[0].Cond != "" {
		t.Errorf("edges = %+v, want [{7 \"\"}]", bi.Edges)
	}
}

func TestDecodeBranch_Conditional(t *testing.T) {
	for _, op := range []jvm.Opcode{jvm.IFEQ, jvm.IF_ICMPLT, jvm.IF_ACMPNE, jvm.IFNULL, jvm.IFNONNULL} {
		bi := DecodeBranch(jvm.Jump(op, 3))
		if bi == nil {
			t.Fatalf("%s: expected branch", op)
		}
		if !bi.Cond {
			t.Errorf("%s should be conditional", op)
		}
		if len(bi.Edges) != 1 || bi.Edges[0].Cond != "T" {
			t.Errorf("%s: edges = %+v, want one taken edge", op, bi.Edges)
		}
	}
}

func TestDecodeBranch_TableSwitch(t *testing.T) {
	bi := DecodeBranch(jvm.TableSwitch(-1, 9, 4, 5, 6))
	if bi == nil || !bi.Switch {
		t.Fatal("expected switch")
	}
	want := []Edge{{4, "k=-1"}, {5, "k=0"}, {6, "k=1"}, {9, "default"}}
	if len(bi.Edges) != len(want) {
		t.Fatalf("edges = %d, want %d", len(bi.Edges), len(want))
	}
	for i, e := range want {
		if bi.Edges[i] != e {
			t.Errorf("edge %d = %+v, want %+v", i, bi.Edges[i], e)
		}
	}
}

func TestDecodeBranch_LookupSwitch(t *testing.T) {
	bi := DecodeBranch(jvm.LookupSwitch(2, []int32{10, 300}, []jvm.LabelID{1, 3}))
	if bi == nil {
		t.Fatal("expected switch")
	}
	if bi.Edges[1] != (Edge{3, "k=300"}) {
		t.Errorf("edge 1 = %+v, want {3 k=300}", bi.Edges[1])
	}
	if bi.Edges[2] != (Edge{2, "default"}) {
		t.Errorf("edge 2 = %+v, want {2 default}", bi.Edges[2])
	}
}

func TestDecodeBranch_NotBranch(t *testing.T) {
	nonBranches := []jvm.Insn{
		jvm.Op(jvm.NOP),
		jvm.Op(jvm.IADD),
		jvm.MethodInsn(jvm.INVOKESTATIC, "T", "f", "()V"),
		jvm.Label(1),
	}
	for _, in := range nonBranches {
		if bi := DecodeBranch(in); bi != nil {
			t.Errorf("%s: expected nil, got %+v", in.Op, bi)
		}
	}
}
