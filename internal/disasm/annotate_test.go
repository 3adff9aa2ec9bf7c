package disasm

import (
	"testing"

	"deobf/internal/analysis"
	"deobf/internal/jvm"
	"deobf/internal/lookup"
)

func analyzed(t *testing.T, code *jvm.Code) *analysis.FrameMap {
	t.Helper()
	m := &jvm.Method{Access: jvm.AccStatic, Name: "m", Desc: "()I", Code: code}
	fm, err := analysis.NewAnalyzer(analysis.NewInterpreter(lookup.Default())).Analyze("T", m)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	return fm
}

func TestDeadAnnotator(t *testing.T) {
	//   0: goto A
	//   1: iconst_0   (dead)
	//   2: ireturn    (dead)
	//   3: A:
	//   4: iconst_1
	//   5: ireturn
	code := jvm.NewBuilder().
		Jump(jvm.GOTO, 1).
		Op(jvm.ICONST_0, jvm.IRETURN).
		Label(1).
		Op(jvm.ICONST_1, jvm.IRETURN).
		Build()
	ann := DeadAnnotator(analyzed(t, code))
	insts := Decode(code, nil)
	for i, want := range []string{"", "dead", "dead", "", "", ""} {
		if got := ann(insts[i]); got != want {
			t.Errorf("insn %d: annotation = %q, want %q", i, got, want)
		}
	}
}

func TestOutcomeAnnotator(t *testing.T) {
	//   0: iconst_2
	//   1: ifeq A     never taken
	//   2: iconst_0
	//   3: ireturn
	//   4: A:
	//   5: iconst_1
	//   6: ireturn
	code := jvm.NewBuilder().
		Push(2).
		Jump(jvm.IFEQ, 1).
		Op(jvm.ICONST_0, jvm.IRETURN).
		Label(1).
		Op(jvm.ICONST_1, jvm.IRETURN).
		Build()
	ann := OutcomeAnnotator(analyzed(t, code), Names(code))
	insts := Decode(code, nil)
	if got := ann(insts[1]); got != "never taken" {
		t.Errorf("ifeq annotation = %q, want %q", got, "never taken")
	}
	if got := ann(insts[0]); got != "" {
		t.Errorf("iconst_2 annotation = %q, want empty", got)
	}
}

func TestValueAnnotator(t *testing.T) {
	code := jvm.NewBuilder().
		Push(2).
		Push(3).
		Op(jvm.IADD).
		Invoke(jvm.INVOKESTATIC, "java/lang/Integer", "bitCount", "(I)I").
		Op(jvm.IRETURN).
		Build()
	ann := ValueAnnotator(analyzed(t, code))
	insts := Decode(code, nil)
	for i, want := range []string{"", "", "= 5", "= 2", ""} {
		if got := ann(insts[i]); got != want {
			t.Errorf("insn %d: annotation = %q, want %q", i, got, want)
		}
	}
}

func TestCallAnnotator(t *testing.T) {
	ann := CallAnnotator(lookup.Default())
	known := Inst{Insn: jvm.MethodInsn(jvm.INVOKESTATIC, "java/lang/Math", "abs", "(I)I")}
	if got := ann(known); got != "pure java/lang/Math.abs" {
		t.Errorf("annotation = %q, want %q", got, "pure java/lang/Math.abs")
	}
	unknown := Inst{Insn: jvm.MethodInsn(jvm.INVOKESTATIC, "p/Q", "f", "()V")}
	if got := ann(unknown); got != "" {
		t.Errorf("annotation = %q, want empty", got)
	}
}

func TestThrowAnnotator(t *testing.T) {
	code := jvm.NewBuilder().
		Push(7).
		Push(0).
		Op(jvm.IDIV).
		Op(jvm.IRETURN).
		Build()
	ann := ThrowAnnotator(analyzed(t, code))
	insts := Decode(code, nil)
	if got := ann(insts[2]); got != "may throw" {
		t.Errorf("idiv by zero annotation = %q, want %q", got, "may throw")
	}
	if got := ann(insts[0]); got != "" {
		t.Errorf("iconst annotation = %q, want empty", got)
	}
}
