// Package disasm renders JVM method bodies as stable text and builds their
// basic-block control flow graphs.
package disasm

import (
	"fmt"
	"sort"
	"strings"

	"deobf/internal/jvm"
)

// Inst is one decoded instruction with its rendered text.
type Inst struct {
	Index    int
	Insn     jvm.Insn
	Mnemonic string
	Operands string
	Text     string // full disassembly line
}

// LabelNamer resolves a label to its display name.
type LabelNamer func(jvm.LabelID) string

// Names assigns A, B, ..., Z, AA, AB, ... to labels in order of appearance.
// Labels that are referenced but never placed are named after the placed
// ones, in order of first reference.
func Names(code *jvm.Code) LabelNamer {
	names := make(map[jvm.LabelID]string)
	add := func(l jvm.LabelID) {
		if _, ok := names[l]; !ok {
			names[l] = labelName(len(names))
		}
	}
	for _, in := range code.Insns {
		if in.Op == jvm.LABEL {
			add(in.Label)
		}
	}
	for _, in := range code.Insns {
		for _, l := range in.Labels() {
			add(l)
		}
	}
	for _, tc := range code.TryCatches {
		add(tc.Start)
		add(tc.End)
		add(tc.Handler)
	}
	return func(l jvm.LabelID) string {
		if n, ok := names[l]; ok {
			return n
		}
		return fmt.Sprintf("L%d", l)
	}
}

func labelName(n int) string {
	var b []byte
	for {
		b = append([]byte{byte('A' + n%26)}, b...)
		n = n/26 - 1
		if n < 0 {
			return string(b)
		}
	}
}

// Decode renders every instruction of code.
func Decode(code *jvm.Code, names LabelNamer) []Inst {
	if names == nil {
		names = Names(code)
	}
	out := make([]Inst, len(code.Insns))
	for i, in := range code.Insns {
		mnemonic, operands := Render(in, names)
		text := mnemonic
		if operands != "" {
			text += " " + operands
		}
		out[i] = Inst{Index: i, Insn: in, Mnemonic: mnemonic, Operands: operands, Text: text}
	}
	return out
}

// Text renders a single instruction.
func Text(in jvm.Insn, names LabelNamer) string {
	mnemonic, operands := Render(in, names)
	if operands == "" {
		return mnemonic
	}
	return mnemonic + " " + operands
}

// Render splits an instruction into mnemonic and operand text. Labels render
// as "NAME:".
func Render(in jvm.Insn, names LabelNamer) (mnemonic, operands string) {
	op := in.Op
	switch {
	case op == jvm.LABEL:
		return names(in.Label) + ":", ""
	case op == jvm.BIPUSH || op == jvm.SIPUSH:
		return op.String(), fmt.Sprint(in.Int)
	case op == jvm.NEWARRAY:
		desc, ok := jvm.NewArrayDesc(in.Int)
		if !ok {
			return op.String(), fmt.Sprint(in.Int)
		}
		return op.String(), primitiveName(desc[1])
	case jvm.IsLoad(op) || jvm.IsStore(op) || op == jvm.RET:
		return op.String(), fmt.Sprint(in.Var)
	case op == jvm.IINC:
		return op.String(), fmt.Sprintf("%d %d", in.Var, in.Int)
	case jvm.IsJump(op):
		return op.String(), names(in.Target)
	case op == jvm.LDC || op == jvm.LDC_W || op == jvm.LDC2_W:
		if in.Const == nil {
			return op.String(), "?"
		}
		return op.String(), in.Const.Text()
	case op >= jvm.GETSTATIC && op <= jvm.PUTFIELD:
		return op.String(), fmt.Sprintf("%s.%s %s", in.Owner, in.Name, in.Desc)
	case op == jvm.INVOKEDYNAMIC:
		return op.String(), in.Name + in.Desc
	case jvm.IsInvoke(op):
		s := fmt.Sprintf("%s.%s%s", in.Owner, in.Name, in.Desc)
		if in.Itf && op != jvm.INVOKEINTERFACE {
			s += " itf"
		}
		return op.String(), s
	case op == jvm.NEW || op == jvm.ANEWARRAY || op == jvm.CHECKCAST || op == jvm.INSTANCEOF:
		return op.String(), in.Desc
	case op == jvm.MULTIANEWARRAY:
		return op.String(), fmt.Sprintf("%s %d", in.Desc, in.Dims)
	case op == jvm.TABLESWITCH && in.Switch != nil:
		parts := make([]string, len(in.Switch.Labels))
		for i, l := range in.Switch.Labels {
			parts[i] = fmt.Sprintf("%d: %s", int64(in.Switch.Min)+int64(i), names(l))
		}
		return op.String(), fmt.Sprintf("{%s} default: %s", strings.Join(parts, ", "), names(in.Switch.Default))
	case op == jvm.LOOKUPSWITCH && in.Switch != nil:
		parts := make([]string, len(in.Switch.Keys))
		for i, k := range in.Switch.Keys {
			l := jvm.LabelID(0)
			if i < len(in.Switch.Labels) {
				l = in.Switch.Labels[i]
			}
			parts[i] = fmt.Sprintf("%d: %s", k, names(l))
		}
		return op.String(), fmt.Sprintf("{%s} default: %s", strings.Join(parts, ", "), names(in.Switch.Default))
	}
	return op.String(), ""
}

func primitiveName(c byte) string {
	switch c {
	case 'Z':
		return "boolean"
	case 'C':
		return "char"
	case 'F':
		return "float"
	case 'D':
		return "double"
	case 'B':
		return "byte"
	case 'S':
		return "short"
	case 'I':
		return "int"
	}
	return "long"
}

// Format renders code as stable text. Labels sit flush left, instructions
// are indented, and an "exceptions:" block follows when the method has
// try-catch entries. Annotators are checked in order; the first non-empty
// result is appended as a comment.
func Format(code *jvm.Code, annotators ...Annotator) string {
	names := Names(code)
	var b strings.Builder
	for _, inst := range Decode(code, names) {
		if inst.Insn.Op == jvm.LABEL {
			b.WriteString(inst.Text)
		} else {
			b.WriteString("    ")
			b.WriteString(inst.Text)
		}
		for _, ann := range annotators {
			if s := ann(inst); s != "" {
				fmt.Fprintf(&b, "  ; %s", s)
				break
			}
		}
		b.WriteByte('\n')
	}
	if len(code.TryCatches) > 0 {
		b.WriteString("exceptions:\n")
		for _, tc := range code.TryCatches {
			typ := tc.Type
			if typ == "" {
				typ = "*"
			}
			fmt.Fprintf(&b, "    %s %s %s %s\n", names(tc.Start), names(tc.End), names(tc.Handler), typ)
		}
	}
	return b.String()
}

// FormatMethod renders a method header followed by its code.
func FormatMethod(m *jvm.Method, annotators ...Annotator) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s", m.Name, m.Desc)
	if m.Access&jvm.AccStatic != 0 {
		b.WriteString(" static")
	}
	b.WriteByte('\n')
	if m.Code == nil {
		b.WriteString("    // no code\n")
		return b.String()
	}
	b.WriteString(Format(m.Code, annotators...))
	return b.String()
}

// FormatClass renders every method of cls in declaration order.
func FormatClass(cls *jvm.Class, annotators func(m *jvm.Method) []Annotator) string {
	var b strings.Builder
	fmt.Fprintf(&b, "class %s", cls.Name)
	if cls.Super != "" {
		fmt.Fprintf(&b, " extends %s", cls.Super)
	}
	if len(cls.Interfaces) > 0 {
		ifaces := append([]string(nil), cls.Interfaces...)
		sort.Strings(ifaces)
		fmt.Fprintf(&b, " implements %s", strings.Join(ifaces, ", "))
	}
	b.WriteString("\n\n")
	for i, m := range cls.Methods {
		if i > 0 {
			b.WriteByte('\n')
		}
		var anns []Annotator
		if annotators != nil {
			anns = annotators(m)
		}
		b.WriteString(FormatMethod(m, anns...))
	}
	return b.String()
}
