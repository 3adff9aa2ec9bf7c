package mapping

import (
	"strings"

	"deobf/internal/jvm"
)

// typeName maps an internal name or, for arrays, a descriptor.
func (m *Mappings) typeName(name string) string {
	if strings.HasPrefix(name, "[") {
		return m.Desc(name)
	}
	return m.Class(name)
}

func (m *Mappings) annotations(as []jvm.Annotation) {
	for i := range as {
		as[i].Desc = m.Desc(as[i].Desc)
	}
}

// ApplyClass returns a renamed copy of c. Declarations and every reference
// in code are rewritten; member keys use the names before renaming.
func (m *Mappings) ApplyClass(c *jvm.Class) *jvm.Class {
	out := c.Clone()
	out.Name = m.Class(c.Name)
	if out.Super != "" {
		out.Super = m.Class(out.Super)
	}
	for i, itf := range out.Interfaces {
		out.Interfaces[i] = m.Class(itf)
	}
	out.Signature = m.Desc(out.Signature)
	m.annotations(out.Annotations)

	for _, f := range out.Fields {
		f.Name = m.Field(c.Name, f.Name, f.Desc)
		f.Desc = m.Desc(f.Desc)
		f.Signature = m.Desc(f.Signature)
		if f.Value != nil && f.Value.Kind == jvm.ConstType {
			f.Value.String = m.typeName(f.Value.String)
		}
		m.annotations(f.Annotations)
	}
	for _, mt := range out.Methods {
		if mt.Name != "<init>" && mt.Name != "<clinit>" {
			mt.Name = m.Method(c.Name, mt.Name, mt.Desc)
		}
		mt.Desc = m.Desc(mt.Desc)
		mt.Signature = m.Desc(mt.Signature)
		for i, e := range mt.Exceptions {
			mt.Exceptions[i] = m.Class(e)
		}
		m.annotations(mt.Annotations)
		for _, pa := range mt.ParameterAnnotations {
			m.annotations(pa)
		}
		if mt.Code != nil {
			m.applyCode(mt.Code)
		}
	}
	return out
}

func (m *Mappings) applyCode(code *jvm.Code) {
	for i := range code.Insns {
		in := &code.Insns[i]
		switch op := in.Op; {
		case op >= jvm.GETSTATIC && op <= jvm.PUTFIELD:
			in.Name = m.Field(in.Owner, in.Name, in.Desc)
			in.Owner = m.typeName(in.Owner)
			in.Desc = m.Desc(in.Desc)
		case op == jvm.INVOKEDYNAMIC:
			in.Desc = m.Desc(in.Desc)
		case jvm.IsInvoke(op):
			if in.Name != "<init>" && in.Name != "<clinit>" {
				in.Name = m.Method(in.Owner, in.Name, in.Desc)
			}
			in.Owner = m.typeName(in.Owner)
			in.Desc = m.Desc(in.Desc)
		case op == jvm.NEW || op == jvm.ANEWARRAY || op == jvm.CHECKCAST || op == jvm.INSTANCEOF:
			in.Desc = m.typeName(in.Desc)
		case op == jvm.MULTIANEWARRAY:
			in.Desc = m.Desc(in.Desc)
		case in.Const != nil && in.Const.Kind == jvm.ConstType:
			in.Const.String = m.typeName(in.Const.String)
		}
	}
	for i := range code.TryCatches {
		if t := code.TryCatches[i].Type; t != "" {
			code.TryCatches[i].Type = m.Class(t)
		}
	}
}

// Apply rewrites every class in tx. Renamed classes replace their old entry;
// swapped names are handled because every class is rewritten before any is
// stored.
func (m *Mappings) Apply(tx *jvm.Tx) {
	if m.Len() == 0 {
		return
	}
	names := tx.Names()
	outs := make([]*jvm.Class, 0, len(names))
	for _, name := range names {
		c, _ := tx.Get(name)
		outs = append(outs, m.ApplyClass(c))
	}
	for _, name := range names {
		tx.Remove(name)
	}
	for _, c := range outs {
		tx.Put(c)
	}
}
