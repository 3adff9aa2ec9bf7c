package jvm

import (
	"sort"
	"sync"
)

// Access flags shared by classes, fields and methods.
const (
	AccPublic     = 0x0001
	AccPrivate    = 0x0002
	AccProtected  = 0x0004
	AccStatic     = 0x0008
	AccFinal      = 0x0010
	AccSuper      = 0x0020
	AccBridge     = 0x0040
	AccVarargs    = 0x0080
	AccNative     = 0x0100
	AccInterface  = 0x0200
	AccAbstract   = 0x0400
	AccSynthetic  = 0x1000
	AccAnnotation = 0x2000
	AccEnum       = 0x4000
)

// TryCatch is one exception table entry. The protected range is
// [Start, End). An empty Type catches everything.
type TryCatch struct {
	Start   LabelID `json:"start"`
	End     LabelID `json:"end"`
	Handler LabelID `json:"handler"`
	Type    string  `json:"type,omitempty"`
}

// Code is a method body.
type Code struct {
	Insns      []Insn     `json:"insns"`
	TryCatches []TryCatch `json:"try_catches,omitempty"`
	MaxLocals  int        `json:"max_locals,omitempty"`
}

// Clone returns an independent copy.
func (c *Code) Clone() *Code {
	if c == nil {
		return nil
	}
	out := &Code{
		Insns:      make([]Insn, len(c.Insns)),
		TryCatches: append([]TryCatch(nil), c.TryCatches...),
		MaxLocals:  c.MaxLocals,
	}
	for i, in := range c.Insns {
		out.Insns[i] = in.Clone()
	}
	return out
}

// LabelIndex maps each label to its instruction index.
func (c *Code) LabelIndex() map[LabelID]int {
	idx := make(map[LabelID]int)
	for i, in := range c.Insns {
		if in.Op == LABEL {
			idx[in.Label] = i
		}
	}
	return idx
}

// NextLabel returns a label id not yet used in c.
func (c *Code) NextLabel() LabelID {
	var max LabelID
	for _, in := range c.Insns {
		if in.Op == LABEL && in.Label > max {
			max = in.Label
		}
	}
	return max + 1
}

// References counts how many jumps, switch entries and exception table
// fields name label.
func (c *Code) References(label LabelID) int {
	n := 0
	for _, in := range c.Insns {
		for _, l := range in.Labels() {
			if l == label {
				n++
			}
		}
	}
	for _, tc := range c.TryCatches {
		if tc.Start == label {
			n++
		}
		if tc.End == label {
			n++
		}
		if tc.Handler == label {
			n++
		}
	}
	return n
}

// ComputeMaxLocals returns the number of local slots referenced by the
// code, the parameters, and MaxLocals.
func (c *Code) ComputeMaxLocals(paramSlots int) int {
	n := paramSlots
	if c.MaxLocals > n {
		n = c.MaxLocals
	}
	for _, in := range c.Insns {
		switch {
		case IsLoad(in.Op), IsStore(in.Op), in.Op == IINC, in.Op == RET:
			end := in.Var + 1
			if IsWideOp(in.Op) {
				end++
			}
			if end > n {
				n = end
			}
		}
	}
	return n
}

// Annotation is an annotation reference. Element values are not modelled.
type Annotation struct {
	Desc    string `json:"desc"`
	Visible bool   `json:"visible,omitempty"`
}

// Field is a field declaration.
type Field struct {
	Access      int          `json:"access"`
	Name        string       `json:"name"`
	Desc        string       `json:"desc"`
	Signature   string       `json:"signature,omitempty"`
	Value       *Constant    `json:"value,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Method is a method declaration. Code is nil for abstract and native methods.
type Method struct {
	Access               int            `json:"access"`
	Name                 string         `json:"name"`
	Desc                 string         `json:"desc"`
	Signature            string         `json:"signature,omitempty"`
	Exceptions           []string       `json:"exceptions,omitempty"`
	Annotations          []Annotation   `json:"annotations,omitempty"`
	ParameterAnnotations [][]Annotation `json:"parameter_annotations,omitempty"`
	Code                 *Code          `json:"code,omitempty"`
}

// IsStatic reports whether the method has no receiver.
func (m *Method) IsStatic() bool { return m.Access&AccStatic != 0 }

// Key identifies the method within its class.
func (m *Method) Key() string { return m.Name + m.Desc }

// Class is a class declaration.
type Class struct {
	Access      int          `json:"access"`
	Name        string       `json:"name"`
	Super       string       `json:"super,omitempty"`
	Interfaces  []string     `json:"interfaces,omitempty"`
	Signature   string       `json:"signature,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
	Fields      []*Field     `json:"fields,omitempty"`
	Methods     []*Method    `json:"methods,omitempty"`
}

// Clone returns an independent deep copy.
func (c *Class) Clone() *Class {
	out := *c
	out.Interfaces = append([]string(nil), c.Interfaces...)
	out.Annotations = append([]Annotation(nil), c.Annotations...)
	out.Fields = make([]*Field, len(c.Fields))
	for i, f := range c.Fields {
		fc := *f
		if f.Value != nil {
			v := *f.Value
			fc.Value = &v
		}
		fc.Annotations = append([]Annotation(nil), f.Annotations...)
		out.Fields[i] = &fc
	}
	out.Methods = make([]*Method, len(c.Methods))
	for i, m := range c.Methods {
		out.Methods[i] = m.Clone()
	}
	return &out
}

// Clone returns an independent deep copy.
func (m *Method) Clone() *Method {
	mc := *m
	mc.Exceptions = append([]string(nil), m.Exceptions...)
	mc.Annotations = append([]Annotation(nil), m.Annotations...)
	if m.ParameterAnnotations != nil {
		mc.ParameterAnnotations = make([][]Annotation, len(m.ParameterAnnotations))
		for i, pa := range m.ParameterAnnotations {
			mc.ParameterAnnotations[i] = append([]Annotation(nil), pa...)
		}
	}
	mc.Code = m.Code.Clone()
	return &mc
}

// Method finds a method by name and descriptor.
func (c *Class) Method(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Desc == desc {
			return m
		}
	}
	return nil
}

// Field finds a field by name and descriptor.
func (c *Class) Field(name, desc string) *Field {
	for _, f := range c.Fields {
		if f.Name == name && f.Desc == desc {
			return f
		}
	}
	return nil
}

// Bundle is the set of classes a run operates on. It is safe for
// concurrent use.
type Bundle struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// NewBundle returns a bundle holding classes.
func NewBundle(classes ...*Class) *Bundle {
	b := &Bundle{classes: make(map[string]*Class, len(classes))}
	for _, c := range classes {
		b.classes[c.Name] = c
	}
	return b
}

// Get returns the class named name.
func (b *Bundle) Get(name string) (*Class, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.classes[name]
	return c, ok
}

// Put adds or replaces a class.
func (b *Bundle) Put(c *Class) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.classes[c.Name] = c
}

// Remove deletes a class.
func (b *Bundle) Remove(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.classes, name)
}

// Len returns the number of classes.
func (b *Bundle) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.classes)
}

// Names returns class names in sorted order.
func (b *Bundle) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedNames(b.classes)
}

// Classes returns the classes sorted by name.
func (b *Bundle) Classes() []*Class {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Class, 0, len(b.classes))
	for _, name := range sortedNames(b.classes) {
		out = append(out, b.classes[name])
	}
	return out
}

// Tx is the view of a bundle handed to Update. It is only valid inside
// the callback.
type Tx struct {
	classes map[string]*Class
}

// Get returns a class.
func (tx *Tx) Get(name string) (*Class, bool) {
	c, ok := tx.classes[name]
	return c, ok
}

// Put adds or replaces a class.
func (tx *Tx) Put(c *Class) { tx.classes[c.Name] = c }

// Remove deletes a class.
func (tx *Tx) Remove(name string) { delete(tx.classes, name) }

// Names returns class names in sorted order.
func (tx *Tx) Names() []string { return sortedNames(tx.classes) }

// Update runs fn with exclusive access to the bundle.
func (b *Bundle) Update(fn func(tx *Tx) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(&Tx{classes: b.classes})
}

func sortedNames(m map[string]*Class) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
