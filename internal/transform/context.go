package transform

import (
	"fmt"
	"sort"
	"sync"

	"deobf/internal/analysis"
	"deobf/internal/hierarchy"
	"deobf/internal/jvm"
	"deobf/internal/lookup"
	"deobf/internal/mapping"
	"deobf/internal/value"
)

// DeadCodeName is the transformer PruneDeadCode delegates to.
const DeadCodeName = "dead-code"

// Pruner removes unreachable code. The dead-code transformer implements it.
type Pruner interface {
	Prune(ctx *Context, cls *jvm.Class, m *jvm.Method, code *jvm.Code) (*jvm.Code, bool, error)
}

// FieldRef names a field.
type FieldRef struct {
	Owner, Name, Desc string
}

func (f FieldRef) String() string { return f.Owner + "." + f.Name + " " + f.Desc }

// Statics holds the values collected for static fields. Safe for
// concurrent use.
type Statics struct {
	mu   sync.RWMutex
	vals map[FieldRef]value.Value
}

func newStatics() *Statics { return &Statics{vals: make(map[FieldRef]value.Value)} }

// Merge joins v into the value recorded for f.
func (s *Statics) Merge(f FieldRef, v value.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.vals[f]; ok {
		v = value.Merge(old, v)
	}
	s.vals[f] = v
}

// Set records v for f, replacing any previous value.
func (s *Statics) Set(f FieldRef, v value.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[f] = v
}

// Get returns the value recorded for f.
func (s *Statics) Get(f FieldRef) (value.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vals[f]
	return v, ok
}

// Len returns the number of recorded fields.
func (s *Statics) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vals)
}

// Thrown is the set of exception types seen constructed and thrown, or
// declared thrown. Safe for concurrent use.
type Thrown struct {
	mu    sync.RWMutex
	types map[string]bool
}

func newThrown() *Thrown { return &Thrown{types: make(map[string]bool)} }

// Add records an internal class name.
func (t *Thrown) Add(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.types[name] = true
}

// Contains reports whether name was recorded.
func (t *Thrown) Contains(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.types[name]
}

// Names returns the recorded names in sorted order.
func (t *Thrown) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.types))
	for n := range t.types {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Context is the shared state of one run. Between transformer steps it
// holds the current version of every class; during a step those versions
// are read-only and each worker edits its own copy.
type Context struct {
	transformers map[string]Transformer
	analyzer     *analysis.Analyzer
	calls        *lookup.Registry

	mappings *mapping.Mappings
	statics  *Statics
	thrown   *Thrown

	mu       sync.RWMutex
	classes  map[string]*jvm.Class
	removed  map[string]bool
	hier     *hierarchy.Graph
	frames   map[*jvm.Code]*analysis.FrameMap
	analyses int
}

// NewContext returns a context over classes for the given transformers.
// calls may be nil to evaluate no library calls; maxSteps <= 0 uses the
// analysis default.
func NewContext(classes []*jvm.Class, transformers []Transformer, calls *lookup.Registry, maxSteps int) *Context {
	byName := make(map[string]Transformer, len(transformers))
	for _, t := range transformers {
		byName[t.Name()] = t
	}
	an := analysis.NewAnalyzer(analysis.NewInterpreter(calls))
	if maxSteps > 0 {
		an.MaxSteps = maxSteps
	}
	ctx := &Context{
		transformers: byName,
		analyzer:     an,
		calls:        calls,
		mappings:     mapping.New(),
		statics:      newStatics(),
		thrown:       newThrown(),
		classes:      make(map[string]*jvm.Class, len(classes)),
		removed:      make(map[string]bool),
		frames:       make(map[*jvm.Code]*analysis.FrameMap),
	}
	for _, c := range classes {
		ctx.classes[c.Name] = c
	}
	return ctx
}

// Class returns the current version of a class. The result must be treated
// as read-only.
func (c *Context) Class(name string) (*jvm.Class, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cls, ok := c.classes[name]
	return cls, ok
}

// Classes returns the current version of every class, sorted by name.
func (c *Context) Classes() []*jvm.Class {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.classes))
	for n := range c.classes {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*jvm.Class, len(names))
	for i, n := range names {
		out[i] = c.classes[n]
	}
	return out
}

// Calls returns the allow-list of evaluable library calls.
func (c *Context) Calls() *lookup.Registry { return c.calls }

// Mappings returns the renames applied after all other changes.
func (c *Context) Mappings() *mapping.Mappings { return c.mappings }

// Statics returns the collected static field values.
func (c *Context) Statics() *Statics { return c.statics }

// Thrown returns the collected exception types.
func (c *Context) Thrown() *Thrown { return c.thrown }

// Hierarchy returns the inheritance graph of the current classes. It is
// rebuilt lazily after each step that changed a class.
func (c *Context) Hierarchy() *hierarchy.Graph {
	c.mu.RLock()
	h := c.hier
	c.mu.RUnlock()
	if h != nil {
		return h
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hier == nil {
		classes := make([]*jvm.Class, 0, len(c.classes))
		for _, cls := range c.classes {
			classes = append(classes, cls)
		}
		c.hier = hierarchy.New(classes)
	}
	return c.hier
}

// MarkClassForRemoval stages the removal of a class from the bundle.
func (c *Context) MarkClassForRemoval(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed[name] = true
}

// MarkedForRemoval reports whether name is staged for removal.
func (c *Context) MarkedForRemoval(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.removed[name]
}

func (c *Context) removals() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.removed))
	for n := range c.removed {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Analyze computes the frames of code as the body of m in cls. A nil code
// analyzes m.Code. Results are cached per code value, so code must not be
// modified once analyzed.
func (c *Context) Analyze(cls *jvm.Class, m *jvm.Method, code *jvm.Code) (*analysis.FrameMap, error) {
	if code == nil {
		code = m.Code
	}
	if code == nil {
		return nil, fmt.Errorf("%w: %s.%s%s has no code", analysis.ErrAnalysis, cls.Name, m.Name, m.Desc)
	}
	c.mu.RLock()
	fm, ok := c.frames[code]
	c.mu.RUnlock()
	if ok {
		return fm, nil
	}
	body := *m
	body.Code = code
	fm, err := c.analyzer.Analyze(cls.Name, &body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.frames[code] = fm
	c.analyses++
	c.mu.Unlock()
	return fm, nil
}

// PruneDeadCode removes the code of code that is unreachable, together with
// exception ranges left without live instructions. It requires the
// dead-code transformer to be part of the run.
func (c *Context) PruneDeadCode(cls *jvm.Class, m *jvm.Method, code *jvm.Code) (*jvm.Code, bool, error) {
	t, ok := c.transformers[DeadCodeName]
	if !ok {
		return nil, false, fmt.Errorf("%w: %q is not part of this run", ErrUnknownTransformer, DeadCodeName)
	}
	p, ok := t.(Pruner)
	if !ok {
		return nil, false, fmt.Errorf("%w: %q cannot prune", ErrTransformer, DeadCodeName)
	}
	return p.Prune(c, cls, m, code)
}

// Transformer returns a transformer of this run by name.
func (c *Context) Transformer(name string) (Transformer, bool) {
	t, ok := c.transformers[name]
	return t, ok
}

// commit installs the classes changed by one step.
func (c *Context) commit(changed map[string]*jvm.Class) {
	if len(changed) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, cls := range changed {
		c.classes[name] = cls
	}
	c.hier = nil
}

// resetFrames drops cached analyses of code no longer in use.
func (c *Context) resetFrames() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = make(map[*jvm.Code]*analysis.FrameMap)
}
