package transform

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"deobf/internal/analysis"
	"deobf/internal/jvm"
	"deobf/internal/logging"
	"deobf/internal/lookup"
	"deobf/internal/telemetry"
)

// DefaultMaxPasses bounds the repetitions of the whole queue.
const DefaultMaxPasses = 10

// Applier runs transformer queues over bundles.
type Applier struct {
	Registry *Registry
	// Calls is the allow-list of library calls the analysis may evaluate.
	Calls *lookup.Registry
	// Workers limits the classes processed concurrently; 0 means GOMAXPROCS.
	Workers int
	// MaxPasses bounds the repetitions of the queue until nothing changes.
	MaxPasses int
	// MaxAnalysisSteps bounds the block visits of one method analysis.
	MaxAnalysisSteps int
	// Filter selects the classes to transform. Nil transforms all.
	Filter func(*jvm.Class) bool

	Logger *log.Logger
	Tracer trace.Tracer
}

// NewApplier returns an applier over reg with the default call
// allow-list and pass ceiling.
func NewApplier(reg *Registry) *Applier {
	return &Applier{
		Registry:  reg,
		Calls:     lookup.Default(),
		MaxPasses: DefaultMaxPasses,
		Logger:    logging.Discard(),
		Tracer:    telemetry.Tracer(),
	}
}

// runState accumulates what the steps of a run report.
type runState struct {
	mu       sync.Mutex
	changed  map[string]map[string]bool // class -> changed method keys
	failures map[FailureKey]*Failure
}

func (s *runState) markChanged(class string, methods []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.changed[class]
	if !ok {
		set = make(map[string]bool)
		s.changed[class] = set
	}
	for _, m := range methods {
		set[m] = true
	}
}

// fail records f unless the same key already failed in an earlier pass.
func (s *runState) fail(f *Failure) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.failures[f.Key]; dup {
		return false
	}
	s.failures[f.Key] = f
	return true
}

// Run transforms b with the named transformers and their dependencies. The
// queue is repeated until a full pass changes nothing or MaxPasses is
// reached. A cancelled ctx returns ctx.Err() and no result.
func (a *Applier) Run(ctx context.Context, b *jvm.Bundle, names []string) (*Result, error) {
	queue, err := a.Registry.Queue(names)
	if err != nil {
		return nil, err
	}
	ctx, span := a.tracer().Start(ctx, "transform.run")
	defer span.End()
	queued := make([]string, len(queue))
	for i, t := range queue {
		queued[i] = t.Name()
	}
	span.SetAttributes(
		attribute.StringSlice("transformers", queued),
		attribute.Int("classes", b.Len()),
	)

	tc := NewContext(b.Classes(), queue, a.Calls, a.MaxAnalysisSteps)
	st := &runState{
		changed:  make(map[string]map[string]bool),
		failures: make(map[FailureKey]*Failure),
	}
	maxPasses := a.MaxPasses
	if maxPasses <= 0 {
		maxPasses = 1
	}
	passes := 0
	for passes < maxPasses {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			return nil, err
		}
		passes++
		n, err := a.pass(ctx, tc, queue, passes, st)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			return nil, err
		}
		if n == 0 {
			break
		}
	}

	res := &Result{
		Classes:  make(map[string]*jvm.Class, len(st.changed)),
		Methods:  make(map[string][]string, len(st.changed)),
		Removed:  tc.removals(),
		Mappings: tc.Mappings(),
		Passes:   passes,
		bundle:   b,
	}
	for name, methods := range st.changed {
		cls, ok := tc.Class(name)
		if !ok {
			continue
		}
		res.Classes[name] = cls
		keys := make([]string, 0, len(methods))
		for k := range methods {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		res.Methods[name] = keys
	}
	for _, f := range st.failures {
		res.Failures = append(res.Failures, f)
	}
	sortFailures(res.Failures)

	span.SetAttributes(
		attribute.Int("passes", passes),
		attribute.Int("changed", len(res.Classes)),
		attribute.Int("removed", len(res.Removed)),
		attribute.Int("failures", len(res.Failures)),
	)
	a.logger().Info("transform complete",
		"passes", passes,
		"changed", len(res.Classes),
		"removed", len(res.Removed),
		"renames", res.Mappings.Len(),
		"failures", len(res.Failures))
	return res, nil
}

// pass runs every queued transformer once and returns the number of
// classes changed.
func (a *Applier) pass(ctx context.Context, tc *Context, queue []Transformer, n int, st *runState) (int, error) {
	ctx, span := a.tracer().Start(ctx, "transform.pass",
		trace.WithAttributes(attribute.Int("pass", n)))
	defer span.End()
	tc.resetFrames()

	total := 0
	for _, t := range queue {
		changed, err := a.step(ctx, tc, t, st)
		if err != nil {
			return 0, err
		}
		total += changed
	}
	span.SetAttributes(attribute.Int("changed", total))
	a.logger().Debug("pass", "n", n, "changed", total)
	return total, nil
}

// step runs t over every selected class in parallel. Each worker owns the
// copy of the class it transforms; results are installed after all workers
// finish.
func (a *Applier) step(ctx context.Context, tc *Context, t Transformer, st *runState) (int, error) {
	ctx, span := a.tracer().Start(ctx, "transform."+t.Name(),
		trace.WithAttributes(attribute.String("transformer", t.Name())))
	defer span.End()

	var classes []*jvm.Class
	for _, cls := range tc.Classes() {
		if tc.MarkedForRemoval(cls.Name) || (a.Filter != nil && !a.Filter(cls)) {
			continue
		}
		classes = append(classes, cls)
	}

	var (
		mu       sync.Mutex
		out      = make(map[string]*jvm.Class)
		failures int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers())
	for _, cls := range classes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			next, methods, fails := a.transformClass(tc, t, cls)
			for _, f := range fails {
				if st.fail(f) {
					a.logger().Warn("transformer failed",
						"transformer", f.Key.Transformer,
						"class", f.Key.Class,
						"method", f.Key.Method,
						"err", f.Err)
				}
			}
			mu.Lock()
			defer mu.Unlock()
			failures += len(fails)
			if next != nil {
				out[cls.Name] = next
				st.markChanged(cls.Name, methods)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return 0, err
	}
	tc.commit(out)

	span.SetAttributes(
		attribute.Int("classes", len(classes)),
		attribute.Int("changed", len(out)),
		attribute.Int("failures", failures),
	)
	a.logger().Debug("transformer", "name", t.Name(), "classes", len(classes), "changed", len(out), "failures", failures)
	return len(out), nil
}

// transformClass applies t to one class. It returns the new version of the
// class, nil when unchanged, with the keys of the changed methods.
func (a *Applier) transformClass(tc *Context, t Transformer, cls *jvm.Class) (*jvm.Class, []string, []*Failure) {
	switch tt := t.(type) {
	case ClassTransformer:
		work := cls.Clone()
		changed, err := runClass(tc, tt, work)
		if err != nil {
			return nil, nil, []*Failure{{Key: FailureKey{Transformer: t.Name(), Class: cls.Name}, Err: err}}
		}
		if !changed {
			return nil, nil, nil
		}
		return work, changedMethods(cls, work), nil

	case MethodTransformer:
		work := shallowCopy(cls)
		var (
			methods []string
			fails   []*Failure
		)
		for i, m := range work.Methods {
			if m.Code == nil {
				continue
			}
			code, changed, err := runMethod(tc, tt, work, m)
			if err != nil {
				fails = append(fails, &Failure{
					Key: FailureKey{Transformer: t.Name(), Class: cls.Name, Method: m.Key()},
					Err: err,
				})
				continue
			}
			if !changed || code == nil {
				continue
			}
			mc := *m
			mc.Code = code
			work.Methods[i] = &mc
			methods = append(methods, m.Key())
			a.logger().Debug("method changed", "transformer", t.Name(), "class", cls.Name, "method", m.Key())
		}
		if len(methods) == 0 {
			return nil, nil, fails
		}
		return work, methods, fails
	}
	return nil, nil, []*Failure{{
		Key: FailureKey{Transformer: t.Name(), Class: cls.Name},
		Err: fmt.Errorf("%w: %T implements neither class nor method transformation", ErrTransformer, t),
	}}
}

func runClass(tc *Context, t ClassTransformer, cls *jvm.Class) (changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			changed, err = false, fmt.Errorf("%w: panic: %v", ErrTransformer, r)
		}
	}()
	changed, err = t.TransformClass(tc, cls)
	return changed, classify(err)
}

func runMethod(tc *Context, t MethodTransformer, cls *jvm.Class, m *jvm.Method) (code *jvm.Code, changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			code, changed, err = nil, false, fmt.Errorf("%w: panic: %v", ErrTransformer, r)
		}
	}()
	code, changed, err = t.TransformMethod(tc, cls, m)
	return code, changed, classify(err)
}

// classify keeps analysis failures as they are and marks anything else as
// an unexpected transformer error.
func classify(err error) error {
	if err == nil || errors.Is(err, analysis.ErrAnalysis) || errors.Is(err, ErrTransformer) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransformer, err)
}

// shallowCopy copies the class and its method list. Methods are shared
// with the original and must be replaced, not edited.
func shallowCopy(cls *jvm.Class) *jvm.Class {
	out := *cls
	out.Methods = append([]*jvm.Method(nil), cls.Methods...)
	return &out
}

// changedMethods lists the methods whose body differs between two
// versions of a class.
func changedMethods(before, after *jvm.Class) []string {
	var out []string
	for _, m := range after.Methods {
		old := before.Method(m.Name, m.Desc)
		if old == nil || !sameCode(old.Code, m.Code) {
			out = append(out, m.Key())
		}
	}
	return out
}

func sameCode(a, b *jvm.Code) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Insns) != len(b.Insns) || len(a.TryCatches) != len(b.TryCatches) {
		return false
	}
	for i := range a.Insns {
		if !a.Insns[i].Equal(b.Insns[i]) {
			return false
		}
	}
	for i := range a.TryCatches {
		if a.TryCatches[i] != b.TryCatches[i] {
			return false
		}
	}
	return true
}

func (a *Applier) workers() int {
	if a.Workers > 0 {
		return a.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (a *Applier) logger() *log.Logger {
	if a.Logger == nil {
		return logging.Discard()
	}
	return a.Logger
}

func (a *Applier) tracer() trace.Tracer {
	if a.Tracer == nil {
		return telemetry.Tracer()
	}
	return a.Tracer
}
