package transform

import (
	"fmt"
	"strings"
)

// Registry holds the known transformers by name, in registration order.
type Registry struct {
	byName map[string]Transformer
	order  []string
}

// NewRegistry returns a registry holding ts.
func NewRegistry(ts ...Transformer) *Registry {
	r := &Registry{byName: make(map[string]Transformer)}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// Register adds t, replacing any transformer of the same name.
func (r *Registry) Register(t Transformer) {
	if _, ok := r.byName[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.byName[t.Name()] = t
}

// Get returns the transformer called name.
func (r *Registry) Get(name string) (Transformer, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string { return append([]string(nil), r.order...) }

// Queue resolves names into run order. Dependencies are inserted ahead of
// the first transformer needing them and every transformer appears once.
func (r *Registry) Queue(names []string) ([]Transformer, error) {
	var queue []Transformer
	queued := make(map[string]bool)
	var insert func(name string, path []string) error
	insert = func(name string, path []string) error {
		for _, p := range path {
			if p == name {
				return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(append(path, name), " -> "))
			}
		}
		t, ok := r.byName[name]
		if !ok {
			if len(path) > 0 {
				return fmt.Errorf("%w: %q (required by %s)", ErrUnknownTransformer, name, path[len(path)-1])
			}
			return fmt.Errorf("%w: %q", ErrUnknownTransformer, name)
		}
		for _, dep := range dependencies(t) {
			if queued[dep] {
				continue
			}
			if err := insert(dep, append(path[:len(path):len(path)], name)); err != nil {
				return err
			}
		}
		if !queued[name] {
			queued[name] = true
			queue = append(queue, t)
		}
		return nil
	}
	for _, name := range names {
		if err := insert(name, nil); err != nil {
			return nil, err
		}
	}
	return queue, nil
}
