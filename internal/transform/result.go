package transform

import (
	"sort"
	"sync"

	"deobf/internal/jvm"
	"deobf/internal/mapping"
)

// Result is the staged outcome of a run. Nothing in it is visible in the
// bundle until Apply.
type Result struct {
	// Classes holds the final version of every changed class, keyed by its
	// name before renaming.
	Classes map[string]*jvm.Class
	// Methods lists the changed method keys (name+desc) per class.
	Methods map[string][]string
	// Removed lists the classes staged for removal, sorted.
	Removed []string
	// Mappings holds the renames applied after the class changes.
	Mappings *mapping.Mappings
	// Failures lists every transformer that could not complete, in a stable
	// order.
	Failures []*Failure
	// Passes is the number of full passes over the queue.
	Passes int

	bundle  *jvm.Bundle
	mu      sync.Mutex
	applied bool
}

// Changed reports whether the run staged anything.
func (r *Result) Changed() bool {
	return len(r.Classes) > 0 || len(r.Removed) > 0 || r.Mappings.Len() > 0
}

// Applied reports whether Apply has committed the result.
func (r *Result) Applied() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied
}

// Apply commits the result to the bundle it was computed from in one
// critical section: changed classes are stored, removed classes deleted,
// and the mappings applied over the whole bundle. Calling Apply again is a
// no-op.
func (r *Result) Apply() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applied || r.bundle == nil {
		return nil
	}
	removed := make(map[string]bool, len(r.Removed))
	for _, name := range r.Removed {
		removed[name] = true
	}
	err := r.bundle.Update(func(tx *jvm.Tx) error {
		names := make([]string, 0, len(r.Classes))
		for name := range r.Classes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !removed[name] {
				tx.Put(r.Classes[name])
			}
		}
		for _, name := range r.Removed {
			tx.Remove(name)
		}
		if r.Mappings.Len() > 0 {
			r.Mappings.Apply(tx)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.applied = true
	return nil
}

func sortFailures(fs []*Failure) {
	sort.Slice(fs, func(i, j int) bool {
		a, b := fs[i].Key, fs[j].Key
		if a.Class != b.Class {
			return a.Class < b.Class
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		return a.Transformer < b.Transformer
	})
}
