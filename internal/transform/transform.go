// Package transform runs deobfuscation transformers over a class bundle.
//
// Transformers are looked up by name in a Registry, ordered so that every
// dependency precedes its dependents, and driven by an Applier. The applier
// works on private copies of the classes and stages everything in a Result;
// the bundle is only touched by Result.Apply.
package transform

import (
	"errors"
	"fmt"

	"deobf/internal/jvm"
)

var (
	// ErrTransformer wraps unexpected transformer errors and recovered panics.
	ErrTransformer = errors.New("transform: transformer failed")
	// ErrDependencyCycle reports transformers that depend on each other.
	ErrDependencyCycle = errors.New("transform: dependency cycle")
	// ErrUnknownTransformer reports a name missing from the registry.
	ErrUnknownTransformer = errors.New("transform: unknown transformer")
)

// Transformer is the common part of every pass.
type Transformer interface {
	Name() string
	Description() string
}

// Dependent is implemented by transformers that need others to run first.
type Dependent interface {
	Dependencies() []string
}

// ClassTransformer rewrites one class. cls is a private deep copy owned by
// the caller for the duration of the call and may be edited in place.
type ClassTransformer interface {
	Transformer
	TransformClass(ctx *Context, cls *jvm.Class) (changed bool, err error)
}

// MethodTransformer rewrites one method body. m.Code must not be modified;
// a changed body is returned as fresh code.
type MethodTransformer interface {
	Transformer
	TransformMethod(ctx *Context, cls *jvm.Class, m *jvm.Method) (code *jvm.Code, changed bool, err error)
}

// FailureKey locates a failure. Method is empty for class-level failures.
type FailureKey struct {
	Transformer string `json:"transformer"`
	Class       string `json:"class"`
	Method      string `json:"method,omitempty"`
}

func (k FailureKey) String() string {
	if k.Method == "" {
		return k.Transformer + " " + k.Class
	}
	return k.Transformer + " " + k.Class + "." + k.Method
}

// Failure records one transformer that could not complete on a class or
// method. The class or method is left as it was before the transformer ran.
type Failure struct {
	Key FailureKey
	Err error
}

func (f *Failure) Error() string { return fmt.Sprintf("%s: %v", f.Key, f.Err) }

func (f *Failure) Unwrap() error { return f.Err }

// dependencies returns the declared dependencies of t.
func dependencies(t Transformer) []string {
	if d, ok := t.(Dependent); ok {
		return d.Dependencies()
	}
	return nil
}
