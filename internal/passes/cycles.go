package passes

import (
	"deobf/internal/jvm"
	"deobf/internal/transform"
)

// CycleRemoval stages classes whose supertype chain loops back on itself
// for removal. No virtual machine can load them.
type CycleRemoval struct{}

func (*CycleRemoval) Name() string { return CycleRemovalName }

func (*CycleRemoval) Description() string {
	return "remove classes that inherit from themselves"
}

func (*CycleRemoval) TransformClass(ctx *transform.Context, cls *jvm.Class) (bool, error) {
	if ctx.Hierarchy().InCycle(cls.Name) {
		ctx.MarkClassForRemoval(cls.Name)
	}
	return false, nil
}
