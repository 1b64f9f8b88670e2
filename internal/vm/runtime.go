package vm

import (
	"github.com/jcorbin/corelisp/internal/gc"
	"github.com/jcorbin/corelisp/internal/global"
	"github.com/jcorbin/corelisp/internal/heap"
)

// Runtime bundles the process-wide singletons of §5 ("heap, the root
// stack... the global environment, and the symbol interning table"),
// wired together with their well-defined initialisation order
// (heap -> globals -> VM tables).
type Runtime struct {
	Heap    *heap.Heap
	GC      *gc.Collector
	Globals *global.Env
	VM      *VM
}

// NewRuntime constructs a fresh Heap, Collector, global environment, and VM,
// in that order, and registers Globals as a standing GC root source.
func NewRuntime(opts ...Option) *Runtime {
	h := heap.New()
	collector := gc.New(h)
	g := global.New(h)
	collector.RegisterSource(g)
	return &Runtime{
		Heap:    h,
		GC:      collector,
		Globals: g,
		VM:      New(h, collector, g, opts...),
	}
}
