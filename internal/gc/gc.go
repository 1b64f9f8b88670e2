// Package gc implements the Baker-style tracing collector of §4.2: two
// doubly linked lists (active/old), a single colour epoch, an explicit root
// stack, and a finalizable-objects set driving external-resource release.
package gc

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/jcorbin/corelisp/internal/heap"
	"github.com/jcorbin/corelisp/internal/value"
)

// RootSource supplies roots that are always scanned during a collection
// without needing an explicit PushRoot/PopRoot bracket — the global
// environment is the standing example. The interned symbol table is not a
// RootSource; its symbols come from Heap.AlwaysLiveRoots (§4.1 "the
// interning table is a root").
type RootSource interface {
	GCRoots() []value.Value
}

// RootStackDesyncError reports a PopRoot whose holder address was not found
// by the tolerant backward scan (§4.2 "Root protocol"; §7 "indicates a
// VM/primitive bug").
type RootStackDesyncError struct{ Addr *value.Value }

func (e RootStackDesyncError) Error() string {
	return fmt.Sprintf("gc: pop_root(%p) did not match any pushed root", e.Addr)
}

// Collector drives collection cycles over a *heap.Heap.
type Collector struct {
	h *heap.Heap

	rootStack []*value.Value
	sources   []RootSource

	finalizable     []value.Value
	nextFinalizable []value.Value
}

// New wires a Collector to h, installing the heap's Collect hook so that
// Heap.Alloc triggers a cycle on exhaustion without heap importing gc.
func New(h *heap.Heap) *Collector {
	c := &Collector{h: h}
	h.Collect = c.Collect
	h.ProtectDuringGC = c.protectDuringGC
	h.OnFinalizable = c.TrackFinalizable
	return c
}

// protectDuringGC roots a snapshot of vs for the duration of one Collect
// call, implementing Heap.ProtectDuringGC: the constructor calling Alloc
// holds vs only in Go-stack locals, invisible to the collector, until it
// links them into the cell Alloc returns.
func (c *Collector) protectDuringGC(vs ...value.Value) (restore func()) {
	temps := make([]value.Value, len(vs))
	copy(temps, vs)
	ptrs := make([]*value.Value, len(temps))
	for i := range temps {
		ptrs[i] = &temps[i]
		c.PushRoot(ptrs[i])
	}
	return func() {
		for i := len(ptrs) - 1; i >= 0; i-- {
			_ = c.PopRoot(ptrs[i])
		}
	}
}

// RegisterSource adds a standing root source (e.g. the global environment)
// scanned on every cycle.
func (c *Collector) RegisterSource(s RootSource) { c.sources = append(c.sources, s) }

// PushRoot records the address of a value-holding location as live. It must
// bracket any VM/primitive temporary that must survive an allocation
// (§4.1 "Primitives... MUST push any live temporaries to the root stack").
func (c *Collector) PushRoot(p *value.Value) { c.rootStack = append(c.rootStack, p) }

// PopRoot removes the most recent matching record for p, tolerating
// non-LIFO pops by scanning backward (§4.2 "Root protocol").
func (c *Collector) PopRoot(p *value.Value) error {
	for i := len(c.rootStack) - 1; i >= 0; i-- {
		if c.rootStack[i] == p {
			c.rootStack = slices.Delete(c.rootStack, i, i+1)
			return nil
		}
	}
	return RootStackDesyncError{Addr: p}
}

// ScopedRoot brackets a root push with a defer-able pop, for callers who can
// maintain strict LIFO discipline (§9 "Prefer scoped acquisition so pops are
// strictly LIFO"). The underlying scan-tolerant PushRoot/PopRoot remain the
// primitive operation this builds on.
func (c *Collector) ScopedRoot(p *value.Value) func() {
	c.PushRoot(p)
	return func() {
		if err := c.PopRoot(p); err != nil {
			panic(err)
		}
	}
}

// RootStackDepth reports the number of live root-stack entries, exposed for
// tests asserting push/pop balance (§8 Testable Property 4).
func (c *Collector) RootStackDepth() int { return len(c.rootStack) }

// Collect runs one full collection cycle and returns the number of cells
// reclaimed (§4.2).
func (c *Collector) Collect() int {
	// Between cycles old sits behind active; splice it onto active's tail
	// so the entire heap is considered in one pass.
	c.appendOldToActive()

	c.h.BumpColor()

	for _, root := range c.h.AlwaysLiveRoots() {
		c.moveReachable(root)
	}
	for _, src := range c.sources {
		for _, root := range src.GCRoots() {
			c.moveReachable(root)
		}
	}
	for _, p := range c.rootStack {
		if p != nil {
			c.moveReachable(*p)
		}
	}

	c.sweepFinalizable()

	// The unreachable residue of active becomes the free list; active
	// starts empty again and collects the cells Alloc hands out next.
	c.h.SetFreeHead(c.h.ActiveHead())
	c.h.SetActiveHead(value.None)
	count := 0
	for v := c.h.FreeHead(); v != value.None; v = c.h.Next(v) {
		count++
	}
	c.h.SetFreeCount(count)

	return count
}

func (c *Collector) appendOldToActive() {
	old := c.h.OldHead()
	if old == value.None {
		return
	}
	if c.h.ActiveHead() == value.None {
		c.h.SetActiveHead(old)
		c.h.SetOldHead(value.None)
		return
	}
	tail := c.h.ActiveHead()
	for c.h.Next(tail) != value.None {
		tail = c.h.Next(tail)
	}
	c.h.SetNext(tail, old)
	c.h.SetPrev(old, tail)
	c.h.SetOldHead(value.None)
}

// moveReachable implements §4.2's namesake operation: colour the root,
// splice it from active to the head of old, and transitively splice+colour
// every cell reachable from it. The spec describes this as a scan that
// walks the old list from its current head toward the tail after each
// splice; this renders the same reachable-from-root, splice-on-first-visit
// semantics as an explicit worklist so a single call computes the full
// transitive closure in one pass rather than depending on later calls (for
// other roots) to revisit cells spliced ahead of an in-progress list walk.
func (c *Collector) moveReachable(root value.Value) {
	if root == value.None || c.h.Color(root) == c.h.CurrentColor() {
		return
	}
	stack := []value.Value{root}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if v == value.None || c.h.Color(v) == c.h.CurrentColor() {
			continue
		}
		c.h.SetColor(v, c.h.CurrentColor())
		c.spliceToOld(v)
		stack = append(stack, c.h.TraceChildren(v)...)
	}
}

// spliceToOld unlinks v from whichever list it is in (active, since only
// active cells are ever traced mid-cycle) and links it at the head of old.
func (c *Collector) spliceToOld(v value.Value) {
	prev, next := c.h.Prev(v), c.h.Next(v)
	if prev != value.None {
		c.h.SetNext(prev, next)
	} else if c.h.ActiveHead() == v {
		c.h.SetActiveHead(next)
	}
	if next != value.None {
		c.h.SetPrev(next, prev)
	}

	oldHead := c.h.OldHead()
	c.h.SetPrev(v, value.None)
	c.h.SetNext(v, oldHead)
	if oldHead != value.None {
		c.h.SetPrev(oldHead, v)
	}
	c.h.SetOldHead(v)
}

// sweepFinalizable finalizes every tracked cell that did not survive this
// cycle and carries the rest forward (§4.2 "Finalization taxonomy").
func (c *Collector) sweepFinalizable() int {
	freed := 0
	c.nextFinalizable = c.nextFinalizable[:0]
	for _, v := range c.finalizable {
		if c.h.Color(v) != c.h.CurrentColor() {
			c.h.Finalize(v)
			freed++
		} else {
			c.nextFinalizable = append(c.nextFinalizable, v)
		}
	}
	c.finalizable, c.nextFinalizable = c.nextFinalizable, c.finalizable
	return freed
}

// TrackFinalizable registers a cell as owning external memory, so that a
// future collection in which it does not survive will release that memory
// (§4.1 Allocation contract: "Only these are pushed to the finalizable set
// by alloc"). Installed as Heap.OnFinalizable by New, so every
// string/vector/hash-table cell is tracked automatically at allocation.
func (c *Collector) TrackFinalizable(v value.Value) {
	if c.h.Finalizable(v) {
		c.finalizable = append(c.finalizable, v)
	}
}

// Reachable reports whether v is currently reachable, i.e. colored at the
// collector's current epoch — used by tests verifying Testable Property 3
// (every finalizable-set member at the end of a collection is reachable).
func (c *Collector) Reachable(v value.Value) bool {
	return c.h.Color(v) == c.h.CurrentColor()
}
