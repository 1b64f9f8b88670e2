// Package heap implements the tagged heap cell model of §3/§4.1: a doubly
// linked pool of fixed-layout cells, with external variable-sized buffers
// for the tags that own them.
package heap

import (
	"fmt"

	"github.com/dolthub/swiss"
	"golang.org/x/exp/slices"

	"github.com/jcorbin/corelisp/internal/value"
)

// Cell is the fixed-size, tagged unit of allocation and GC membership (§3).
// A, B hold the two value-pointer-sized payload slots; their meaning is
// tag-dependent:
//
//	pair:                  A=car           B=cdr
//	compiled proc / syntax: A=template (bytecode+consts pair)  B=captured env
//	meta proc:             A=inner proc    B=metadata value
//	string/vector/table:   A unused        B=length (vector/string only);
//	                       the buffer lives in a side table keyed by the cell
//	symbol:                A=interned name id (index into Heap.symbolNames)
//	fixnum:                A=low 32 bits   B=high 32 bits
//	character:             A=the codepoint
type Cell struct {
	Tag   value.Tag
	A, B  value.Value
	Color uint8
	Prev  value.Value
	Next  value.Value

	finalizable bool
}

// List names the list a heap cell belongs to (§4.2): Free cells are
// available to Alloc; Active cells are provisional garbage awaiting the next
// collection; Old cells survived at least one collection.
type List uint8

const (
	ListFree List = iota
	ListActive
	ListOld
)

const (
	initialExtension = 1000
	extensionFactor  = 3
)

// OOMError reports allocator exhaustion after growth (§7).
type OOMError struct{ Requested int }

func (e OOMError) Error() string {
	return fmt.Sprintf("heap: out of memory extending by %d cells", e.Requested)
}

// Heap owns cell storage, the free/active/old membership lists, external
// buffers, and the symbol intern table. It does not itself decide when to
// collect: Alloc calls the Collect hook installed by the owning VM/collector
// pairing when the free list runs dry, mirroring how the teacher's VM and
// memCore are separate types composed by the caller.
type Heap struct {
	cells []Cell

	freeHead  value.Value // head of the free list (List == ListFree)
	freeCount int

	activeHead value.Value
	oldHead    value.Value

	nextColor uint8

	strings map[value.Value][]byte
	vectors map[value.Value][]value.Value
	tables  map[value.Value]*swiss.Map[value.Value, value.Value]

	symbolIDs   *swiss.Map[string, value.Value]
	symbolNames []string

	// Collect is invoked by Alloc when the free list is exhausted. It
	// should perform one GC cycle and return the number of cells freed.
	// Installed by the package wiring the heap to a *gc.Collector so that
	// heap does not import gc (gc already imports heap).
	Collect func() int

	// ProtectDuringGC temporarily roots the given values for the duration
	// of one Collect call, so a constructor's not-yet-linked arguments
	// (e.g. MakePair's car/cdr) survive a collection triggered by the very
	// Alloc call that will link them in (§4.1 "Primitives... MUST push any
	// live temporaries to the root stack"). Installed alongside Collect.
	ProtectDuringGC func(vs ...value.Value) (restore func())

	// OnFinalizable is invoked by Alloc right after allocating a cell whose
	// tag owns an external buffer (string/vector/hash-table), registering it
	// with the collector's finalizable set (§4.1: "Only these are pushed to
	// the finalizable set by alloc"). Installed alongside Collect.
	OnFinalizable func(v value.Value)

	// Fatal is invoked for an out-of-memory condition that growth could
	// not resolve (§7: "fatal to the process").
	Fatal func(error)

	// MaxCells caps total cell-table growth (0 = unbounded), the operator
	// knob behind `-mem-limit` (mirrors the teacher's memLimit).
	MaxCells int

	// singletons, fixed at construction like FIRST's reserved low memory
	// addresses (0=dict, 1=ret, 10=retBase, 11=memBase).
	emptyList value.Value
	trueVal   value.Value
	falseVal  value.Value
	nilSym    value.Value

	nextExtension int // geometric, factor 3, starting at 1000 cells
}

// New constructs a Heap with its three singleton cells pre-allocated and
// linked onto the old list (so an immediate collection never sweeps them).
func New() *Heap {
	h := &Heap{
		strings:   make(map[value.Value][]byte),
		vectors:   make(map[value.Value][]value.Value),
		tables:    make(map[value.Value]*swiss.Map[value.Value, value.Value]),
		symbolIDs:     swiss.NewMap[string, value.Value](64),
		Fatal:         func(err error) { panic(err) },
		nextExtension: initialExtension,
	}
	// cells[0] is never allocated out; it is the None sentinel.
	h.cells = append(h.cells, Cell{})

	h.emptyList = h.allocSingleton(value.TagEmptyList)
	h.trueVal = h.allocSingleton(value.TagBoolean)
	h.falseVal = h.allocSingleton(value.TagBoolean)
	h.nilSym = h.Intern("nil")
	return h
}

func (h *Heap) allocSingleton(tag value.Tag) value.Value {
	v := value.Value(len(h.cells))
	h.cells = append(h.cells, Cell{Tag: tag, Color: h.nextColor})
	h.linkHead(&h.oldHead, v)
	return v
}

// SetMaxCells installs a cell-count ceiling; 0 disables the check.
func (h *Heap) SetMaxCells(n int) { h.MaxCells = n }

// EmptyList, True, False, NilSymbol return the fixed singleton cells.
func (h *Heap) EmptyList() value.Value { return h.emptyList }
func (h *Heap) True() value.Value      { return h.trueVal }
func (h *Heap) False() value.Value     { return h.falseVal }
func (h *Heap) NilSymbol() value.Value { return h.nilSym }

// Falselike implements §4.3's falselike predicate: #f, the empty list, or
// the symbol nil.
func (h *Heap) Falselike(v value.Value) bool {
	return v == h.falseVal || v == h.emptyList || v == h.nilSym
}

// Tag returns the tag of a cell.
func (h *Heap) Tag(v value.Value) value.Tag { return h.cells[v].Tag }

// Color returns the color bit of a cell (exposed for gc).
func (h *Heap) Color(v value.Value) uint8 { return h.cells[v].Color }

// CurrentColor returns the collector's current epoch color.
func (h *Heap) CurrentColor() uint8 { return h.nextColor }

// SetColor is used by the collector during tracing.
func (h *Heap) SetColor(v value.Value, c uint8) { h.cells[v].Color = c }

// Next/Prev/SetNext/SetPrev expose the intrusive list pointers to the
// collector, which owns all list-splicing logic (gc.Collector).
func (h *Heap) Next(v value.Value) value.Value     { return h.cells[v].Next }
func (h *Heap) Prev(v value.Value) value.Value     { return h.cells[v].Prev }
func (h *Heap) SetNext(v, next value.Value)        { h.cells[v].Next = next }
func (h *Heap) SetPrev(v, prev value.Value)        { h.cells[v].Prev = prev }
func (h *Heap) Finalizable(v value.Value) bool     { return h.cells[v].finalizable }
func (h *Heap) ActiveHead() value.Value            { return h.activeHead }
func (h *Heap) OldHead() value.Value               { return h.oldHead }
func (h *Heap) SetActiveHead(v value.Value)         { h.activeHead = v }
func (h *Heap) SetOldHead(v value.Value)            { h.oldHead = v }
func (h *Heap) BumpColor()                          { h.nextColor++ }
func (h *Heap) FreeHead() value.Value               { return h.freeHead }
func (h *Heap) SetFreeHead(v value.Value)           { h.freeHead = v }
func (h *Heap) FreeCount() int                      { return h.freeCount }
func (h *Heap) SetFreeCount(n int)                  { h.freeCount = n }
func (h *Heap) NumCells() int                       { return len(h.cells) }

func (h *Heap) linkHead(head *value.Value, v value.Value) {
	h.cells[v].Prev = value.None
	h.cells[v].Next = *head
	if *head != value.None {
		h.cells[*head].Prev = v
	}
	*head = v
}

// Alloc draws an uninitialised cell from the free list, invoking Collect if
// the free list is exhausted and extending the heap geometrically if the
// collection did not yield enough headroom (§4.1 Allocation contract).
// protect names values the caller is about to link into the new cell but
// which are not yet reachable any other way; they are rooted for the
// duration of any collection this call triggers.
func (h *Heap) Alloc(tag value.Tag, needsFinalization bool, protect ...value.Value) value.Value {
	if h.freeHead == value.None {
		var restore func()
		if h.ProtectDuringGC != nil && len(protect) > 0 {
			restore = h.ProtectDuringGC(protect...)
		}
		freed := 0
		if h.Collect != nil {
			freed = h.Collect()
		}
		if restore != nil {
			restore()
		}
		h.growAfterCollection(freed)
	}
	if h.freeHead == value.None {
		h.Fatal(OOMError{Requested: h.nextExtension})
		return value.None
	}

	v := h.freeHead
	h.freeHead = h.cells[v].Next
	h.freeCount--

	h.cells[v] = Cell{Tag: tag, Color: h.nextColor, finalizable: needsFinalization}
	h.linkHead(&h.activeHead, v)
	if needsFinalization && h.OnFinalizable != nil {
		h.OnFinalizable(v)
	}
	return v
}

// growAfterCollection implements §4.1's extension rule: if
// (planned next extension) / (freed count) exceeds 2, extend the heap by
// the next geometric increment (factor 3, starting at 1000 cells).
func (h *Heap) growAfterCollection(freed int) {
	ratio := float64(h.nextExtension + 1)
	if freed > 0 {
		ratio = float64(h.nextExtension) / float64(freed)
	}
	if freed > 0 && ratio <= 2 {
		return
	}
	if h.freeHead != value.None && h.MaxCells > 0 && len(h.cells)+h.nextExtension > h.MaxCells {
		// The collection left free cells; growing past the ceiling is skipped.
		return
	}
	h.extend(h.nextExtension)
	h.nextExtension *= extensionFactor
}

func (h *Heap) extend(n int) {
	if h.MaxCells > 0 && len(h.cells)+n > h.MaxCells {
		h.Fatal(MemLimitError{Limit: h.MaxCells, Requested: len(h.cells) + n})
		return
	}
	start := value.Value(len(h.cells))
	h.cells = slices.Grow(h.cells, n)
	for i := 0; i < n; i++ {
		v := value.Value(len(h.cells))
		h.cells = append(h.cells, Cell{Color: h.nextColor})
		h.cells[v].Next = v + 1
		h.cells[v].Prev = v - 1
	}
	end := value.Value(len(h.cells)) - 1
	h.cells[end].Next = h.freeHead
	if h.freeHead != value.None {
		h.cells[h.freeHead].Prev = end
	}
	h.cells[start].Prev = value.None
	h.freeHead = start
	h.freeCount += n
}
