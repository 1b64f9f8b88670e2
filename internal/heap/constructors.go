package heap

import (
	"github.com/dolthub/swiss"

	"github.com/jcorbin/corelisp/internal/value"
)

// MakePair allocates a pair cell with the given car/cdr.
func (h *Heap) MakePair(car, cdr value.Value) value.Value {
	v := h.Alloc(value.TagPair, false, car, cdr)
	h.cells[v].A, h.cells[v].B = car, cdr
	return v
}

// MakeVector allocates a vector cell of length n, every slot initialised to
// init — never left uninitialised, per §3 Invariant 3's sibling rule for
// vectors in general (the operand stack is simply the vector used as S).
func (h *Heap) MakeVector(n int, init value.Value) value.Value {
	v := h.Alloc(value.TagVector, true, init)
	buf := make([]value.Value, n)
	for i := range buf {
		buf[i] = init
	}
	h.vectors[v] = buf
	h.cells[v].B = value.Value(n)
	return v
}

// VectorLen returns the current length of a vector's backing buffer.
func (h *Heap) VectorLen(v value.Value) int { return len(h.vectors[v]) }

// GrowVector extends a vector's backing buffer to at least n slots,
// geometric growth factor ~1.8, newly added slots set to init (§3: operand
// stack slots [top, capacity) always point at the empty-list singleton).
func (h *Heap) GrowVector(v value.Value, n int, init value.Value) {
	buf := h.vectors[v]
	if len(buf) >= n {
		return
	}
	newCap := len(buf)
	if newCap == 0 {
		newCap = n
	}
	for newCap < n {
		newCap = int(float64(newCap)*1.8) + 1
	}
	grown := make([]value.Value, newCap)
	copy(grown, buf)
	for i := len(buf); i < newCap; i++ {
		grown[i] = init
	}
	h.vectors[v] = grown
	h.cells[v].B = value.Value(newCap)
}

// ReplaceVector swaps a vector cell's backing buffer wholesale, used by the
// VM's `args`/`argsdot` opcodes when the top frame's vector is too small
// (§4.3: "replace it with a new vector of size n").
func (h *Heap) ReplaceVector(v value.Value, buf []value.Value) {
	h.vectors[v] = buf
	h.cells[v].B = value.Value(len(buf))
}

// MakeString allocates a string cell over a copy of the given bytes.
func (h *Heap) MakeString(s []byte) value.Value {
	v := h.Alloc(value.TagString, true)
	buf := make([]byte, len(s))
	copy(buf, s)
	h.strings[v] = buf
	h.cells[v].B = value.Value(len(buf))
	return v
}

// MakeCompiledProc allocates a compiled-procedure cell over a procedure
// template (see asm.Template, bundling bytecode and constant vector) and a
// captured environment list.
func (h *Heap) MakeCompiledProc(template, env value.Value) value.Value {
	v := h.Alloc(value.TagCompiledProc, false, template, env)
	h.cells[v].A, h.cells[v].B = template, env
	return v
}

// MakeSyntaxProc allocates a compiled-syntax-procedure cell (set-macro!'s
// target shape, §6).
func (h *Heap) MakeSyntaxProc(template, env value.Value) value.Value {
	v := h.Alloc(value.TagCompiledSyntaxProc, false, template, env)
	h.cells[v].A, h.cells[v].B = template, env
	return v
}

// Retag re-tags a compiled procedure as compiled-syntax-proc in place
// (set-macro!, §6), preserving its bytecode/env payload and cell identity.
func (h *Heap) Retag(v value.Value, tag value.Tag) {
	h.cells[v].Tag = tag
}

// Primitive is the calling convention of §4.1: a primitive receives the
// operand-stack vector cell, the argument count, and the current top index,
// and returns a single value without popping its own arguments.
type Primitive func(h *Heap, stack value.Value, argc, top int) (value.Value, error)

type primRegistry struct {
	fns   []Primitive
	names []string
}

var globalPrimitives primRegistry

// MakePrimitiveProc allocates a primitive-procedure cell wrapping fn.
func (h *Heap) MakePrimitiveProc(name string, fn Primitive) value.Value {
	id := len(globalPrimitives.fns)
	globalPrimitives.fns = append(globalPrimitives.fns, fn)
	globalPrimitives.names = append(globalPrimitives.names, name)
	v := h.Alloc(value.TagPrimitiveProc, false)
	h.cells[v].A = value.Value(id)
	return v
}

// Primitive returns the function wrapped by a primitive-procedure cell.
func (h *Heap) Primitive(v value.Value) (Primitive, string) {
	id := int(h.cells[v].A)
	return globalPrimitives.fns[id], globalPrimitives.names[id]
}

// MakeMetaProc allocates a meta-procedure cell wrapping an inner procedure
// and an opaque metadata value.
func (h *Heap) MakeMetaProc(inner, meta value.Value) value.Value {
	v := h.Alloc(value.TagMetaProc, false, inner, meta)
	h.cells[v].A, h.cells[v].B = inner, meta
	return v
}

// Unwrap follows meta-proc wrapping to the underlying callable, the
// "meta unwrap" rule callj/fcallj apply before dispatch (§4.3).
func (h *Heap) Unwrap(v value.Value) value.Value {
	for h.cells[v].Tag == value.TagMetaProc {
		v = h.cells[v].A
	}
	return v
}

// MakeFixnum allocates a fixnum cell. Fixnums are not interned/shared: each
// call yields a fresh cell, matching the teacher's convention that FIRST's
// pushint always compiles a fresh integer rather than caching small values.
func (h *Heap) MakeFixnum(n int64) value.Value {
	v := h.Alloc(value.TagFixnum, false)
	h.cells[v].A = value.Value(uint32(n))
	h.cells[v].B = value.Value(uint32(n >> 32))
	return v
}

// Fixnum reads the integer payload of a fixnum cell.
func (h *Heap) Fixnum(v value.Value) int64 {
	lo := uint64(uint32(h.cells[v].A))
	hi := uint64(uint32(h.cells[v].B))
	return int64(hi<<32 | lo)
}

// MakeCharacter allocates a character cell over a codepoint.
func (h *Heap) MakeCharacter(r rune) value.Value {
	v := h.Alloc(value.TagCharacter, false)
	h.cells[v].A = value.Value(r)
	return v
}

// Character reads the codepoint payload of a character cell.
func (h *Heap) Character(v value.Value) rune { return rune(h.cells[v].A) }

// Intern returns the unique symbol cell for name: symbols with equal names
// are pointer-equal (§4.1 Symbol interning). The interning table is itself
// a GC root: every interned symbol is returned by AlwaysLiveRoots.
func (h *Heap) Intern(name string) value.Value {
	if v, ok := h.symbolIDs.Get(name); ok {
		return v
	}
	v := h.Alloc(value.TagSymbol, false)
	nameID := len(h.symbolNames)
	h.symbolNames = append(h.symbolNames, name)
	h.cells[v].A = value.Value(nameID)
	h.symbolIDs.Put(name, v)
	return v
}

// SymbolName returns the backing name of a symbol cell.
func (h *Heap) SymbolName(v value.Value) string {
	return h.symbolNames[h.cells[v].A]
}

// InternedSymbols returns the live symbol table. The collector does not use
// it; interned symbols reach the collector through AlwaysLiveRoots.
func (h *Heap) InternedSymbols() *swiss.Map[string, value.Value] { return h.symbolIDs }

// MakeHashTable allocates a hash-table cell over an empty swiss.Map.
func (h *Heap) MakeHashTable() value.Value {
	v := h.Alloc(value.TagHashTable, true)
	h.tables[v] = swiss.NewMap[value.Value, value.Value](8)
	return v
}
