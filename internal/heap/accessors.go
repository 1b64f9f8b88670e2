package heap

import (
	"fmt"

	"github.com/jcorbin/corelisp/internal/value"
)

// TypeError reports a tag mismatch on an accessor (§7 "Type mismatch").
type TypeError struct {
	Op   string
	Want value.Tag
	Got  value.Tag
}

func (e TypeError) Error() string {
	return fmt.Sprintf("%s: expected %v cell, got %v", e.Op, e.Want, e.Got)
}

func (h *Heap) checkTag(op string, v value.Value, want value.Tag) error {
	if got := h.cells[v].Tag; got != want {
		return TypeError{Op: op, Want: want, Got: got}
	}
	return nil
}

// Car/Cdr/SetCar/SetCdr implement pair access (§4.1).
func (h *Heap) Car(v value.Value) value.Value { return h.cells[v].A }
func (h *Heap) Cdr(v value.Value) value.Value { return h.cells[v].B }

func (h *Heap) SetCar(v, car value.Value) { h.cells[v].A = car }
func (h *Heap) SetCdr(v, cdr value.Value) { h.cells[v].B = cdr }

// VectorRef/VectorSet implement vector element load/store (§4.1).
func (h *Heap) VectorRef(v value.Value, i int) value.Value {
	return h.vectors[v][i]
}

func (h *Heap) VectorSet(v value.Value, i int, val value.Value) {
	h.vectors[v][i] = val
}

// StringBytes returns the backing bytes of a string cell.
func (h *Heap) StringBytes(v value.Value) []byte { return h.strings[v] }

// TableRef/TableSet implement hash-table load/store (§4.1); TableRef's
// second return mirrors map "found" semantics.
func (h *Heap) TableRef(v, key value.Value) (value.Value, bool) {
	return h.tables[v].Get(key)
}

func (h *Heap) TableSet(v, key, val value.Value) {
	h.tables[v].Put(key, val)
}

// Finalize releases a finalizable cell's external buffer. It is idempotent
// (§4.2 "Finalizers... must be idempotent against double invocation").
func (h *Heap) Finalize(v value.Value) {
	switch h.cells[v].Tag {
	case value.TagString:
		delete(h.strings, v)
	case value.TagVector:
		delete(h.vectors, v)
	case value.TagHashTable:
		delete(h.tables, v)
	}
}

// EnvFrame walks an environment list depth times and returns the frame
// vector found there, implementing the (frame-index, slot-index) lexical
// reference resolution of §3.
func (h *Heap) EnvFrame(env value.Value, depth int) value.Value {
	for ; depth > 0; depth-- {
		env = h.Cdr(env)
	}
	return h.Car(env)
}

// LVarRef resolves a (frame, slot) lexical variable reference.
func (h *Heap) LVarRef(env value.Value, frame, slot int) value.Value {
	return h.VectorRef(h.EnvFrame(env, frame), slot)
}

// LVarSet writes a (frame, slot) lexical variable reference.
func (h *Heap) LVarSet(env value.Value, frame, slot int, val value.Value) {
	h.VectorSet(h.EnvFrame(env, frame), slot, val)
}
