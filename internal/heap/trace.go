package heap

import "github.com/jcorbin/corelisp/internal/value"

// TraceChildren returns every Value a cell of this tag holds a live
// reference to, the single source of truth the collector uses to walk the
// object graph (§9 Design Notes: "a single source of truth enumerating
// (trace-fields, finalize-action) per tag" in place of scattered switches).
func (h *Heap) TraceChildren(v value.Value) []value.Value {
	c := &h.cells[v]
	switch c.Tag {
	case value.TagPair, value.TagCompiledProc, value.TagCompiledSyntaxProc, value.TagMetaProc:
		return []value.Value{c.A, c.B}
	case value.TagVector:
		return h.vectors[v]
	case value.TagHashTable:
		t := h.tables[v]
		if t == nil {
			return nil
		}
		children := make([]value.Value, 0, t.Count()*2)
		t.Iter(func(k, val value.Value) (stop bool) {
			children = append(children, k, val)
			return false
		})
		return children
	default:
		// empty_list, boolean, fixnum, character, symbol, primitive_proc:
		// no outgoing Value references to trace.
		return nil
	}
}

// AlwaysLiveRoots returns cells that must survive every collection
// regardless of reachability from the VM's root stack: the singleton
// cells and every interned symbol (§4.1 "The interning table is a root").
func (h *Heap) AlwaysLiveRoots() []value.Value {
	roots := []value.Value{h.emptyList, h.trueVal, h.falseVal, h.nilSym}
	h.symbolIDs.Iter(func(_ string, v value.Value) (stop bool) {
		roots = append(roots, v)
		return false
	})
	return roots
}
