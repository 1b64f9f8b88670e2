// Package global implements the global environment of §6: a symbol→value
// mapping exposed to the compiler and to the VM's gvar/gset opcodes.
package global

import (
	"fmt"

	"github.com/dolthub/swiss"

	"github.com/jcorbin/corelisp/internal/heap"
	"github.com/jcorbin/corelisp/internal/value"
)

// UnboundError reports a gvar lookup (or Lookup call) against a symbol with
// no binding (§7 "Unbound global").
type UnboundError struct{ Name string }

func (e UnboundError) Error() string { return fmt.Sprintf("unbound global: %s", e.Name) }

// Env is the process-wide global environment, a mapping from symbol cells
// to value cells with define/lookup/bound? (§6).
type Env struct {
	h       *heap.Heap
	bindIDs *swiss.Map[value.Value, value.Value] // symbol cell -> value cell
}

// New constructs an empty global environment over h.
func New(h *heap.Heap) *Env {
	return &Env{h: h, bindIDs: swiss.NewMap[value.Value, value.Value](256)}
}

// Define binds sym to v, creating or overwriting the binding (`gset`, §4.3).
func (e *Env) Define(sym, v value.Value) {
	e.bindIDs.Put(sym, v)
}

// Lookup returns the value bound to sym, or an UnboundError (`gvar`, §4.3).
func (e *Env) Lookup(sym value.Value) (value.Value, error) {
	v, ok := e.bindIDs.Get(sym)
	if !ok {
		return value.None, UnboundError{Name: e.h.SymbolName(sym)}
	}
	return v, nil
}

// Bound reports whether sym currently has a binding.
func (e *Env) Bound(sym value.Value) bool {
	_, ok := e.bindIDs.Get(sym)
	return ok
}

// DefineName is a convenience wrapper interning name before Define.
func (e *Env) DefineName(name string, v value.Value) {
	e.Define(e.h.Intern(name), v)
}

// GCRoots implements gc.RootSource: every bound value, plus every bound
// symbol (so a global's name survives even if nothing else interned it),
// must remain reachable across collections (§4.1 "The interning table is a
// root"; the global environment is the companion root for bound values).
func (e *Env) GCRoots() []value.Value {
	roots := make([]value.Value, 0, e.bindIDs.Count()*2)
	e.bindIDs.Iter(func(sym, v value.Value) (stop bool) {
		roots = append(roots, sym, v)
		return false
	})
	return roots
}

// Count returns the number of bound globals, exposed for tests.
func (e *Env) Count() int { return e.bindIDs.Count() }
