// Package stdprims implements a small, illustrative primitive set: enough
// arithmetic, predicates, and pair operations to drive the concrete
// scenarios of §8 (S1-S6). It is a test/demo fixture, not a language
// standard library (§9 Non-goals).
package stdprims

import (
	"github.com/jcorbin/corelisp/internal/global"
	"github.com/jcorbin/corelisp/internal/heap"
	"github.com/jcorbin/corelisp/internal/value"
)

// Install defines every primitive in this package into e, interning its
// name as a global symbol (§6 "Global environment").
func Install(h *heap.Heap, e *global.Env) {
	global.InstallBridge(h, e)

	define := func(name string, fn heap.Primitive) {
		e.DefineName(name, h.MakePrimitiveProc(name, fn))
	}

	define("+", add)
	define("-", sub)
	define("*", mul)
	define("<", lt)
	define("=", numEq)
	define("cons", cons)
	define("car", car)
	define("cdr", cdr)
	define("pair?", pairP)
	define("null?", nullP)
	define("not", not)
	define("eq?", eqP)
}

func argAt(h *heap.Heap, stack value.Value, argc, top, i int) value.Value {
	return h.VectorRef(stack, top-argc+i)
}

func fixnumArg(h *heap.Heap, stack value.Value, argc, top, i int, op string) (int64, error) {
	v := argAt(h, stack, argc, top, i)
	if h.Tag(v) != value.TagFixnum {
		return 0, heap.TypeError{Op: op, Want: value.TagFixnum, Got: h.Tag(v)}
	}
	return h.Fixnum(v), nil
}

func add(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
	var sum int64
	for i := 0; i < argc; i++ {
		n, err := fixnumArg(h, stack, argc, top, i, "+")
		if err != nil {
			return value.None, err
		}
		sum += n
	}
	return h.MakeFixnum(sum), nil
}

func sub(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
	if argc == 0 {
		return value.None, heap.ArityError{Op: "-", Want: -1, Got: argc}
	}
	first, err := fixnumArg(h, stack, argc, top, 0, "-")
	if err != nil {
		return value.None, err
	}
	if argc == 1 {
		return h.MakeFixnum(-first), nil
	}
	acc := first
	for i := 1; i < argc; i++ {
		n, err := fixnumArg(h, stack, argc, top, i, "-")
		if err != nil {
			return value.None, err
		}
		acc -= n
	}
	return h.MakeFixnum(acc), nil
}

func mul(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
	acc := int64(1)
	for i := 0; i < argc; i++ {
		n, err := fixnumArg(h, stack, argc, top, i, "*")
		if err != nil {
			return value.None, err
		}
		acc *= n
	}
	return h.MakeFixnum(acc), nil
}

func lt(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
	if argc < 2 {
		return value.None, heap.ArityError{Op: "<", Want: -1, Got: argc}
	}
	prev, err := fixnumArg(h, stack, argc, top, 0, "<")
	if err != nil {
		return value.None, err
	}
	for i := 1; i < argc; i++ {
		n, err := fixnumArg(h, stack, argc, top, i, "<")
		if err != nil {
			return value.None, err
		}
		if !(prev < n) {
			return h.False(), nil
		}
		prev = n
	}
	return h.True(), nil
}

func numEq(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
	if argc < 2 {
		return value.None, heap.ArityError{Op: "=", Want: -1, Got: argc}
	}
	first, err := fixnumArg(h, stack, argc, top, 0, "=")
	if err != nil {
		return value.None, err
	}
	for i := 1; i < argc; i++ {
		n, err := fixnumArg(h, stack, argc, top, i, "=")
		if err != nil {
			return value.None, err
		}
		if n != first {
			return h.False(), nil
		}
	}
	return h.True(), nil
}

func cons(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
	if argc != 2 {
		return value.None, heap.ArityError{Op: "cons", Want: 2, Got: argc}
	}
	return h.MakePair(argAt(h, stack, argc, top, 0), argAt(h, stack, argc, top, 1)), nil
}

func car(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
	if argc != 1 {
		return value.None, heap.ArityError{Op: "car", Want: 1, Got: argc}
	}
	v := argAt(h, stack, argc, top, 0)
	if h.Tag(v) != value.TagPair {
		return value.None, heap.TypeError{Op: "car", Want: value.TagPair, Got: h.Tag(v)}
	}
	return h.Car(v), nil
}

func cdr(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
	if argc != 1 {
		return value.None, heap.ArityError{Op: "cdr", Want: 1, Got: argc}
	}
	v := argAt(h, stack, argc, top, 0)
	if h.Tag(v) != value.TagPair {
		return value.None, heap.TypeError{Op: "cdr", Want: value.TagPair, Got: h.Tag(v)}
	}
	return h.Cdr(v), nil
}

func pairP(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
	if argc != 1 {
		return value.None, heap.ArityError{Op: "pair?", Want: 1, Got: argc}
	}
	if h.Tag(argAt(h, stack, argc, top, 0)) == value.TagPair {
		return h.True(), nil
	}
	return h.False(), nil
}

func nullP(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
	if argc != 1 {
		return value.None, heap.ArityError{Op: "null?", Want: 1, Got: argc}
	}
	if argAt(h, stack, argc, top, 0) == h.EmptyList() {
		return h.True(), nil
	}
	return h.False(), nil
}

func not(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
	if argc != 1 {
		return value.None, heap.ArityError{Op: "not", Want: 1, Got: argc}
	}
	if h.Falselike(argAt(h, stack, argc, top, 0)) {
		return h.True(), nil
	}
	return h.False(), nil
}

func eqP(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
	if argc != 2 {
		return value.None, heap.ArityError{Op: "eq?", Want: 2, Got: argc}
	}
	if argAt(h, stack, argc, top, 0) == argAt(h, stack, argc, top, 1) {
		return h.True(), nil
	}
	return h.False(), nil
}
