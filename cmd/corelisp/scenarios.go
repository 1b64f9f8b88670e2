package main

import (
	"context"
	"fmt"

	"github.com/jcorbin/corelisp/internal/asm"
	"github.com/jcorbin/corelisp/internal/heap"
	"github.com/jcorbin/corelisp/internal/value"
	"github.com/jcorbin/corelisp/internal/vm"
)

// scenario is one of the concrete scenarios of spec.md §8 (S1-S6),
// assembled by hand since the reader/compiler that would normally produce
// this bytecode from source text is out of scope (§1 Non-goals).
type scenario struct {
	name string
	run  func(ctx context.Context, rt *vm.Runtime) (value.Value, error)
}

func scenarios() []scenario {
	return []scenario{
		{"S1-identity", s1Identity},
		{"S2-conditional", s2Conditional},
		{"S3-tail-recursion", s3TailRecursion},
		{"S4-closure", s4Closure},
		{"S5-callcc-escape", s5CallCCEscape},
		{"S6-gc-survival", s6GCSurvival},
	}
}

// identityProc builds `(lambda (x) x)`.
func identityProc(h *heap.Heap, env value.Value) value.Value {
	a := asm.New(h)
	a.Args(1)
	a.Lvar(0, 0)
	a.Return()
	bytecode, consts, err := a.Assemble()
	if err != nil {
		panic(err)
	}
	return h.MakeCompiledProc(asm.Template(h, bytecode, consts), env)
}

func s1Identity(ctx context.Context, rt *vm.Runtime) (value.Value, error) {
	h := rt.Heap
	proc := identityProc(h, h.EmptyList())
	return rt.VM.Run(ctx, proc, []value.Value{h.MakeFixnum(42)})
}

// s2Conditional builds `(lambda (t) (if t 1 2))` and applies it twice.
func s2Conditional(ctx context.Context, rt *vm.Runtime) (value.Value, error) {
	h := rt.Heap
	a := asm.New(h)
	a.Args(1)
	a.Lvar(0, 0)
	a.Fjump("else")
	a.Const(h.MakeFixnum(1))
	a.Jump("done")
	a.Label("else")
	a.Const(h.MakeFixnum(2))
	a.Label("done")
	a.Return()
	bytecode, consts, err := a.Assemble()
	if err != nil {
		return value.None, err
	}
	proc := h.MakeCompiledProc(asm.Template(h, bytecode, consts), h.EmptyList())

	if v, err := rt.VM.Run(ctx, proc, []value.Value{h.False()}); err != nil || h.Fixnum(v) != 2 {
		return v, err
	}
	return rt.VM.Run(ctx, proc, []value.Value{h.MakeFixnum(0)})
}

// s3TailRecursion builds a self-recursive `loop` counting down from 100000
// to 0 entirely via `callj`, verifying unbounded tail-call depth in bounded
// native stack (§8 Testable Property 6, concrete scenario S3).
func s3TailRecursion(ctx context.Context, rt *vm.Runtime) (value.Value, error) {
	h := rt.Heap
	g := rt.Globals
	loopSym := h.Intern("loop")
	eqSym := h.Intern("=")
	subSym := h.Intern("-")

	a := asm.New(h)
	a.Args(1)
	a.Save("cmpDone")
	a.Lvar(0, 0)
	a.Const(h.MakeFixnum(0))
	a.Gvar(eqSym)
	a.Callj(2)
	a.Label("cmpDone")
	a.Fjump("recurse")
	a.Const(h.MakeFixnum(0))
	a.Return()
	a.Label("recurse")
	a.Save("subDone")
	a.Lvar(0, 0)
	a.Const(h.MakeFixnum(1))
	a.Gvar(subSym)
	a.Callj(2)
	a.Label("subDone")
	a.Gvar(loopSym)
	a.Callj(1)
	bytecode, consts, err := a.Assemble()
	if err != nil {
		return value.None, err
	}
	loopProc := h.MakeCompiledProc(asm.Template(h, bytecode, consts), h.EmptyList())
	g.Define(loopSym, loopProc)

	return rt.VM.Run(ctx, loopProc, []value.Value{h.MakeFixnum(100000)})
}

// s4Closure builds `((lambda (x) (lambda (y) (+ x y))) 3)` applied to 4.
func s4Closure(ctx context.Context, rt *vm.Runtime) (value.Value, error) {
	h := rt.Heap
	plusSym := h.Intern("+")

	inner := asm.New(h)
	inner.Args(1)
	inner.Lvar(1, 0) // x, from the outer frame
	inner.Lvar(0, 0) // y
	inner.Gvar(plusSym)
	inner.Callj(2)
	innerBytecode, innerConsts, err := inner.Assemble()
	if err != nil {
		return value.None, err
	}
	innerTemplate := asm.Template(h, innerBytecode, innerConsts)

	outer := asm.New(h)
	outer.Args(1)
	outer.Fn(innerTemplate)
	outer.Return()
	outerBytecode, outerConsts, err := outer.Assemble()
	if err != nil {
		return value.None, err
	}
	outerProc := h.MakeCompiledProc(asm.Template(h, outerBytecode, outerConsts), h.EmptyList())

	closure, err := rt.VM.Run(ctx, outerProc, []value.Value{h.MakeFixnum(3)})
	if err != nil {
		return value.None, err
	}
	return rt.VM.Run(ctx, closure, []value.Value{h.MakeFixnum(4)})
}

// s5CallCCEscape builds `(+ 1 (call/cc (lambda (k) (+ 2 (k 10)))))`.
func s5CallCCEscape(ctx context.Context, rt *vm.Runtime) (value.Value, error) {
	h := rt.Heap
	plusSym := h.Intern("+")

	// k's body: `k` applied to 10 is the only thing ever executed inside
	// the lambda passed to call/cc, since invoking k escapes immediately.
	kBody := asm.New(h)
	kBody.Args(1) // k itself, bound at frame 0 slot 0
	kBody.Const(h.MakeFixnum(10))
	kBody.Lvar(0, 0)
	kBody.Callj(1) // tail call k(10); never returns to this frame
	kBytecode, kConsts, err := kBody.Assemble()
	if err != nil {
		return value.None, err
	}
	kTemplate := asm.Template(h, kBytecode, kConsts)

	// outer: `(+ 1 (call/cc k-lambda))`
	outer := asm.New(h)
	outer.Args(0)
	outer.Save("resume")
	outer.CC()          // push the continuation (the argument)
	outer.Fn(kTemplate) // push the (lambda (k) ...) closure (the target)
	outer.Callj(1)      // tail-invoke the closure with the continuation
	outer.Label("resume")
	outer.Const(h.MakeFixnum(1))
	outer.Gvar(plusSym)
	outer.Callj(2)
	outerBytecode, outerConsts, err := outer.Assemble()
	if err != nil {
		return value.None, err
	}
	proc := h.MakeCompiledProc(asm.Template(h, outerBytecode, outerConsts), h.EmptyList())

	return rt.VM.Run(ctx, proc, nil)
}

// s6GCSurvival allocates a vector of 10000 pairs as the sole root, forces
// repeated collections by churning garbage, then verifies every pair's
// car/cdr survived with pointer identity intact (§8 S6).
func s6GCSurvival(ctx context.Context, rt *vm.Runtime) (value.Value, error) {
	h := rt.Heap
	const n = 10000

	root := h.MakeVector(n, h.EmptyList())
	restore := rt.GC.ScopedRoot(&root)
	defer restore()

	cars := make([]value.Value, n)
	cdrs := make([]value.Value, n)
	for i := 0; i < n; i++ {
		car := h.MakeFixnum(int64(i))
		restoreCar := rt.GC.ScopedRoot(&car)
		cdr := h.MakeFixnum(int64(-i))
		p := h.MakePair(car, cdr)
		restoreCar()
		h.VectorSet(root, i, p)
		cars[i], cdrs[i] = car, cdr
	}

	for i := 0; i < 50000; i++ {
		_ = h.MakePair(h.MakeFixnum(int64(i)), h.EmptyList())
	}

	for i := 0; i < n; i++ {
		p := h.VectorRef(root, i)
		if h.Car(p) != cars[i] || h.Cdr(p) != cdrs[i] {
			return value.None, gcSurvivalMismatchError{Index: i}
		}
	}
	return h.MakeFixnum(n), nil
}

type gcSurvivalMismatchError struct{ Index int }

func (e gcSurvivalMismatchError) Error() string {
	return fmt.Sprintf("gc survival check failed at index %d", e.Index)
}
