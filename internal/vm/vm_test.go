package vm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcorbin/corelisp/internal/asm"
	"github.com/jcorbin/corelisp/internal/heap"
	"github.com/jcorbin/corelisp/internal/value"
	"github.com/jcorbin/corelisp/internal/vm"
)

func newTestRuntime(t *testing.T) *vm.Runtime {
	t.Helper()
	rt := vm.NewRuntime()
	define := func(name string, fn heap.Primitive) {
		rt.Globals.DefineName(name, rt.Heap.MakePrimitiveProc(name, fn))
	}
	define("+", func(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
		a := h.Fixnum(h.VectorRef(stack, top-argc+0))
		b := h.Fixnum(h.VectorRef(stack, top-argc+1))
		return h.MakeFixnum(a + b), nil
	})
	define("=", func(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
		a := h.Fixnum(h.VectorRef(stack, top-argc+0))
		b := h.Fixnum(h.VectorRef(stack, top-argc+1))
		if a == b {
			return h.True(), nil
		}
		return h.False(), nil
	})
	define("-", func(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
		a := h.Fixnum(h.VectorRef(stack, top-argc+0))
		b := h.Fixnum(h.VectorRef(stack, top-argc+1))
		return h.MakeFixnum(a - b), nil
	})
	return rt
}

func TestIdentityProcedure(t *testing.T) {
	rt := newTestRuntime(t)
	h := rt.Heap

	a := asm.New(h)
	a.Args(1)
	a.Lvar(0, 0)
	a.Return()
	bytecode, consts, err := a.Assemble()
	require.NoError(t, err)
	proc := h.MakeCompiledProc(asm.Template(h, bytecode, consts), h.EmptyList())

	result, err := rt.VM.Run(context.Background(), proc, []value.Value{h.MakeFixnum(42)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), h.Fixnum(result))
}

func TestConditionalBranches(t *testing.T) {
	rt := newTestRuntime(t)
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
	require.NoError(t, err)
	proc := h.MakeCompiledProc(asm.Template(h, bytecode, consts), h.EmptyList())

	v, err := rt.VM.Run(context.Background(), proc, []value.Value{h.True()})
	require.NoError(t, err)
	assert.EqualValues(t, 1, h.Fixnum(v))

	v, err = rt.VM.Run(context.Background(), proc, []value.Value{h.False()})
	require.NoError(t, err)
	assert.EqualValues(t, 2, h.Fixnum(v))
}

func TestTailRecursionUnwindsConstantStack(t *testing.T) {
	rt := newTestRuntime(t)
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
	require.NoError(t, err)
	loopProc := h.MakeCompiledProc(asm.Template(h, bytecode, consts), h.EmptyList())
	g.Define(loopSym, loopProc)

	result, err := rt.VM.Run(context.Background(), loopProc, []value.Value{h.MakeFixnum(5000)})
	require.NoError(t, err)
	assert.EqualValues(t, 0, h.Fixnum(result))
}

func TestClosureCapturesOuterFrame(t *testing.T) {
	rt := newTestRuntime(t)
	h := rt.Heap
	plusSym := h.Intern("+")

	inner := asm.New(h)
	inner.Args(1)
	inner.Lvar(1, 0)
	inner.Lvar(0, 0)
	inner.Gvar(plusSym)
	inner.Callj(2)
	innerBC, innerConsts, err := inner.Assemble()
	require.NoError(t, err)
	innerTemplate := asm.Template(h, innerBC, innerConsts)

	outer := asm.New(h)
	outer.Args(1)
	outer.Fn(innerTemplate)
	outer.Return()
	outerBC, outerConsts, err := outer.Assemble()
	require.NoError(t, err)
	outerProc := h.MakeCompiledProc(asm.Template(h, outerBC, outerConsts), h.EmptyList())

	ctx := context.Background()
	closure, err := rt.VM.Run(ctx, outerProc, []value.Value{h.MakeFixnum(3)})
	require.NoError(t, err)
	result, err := rt.VM.Run(ctx, closure, []value.Value{h.MakeFixnum(4)})
	require.NoError(t, err)
	assert.EqualValues(t, 7, h.Fixnum(result))
}

func TestCallCCEscapesEnclosingComputation(t *testing.T) {
	rt := newTestRuntime(t)
	h := rt.Heap
	plusSym := h.Intern("+")

	kBody := asm.New(h)
	kBody.Args(1)
	kBody.Const(h.MakeFixnum(10))
	kBody.Lvar(0, 0)
	kBody.Callj(1)
	kBC, kConsts, err := kBody.Assemble()
	require.NoError(t, err)
	kTemplate := asm.Template(h, kBC, kConsts)

	outer := asm.New(h)
	outer.Args(0)
	outer.Save("resume")
	outer.CC()
	outer.Fn(kTemplate)
	outer.Callj(1)
	outer.Label("resume")
	outer.Const(h.MakeFixnum(1))
	outer.Gvar(plusSym)
	outer.Callj(2)
	outerBC, outerConsts, err := outer.Assemble()
	require.NoError(t, err)
	proc := h.MakeCompiledProc(asm.Template(h, outerBC, outerConsts), h.EmptyList())

	result, err := rt.VM.Run(context.Background(), proc, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 11, h.Fixnum(result))
}

func TestArityMismatchError(t *testing.T) {
	rt := newTestRuntime(t)
	h := rt.Heap

	a := asm.New(h)
	a.Args(2)
	a.Return()
	bytecode, consts, err := a.Assemble()
	require.NoError(t, err)
	proc := h.MakeCompiledProc(asm.Template(h, bytecode, consts), h.EmptyList())

	_, err = rt.VM.Run(context.Background(), proc, []value.Value{h.MakeFixnum(1)})
	require.Error(t, err)
	assert.Equal(t, heap.ArityError{Op: "args", Want: 2, Got: 1}, err)
}

func TestNotCallableError(t *testing.T) {
	rt := newTestRuntime(t)
	h := rt.Heap

	a := asm.New(h)
	a.Args(0)
	a.Const(h.MakeFixnum(5)) // not a procedure
	a.Callj(0)
	bytecode, consts, err := a.Assemble()
	require.NoError(t, err)
	proc := h.MakeCompiledProc(asm.Template(h, bytecode, consts), h.EmptyList())

	_, err = rt.VM.Run(context.Background(), proc, nil)
	require.Error(t, err)
	var notCallable vm.NotCallableError
	assert.ErrorAs(t, err, &notCallable)
}

func TestContextCancellationStopsDispatch(t *testing.T) {
	rt := newTestRuntime(t)
	h := rt.Heap
	g := rt.Globals

	loopSym := h.Intern("loop")
	a := asm.New(h)
	a.Args(0)
	a.Gvar(loopSym)
	a.Callj(0)
	bytecode, consts, err := a.Assemble()
	require.NoError(t, err)
	proc := h.MakeCompiledProc(asm.Template(h, bytecode, consts), h.EmptyList())
	g.Define(loopSym, proc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rt.VM.Run(ctx, proc, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
