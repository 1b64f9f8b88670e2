package vm

import (
	"context"

	"github.com/jcorbin/corelisp/internal/asm"
	"github.com/jcorbin/corelisp/internal/heap"
	"github.com/jcorbin/corelisp/internal/panicerr"
	"github.com/jcorbin/corelisp/internal/value"
)

// Run invokes proc with args, starting execution at instruction 0 with a
// fresh empty frame consed onto proc's captured environment (§4.3). Any
// unrecovered Go panic during dispatch is converted to an error at this
// boundary rather than propagated, mirroring the teacher's `(*VM).Run`.
func (vm *VM) Run(ctx context.Context, proc value.Value, args []value.Value) (value.Value, error) {
	var result value.Value
	err := panicerr.Recover("vm", func() error {
		r, rerr := vm.dispatch(ctx, proc, args)
		result = r
		return rerr
	})
	if err != nil {
		return value.None, err
	}
	return result, nil
}

func (vm *VM) dispatch(ctx context.Context, proc value.Value, args []value.Value) (value.Value, error) {
	h := vm.Heap

	defer vm.GC.ScopedRoot(&vm.fn)()
	defer vm.GC.ScopedRoot(&vm.env)()
	defer vm.GC.ScopedRoot(&vm.stack)()
	defer vm.GC.ScopedRoot(&vm.scratch)()
	defer vm.GC.ScopedRoot(&vm.scratch2)()

	vm.scratch = proc // root proc across the stack/frame allocations below

	// args are Go-local values not yet reachable from any root; protect
	// them for the one allocation that could trigger a collection before
	// they are pushed onto the (rooted) operand stack.
	var restoreArgs func()
	if h.ProtectDuringGC != nil && len(args) > 0 {
		restoreArgs = h.ProtectDuringGC(args...)
	}
	vm.stack = h.MakeVector(len(args)+8, h.EmptyList())
	if restoreArgs != nil {
		restoreArgs()
	}
	vm.top = 0
	for _, a := range args {
		vm.push(a)
	}
	vm.nArgs = len(args)

	frame := h.MakeVector(0, h.EmptyList())
	vm.env = h.MakePair(frame, h.Cdr(vm.scratch))
	vm.fn = vm.scratch
	vm.scratch = value.None
	vm.pc = 0
	vm.refreshCode()

	for {
		if err := ctx.Err(); err != nil {
			return value.None, err
		}
		n := asm.Len3(h, vm.bytecode)
		if vm.pc < 0 || vm.pc >= n {
			return value.None, PCOverrunError{PC: vm.pc, Len: n}
		}
		op, arg1, arg2 := asm.Decode(h, vm.bytecode, vm.pc)
		if vm.trace {
			vm.logf("% 4d %v %d %d", vm.pc, op, arg1, arg2)
		}
		vm.pc++

		result, halted, err := vm.step(op, arg1, arg2)
		if err != nil {
			return value.None, err
		}
		if halted {
			return result, nil
		}
	}
}

func (vm *VM) step(op asm.Op, arg1, arg2 int32) (result value.Value, halted bool, err error) {
	h := vm.Heap
	switch op {
	case asm.OpArgs:
		err = vm.opArgs(int(arg1))
	case asm.OpArgsDot:
		err = vm.opArgsDot(int(arg1))
	case asm.OpConst:
		vm.push(h.VectorRef(vm.consts, int(arg1)))
	case asm.OpLvar:
		vm.push(h.LVarRef(vm.env, int(arg1), int(arg2)))
	case asm.OpLset:
		h.LVarSet(vm.env, int(arg1), int(arg2), vm.peek())
	case asm.OpGvar:
		sym := h.VectorRef(vm.consts, int(arg1))
		var v value.Value
		v, err = vm.Globals.Lookup(sym)
		if err == nil {
			vm.push(v)
		}
	case asm.OpGset:
		sym := h.VectorRef(vm.consts, int(arg1))
		vm.Globals.Define(sym, vm.peek())
	case asm.OpPop:
		vm.pop()
	case asm.OpJump:
		vm.pc = int(arg1)
	case asm.OpTjump:
		if v := vm.pop(); !h.Falselike(v) {
			vm.pc = int(arg1)
		}
	case asm.OpFjump:
		if v := vm.pop(); h.Falselike(v) {
			vm.pc = int(arg1)
		}
	case asm.OpFn:
		template := h.VectorRef(vm.consts, int(arg1))
		vm.push(h.MakeCompiledProc(template, vm.env))
	case asm.OpSave:
		vm.opSave(int(arg1))
	case asm.OpReturn:
		result, halted, err = vm.opReturn()
	case asm.OpCallj:
		result, halted, err = vm.opCall(int(arg1), true)
	case asm.OpFcallj:
		result, halted, err = vm.opCall(int(arg1), false)
	case asm.OpCC:
		vm.opCC()
	case asm.OpSetCC:
		vm.opSetCC()
	default:
		err = UnknownOpcodeError{Op: op}
	}
	return result, halted, err
}

// opArgs implements `args n` (§4.3).
func (vm *VM) opArgs(n int) error {
	if vm.nArgs != n {
		return heap.ArityError{Op: "args", Want: n, Got: vm.nArgs}
	}
	frame := vm.ensureFrame(n)
	h := vm.Heap
	for i := n - 1; i >= 0; i-- {
		h.VectorSet(frame, i, vm.pop())
	}
	return nil
}

// opArgsDot implements `argsdot n` (§4.3).
func (vm *VM) opArgsDot(n int) error {
	if vm.nArgs < n {
		return heap.ArityError{Op: "argsdot", Want: n, Got: vm.nArgs}
	}
	h := vm.Heap
	frame := vm.ensureFrame(n + 1)
	excess := vm.nArgs - n
	lst := h.EmptyList()
	for i := 0; i < excess; i++ {
		lst = h.MakePair(vm.pop(), lst)
	}
	h.VectorSet(frame, n, lst)
	for i := n - 1; i >= 0; i-- {
		h.VectorSet(frame, i, vm.pop())
	}
	return nil
}

// opSave implements `save L`: push a return record (pc, fn, env) (§3
// "Return frame"). Each allocation is sequenced through a rooted scratch
// slot before the next one runs, since Go evaluates nested call arguments
// left to right and an inner allocation could otherwise collect an
// already-computed but not-yet-linked outer argument.
func (vm *VM) opSave(label int) {
	h := vm.Heap
	vm.scratch = h.MakeFixnum(int64(label))
	vm.scratch2 = h.MakePair(vm.env, h.EmptyList())
	vm.scratch2 = h.MakePair(vm.fn, vm.scratch2)
	rec := h.MakePair(vm.scratch, vm.scratch2)
	vm.scratch, vm.scratch2 = value.None, value.None
	vm.push(rec)
}

// opReturn implements `return` (§4.3).
func (vm *VM) opReturn() (result value.Value, halted bool, err error) {
	h := vm.Heap
	result = vm.pop()
	if vm.top == 0 {
		return result, true, nil
	}
	rec := vm.pop()
	retPC := h.Fixnum(h.Car(rec))
	callingFn := h.Car(h.Cdr(rec))
	callingEnv := h.Car(h.Cdr(h.Cdr(rec)))
	vm.fn = callingFn
	vm.env = callingEnv
	vm.pc = int(retPC)
	vm.refreshCode()
	vm.push(result)
	return value.None, false, nil
}

// opCall implements callj (tail=true) and fcallj (tail=false), including
// the n==-1 apply-spread and meta-proc unwrap rules (§4.3).
func (vm *VM) opCall(n int, tail bool) (result value.Value, halted bool, err error) {
	h := vm.Heap
	target := vm.pop()

	if n == -1 {
		lst := vm.pop()
		n = 0
		for lst != h.EmptyList() {
			vm.push(h.Car(lst))
			lst = h.Cdr(lst)
			n++
		}
	}

	target = h.Unwrap(target)
	switch h.Tag(target) {
	case value.TagCompiledProc, value.TagCompiledSyntaxProc:
		vm.enterProc(target, n, tail)
		return value.None, false, nil
	case value.TagPrimitiveProc:
		return vm.invokePrimitive(target, n)
	default:
		return value.None, false, NotCallableError{Got: h.Tag(target)}
	}
}

// enterProc dispatches to a compiled procedure: tail calls reuse the
// current env spine cell, replacing its frame and tail in place; non-tail
// calls build a fresh cons (§4.3, §9 Open Question on fcallj vs callj).
func (vm *VM) enterProc(target value.Value, argc int, tail bool) {
	h := vm.Heap
	vm.scratch = target // protect target (and its captured env) across MakeVector
	frame := h.MakeVector(0, h.EmptyList())
	capturedEnv := h.Cdr(vm.scratch)
	if tail {
		h.SetCar(vm.env, frame)
		h.SetCdr(vm.env, capturedEnv)
	} else {
		vm.env = h.MakePair(frame, capturedEnv)
	}
	vm.fn = vm.scratch
	vm.scratch = value.None
	vm.pc = 0
	vm.nArgs = argc
	vm.refreshCode()
}

// invokePrimitive calls a primitive with its arguments left in place on the
// stack, then unwinds them and runs the `return` logic (§4.3: "invoke it,
// unwind its arguments, push its result, and execute the return logic").
func (vm *VM) invokePrimitive(target value.Value, argc int) (value.Value, bool, error) {
	h := vm.Heap
	fn, _ := h.Primitive(target)
	v, err := fn(h, vm.stack, argc, vm.top)
	if err != nil {
		return value.None, false, err
	}
	for i := vm.top - argc; i < vm.top; i++ {
		h.VectorSet(vm.stack, i, h.EmptyList())
	}
	vm.top -= argc
	vm.push(v)
	return vm.opReturn()
}

// opCC implements `cc`: capture operand stack + top into a one-frame env,
// wrapping the shared cc-thunk template (§4.3, §6).
func (vm *VM) opCC() {
	h := vm.Heap

	stackCopy := h.MakeVector(vm.top, h.EmptyList())
	for i := 0; i < vm.top; i++ {
		h.VectorSet(stackCopy, i, h.VectorRef(vm.stack, i))
	}
	vm.scratch = stackCopy

	topFixnum := h.MakeFixnum(int64(vm.top))
	vm.scratch2 = topFixnum

	frame := h.MakeVector(2, h.EmptyList())
	h.VectorSet(frame, 0, vm.scratch)
	h.VectorSet(frame, 1, vm.scratch2)
	vm.scratch, vm.scratch2 = value.None, value.None

	ccEnv := h.MakePair(frame, h.EmptyList())
	proc := h.MakeCompiledProc(vm.ccThunk, ccEnv)
	vm.push(proc)
}

// opSetCC implements `setcc`: replace the operand stack and top from a
// captured continuation's saved pair, invoked only from the cc-thunk body
// (§4.3).
func (vm *VM) opSetCC() {
	newStack := vm.pop()
	newTop := vm.pop()
	vm.stack = newStack
	vm.top = int(vm.Heap.Fixnum(newTop))
}
