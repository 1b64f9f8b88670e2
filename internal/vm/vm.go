// Package vm implements the stack-based bytecode interpreter of §4.3: the
// dispatch loop, call/cc, and the tail-call discipline that keeps an
// arbitrarily long chain of tail calls in bounded native stack.
package vm

import (
	"github.com/jcorbin/corelisp/internal/asm"
	"github.com/jcorbin/corelisp/internal/gc"
	"github.com/jcorbin/corelisp/internal/global"
	"github.com/jcorbin/corelisp/internal/heap"
	"github.com/jcorbin/corelisp/internal/value"
)

// VM holds the interpreter's full runtime state (§4.3): the active
// procedure, program counter, environment list, operand stack and its
// logical height, and the argument count of the call in progress.
type VM struct {
	Heap    *heap.Heap
	GC      *gc.Collector
	Globals *global.Env

	fn       value.Value // active procedure cell
	bytecode value.Value // fn's template bytecode vector, refreshed on every call
	consts   value.Value // fn's template constant vector
	pc       int
	env      value.Value
	stack    value.Value
	top      int
	nArgs    int

	// scratch, scratch2 are pre-rooted holding slots for values that are
	// not yet linked anywhere else in the heap but must survive a single
	// allocation call in the middle of a multi-step opcode (§9 "push any
	// live temporaries to the root stack").
	scratch  value.Value
	scratch2 value.Value

	ccThunk value.Value // the shared cc-thunk template, built once per VM

	logfn func(mess string, args ...interface{})
	trace bool
}

// Option configures a VM at construction, in the teacher's functional-option
// idiom (api.go's VMOption).
type Option interface{ apply(vm *VM) }

// New constructs a VM over the given heap, collector, and global
// environment, installing the shared cc-thunk template (§6).
func New(h *heap.Heap, gco *gc.Collector, g *global.Env, opts ...Option) *VM {
	vm := &VM{Heap: h, GC: gco, Globals: g}
	vm.ccThunk = asm.CCThunk(h)
	gco.PushRoot(&vm.ccThunk) // kept live for the VM's lifetime
	for _, opt := range opts {
		if opt != nil {
			opt.apply(vm)
		}
	}
	return vm
}

// WithLogf installs a trace sink; when set, the dispatch loop logs every
// instruction it executes (the teacher's `-trace` idiom, api.go WithLogf).
func WithLogf(logfn func(mess string, args ...interface{})) Option { return withLogfn(logfn) }

type withLogfn func(mess string, args ...interface{})

func (f withLogfn) apply(vm *VM) {
	vm.logfn = f
	vm.trace = f != nil
}

func (vm *VM) logf(mess string, args ...interface{}) {
	if vm.logfn != nil {
		vm.logfn(mess, args...)
	}
}

// push appends v as the new top-of-stack, growing the backing vector
// geometrically on overflow (§3 "Operand stack").
func (vm *VM) push(v value.Value) {
	h := vm.Heap
	if vm.top >= h.VectorLen(vm.stack) {
		h.GrowVector(vm.stack, vm.top+1, h.EmptyList())
	}
	h.VectorSet(vm.stack, vm.top, v)
	vm.top++
}

// pop removes and returns the top-of-stack value, resetting the vacated
// slot to the empty-list singleton (§3 Invariant 3).
func (vm *VM) pop() value.Value {
	vm.top--
	h := vm.Heap
	v := h.VectorRef(vm.stack, vm.top)
	h.VectorSet(vm.stack, vm.top, h.EmptyList())
	return v
}

// peek returns the top-of-stack value without removing it, used by lset and
// gset which leave the assigned value on the stack (§9 Open Question).
func (vm *VM) peek() value.Value {
	return vm.Heap.VectorRef(vm.stack, vm.top-1)
}

// refreshCode reloads the cached bytecode/constants view of vm.fn's
// template, called whenever fn changes (call entry, return).
func (vm *VM) refreshCode() {
	template := vm.Heap.Car(vm.fn)
	vm.bytecode = asm.TemplateBytecode(vm.Heap, template)
	vm.consts = asm.TemplateConsts(vm.Heap, template)
}

// ensureFrame replaces the current top environment frame's backing vector
// if it is too small to hold n slots (`args`/`argsdot`, §4.3).
func (vm *VM) ensureFrame(n int) value.Value {
	h := vm.Heap
	frame := h.Car(vm.env)
	if h.VectorLen(frame) < n {
		buf := make([]value.Value, n)
		for i := range buf {
			buf[i] = h.EmptyList()
		}
		h.ReplaceVector(frame, buf)
	}
	return frame
}
