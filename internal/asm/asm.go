// Package asm assembles bytecode procedures for internal/vm: symbolic
// instructions with labels and boxed operands are lowered to the packed,
// constant-hoisted form of §6 ("External Interfaces").
package asm

import (
	"fmt"

	"github.com/jcorbin/corelisp/internal/heap"
	"github.com/jcorbin/corelisp/internal/value"
)

// Op is an opcode of the VM's instruction set (§4.3).
type Op int32

const (
	OpArgs Op = iota
	OpArgsDot
	OpConst
	OpLvar
	OpLset
	OpGvar
	OpGset
	OpPop
	OpJump
	OpTjump
	OpFjump
	OpFn
	OpSave
	OpReturn
	OpCallj
	OpFcallj
	OpCC
	OpSetCC

	opMax
)

var opNames = [opMax]string{
	"args", "argsdot", "const", "lvar", "lset", "gvar", "gset", "pop",
	"jump", "tjump", "fjump", "fn", "save", "return", "callj", "fcallj",
	"cc", "setcc",
}

func (o Op) String() string {
	if o >= 0 && o < opMax {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int32(o))
}

// noArg is the instruction-slot sentinel for "no argument" (§6: "-1 ...
// denotes no argument").
const noArg = -1

// instr is one unresolved instruction: jumpLabel names the target of a
// jump/save until Assemble resolves it to an absolute index stored in arg1.
type instr struct {
	op         Op
	arg1       int32
	arg2       int32
	jumpLabel  string
	hasOperand bool
	operand    value.Value
}

// Assembler builds one compiled procedure's bytecode and constant vector.
// It is not reentrant across procedures: one Assembler per procedure body,
// matching the compiler hoisting a fresh constant vector per lambda (§6).
type Assembler struct {
	h      *heap.Heap
	code   []instr
	labels map[string]int
}

// New returns an Assembler ready to emit instructions for one procedure
// body, backed by h for boxing operands into consts/instruction fixnums.
func New(h *heap.Heap) *Assembler {
	return &Assembler{h: h, labels: make(map[string]int)}
}

// Label marks the next-emitted instruction's index as the target of name.
func (a *Assembler) Label(name string) {
	a.labels[name] = len(a.code)
}

func (a *Assembler) emit(op Op, arg1 int32) int {
	a.code = append(a.code, instr{op: op, arg1: arg1, arg2: noArg})
	return len(a.code) - 1
}

func (a *Assembler) emitOperand(op Op, operand value.Value) {
	a.code = append(a.code, instr{op: op, arg1: noArg, arg2: noArg, hasOperand: true, operand: operand})
}

func (a *Assembler) emitJump(op Op, label string) {
	a.code = append(a.code, instr{op: op, arg1: noArg, arg2: noArg, jumpLabel: label})
}

// Args emits `args n` (§4.3).
func (a *Assembler) Args(n int) { a.emit(OpArgs, int32(n)) }

// ArgsDot emits `argsdot n`.
func (a *Assembler) ArgsDot(n int) { a.emit(OpArgsDot, int32(n)) }

// Const emits `const v`, hoisting v into the procedure's constant vector.
func (a *Assembler) Const(v value.Value) { a.emitOperand(OpConst, v) }

// Lvar emits `lvar f, i`.
func (a *Assembler) Lvar(frame, slot int) {
	a.code = append(a.code, instr{op: OpLvar, arg1: int32(frame), arg2: int32(slot)})
}

// Lset emits `lset f, i`.
func (a *Assembler) Lset(frame, slot int) {
	a.code = append(a.code, instr{op: OpLset, arg1: int32(frame), arg2: int32(slot)})
}

// Gvar emits `gvar name`, hoisting the symbol into the constant vector.
func (a *Assembler) Gvar(name value.Value) { a.emitOperand(OpGvar, name) }

// Gset emits `gset name`.
func (a *Assembler) Gset(name value.Value) { a.emitOperand(OpGset, name) }

// Pop emits `pop`.
func (a *Assembler) Pop() { a.emit(OpPop, noArg) }

// Jump emits `jump L`.
func (a *Assembler) Jump(label string) { a.emitJump(OpJump, label) }

// Tjump emits `tjump L`.
func (a *Assembler) Tjump(label string) { a.emitJump(OpTjump, label) }

// Fjump emits `fjump L`.
func (a *Assembler) Fjump(label string) { a.emitJump(OpFjump, label) }

// Fn emits `fn proc`, hoisting the sub-procedure value into the constant
// vector; proc must already be a fully assembled compiled-proc cell (the
// compiler assembles inner lambdas before the enclosing one).
func (a *Assembler) Fn(proc value.Value) { a.emitOperand(OpFn, proc) }

// Save emits `save L`.
func (a *Assembler) Save(label string) { a.emitJump(OpSave, label) }

// Return emits `return`.
func (a *Assembler) Return() { a.emit(OpReturn, noArg) }

// Callj emits `callj n`; n == -1 signals apply-spread (§4.3).
func (a *Assembler) Callj(n int) { a.emit(OpCallj, int32(n)) }

// Fcallj emits `fcallj n`.
func (a *Assembler) Fcallj(n int) { a.emit(OpFcallj, int32(n)) }

// CC emits `cc`.
func (a *Assembler) CC() { a.emit(OpCC, noArg) }

// SetCC emits `setcc`.
func (a *Assembler) SetCC() { a.emit(OpSetCC, noArg) }

// UnresolvedLabelError reports a jump/save referencing a label never
// defined by a matching Label call.
type UnresolvedLabelError struct{ Label string }

func (e UnresolvedLabelError) Error() string {
	return fmt.Sprintf("asm: unresolved label %q", e.Label)
}

// Assemble resolves labels and constant operands, producing the packed
// bytecode vector (3 fixnum slots per instruction: opcode, arg1, arg2) and
// the procedure's constant vector, per §6's "Instruction encoding".
func (a *Assembler) Assemble() (bytecode, consts value.Value, err error) {
	var constList []value.Value
	constIndex := make(map[value.Value]int)

	hoist := func(v value.Value) int32 {
		if idx, ok := constIndex[v]; ok {
			return int32(idx)
		}
		idx := len(constList)
		constList = append(constList, v)
		constIndex[v] = idx
		return int32(idx)
	}

	resolved := make([]instr, len(a.code))
	for i, ins := range a.code {
		if ins.hasOperand {
			ins.arg1 = hoist(ins.operand)
		}
		if ins.jumpLabel != "" {
			target, ok := a.labels[ins.jumpLabel]
			if !ok {
				return value.None, value.None, UnresolvedLabelError{Label: ins.jumpLabel}
			}
			ins.arg1 = int32(target)
		}
		resolved[i] = ins
	}

	h := a.h
	slots := h.MakeVector(len(resolved)*3, value.None)
	for i, ins := range resolved {
		h.VectorSet(slots, i*3+0, h.MakeFixnum(int64(ins.op)))
		h.VectorSet(slots, i*3+1, h.MakeFixnum(int64(ins.arg1)))
		h.VectorSet(slots, i*3+2, h.MakeFixnum(int64(ins.arg2)))
	}

	cv := h.MakeVector(len(constList), value.None)
	for i, c := range constList {
		h.VectorSet(cv, i, c)
	}

	return slots, cv, nil
}

// Len returns the number of instructions emitted so far, useful for
// callers computing forward label offsets without a name.
func (a *Assembler) Len() int { return len(a.code) }

// Decode reads the instruction at index pc out of a bytecode vector built
// by Assemble, the VM dispatch loop's sole entry point into the packed
// representation.
func Decode(h *heap.Heap, bytecode value.Value, pc int) (op Op, arg1, arg2 int32) {
	base := pc * 3
	op = Op(h.Fixnum(h.VectorRef(bytecode, base+0)))
	arg1 = int32(h.Fixnum(h.VectorRef(bytecode, base+1)))
	arg2 = int32(h.Fixnum(h.VectorRef(bytecode, base+2)))
	return op, arg1, arg2
}

// Len3 returns the instruction count of a bytecode vector (its slot count
// divided by 3), used for PC-overrun checks.
func Len3(h *heap.Heap, bytecode value.Value) int {
	return h.VectorLen(bytecode) / 3
}

// Template bundles an assembled procedure's bytecode and constant vector
// into the single Value a compiled-proc cell's A slot holds, since a Cell
// only carries two payload slots (A=template, B=captured env). Templates
// are immutable and may be shared by many compiled-proc cells (every
// closure over the same lambda body shares one template).
func Template(h *heap.Heap, bytecode, consts value.Value) value.Value {
	return h.MakePair(bytecode, consts)
}

// TemplateBytecode and TemplateConsts unpack a Template's two halves.
func TemplateBytecode(h *heap.Heap, template value.Value) value.Value { return h.Car(template) }
func TemplateConsts(h *heap.Heap, template value.Value) value.Value   { return h.Cdr(template) }

// CCThunk returns the fixed six-instruction procedure template shared by
// every captured continuation (§6 "CC thunk"). It references no constants,
// so a single assembled template can be shared by every `cc` invocation;
// the `cc` opcode wraps it with a fresh captured environment per capture.
func CCThunk(h *heap.Heap) value.Value {
	a := New(h)
	a.Args(1)
	a.Lvar(1, 1) // push saved top
	a.Lvar(1, 0) // push saved stack
	a.SetCC()
	a.Lvar(0, 0) // push the value passed to the continuation
	a.Return()
	bytecode, consts, err := a.Assemble()
	if err != nil {
		// CCThunk never emits a jump/save, so label resolution cannot fail.
		panic(err)
	}
	return Template(h, bytecode, consts)
}
