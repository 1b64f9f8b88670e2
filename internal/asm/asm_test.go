package asm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcorbin/corelisp/internal/asm"
	"github.com/jcorbin/corelisp/internal/heap"
)

func TestAssembleDecodeRoundTrip(t *testing.T) {
	h := heap.New()
	a := asm.New(h)
	a.Args(1)
	a.Lvar(0, 0)
	a.Return()

	bytecode, _, err := a.Assemble()
	require.NoError(t, err)
	require.Equal(t, 3, asm.Len3(h, bytecode))

	op, arg1, arg2 := asm.Decode(h, bytecode, 0)
	assert.Equal(t, asm.OpArgs, op)
	assert.EqualValues(t, 1, arg1)

	op, arg1, arg2 = asm.Decode(h, bytecode, 1)
	assert.Equal(t, asm.OpLvar, op)
	assert.EqualValues(t, 0, arg1)
	assert.EqualValues(t, 0, arg2)

	op, _, _ = asm.Decode(h, bytecode, 2)
	assert.Equal(t, asm.OpReturn, op)
}

func TestConstHoistingDedups(t *testing.T) {
	h := heap.New()
	n := h.MakeFixnum(42)

	a := asm.New(h)
	a.Const(n)
	a.Const(n) // same value hoisted twice must share one constant slot
	a.Return()

	bytecode, consts, err := a.Assemble()
	require.NoError(t, err)
	assert.Equal(t, 1, h.VectorLen(consts))

	_, arg1a, _ := asm.Decode(h, bytecode, 0)
	_, arg1b, _ := asm.Decode(h, bytecode, 1)
	assert.Equal(t, arg1a, arg1b)
}

func TestJumpLabelResolution(t *testing.T) {
	h := heap.New()
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

	bytecode, _, err := a.Assemble()
	require.NoError(t, err)
	require.Equal(t, 7, asm.Len3(h, bytecode))

	op, fjumpTarget, _ := asm.Decode(h, bytecode, 2)
	require.Equal(t, asm.OpFjump, op)
	assert.EqualValues(t, 5, fjumpTarget) // index of the "else" label

	op, jumpTarget, _ := asm.Decode(h, bytecode, 4)
	require.Equal(t, asm.OpJump, op)
	assert.EqualValues(t, 6, jumpTarget) // index of the "done" label
}

func TestUnresolvedLabelError(t *testing.T) {
	h := heap.New()
	a := asm.New(h)
	a.Jump("nowhere")

	_, _, err := a.Assemble()
	require.Error(t, err)
	assert.Equal(t, asm.UnresolvedLabelError{Label: "nowhere"}, err)
}

func TestTemplateBundlesBytecodeAndConsts(t *testing.T) {
	h := heap.New()
	a := asm.New(h)
	a.Args(0)
	a.Return()
	bytecode, consts, err := a.Assemble()
	require.NoError(t, err)

	tmpl := asm.Template(h, bytecode, consts)
	assert.Equal(t, bytecode, asm.TemplateBytecode(h, tmpl))
	assert.Equal(t, consts, asm.TemplateConsts(h, tmpl))
}

func TestCCThunkLayout(t *testing.T) {
	h := heap.New()
	t1 := asm.CCThunk(h)
	bc := asm.TemplateBytecode(h, t1)
	require.Equal(t, 6, asm.Len3(h, bc))

	op, _, _ := asm.Decode(h, bc, 3)
	assert.Equal(t, asm.OpSetCC, op)
}

func TestOpStringOutOfRange(t *testing.T) {
	assert.Equal(t, "op(99)", asm.Op(99).String())
	assert.Equal(t, "callj", asm.OpCallj.String())
}
