package global_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcorbin/corelisp/internal/global"
	"github.com/jcorbin/corelisp/internal/heap"
	"github.com/jcorbin/corelisp/internal/value"
)

func TestDefineLookupRoundTrip(t *testing.T) {
	h := heap.New()
	e := global.New(h)

	sym := h.Intern("x")
	assert.False(t, e.Bound(sym))

	v := h.MakeFixnum(10)
	e.Define(sym, v)
	assert.True(t, e.Bound(sym))

	got, err := e.Lookup(sym)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestLookupUnbound(t *testing.T) {
	h := heap.New()
	e := global.New(h)

	sym := h.Intern("undefined-thing")
	_, err := e.Lookup(sym)
	require.Error(t, err)
	assert.Equal(t, global.UnboundError{Name: "undefined-thing"}, err)
}

func TestDefineNameInterns(t *testing.T) {
	h := heap.New()
	e := global.New(h)

	v := h.MakeFixnum(1)
	e.DefineName("answer", v)

	got, err := e.Lookup(h.Intern("answer"))
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestGCRootsIncludesSymbolsAndValues(t *testing.T) {
	h := heap.New()
	e := global.New(h)
	e.DefineName("a", h.MakeFixnum(1))
	e.DefineName("b", h.MakeFixnum(2))

	roots := e.GCRoots()
	assert.Len(t, roots, 4) // 2 bindings, each contributing (symbol, value)
	assert.Equal(t, 2, e.Count())
}

func TestBridgeSymbolBytecodeRoundTrip(t *testing.T) {
	h := heap.New()
	e := global.New(h)
	global.InstallBridge(h, e)

	mnemonics := []string{"args", "lvar", "callj", "return", "cc", "setcc"}
	for _, name := range mnemonics {
		toBytecode, err := e.Lookup(h.Intern("symbol->bytecode"))
		require.NoError(t, err)
		fn, _ := h.Primitive(toBytecode)

		stack := h.MakeVector(1, h.EmptyList())
		h.VectorSet(stack, 0, h.Intern(name))
		opVal, err := fn(h, stack, 1, 1)
		require.NoError(t, err)

		toSymbol, err := e.Lookup(h.Intern("bytecode->symbol"))
		require.NoError(t, err)
		fn2, _ := h.Primitive(toSymbol)
		h.VectorSet(stack, 0, opVal)
		symVal, err := fn2(h, stack, 1, 1)
		require.NoError(t, err)

		assert.Equal(t, name, h.SymbolName(symVal), "bytecode->symbol(symbol->bytecode(%q)) must round-trip", name)
	}
}

func TestBridgeSymbolToBytecodeUnknownName(t *testing.T) {
	h := heap.New()
	e := global.New(h)
	global.InstallBridge(h, e)

	toBytecode, err := e.Lookup(h.Intern("symbol->bytecode"))
	require.NoError(t, err)
	fn, _ := h.Primitive(toBytecode)

	stack := h.MakeVector(1, h.EmptyList())
	h.VectorSet(stack, 0, h.Intern("not-an-opcode"))
	_, err = fn(h, stack, 1, 1)
	require.Error(t, err)
}

func TestBridgeSetMacro(t *testing.T) {
	h := heap.New()
	e := global.New(h)
	global.InstallBridge(h, e)

	template := h.MakePair(h.EmptyList(), h.EmptyList())
	proc := h.MakeCompiledProc(template, h.EmptyList())

	setMacro, err := e.Lookup(h.Intern("set-macro!"))
	require.NoError(t, err)
	fn, _ := h.Primitive(setMacro)

	stack := h.MakeVector(1, h.EmptyList())
	h.VectorSet(stack, 0, proc)
	result, err := fn(h, stack, 1, 1)
	require.NoError(t, err)

	assert.Equal(t, proc, result)
	assert.Equal(t, value.TagCompiledSyntaxProc, h.Tag(proc))
}
