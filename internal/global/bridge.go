package global

import (
	"github.com/jcorbin/corelisp/internal/asm"
	"github.com/jcorbin/corelisp/internal/heap"
	"github.com/jcorbin/corelisp/internal/value"
)

// mnemonics is the canonical symbol spelling for each opcode, the
// character-encoded instruction form symbol->bytecode/bytecode->symbol
// translate to and from (§6 "Global environment").
var mnemonics = [...]string{
	asm.OpArgs:    "args",
	asm.OpArgsDot: "argsdot",
	asm.OpConst:   "const",
	asm.OpLvar:    "lvar",
	asm.OpLset:    "lset",
	asm.OpGvar:    "gvar",
	asm.OpGset:    "gset",
	asm.OpPop:     "pop",
	asm.OpJump:    "jump",
	asm.OpTjump:   "tjump",
	asm.OpFjump:   "fjump",
	asm.OpFn:      "fn",
	asm.OpSave:    "save",
	asm.OpReturn:  "return",
	asm.OpCallj:   "callj",
	asm.OpFcallj:  "fcallj",
	asm.OpCC:      "cc",
	asm.OpSetCC:   "setcc",
}

// InstallBridge registers symbol->bytecode, bytecode->symbol, and
// set-macro! as primitives in e (§6). They are the compiler's only
// sanctioned way to cross from symbolic opcode names to the asm.Op
// encoding and back, and to retag a compiled procedure as a macro.
func InstallBridge(h *heap.Heap, e *Env) {
	e.DefineName("symbol->bytecode", h.MakePrimitiveProc("symbol->bytecode", symbolToBytecode))
	e.DefineName("bytecode->symbol", h.MakePrimitiveProc("bytecode->symbol", bytecodeToSymbol))
	e.DefineName("set-macro!", h.MakePrimitiveProc("set-macro!", setMacro))
}

func symbolToBytecode(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
	if argc != 1 {
		return value.None, heap.ArityError{Op: "symbol->bytecode", Want: 1, Got: argc}
	}
	sym := h.VectorRef(stack, top-1)
	name := h.SymbolName(sym)
	for op, mnemonic := range mnemonics {
		if mnemonic == name {
			return h.MakeFixnum(int64(op)), nil
		}
	}
	return value.None, heap.TypeError{Op: "symbol->bytecode", Want: value.TagSymbol, Got: h.Tag(sym)}
}

func bytecodeToSymbol(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
	if argc != 1 {
		return value.None, heap.ArityError{Op: "bytecode->symbol", Want: 1, Got: argc}
	}
	n := h.Fixnum(h.VectorRef(stack, top-1))
	if n < 0 || int(n) >= len(mnemonics) {
		return value.None, heap.ArityError{Op: "bytecode->symbol", Want: 1, Got: argc}
	}
	return h.Intern(mnemonics[n]), nil
}

func setMacro(h *heap.Heap, stack value.Value, argc, top int) (value.Value, error) {
	if argc != 1 {
		return value.None, heap.ArityError{Op: "set-macro!", Want: 1, Got: argc}
	}
	proc := h.VectorRef(stack, top-1)
	if h.Tag(proc) != value.TagCompiledProc {
		return value.None, heap.TypeError{Op: "set-macro!", Want: value.TagCompiledProc, Got: h.Tag(proc)}
	}
	h.Retag(proc, value.TagCompiledSyntaxProc)
	return proc, nil
}
