package vm

import (
	"fmt"

	"github.com/jcorbin/corelisp/internal/asm"
	"github.com/jcorbin/corelisp/internal/value"
)

// PCOverrunError reports a program counter that ran off the end of (or
// before the start of) the active procedure's bytecode (§7 "PC overrun").
type PCOverrunError struct {
	PC  int
	Len int
}

func (e PCOverrunError) Error() string {
	return fmt.Sprintf("vm: pc %d overruns bytecode of length %d", e.PC, e.Len)
}

// NotCallableError reports callj/fcallj dispatching to a cell that is
// neither a compiled procedure nor a primitive (§7 "Type mismatch on call").
type NotCallableError struct{ Got value.Tag }

func (e NotCallableError) Error() string {
	return fmt.Sprintf("vm: cannot call a value of type %v", e.Got)
}

// UnknownOpcodeError reports malformed bytecode carrying an opcode outside
// asm's defined set (§7 "PC overrun" sibling: a structurally invalid
// instruction rather than an out-of-range pc).
type UnknownOpcodeError struct{ Op asm.Op }

func (e UnknownOpcodeError) Error() string {
	return fmt.Sprintf("vm: unknown opcode %v", e.Op)
}
