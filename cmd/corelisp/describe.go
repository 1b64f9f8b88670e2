package main

import (
	"fmt"

	"github.com/jcorbin/corelisp/internal/value"
	"github.com/jcorbin/corelisp/internal/vm"
)

// describeValue renders a result value for the log line; it only needs to
// handle the shapes the bundled scenarios can return (§8 S1-S6).
func describeValue(rt *vm.Runtime, v value.Value) string {
	h := rt.Heap
	switch h.Tag(v) {
	case value.TagFixnum:
		return fmt.Sprintf("%d", h.Fixnum(v))
	case value.TagBoolean:
		if h.Falselike(v) {
			return "#f"
		}
		return "#t"
	case value.TagEmptyList:
		return "()"
	case value.TagCompiledProc:
		return "#<procedure>"
	default:
		return fmt.Sprintf("#<%v>", h.Tag(v))
	}
}
