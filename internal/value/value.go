// Package value defines the tagged universe of values shared by the heap,
// collector, and VM.
package value

import "fmt"

// Tag discriminates the payload shape of a Cell.
type Tag uint8

// The tag set of §3's Data Model table.
const (
	TagEmptyList Tag = iota
	TagBoolean
	TagFixnum
	TagCharacter
	TagSymbol
	TagString
	TagPair
	TagVector
	TagCompiledProc
	TagCompiledSyntaxProc
	TagPrimitiveProc
	TagMetaProc
	TagHashTable

	tagMax
)

var tagNames = [tagMax]string{
	"empty-list",
	"boolean",
	"fixnum",
	"character",
	"symbol",
	"string",
	"pair",
	"vector",
	"compiled-proc",
	"compiled-syntax-proc",
	"primitive-proc",
	"meta-proc",
	"hash-table",
}

func (t Tag) String() string {
	if t < tagMax {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// OwnsExternalMemory reports whether a cell of this tag references an
// out-of-line buffer that the collector must finalize (§3 Invariant 5).
func (t Tag) OwnsExternalMemory() bool {
	switch t {
	case TagString, TagVector, TagHashTable:
		return true
	default:
		return false
	}
}

// Value is a cell index into the owning Heap. Zero is never a live cell; it
// is the sentinel used where C code would use a null pointer.
type Value uint32

// None is the zero Value, reserved so that a live cell index is never
// confused with "no value" the way FIRST reserves dictionary address 0.
const None Value = 0

// Falselike reports whether the symbol-table-level convention of "falselike"
// applies: the canonical boolean false, the empty list, or the symbol nil.
// Heap owns the actual singleton identities; this helper only names the
// concept so callers don't re-derive it ad hoc.
type FalselikeChecker interface {
	Falselike(v Value) bool
}
