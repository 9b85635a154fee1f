package altpatch

import (
	"fmt"

	"github.com/pboyd/altpatch/insn"
)

// Kind classifies how an instruction refers to memory relative to its own
// address. The relocator only needs this much; the exact opcode does not
// matter.
type Kind int

const (
	// KindOther is an instruction with no relative reference. It is
	// copied verbatim.
	KindOther Kind = iota

	// KindBranch is a relative branch, conditional or not.
	KindBranch

	// KindPageRel computes an address at page granularity, like ADRP.
	KindPageRel

	// KindByteRel computes an address at byte granularity, like ADR.
	// Its short range confines it to its own block.
	KindByteRel

	// KindLiteral loads from a PC-relative literal pool. The pool does
	// not move with the code, so these cannot appear in replacements.
	KindLiteral
)

func (k Kind) String() string {
	switch k {
	case KindOther:
		return "other"
	case KindBranch:
		return "branch"
	case KindPageRel:
		return "page-relative"
	case KindByteRel:
		return "byte-relative"
	case KindLiteral:
		return "literal"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Codec decodes and re-encodes the relative addressing of a fixed-width
// instruction set.
type Codec interface {
	// Width is the instruction size in bytes. Site lengths must be a
	// multiple of it.
	Width() int

	// Page is the granularity of KindPageRel addressing.
	Page() uint64

	// Kind classifies one instruction word.
	Kind(w uint32) Kind

	// Offset extracts the relative displacement of a KindBranch,
	// KindPageRel or KindByteRel word. For KindPageRel it is the
	// byte distance between the page of the instruction and the page
	// of the target.
	Offset(w uint32) int64

	// SetOffset re-encodes w with a new displacement. It fails when
	// the displacement does not fit the immediate field.
	SetOffset(w uint32, offset int64) (uint32, error)
}

// A64 returns the Codec for AArch64.
func A64() Codec {
	return a64{}
}

type a64 struct{}

func (a64) Width() int   { return insn.Size }
func (a64) Page() uint64 { return insn.Page }

func (a64) Kind(w uint32) Kind {
	switch {
	case insn.IsBranchImm(w):
		return KindBranch
	case insn.IsAdrp(w):
		return KindPageRel
	case insn.IsAdr(w):
		return KindByteRel
	case insn.UsesLiteral(w):
		return KindLiteral
	}
	return KindOther
}

func (a64) Offset(w uint32) int64 {
	switch {
	case insn.IsBranchImm(w):
		return insn.BranchOffset(w)
	case insn.IsAdrp(w):
		return insn.AdrpOffset(w)
	case insn.IsAdr(w):
		return insn.AdrOffset(w)
	}
	return 0
}

func (a64) SetOffset(w uint32, offset int64) (uint32, error) {
	switch {
	case insn.IsBranchImm(w):
		return insn.SetBranchOffset(w, offset)
	case insn.IsAdrp(w):
		return insn.SetAdrpOffset(w, offset)
	case insn.IsAdr(w):
		return insn.SetAdrOffset(w, offset)
	}
	return 0, fmt.Errorf("%#08x has no relative offset", w)
}
