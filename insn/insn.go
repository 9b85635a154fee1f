// Package insn encodes and decodes the PC-relative immediate fields of
// fixed-width A64 instructions. It covers exactly the instruction classes a
// patcher has to rewrite when code moves: immediate branches, ADR/ADRP, and
// PC-relative literal loads. Everything else is opaque data as far as this
// package is concerned.
package insn

import "fmt"

// Size is the width of every A64 instruction in bytes.
const Size = 4

// Page is the granule ADRP operates on. ADRP computes the 4KiB page of its
// target; the low 12 bits come from a separate instruction.
const Page = 4096

// Nop is HINT #0.
const Nop = uint32(0xd503201f)

const (
	// -----------------------------------
	// | 000101 | ... 26 bit offset ...  |
	// -----------------------------------
	maskB = uint32(0xfc000000)
	opB   = uint32(5 << 26)

	// -----------------------------------
	// | 100101 | ... 26 bit offset ...  |
	// -----------------------------------
	opBL = uint32(1<<31 | opB)

	// ------------------------------------------------
	// | sf | 011010 | op | 19 bit offset | 5-bit reg |
	// ------------------------------------------------
	maskCB = uint32(0x7f000000)
	opCBZ  = uint32(0x34000000)
	opCBNZ = uint32(0x35000000)

	// -----------------------------------------------------
	// | b5 | 011011 | op | b40 | 14 bit offset | 5-bit reg |
	// -----------------------------------------------------
	maskTB = uint32(0x7f000000)
	opTBZ  = uint32(0x36000000)
	opTBNZ = uint32(0x37000000)

	// ----------------------------------------------
	// | 01010100 | 19 bit offset | 0 | 4-bit cond  |
	// ----------------------------------------------
	maskBCond = uint32(0xff000010)
	opBCond   = uint32(0x54000000)

	// ADR/ADRP is encoded as:
	// --------------------------------------------------
	// | P | lo 2 bits | 10000 | hi 19 bits | 5-bit reg |
	// --------------------------------------------------
	maskADR = uint32(0x9f000000)
	opADR   = uint32(0x10000000)
	opADRP  = uint32(0x90000000)
	// Mask for the address:
	adrAddressMask = uint32(3<<29 | 0x7ffff<<5)

	// PC-relative literal loads: LDR/LDRSW/PRFM (literal) and the SIMD&FP
	// forms, distinguished by bits 29:24 plus the V bit.
	maskLDRLit   = uint32(0xbf000000)
	opLDRLit     = uint32(0x18000000)
	maskLDRSWLit = uint32(0xff000000)
	opLDRSWLit   = uint32(0x98000000)
	maskPRFMLit  = uint32(0xff000000)
	opPRFMLit    = uint32(0xd8000000)
	maskFPLit    = uint32(0x3f000000)
	opFPLit      = uint32(0x1c000000)
)

// IsB reports whether w is an unconditional immediate branch.
func IsB(w uint32) bool { return w&maskB == opB }

// IsBL reports whether w is an immediate branch-with-link.
func IsBL(w uint32) bool { return w&maskB == opBL }

// IsCBZ reports whether w is a compare-and-branch-if-zero.
func IsCBZ(w uint32) bool { return w&maskCB == opCBZ }

// IsCBNZ reports whether w is a compare-and-branch-if-nonzero.
func IsCBNZ(w uint32) bool { return w&maskCB == opCBNZ }

// IsTBZ reports whether w is a test-bit-and-branch-if-zero.
func IsTBZ(w uint32) bool { return w&maskTB == opTBZ }

// IsTBNZ reports whether w is a test-bit-and-branch-if-nonzero.
func IsTBNZ(w uint32) bool { return w&maskTB == opTBNZ }

// IsBCond reports whether w is a conditional immediate branch.
func IsBCond(w uint32) bool { return w&maskBCond == opBCond }

// IsBranchImm reports whether w is any branch with an embedded PC-relative
// immediate: B, BL, CBZ, CBNZ, TBZ, TBNZ or B.cond.
func IsBranchImm(w uint32) bool {
	return IsB(w) || IsBL(w) || IsCBZ(w) || IsCBNZ(w) ||
		IsTBZ(w) || IsTBNZ(w) || IsBCond(w)
}

// IsAdr reports whether w is ADR.
func IsAdr(w uint32) bool { return w&maskADR == opADR }

// IsAdrp reports whether w is ADRP.
func IsAdrp(w uint32) bool { return w&maskADR == opADRP }

// UsesLiteral reports whether w loads from a PC-relative literal: LDR
// (literal) in its integer, sign-extending, prefetch and SIMD&FP forms.
func UsesLiteral(w uint32) bool {
	return w&maskLDRLit == opLDRLit ||
		w&maskLDRSWLit == opLDRSWLit ||
		w&maskPRFMLit == opPRFMLit ||
		w&maskFPLit == opFPLit
}

// BranchOffset returns the byte offset embedded in a branch instruction,
// sign-extended and scaled. The result is relative to the address of the
// instruction itself. It returns 0 if w is not an immediate branch.
func BranchOffset(w uint32) int64 {
	switch {
	case IsB(w) || IsBL(w):
		// imm26 in bits 25:0, scaled by 4. Shifting left first puts the
		// sign bit in bit 31 so the arithmetic shift extends it.
		return int64(int32(w<<6) >> 4)
	case IsCBZ(w) || IsCBNZ(w) || IsBCond(w):
		// imm19 in bits 23:5, scaled by 4.
		imm := (w >> 5) & 0x7ffff
		return int64(int32(imm<<13) >> 11)
	case IsTBZ(w) || IsTBNZ(w):
		// imm14 in bits 18:5, scaled by 4.
		imm := (w >> 5) & 0x3fff
		return int64(int32(imm<<18) >> 16)
	}
	return 0
}

// SetBranchOffset re-encodes a branch instruction with a new byte offset.
// The offset must be representable in the instruction's immediate field.
func SetBranchOffset(w uint32, offset int64) (uint32, error) {
	switch {
	case IsB(w) || IsBL(w):
		if offset < -(1<<27) || offset >= 1<<27 {
			return 0, fmt.Errorf("B target out of range: %d bytes exceeds 128MiB", offset)
		}
		return w&^uint32(1<<26-1) | (uint32(offset>>2) & (1<<26 - 1)), nil
	case IsCBZ(w) || IsCBNZ(w) || IsBCond(w):
		if offset < -(1<<20) || offset >= 1<<20 {
			return 0, fmt.Errorf("CB/B.cond target out of range: %d bytes exceeds 1MiB", offset)
		}
		return w&^uint32(0x7ffff<<5) | ((uint32(offset>>2) & 0x7ffff) << 5), nil
	case IsTBZ(w) || IsTBNZ(w):
		if offset < -(1<<15) || offset >= 1<<15 {
			return 0, fmt.Errorf("TB target out of range: %d bytes exceeds 32KiB", offset)
		}
		return w&^uint32(0x3fff<<5) | ((uint32(offset>>2) & 0x3fff) << 5), nil
	}
	return 0, fmt.Errorf("not an immediate branch: %#08x", w)
}

// AdrOffset returns the byte offset embedded in an ADR instruction.
func AdrOffset(w uint32) int64 {
	return int64(int32(imm21(w)<<11) >> 11)
}

// SetAdrOffset re-encodes an ADR instruction with a new byte offset.
func SetAdrOffset(w uint32, offset int64) (uint32, error) {
	if offset < -(1<<20) || offset >= 1<<20 {
		return 0, fmt.Errorf("ADR target out of range: %d bytes exceeds 1MiB", offset)
	}
	return setImm21(w, uint32(offset)), nil
}

// AdrpOffset returns the byte offset embedded in an ADRP instruction. ADRP
// offsets are page-scaled: the value is the signed distance from the page
// holding the instruction to the target page, in bytes.
func AdrpOffset(w uint32) int64 {
	return int64(int32(imm21(w)<<11)>>11) << 12
}

// SetAdrpOffset re-encodes an ADRP instruction with a new page-scaled byte
// offset. Bits below the page granule are dropped.
func SetAdrpOffset(w uint32, offset int64) (uint32, error) {
	pages := offset >> 12
	if pages < -(1<<20) || pages >= 1<<20 {
		return 0, fmt.Errorf("ADRP target out of range: %d pages exceeds 4GiB", pages)
	}
	return setImm21(w, uint32(pages)), nil
}

func imm21(w uint32) uint32 {
	lo := (w >> 29) & 3
	hi := (w >> 5) & 0x7ffff
	return hi<<2 | lo
}

func setImm21(w uint32, v uint32) uint32 {
	// Lowest 2 bits go to bits 30:29, the highest 19 to bits 23:5.
	w &^= adrAddressMask
	w |= (v & 3) << 29
	w |= ((v >> 2) & 0x7ffff) << 5
	return w
}
