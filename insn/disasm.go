package insn

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"
)

// Sprint renders a single instruction word as assembly, or "?" for words
// the disassembler cannot decode.
func Sprint(w uint32) string {
	var raw [Size]byte
	binary.LittleEndian.PutUint32(raw[:], w)
	inst, err := arm64asm.Decode(raw[:])
	if err != nil {
		return "?"
	}
	return inst.String()
}

// Disassemble renders code as one instruction per line, annotated with the
// address each word occupies when the block starts at base.
func Disassemble(code []byte, base uint64) string {
	var buf bytes.Buffer

	for i := 0; i+Size <= len(code); i += Size {
		var asm string
		inst, err := arm64asm.Decode(code[i:])
		if err == nil {
			asm = inst.String()
		} else {
			asm = "?"
		}
		fmt.Fprintf(&buf, "0x%08x\t%-20s\t%s\n", base+uint64(i), hex.EncodeToString(code[i:i+Size]), asm)
	}

	return buf.String()
}
