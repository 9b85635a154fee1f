package altpatch_test

import (
	"encoding/binary"
	"fmt"

	"github.com/pboyd/altpatch"
	"github.com/pboyd/altpatch/insn"
)

func Example() {
	// A tiny image: text in the bottom half, a two-word patch site at
	// the base, its replacement at +0x100 and the descriptor table at
	// +0x180. The replacement calls a helper at +0x40, so its BL needs
	// relocating when it moves.
	const base = 0x10000

	image := make([]byte, 0x200)
	binary.LittleEndian.PutUint32(image[0x00:], 0xaaaaaaaa)
	binary.LittleEndian.PutUint32(image[0x04:], 0xbbbbbbbb)

	bl, err := insn.SetBranchOffset(0x94000000, (base+0x40)-(base+0x100))
	if err != nil {
		panic(err)
	}
	binary.LittleEndian.PutUint32(image[0x100:], bl)
	binary.LittleEndian.PutUint32(image[0x104:], insn.Nop)

	tb := altpatch.NewTableBuilder(base + 0x180)
	err = tb.Add(altpatch.Site{
		Orig:    base,
		Repl:    base + 0x100,
		OrigLen: 8,
		ReplLen: 8,
		Feature: altpatch.FeatureAtomics,
	})
	if err != nil {
		panic(err)
	}
	copy(image[0x180:], tb.Bytes())

	p, err := altpatch.New(altpatch.Config{
		Image:    &altpatch.Image{Base: base, Data: image},
		Layout:   altpatch.Layout{Text: []altpatch.Span{{Start: base, End: base + 0x80}}},
		Table:    tb.Span(),
		Features: altpatch.FeatureList{altpatch.FeatureAtomics},
	})
	if err != nil {
		panic(err)
	}

	p.ApplyAll()

	patched := binary.LittleEndian.Uint32(image[0x00:])
	fmt.Printf("BL offset %#x, next %08x\n", insn.BranchOffset(patched), binary.LittleEndian.Uint32(image[0x04:]))
	// Output: BL offset 0x40, next d503201f
}
