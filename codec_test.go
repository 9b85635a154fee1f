package altpatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pboyd/altpatch/insn"
)

func TestA64Kind(t *testing.T) {
	c := A64()

	cases := map[string]struct {
		w    uint32
		want Kind
	}{
		"b":                {0x14000000, KindBranch},
		"bl":               {0x94000000, KindBranch},
		"cbz":              {0x34000001, KindBranch},
		"cbnz":             {0x35000001, KindBranch},
		"tbz":              {0x36080001, KindBranch},
		"tbnz":             {0x37080001, KindBranch},
		"b.eq":             {0x54000000, KindBranch},
		"adrp":             {0x90000001, KindPageRel},
		"adr":              {0x10000001, KindByteRel},
		"ldr literal":      {0x18000040, KindLiteral},
		"ldr 64 literal":   {0x58000040, KindLiteral},
		"ldrsw literal":    {0x98000040, KindLiteral},
		"prfm literal":     {0xd8000040, KindLiteral},
		"simd ldr literal": {0x1c000040, KindLiteral},
		"nop":              {insn.Nop, KindOther},
		"movz":             {0xd2800000, KindOther},
		"add":              {0x8b010000, KindOther},
		"ret":              {0xd65f03c0, KindOther},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Kind(tc.w))
		})
	}
}

func TestA64Offsets(t *testing.T) {
	assert := assert.New(t)
	c := A64()

	b := mustBranch(0x14000000, -256)
	assert.Equal(int64(-256), c.Offset(b))

	nb, err := c.SetOffset(b, 1024)
	if assert.NoError(err) {
		assert.Equal(int64(1024), c.Offset(nb))
	}

	adrp := mustAdrp(0x90000001, 1<<21)
	assert.Equal(int64(1<<21), c.Offset(adrp))

	adr := mustAdr(0x10000001, -12)
	assert.Equal(int64(-12), c.Offset(adr))

	// Words without relative addressing have no offset to set.
	assert.Equal(int64(0), c.Offset(insn.Nop))
	_, err = c.SetOffset(insn.Nop, 4)
	assert.Error(err)
}

func TestKindString(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("branch", KindBranch.String())
	assert.Equal("page-relative", KindPageRel.String())
	assert.Equal("byte-relative", KindByteRel.String())
	assert.Equal("literal", KindLiteral.String())
	assert.Equal("other", KindOther.String())
	assert.Equal("kind(99)", Kind(99).String())
}
