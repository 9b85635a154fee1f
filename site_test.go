package altpatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableRoundTrip(t *testing.T) {
	assert := assert.New(t)

	// Sites on both sides of the table, so both offset signs are
	// exercised.
	sites := []Site{
		{Orig: 0x400100, Repl: replBase, OrigLen: 8, ReplLen: 8, Feature: FeatureAtomics},
		{Orig: 0x400200, Repl: replBase + 0x80, OrigLen: 4, ReplLen: 4, Feature: FeatureSVE},
		{Orig: tableBase + 0x400, Repl: tableBase + 0x500, OrigLen: 12, ReplLen: 12, Feature: FeatureCRC32},
	}

	tb := NewTableBuilder(tableBase)
	for _, s := range sites {
		require.NoError(t, tb.Add(s))
	}
	assert.Len(tb.Bytes(), len(sites)*12)
	assert.Equal(Span{Start: tableBase, End: tableBase + uint64(len(sites)*12)}, tb.Span())

	img := &Image{Base: testBase, Data: make([]byte, testSize)}
	b, ok := img.Bytes(tableBase, uint64(len(tb.Bytes())))
	require.True(t, ok)
	copy(b, tb.Bytes())

	parsed, err := ParseTable(img, tableBase, uint64(len(tb.Bytes())))
	if assert.NoError(err) {
		assert.Equal(sites, parsed)
	}
}

func TestTableMovesWithImage(t *testing.T) {
	assert := assert.New(t)

	// The same table bytes loaded 1MiB higher resolve every address
	// 1MiB higher: descriptors carry no absolute addresses.
	const shift = 0x100000

	tb := NewTableBuilder(tableBase)
	require.NoError(t, tb.Add(Site{
		Orig:    0x400100,
		Repl:    replBase,
		OrigLen: 8,
		ReplLen: 8,
		Feature: FeatureAtomics,
	}))

	data := make([]byte, testSize)
	copy(data[tableBase-testBase:], tb.Bytes())

	moved := &Image{Base: testBase + shift, Data: data}
	parsed, err := ParseTable(moved, tableBase+shift, uint64(len(tb.Bytes())))
	require.NoError(t, err)
	require.Len(t, parsed, 1)

	assert.Equal(uint64(0x400100+shift), parsed[0].Orig)
	assert.Equal(uint64(replBase+shift), parsed[0].Repl)
	assert.Equal(uint32(8), parsed[0].OrigLen)
	assert.Equal(FeatureAtomics, parsed[0].Feature)
}

func TestParseTableErrors(t *testing.T) {
	img := &Image{Base: testBase, Data: make([]byte, 0x100)}

	cases := map[string]struct {
		start  uint64
		length uint64
	}{
		"ragged length": {start: testBase, length: 10},
		"before image":  {start: testBase - 0x100, length: 12},
		"past the end":  {start: testBase + 0xf8, length: 12},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTable(img, tc.start, tc.length)
			assert.Error(t, err)
		})
	}
}

func TestTableBuilderErrors(t *testing.T) {
	assert := assert.New(t)

	tb := NewTableBuilder(tableBase)

	// 12-byte descriptors hold one byte per length.
	err := tb.Add(Site{Orig: 0x400100, Repl: replBase, OrigLen: 256, ReplLen: 256})
	assert.Error(err)

	// Offsets are 32-bit; an original 4GiB away cannot be encoded.
	err = tb.Add(Site{Orig: tableBase + (1 << 32), Repl: replBase, OrigLen: 4, ReplLen: 4})
	assert.Error(err)

	err = tb.Add(Site{Orig: 0x400100, Repl: tableBase + (1 << 32), OrigLen: 4, ReplLen: 4})
	assert.Error(err)

	assert.Empty(tb.Bytes())
}
