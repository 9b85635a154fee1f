//go:build unix || windows

package altpatch

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pboyd/altpatch/insn"
)

// testBlob is 28 bytes the way a loaded object would carry them: the
// default words, the replacement words, then the descriptor table. All
// offsets are blob-relative, so it loads anywhere.
//
//	0  orig word 0
//	4  orig word 1
//	8  repl word 0: NOP
//	12 repl word 1: B back to blob offset 0
//	16 descriptor table
func testBlob(t *testing.T) ([]byte, int, int) {
	t.Helper()

	tb := NewTableBuilder(16)
	require.NoError(t, tb.Add(Site{
		Orig:    0,
		Repl:    8,
		OrigLen: 8,
		ReplLen: 8,
		Feature: FeatureCRC32,
	}))

	blob := make([]byte, 16+len(tb.Bytes()))
	binary.LittleEndian.PutUint32(blob[0:], 0x11111111)
	binary.LittleEndian.PutUint32(blob[4:], 0x22222222)
	binary.LittleEndian.PutUint32(blob[8:], insn.Nop)
	binary.LittleEndian.PutUint32(blob[12:], mustBranch(0x14000000, -12))
	copy(blob[16:], tb.Bytes())

	return blob, 16, len(tb.Bytes())
}

func TestLoaderLoad(t *testing.T) {
	assert := assert.New(t)

	p := testPatcher(t)
	p.features = FeatureList{FeatureCRC32}

	blob, tableOff, tableLen := testBlob(t)

	l := NewLoader(p)
	m, err := l.Load(blob, tableOff, tableLen)
	if err != nil {
		t.Skipf("cannot allocate executable memory: %v", err)
	}

	addr := m.Addr()
	img := m.Image()

	// The site was applied in place, wherever the blob landed.
	b, ok := img.Bytes(addr, 8)
	require.True(t, ok)
	assert.Equal(uint32(insn.Nop), binary.LittleEndian.Uint32(b))

	// The branch into the blob's own text was rewritten for its final
	// position: from offset 4 it now reaches offset 0.
	assert.Equal(int64(-4), insn.BranchOffset(binary.LittleEndian.Uint32(b[4:])))

	// The module resolves as a window and counts as text.
	assert.True(p.layout.text(addr))
	found := false
	for _, w := range p.windows {
		if w == img {
			found = true
		}
	}
	assert.True(found)

	m.Free()

	assert.False(p.layout.text(addr))
	for _, w := range p.windows {
		assert.NotSame(img, w)
	}
}

func TestLoaderLoadBadTable(t *testing.T) {
	assert := assert.New(t)

	l := NewLoader(testPatcher(t))

	blob := make([]byte, 16)
	_, err := l.Load(blob, 8, 12)
	assert.Error(err)

	_, err = l.Load(blob, -1, 4)
	assert.Error(err)
}

func TestWriteEnableWriteProtect(t *testing.T) {
	assert := assert.New(t)

	p := testPatcher(t)
	p.features = FeatureList{FeatureCRC32}

	blob, tableOff, tableLen := testBlob(t)
	m, err := NewLoader(p).Load(blob, tableOff, tableLen)
	if err != nil {
		t.Skipf("cannot allocate executable memory: %v", err)
	}
	defer m.Free()

	img := m.Image()

	// Load leaves the module read-execute; WriteEnable opens its pages
	// back up for another round of edits.
	require.NoError(t, WriteEnable(img))
	binary.LittleEndian.PutUint32(img.Data, 0x33333333)
	assert.Equal(uint32(0x33333333), binary.LittleEndian.Uint32(img.Data))
	require.NoError(t, WriteProtect(img))

	assert.Equal(uint32(0x33333333), binary.LittleEndian.Uint32(img.Data))
}
