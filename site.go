package altpatch

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Site is one alternative: a default sequence at Orig and a replacement
// assembled at Repl, applied when Feature is present.
type Site struct {
	Orig    uint64
	Repl    uint64
	OrigLen uint32
	ReplLen uint32
	Feature Feature
}

// Packed descriptor layout. The two offsets are relative to their own
// position in the table, so a table stays valid wherever its image loads.
//
//	+0  int32  orig offset
//	+4  int32  repl offset
//	+8  uint16 feature
//	+10 uint8  orig length
//	+11 uint8  repl length
const siteSize = 12

// ParseTable decodes the packed descriptor table at [start, start+length)
// inside img. Offsets are resolved against the table's own position;
// whether the resulting addresses are mapped is checked when a site is
// applied, not here.
func ParseTable(img *Image, start, length uint64) ([]Site, error) {
	if length%siteSize != 0 {
		return nil, fmt.Errorf("table length %d is not a multiple of %d", length, siteSize)
	}
	buf, ok := img.Bytes(start, length)
	if !ok {
		return nil, fmt.Errorf("table %#x+%d outside image %#x+%d", start, length, img.Base, len(img.Data))
	}

	sites := make([]Site, 0, length/siteSize)
	for off := uint64(0); off < length; off += siteSize {
		desc := buf[off : off+siteSize]
		origOff := int64(int32(binary.LittleEndian.Uint32(desc[0:])))
		replOff := int64(int32(binary.LittleEndian.Uint32(desc[4:])))
		sites = append(sites, Site{
			Orig:    uint64(int64(start+off) + origOff),
			Repl:    uint64(int64(start+off+4) + replOff),
			Feature: Feature(binary.LittleEndian.Uint16(desc[8:])),
			OrigLen: uint32(desc[10]),
			ReplLen: uint32(desc[11]),
		})
	}
	return sites, nil
}

// TableBuilder assembles a packed descriptor table destined for a known
// address. Descriptors store self-relative offsets, so the builder needs
// that address up front.
type TableBuilder struct {
	base uint64
	buf  []byte
}

// NewTableBuilder starts a table that will live at base.
func NewTableBuilder(base uint64) *TableBuilder {
	return &TableBuilder{base: base}
}

// Add appends a descriptor for s.
func (b *TableBuilder) Add(s Site) error {
	if s.OrigLen > math.MaxUint8 || s.ReplLen > math.MaxUint8 {
		return fmt.Errorf("site length %d/%d exceeds %d bytes", s.OrigLen, s.ReplLen, math.MaxUint8)
	}
	desc := b.base + uint64(len(b.buf))
	origOff := int64(s.Orig) - int64(desc)
	replOff := int64(s.Repl) - int64(desc+4)
	if origOff < math.MinInt32 || origOff > math.MaxInt32 {
		return fmt.Errorf("original %#x out of reach of table at %#x", s.Orig, desc)
	}
	if replOff < math.MinInt32 || replOff > math.MaxInt32 {
		return fmt.Errorf("replacement %#x out of reach of table at %#x", s.Repl, desc)
	}

	var desc12 [siteSize]byte
	binary.LittleEndian.PutUint32(desc12[0:], uint32(int32(origOff)))
	binary.LittleEndian.PutUint32(desc12[4:], uint32(int32(replOff)))
	binary.LittleEndian.PutUint16(desc12[8:], uint16(s.Feature))
	desc12[10] = uint8(s.OrigLen)
	desc12[11] = uint8(s.ReplLen)
	b.buf = append(b.buf, desc12[:]...)
	return nil
}

// Bytes returns the packed table.
func (b *TableBuilder) Bytes() []byte {
	return b.buf
}

// Span returns the range the table occupies at its destination address.
func (b *TableBuilder) Span() Span {
	return Span{Start: b.base, End: b.base + uint64(len(b.buf))}
}
