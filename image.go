package altpatch

import "unsafe"

// Image is a window onto instruction memory: a run of bytes plus the
// address its first byte occupies. For offline work the bytes are an
// ordinary buffer and Base is wherever the image links; for live patching
// the bytes alias mapped memory and Base is the real address.
type Image struct {
	Base uint64
	Data []byte
}

// ImageAt wraps size bytes of live memory starting at p. The returned
// image reads and writes that memory directly.
func ImageAt(p unsafe.Pointer, size int) *Image {
	return &Image{
		Base: uint64(uintptr(p)),
		Data: unsafe.Slice((*byte)(p), size),
	}
}

// End returns the first address past the image.
func (img *Image) End() uint64 {
	return img.Base + uint64(len(img.Data))
}

// Span returns the address range the image occupies.
func (img *Image) Span() Span {
	return Span{Start: img.Base, End: img.End()}
}

// Bytes returns the n bytes at addr, or false if the range is not fully
// inside the image. The slice aliases the image's backing memory.
func (img *Image) Bytes(addr, n uint64) ([]byte, bool) {
	if addr < img.Base {
		return nil, false
	}
	off := addr - img.Base
	if off > uint64(len(img.Data)) || n > uint64(len(img.Data))-off {
		return nil, false
	}
	return img.Data[off : off+n], true
}
