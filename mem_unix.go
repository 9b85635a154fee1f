//go:build unix

package altpatch

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	mprotectRX   = unix.PROT_READ | unix.PROT_EXEC
	mprotectRWX  = unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC
	mprotectExec = mprotectRX
)

// WriteEnable makes the pages backing a live image writable so its sites
// can be patched in place. The extra bytes of any partially covered page
// become writable too.
func WriteEnable(img *Image) error {
	return mprotect(img.Data, mprotectRWX)
}

// WriteProtect restores the pages backing a live image to read-execute.
func WriteProtect(img *Image) error {
	return mprotect(img.Data, mprotectRX)
}

func mprotect(buf []byte, flags int) error {
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))

	pageSize := unix.Getpagesize()

	// Round address down to page boundary.
	pageStart := addr &^ (uintptr(pageSize) - 1)

	// Round up to cover complete pages.
	regionSize := (int(addr-pageStart) + cap(buf) + pageSize - 1) &^ (pageSize - 1)

	region := unsafe.Slice((*byte)(unsafe.Pointer(pageStart)), regionSize)

	return unix.Mprotect(region, flags)
}
