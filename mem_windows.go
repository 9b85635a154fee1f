//go:build windows

package altpatch

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	mprotectRX   = windows.PAGE_EXECUTE_READ
	mprotectRWX  = windows.PAGE_EXECUTE_READWRITE
	mprotectExec = windows.PAGE_EXECUTE
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
	pageSize := syscall.Getpagesize()

	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))

	// Round address down to page boundary.
	pageStart := addr &^ (uintptr(pageSize) - 1)

	// Round up to cover complete pages.
	regionSize := (int(addr-pageStart) + cap(buf) + pageSize - 1) &^ (pageSize - 1)

	var oldFlags uint32
	return windows.VirtualProtect(pageStart, uintptr(regionSize), uint32(flags), &oldFlags)
}
