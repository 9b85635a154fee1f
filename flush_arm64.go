//go:build arm64 && cgo

package altpatch

import "unsafe"

/*
static void cacheflush(char *start, char *end) {
	__builtin___clear_cache(start, end);
}

static void isb(void) {
	__asm__ volatile("isb" ::: "memory");
}
*/
import "C"

// HostFlusher returns a Flusher for code this process executes itself.
func HostFlusher() (Flusher, error) {
	return hostFlusher{}, nil
}

type hostFlusher struct{}

func (hostFlusher) FlushRange(start, end uint64) {
	C.cacheflush((*C.char)(unsafe.Pointer(uintptr(start))), (*C.char)(unsafe.Pointer(uintptr(end))))
}

func (hostFlusher) Sync() {
	C.isb()
}
