//go:build arm64 && !cgo

package altpatch

import "errors"

// arm64 requires a C compiler to flush the instruction cache.
// Install a C compiler and build with CGO_ENABLED=1.
func HostFlusher() (Flusher, error) {
	return nil, errors.New("altpatch: flushing the arm64 instruction cache requires cgo")
}
