//go:build !arm64

package altpatch

// No flushing is needed on amd64, where instruction fetch is coherent
// with data writes. Skipping the C builtin there also keeps
// cross-compiling easier.
func HostFlusher() (Flusher, error) {
	return NopFlusher{}, nil
}
