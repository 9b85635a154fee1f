package altpatch

// Flusher pushes patched instructions out to the fetch path.
type Flusher interface {
	// FlushRange makes instruction fetches of [start, end) observe
	// writes made before the call.
	FlushRange(start, end uint64)

	// Sync discards anything this core fetched ahead of time. Cores
	// that waited out a patch over live code call it before resuming.
	Sync()
}

// NopFlusher is for images that are plain data in this process: file
// buffers, code destined for another machine. Nothing executes them here,
// so there is nothing to flush.
type NopFlusher struct{}

func (NopFlusher) FlushRange(start, end uint64) {}
func (NopFlusher) Sync()                        {}
