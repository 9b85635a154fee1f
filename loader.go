//go:build unix || windows

package altpatch

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/pboyd/malloc"
)

// Loader places code blobs into executable memory and hooks them up to a
// Patcher. A loaded blob becomes another window and text region, and the
// descriptor table it carries is applied on the spot.
type Loader struct {
	p     *Patcher
	arena codeArena
	flush Flusher
}

// NewLoader returns a Loader that registers everything it loads with p.
func NewLoader(p *Patcher) *Loader {
	return &Loader{p: p}
}

// Load copies blob into executable memory and applies the packed
// descriptor table at blob[tableOff : tableOff+tableLen]. The table's
// self-relative offsets must resolve inside the blob. Load patches
// directly, so no other core may run the new code until it returns;
// code nothing references yet satisfies that on its own.
func (l *Loader) Load(blob []byte, tableOff, tableLen int) (*Module, error) {
	if tableOff < 0 || tableLen < 0 || tableOff+tableLen > len(blob) {
		return nil, fmt.Errorf("table %d+%d outside %d-byte blob", tableOff, tableLen, len(blob))
	}
	if l.flush == nil {
		// The blob becomes code this process can run, so the flusher
		// must be the real one for the host.
		fl, err := HostFlusher()
		if err != nil {
			return nil, fmt.Errorf("cannot load executable code: %w", err)
		}
		l.flush = fl
	}

	code, err := l.place(len(blob))
	if err != nil {
		return nil, err
	}
	img := ImageAt(unsafe.Pointer(unsafe.SliceData(code)), len(code))

	// Only the blob's own pages go writable while it is filled in; the
	// rest of the arena keeps executing.
	if err := WriteEnable(img); err != nil {
		l.discard(code)
		return nil, err
	}
	copy(code, blob)

	l.p.AddWindow(img)
	l.p.AddText(img.Span())
	l.p.ApplyRegion(img.Base+uint64(tableOff), uint64(tableLen))

	if err := WriteProtect(img); err != nil {
		l.p.removeText(img.Span())
		l.p.removeWindow(img)
		l.discard(code)
		return nil, err
	}

	// The blob is new code in recycled memory; flush all of it, not
	// just the patched sites.
	l.flush.FlushRange(img.Base, img.End())
	l.flush.Sync()

	return &Module{loader: l, img: img, code: code}, nil
}

// place allocates room for a blob under the arena's mutate bracket.
func (l *Loader) place(size int) ([]byte, error) {
	if err := l.arena.beginMutate(); err != nil {
		return nil, err
	}
	defer l.arena.endMutate()
	return l.arena.allocate(size)
}

func (l *Loader) discard(code []byte) {
	l.arena.beginMutate()
	defer l.arena.endMutate()
	l.arena.free(code)
}

// Module is one loaded blob.
type Module struct {
	loader *Loader
	img    *Image
	code   []byte
}

// Addr returns the address the module's code was placed at.
func (m *Module) Addr() uint64 {
	return m.img.Base
}

// Image returns the module's window. Its Data aliases the executable
// memory itself.
func (m *Module) Image() *Image {
	return m.img
}

// Free unregisters the module and releases its memory. The caller
// guarantees nothing can still jump into it.
func (m *Module) Free() {
	m.loader.p.removeText(m.img.Span())
	m.loader.p.removeWindow(m.img)
	m.loader.discard(m.code)

	m.img = nil
	m.code = nil
}

// codeArena hands out executable memory. The backing pages stay
// read-execute except between beginMutate and endMutate, which bracket
// every allocation and every write into loaded code.
type codeArena struct {
	*malloc.Arena
	mprotect func(int) error
	mu       sync.Mutex
	initOnce sync.Once
	mutable  bool
}

func (a *codeArena) init(startSize int) error {
	var err error
	a.initOnce.Do(func() {
		be := malloc.MmapBackend(malloc.MmapProt(mprotectExec))
		if protBE, ok := be.(malloc.ProtectedArenaBackend); ok {
			a.mprotect = protBE.Protect
		} else {
			a.mprotect = func(int) error {
				return nil
			}
		}

		a.Arena = malloc.NewArena(uint64(startSize), malloc.Backend(be))
		if a.Arena == nil {
			err = errors.New("unable to initialize arena")
			return
		}
		a.mutable = true
	})
	return err
}

func (a *codeArena) beginMutate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// beginMutate can run before the first allocation, when there is
	// nothing to unprotect yet.
	if a.mprotect == nil || a.mutable {
		return nil
	}

	err := a.mprotect(mprotectRWX)
	if err == nil {
		a.mutable = true
	}
	return err
}

func (a *codeArena) endMutate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mutable {
		return nil
	}

	err := a.mprotect(mprotectRX)
	if err == nil {
		a.mutable = false
	}
	return err
}

func (a *codeArena) allocate(size int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.init(size); err != nil {
		return nil, fmt.Errorf("error initializing code arena: %w", err)
	}
	if !a.mutable {
		panic("allocate called in immutable state")
	}

	return malloc.MallocSlice[byte](a.Arena, size)
}

func (a *codeArena) free(buf []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mutable {
		panic("free called in immutable state")
	}

	malloc.FreeSlice(a.Arena, buf)
}
