package altpatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Config describes the image to patch and the machinery around it. Image
// is required; everything else has a usable zero value.
type Config struct {
	// Image is the primary window: the code being patched, either a
	// file buffer or live memory.
	Image *Image

	// Layout lists the image's known text and data regions. Relative
	// references into them are re-encoded when replacement code moves;
	// references anywhere else are fatal.
	Layout Layout

	// Table locates the image's packed descriptor table. A zero span
	// means the whole-image pass has no work.
	Table Span

	// Features gates sites. Nil detects the host CPU, which off arm64
	// means no feature is present.
	Features FeatureSet

	// Codec decodes the instruction set. Nil selects AArch64.
	Codec Codec

	// Flush publishes patched ranges to the fetch path. Nil means the
	// image is plain data and needs no flushing.
	Flush Flusher

	// Alias, when set, returns a writable view of n bytes at addr for
	// the whole-image pass. Early boot patches code through a second
	// mapping before the normal one is writable; this is that hook.
	// Nil writes through the image directly.
	Alias func(addr uint64, n int) []byte

	// StopMachine runs fn once per participating core, concurrently,
	// with core 0 included. It is the quiescence mechanism for the
	// whole-image pass over live code. Nil runs fn(0) inline, which is
	// correct for buffers and single-core environments.
	StopMachine func(fn func(cpu int))

	// Log receives progress and failure reports. Nil uses
	// slog.Default.
	Log *slog.Logger
}

// Patcher applies alternative instruction sequences to an image.
// Methods on it are not safe for concurrent use, except that ApplyAll
// coordinates its own cores through StopMachine.
type Patcher struct {
	windows  []*Image
	layout   Layout
	table    Span
	features FeatureSet
	codec    Codec
	flush    Flusher
	alias    func(addr uint64, n int) []byte
	stop     func(fn func(cpu int))
	log      *slog.Logger

	patched  atomic.Bool
	infoOnce sync.Once
}

// New validates cfg and returns a Patcher for it.
func New(cfg Config) (*Patcher, error) {
	if cfg.Image == nil {
		return nil, errors.New("altpatch: no image")
	}
	if cfg.Table.Len() > 0 {
		if _, ok := cfg.Image.Bytes(cfg.Table.Start, cfg.Table.Len()); !ok {
			return nil, fmt.Errorf("altpatch: table %#x+%d outside image", cfg.Table.Start, cfg.Table.Len())
		}
		if cfg.Table.Len()%siteSize != 0 {
			return nil, fmt.Errorf("altpatch: table length %d is not a multiple of %d", cfg.Table.Len(), siteSize)
		}
	}

	p := &Patcher{
		windows:  []*Image{cfg.Image},
		layout:   cfg.Layout,
		table:    cfg.Table,
		features: cfg.Features,
		codec:    cfg.Codec,
		flush:    cfg.Flush,
		alias:    cfg.Alias,
		stop:     cfg.StopMachine,
		log:      cfg.Log,
	}
	if p.features == nil {
		p.features = DetectFeatures()
	}
	if p.codec == nil {
		p.codec = A64()
	}
	if p.flush == nil {
		p.flush = NopFlusher{}
	}
	if p.stop == nil {
		p.stop = func(fn func(cpu int)) { fn(0) }
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	return p, nil
}

// Patched reports whether the whole-image pass has run.
func (p *Patcher) Patched() bool {
	return p.patched.Load()
}

// AddWindow registers another span of instruction memory, such as a
// loaded module, so sites and relative targets can resolve into it.
func (p *Patcher) AddWindow(img *Image) {
	p.windows = append(p.windows, img)
}

func (p *Patcher) removeWindow(img *Image) {
	for i, w := range p.windows {
		if w == img {
			p.windows = append(p.windows[:i], p.windows[i+1:]...)
			return
		}
	}
}

// AddText marks s as executable text, extending the layout given at
// construction.
func (p *Patcher) AddText(s Span) {
	p.layout.Text = append(p.layout.Text, s)
}

func (p *Patcher) removeText(s Span) {
	for i, t := range p.layout.Text {
		if t == s {
			p.layout.Text = append(p.layout.Text[:i], p.layout.Text[i+1:]...)
			return
		}
	}
}

// view resolves addr through the registered windows. An unresolvable
// range means the descriptor table or the config is wrong, and nothing
// sensible can be patched after that.
func (p *Patcher) view(addr, n uint64) []byte {
	for _, img := range p.windows {
		if b, ok := img.Bytes(addr, n); ok {
			return b
		}
	}
	p.fatalf(nil, addr, "range %#x+%d is outside every window", addr, n)
	return nil
}

// FatalError reports a condition under which patching cannot continue:
// a corrupt descriptor, a relative reference into unknown memory, a
// displacement that cannot be re-encoded. The image may already be
// partially patched when it is raised.
type FatalError struct {
	Reason string
	Addr   uint64
	Site   *Site
}

func (e *FatalError) Error() string {
	if e.Site != nil {
		return fmt.Sprintf("altpatch: %s (site orig=%#x repl=%#x, addr=%#x)", e.Reason, e.Site.Orig, e.Site.Repl, e.Addr)
	}
	return fmt.Sprintf("altpatch: %s (addr=%#x)", e.Reason, e.Addr)
}

// fatalf logs and panics with a *FatalError. Patching has no recovery
// path: a bad site leaves the image inconsistent, so the failure is
// surfaced to whoever drives the patcher.
func (p *Patcher) fatalf(site *Site, addr uint64, format string, args ...any) {
	e := &FatalError{
		Reason: fmt.Sprintf(format, args...),
		Addr:   addr,
	}
	if site != nil {
		s := *site
		e.Site = &s
	}
	p.log.Error("image patching failed", "error", e)
	panic(e)
}
