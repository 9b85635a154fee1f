package altpatch

import (
	"encoding/binary"
	"fmt"
)

// ApplyRegion parses the descriptor table at [start, start+length) and
// applies every applicable site in it. This is the direct path for code
// that arrives after the whole-image pass, such as a loaded module, and
// it must run on exactly one core at a time. Regions from separate calls
// must not overlap.
func (p *Patcher) ApplyRegion(start, length uint64) {
	p.applyRegion(p.region(start, length), false)
}

// region parses a descriptor table out of whichever window holds it.
func (p *Patcher) region(start, length uint64) []Site {
	for _, img := range p.windows {
		if _, ok := img.Bytes(start, length); !ok {
			continue
		}
		sites, err := ParseTable(img, start, length)
		if err != nil {
			p.fatalf(nil, start, "bad descriptor table: %v", err)
		}
		return sites
	}
	p.fatalf(nil, start, "descriptor table %#x+%d outside every window", start, length)
	return nil
}

// applyRegion rewrites every site in region whose feature is present.
// With aliased set, writes go through the Alias hook instead of the
// window itself; only the whole-image pass does that.
func (p *Patcher) applyRegion(region []Site, aliased bool) {
	width := uint64(p.codec.Width())
	for i := range region {
		site := &region[i]
		if !p.features.Has(site.Feature) {
			continue
		}
		if site.ReplLen != site.OrigLen {
			p.fatalf(site, site.Orig, "replacement length %d != original length %d", site.ReplLen, site.OrigLen)
		}
		if uint64(site.OrigLen)%width != 0 {
			p.fatalf(site, site.Orig, "site length %d is not a whole number of instructions", site.OrigLen)
		}
		p.infoOnce.Do(func() {
			p.log.Info("patching image code")
		})

		repl := p.view(site.Repl, uint64(site.ReplLen))
		dst := p.dest(site, aliased)
		for off := uint64(0); off < uint64(site.OrigLen); off += width {
			w := binary.LittleEndian.Uint32(repl[off:])
			w = p.relocate(site, site.Orig+off, site.Repl+off, w)
			binary.LittleEndian.PutUint32(dst[off:], w)
		}
		p.log.Debug("applied alternative",
			"feature", site.Feature.String(),
			"addr", fmt.Sprintf("%#x", site.Orig),
			"len", site.OrigLen)

		p.flush.FlushRange(site.Orig, site.Orig+uint64(site.OrigLen))
	}
}

// dest returns the bytes the rewritten instructions are stored into.
func (p *Patcher) dest(site *Site, aliased bool) []byte {
	if aliased && p.alias != nil {
		b := p.alias(site.Orig, int(site.OrigLen))
		if len(b) < int(site.OrigLen) {
			p.fatalf(site, site.Orig, "alias returned %d bytes for %#x, need %d", len(b), site.Orig, site.OrigLen)
		}
		return b
	}
	return p.view(site.Orig, uint64(site.OrigLen))
}
