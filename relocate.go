package altpatch

// withinBlock reports whether target falls inside site's replacement
// block. The one-past-end address counts as inside: a branch there lands
// on whatever follows the block, which moves with it.
func withinBlock(site *Site, target uint64) bool {
	return target >= site.Repl && target <= site.Repl+uint64(site.ReplLen)
}

// needsFixup decides whether a relative reference to target must be
// re-encoded for the patched location. References into the block itself
// are already correct. References into known text or data point at
// memory that does not move, so they need a new offset. Anything else is
// undecidable and the engine refuses to guess.
func (p *Patcher) needsFixup(site *Site, target uint64) bool {
	if withinBlock(site, target) {
		return false
	}
	if p.layout.text(target) || p.layout.data(target) {
		return true
	}
	p.fatalf(site, target, "relative reference into unknown memory")
	return false
}

// relocate re-encodes one replacement word for its final address.
// replAddr is where the word sits in the replacement block, insnAddr
// where it will execute after patching.
func (p *Patcher) relocate(site *Site, insnAddr, replAddr uint64, w uint32) uint32 {
	switch p.codec.Kind(w) {
	case KindBranch:
		target := uint64(int64(replAddr) + p.codec.Offset(w))
		if p.needsFixup(site, target) {
			nw, err := p.codec.SetOffset(w, int64(target)-int64(insnAddr))
			if err != nil {
				p.fatalf(site, target, "branch does not reach from %#x: %v", insnAddr, err)
			}
			w = nw
		}

	case KindPageRel:
		page := p.codec.Page()
		target := uint64(int64(alignDown(replAddr, page)) + p.codec.Offset(w))
		if p.needsFixup(site, target) {
			nw, err := p.codec.SetOffset(w, int64(target)-int64(alignDown(insnAddr, page)))
			if err != nil {
				p.fatalf(site, target, "page-relative load does not reach from %#x: %v", insnAddr, err)
			}
			w = nw
		}

	case KindByteRel:
		// The short range of these cannot be widened, so they are
		// only allowed to address the block they live in.
		target := uint64(int64(replAddr) + p.codec.Offset(w))
		if !withinBlock(site, target) {
			p.fatalf(site, target, "byte-relative load reaches outside its block")
		}

	case KindLiteral:
		p.fatalf(site, replAddr, "literal-pool reference in replacement code")
	}

	return w
}

func alignDown(addr, align uint64) uint64 {
	return addr &^ (align - 1)
}
