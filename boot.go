package altpatch

import "runtime"

// ApplyAll runs the whole-image pass exactly once. Every participating
// core enters through StopMachine; the designated core rewrites the image
// while the rest spin, and nobody leaves until the new instructions are
// globally visible. Running it a second time is a protocol violation and
// fatal.
func (p *Patcher) ApplyAll() {
	p.stop(p.multiStop)
}

// multiStop is the per-core body of the whole-image pass. The quiescence
// mechanism itself may be a patch target, so the cores coordinate through
// nothing but a flat polling protocol on one flag.
func (p *Patcher) multiStop(cpu int) {
	if cpu != 0 {
		for !p.patched.Load() {
			runtime.Gosched()
		}
		// The designated core's flushes made the new instructions
		// visible; drop anything fetched before that.
		p.flush.Sync()
		return
	}

	if p.patched.Load() {
		p.fatalf(nil, 0, "whole-image pass already ran")
	}
	if p.table.Len() > 0 {
		p.applyRegion(p.region(p.table.Start, p.table.Len()), true)
	}
	// The store is the release that pairs with the spinners' loads;
	// every flush above is ordered before it.
	p.patched.Store(true)
}
