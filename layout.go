package altpatch

// Span is a half-open address range.
type Span struct {
	Start uint64
	End   uint64
}

// Contains reports whether addr falls inside the span.
func (s Span) Contains(addr uint64) bool {
	return addr >= s.Start && addr < s.End
}

// Len returns the span's size in bytes.
func (s Span) Len() uint64 {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}

// Layout records where an image keeps executable code and shared data.
// Relative references into these regions survive patching: their targets
// do not move, so the reference is re-encoded for the patched location.
type Layout struct {
	Text []Span
	Data []Span
}

func (l *Layout) text(addr uint64) bool {
	for _, s := range l.Text {
		if s.Contains(addr) {
			return true
		}
	}
	return false
}

func (l *Layout) data(addr uint64) bool {
	for _, s := range l.Data {
		if s.Contains(addr) {
			return true
		}
	}
	return false
}
