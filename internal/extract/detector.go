package extract

// ChangeDetector remembers the last accepted fragment and rejects exact repeats.
// It is the only de-duplication boundary: parsing and publishing run only when
// Accept returns true.
//
// Not safe for concurrent use; the coordinator's loop goroutine owns it.
type ChangeDetector struct {
	last string
	has  bool
}

// Accept records candidate and reports whether it differs from the last accepted value
func (d *ChangeDetector) Accept(candidate string) bool {
	if d.has && d.last == candidate {
		return false
	}
	d.last = candidate
	d.has = true
	return true
}

// Reset forgets the last accepted value so the next candidate is always new
func (d *ChangeDetector) Reset() {
	d.last = ""
	d.has = false
}
