package twin

// ring is an append-only log that keeps the most recent limit entries.
// A limit of zero keeps everything.
type ring struct {
	buf   []HistoryEntry
	start int
	limit int
}

func newRing(limit int) *ring {
	if limit < 0 {
		limit = 0
	}
	return &ring{limit: limit}
}

func (r *ring) push(e HistoryEntry) {
	if r.limit == 0 || len(r.buf) < r.limit {
		r.buf = append(r.buf, e)
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % r.limit
}

func (r *ring) len() int { return len(r.buf) }

// entries returns the retained entries oldest first.
func (r *ring) entries() []HistoryEntry {
	out := make([]HistoryEntry, 0, len(r.buf))
	out = append(out, r.buf[r.start:]...)
	out = append(out, r.buf[:r.start]...)
	return out
}
