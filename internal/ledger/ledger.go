// Package ledger records which byte ranges of a destination file are durably written.
package ledger

import (
	"sort"
	"sync"
)

// Ledger is a concurrency-safe set of committed byte spans kept sorted and merged.
type Ledger struct {
	mu      sync.RWMutex
	spans   []Span
	covered int64
}

// New creates a ledger seeded with spans, typically loaded from the state store.
func New(spans ...Span) *Ledger {
	merged := Normalize(spans)

	return &Ledger{spans: merged, covered: Total(merged)}
}

// Add marks [start, end) as committed. Empty and already covered ranges are no-ops.
func (l *Ledger) Add(start, end int64) {
	if end <= start {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// first span whose End reaches start
	i := sort.Search(len(l.spans), func(k int) bool { return l.spans[k].End >= start })

	// one past the last span whose Start is within reach of end
	j := i
	for j < len(l.spans) && l.spans[j].Start <= end {
		j++
	}

	if i == j {
		l.spans = append(l.spans, Span{})
		copy(l.spans[i+1:], l.spans[i:])
		l.spans[i] = Span{Start: start, End: end}
		l.covered += end - start

		return
	}

	merged := Span{Start: min(start, l.spans[i].Start), End: max(end, l.spans[j-1].End)}

	var removed int64
	for _, s := range l.spans[i:j] {
		removed += s.Len()
	}

	l.spans[i] = merged
	l.spans = append(l.spans[:i+1], l.spans[j:]...)
	l.covered += merged.Len() - removed
}

// Spans returns a copy of the committed spans in ascending order.
func (l *Ledger) Spans() []Span {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Span, len(l.spans))
	copy(out, l.spans)

	return out
}

// Covered returns the number of committed bytes.
func (l *Ledger) Covered() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.covered
}

// Gaps returns the uncommitted parts of [0, size).
func (l *Ledger) Gaps(size int64) []Span {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Invert(l.spans, size)
}

// Complete reports whether every byte of [0, size) is committed.
func (l *Ledger) Complete(size int64) bool {
	if size < 0 {
		return false
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if size == 0 {
		return true
	}

	return len(l.spans) > 0 && l.spans[0].Start <= 0 && l.spans[0].End >= size
}
