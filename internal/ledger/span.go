package ledger

import (
	"fmt"
	"slices"
)

// Span is the half-open byte interval [Start, End).
type Span struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func (s Span) Len() int64 {
	return s.End - s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}

// Normalize sorts spans, drops empty ones and merges any that overlap or touch.
func Normalize(spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.End > s.Start {
			out = append(out, s)
		}
	}

	slices.SortFunc(out, func(a, b Span) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})

	merged := out[:0]
	for _, s := range out {
		if n := len(merged); n > 0 && s.Start <= merged[n-1].End {
			if s.End > merged[n-1].End {
				merged[n-1].End = s.End
			}

			continue
		}

		merged = append(merged, s)
	}

	return merged
}

// Invert returns the gaps of normalized spans within [0, size).
func Invert(spans []Span, size int64) []Span {
	var gaps []Span

	var cursor int64

	for _, s := range spans {
		if s.Start >= size {
			break
		}

		if s.Start > cursor {
			gaps = append(gaps, Span{Start: cursor, End: s.Start})
		}

		if s.End > cursor {
			cursor = s.End
		}
	}

	if cursor < size {
		gaps = append(gaps, Span{Start: cursor, End: size})
	}

	return gaps
}

// Total sums the lengths of spans.
func Total(spans []Span) int64 {
	var n int64
	for _, s := range spans {
		n += s.Len()
	}

	return n
}

// Clip returns the parts of normalized spans that lie inside [0, size).
func Clip(spans []Span, size int64) []Span {
	out := make([]Span, 0, len(spans))

	for _, s := range spans {
		if s.Start >= size {
			break
		}

		if s.End > size {
			s.End = size
		}

		out = append(out, s)
	}

	return out
}
