package chunk

import (
	"github.com/NamanBalaji/fastdl/internal/ledger"
	"github.com/NamanBalaji/fastdl/internal/logger"
)

// TargetSize returns the initial chunk length for gap bytes spread over workers:
// an even share, but never below floor.
func TargetSize(gapBytes int64, workers int, floor int64) int64 {
	if workers < 1 {
		workers = 1
	}

	share := (gapBytes + int64(workers) - 1) / int64(workers)

	return max(share, floor, 1)
}

// Partition cuts the gaps into chunk ranges of about TargetSize bytes. A gap shorter than the
// target stays whole and the tail of a longer gap is merged into its last piece when it would
// fall below floor.
func Partition(gaps []ledger.Span, workers int, floor int64) ([]ledger.Span, error) {
	if floor <= 0 {
		return nil, ErrInvalidChunkSize
	}

	target := TargetSize(ledger.Total(gaps), workers, floor)

	logger.Debugf("Partitioning %d gaps (%d bytes) for %d workers: target=%d floor=%d",
		len(gaps), ledger.Total(gaps), workers, target, floor)

	var out []ledger.Span

	for _, gap := range gaps {
		start := gap.Start
		for start < gap.End {
			end := start + target
			if end > gap.End || gap.End-end < floor {
				end = gap.End
			}

			out = append(out, ledger.Span{Start: start, End: end})
			start = end
		}
	}

	return out, nil
}
