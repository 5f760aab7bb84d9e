package progress

import (
	"sync"
	"time"
)

const defaultWindow = 5 * time.Second

type sample struct {
	t     time.Time
	bytes int64
}

// Tracker turns a series of byte counts into a speed and ETA averaged over a sliding window.
type Tracker struct {
	mu      sync.Mutex
	window  time.Duration
	start   time.Time
	history []sample
}

func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = defaultWindow
	}

	return &Tracker{window: window, start: time.Now()}
}

// Observe records completed bytes at time now and returns the resulting snapshot.
func (t *Tracker) Observe(now time.Time, completed, total int64, active int) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.history = append(t.history, sample{t: now, bytes: completed})

	cutoff := now.Add(-t.window)
	for len(t.history) > 1 && t.history[0].t.Before(cutoff) {
		t.history = t.history[1:]
	}

	var speedBPS int64

	if len(t.history) >= 2 {
		oldest := t.history[0]

		elapsed := now.Sub(oldest.t).Seconds()
		if elapsed > 0 && completed > oldest.bytes {
			speedBPS = int64(float64(completed-oldest.bytes) / elapsed)
		}
	}

	var eta time.Duration

	if speedBPS > 0 && total > 0 {
		if remaining := total - completed; remaining > 0 {
			eta = time.Duration(float64(remaining) / float64(speedBPS) * float64(time.Second))
		}
	}

	return Snapshot{
		BytesCompleted: completed,
		BytesTotal:     total,
		ActiveFetchers: active,
		SpeedBPS:       speedBPS,
		ETA:            eta,
		Elapsed:        now.Sub(t.start),
	}
}
