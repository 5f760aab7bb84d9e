package cli

import (
	"github.com/google/uuid"

	"github.com/NamanBalaji/fastdl/internal/engine"
	"github.com/NamanBalaji/fastdl/internal/logger"
	"github.com/NamanBalaji/fastdl/internal/progress"
	"github.com/NamanBalaji/fastdl/internal/status"
)

// batchProgress folds the updates of concurrent transfers into a single snapshot.
type batchProgress struct {
	snaps    map[string]progress.Snapshot
	finished map[string]status.Status
}

func newBatchProgress() *batchProgress {
	return &batchProgress{
		snaps:    make(map[string]progress.Snapshot),
		finished: make(map[string]status.Status),
	}
}

// observe records u and returns the combined view. The total stays unknown while any
// transfer has not learned its size.
func (b *batchProgress) observe(u engine.Update) progress.Snapshot {
	b.snaps[u.Path] = u.Snapshot

	if u.Final {
		b.finished[u.Path] = u.Status
		logger.Infof("%s %s, %d of %d batch transfers finished", u.Path, status.String(u.Status),
			len(b.finished), len(b.snaps))
	}

	sum := progress.Snapshot{}

	for _, s := range b.snaps {
		sum.BytesCompleted += s.BytesCompleted
		sum.ActiveFetchers += s.ActiveFetchers
		sum.SpeedBPS += s.SpeedBPS
		sum.Elapsed = max(sum.Elapsed, s.Elapsed)

		if s.BytesTotal < 0 || sum.BytesTotal < 0 {
			sum.BytesTotal = -1
		} else {
			sum.BytesTotal += s.BytesTotal
		}
	}

	return sum
}

// followBatch subscribes to the engine and feeds the combined progress into sink until the
// returned stop function is called.
func followBatch(eng *engine.Engine, sink progress.Sink) func() {
	id := uuid.NewString()
	ch := make(chan engine.Update, 64)
	done := make(chan struct{})

	eng.RegisterListener(id, ch)

	go func() {
		defer close(done)

		b := newBatchProgress()

		for u := range ch {
			snap := b.observe(u)
			if sink != nil {
				sink.Report(snap)
			}
		}
	}()

	return func() {
		eng.UnregisterListener(id)
		close(ch)
		<-done
	}
}
