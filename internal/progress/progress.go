package progress

import (
	"fmt"
	"time"
)

// Snapshot is a point-in-time view of a transfer. BytesTotal is -1 while the size is unknown.
type Snapshot struct {
	BytesCompleted int64
	BytesTotal     int64
	ActiveFetchers int
	SpeedBPS       int64
	ETA            time.Duration
	Elapsed        time.Duration
}

func (s Snapshot) GetPercentage() float64 {
	if s.BytesTotal <= 0 {
		return 0
	}

	if s.BytesCompleted >= s.BytesTotal {
		return 100
	}

	return float64(s.BytesCompleted) / float64(s.BytesTotal) * 100
}

func (s Snapshot) GetETA() string {
	if s.ETA <= 0 {
		return "--"
	}

	return s.ETA.Round(time.Second).String()
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%d/%d bytes (%.1f%%) %d B/s eta %s fetchers %d",
		s.BytesCompleted, s.BytesTotal, s.GetPercentage(), s.SpeedBPS, s.GetETA(), s.ActiveFetchers)
}

// Sink receives snapshots. Implementations must not block for long.
type Sink interface {
	Report(Snapshot)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Snapshot)

func (f SinkFunc) Report(s Snapshot) { f(s) }

// Discard ignores every snapshot.
var Discard Sink = SinkFunc(func(Snapshot) {})
