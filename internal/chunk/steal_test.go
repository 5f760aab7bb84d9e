package chunk_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/fastdl/internal/chunk"
	"github.com/NamanBalaji/fastdl/internal/ledger"
)

const mb = int64(1 << 20)

func TestTargetSize(t *testing.T) {
	assert.Equal(t, 25*mb, chunk.TargetSize(100*mb, 4, 10*mb))
	assert.Equal(t, 10*mb, chunk.TargetSize(20*mb, 4, 10*mb))
	assert.Equal(t, int64(34), chunk.TargetSize(100, 3, 1))
	assert.Equal(t, int64(100), chunk.TargetSize(100, 0, 1))
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name    string
		gaps    []ledger.Span
		workers int
		floor   int64
		want    []ledger.Span
	}{
		{
			name:    "even split",
			gaps:    []ledger.Span{{Start: 0, End: 100 * mb}},
			workers: 4,
			floor:   10 * mb,
			want: []ledger.Span{
				{Start: 0, End: 25 * mb},
				{Start: 25 * mb, End: 50 * mb},
				{Start: 50 * mb, End: 75 * mb},
				{Start: 75 * mb, End: 100 * mb},
			},
		},
		{
			name:    "floor wins over share",
			gaps:    []ledger.Span{{Start: 0, End: 25}},
			workers: 8,
			floor:   10,
			want:    []ledger.Span{{Start: 0, End: 10}, {Start: 10, End: 25}},
		},
		{
			name:    "small gaps stay whole",
			gaps:    []ledger.Span{{Start: 0, End: 5}, {Start: 50, End: 53}, {Start: 90, End: 100}},
			workers: 2,
			floor:   1,
			want: []ledger.Span{
				{Start: 0, End: 5}, {Start: 50, End: 53}, {Start: 90, End: 99}, {Start: 99, End: 100},
			},
		},
		{
			name:    "no gaps",
			gaps:    nil,
			workers: 4,
			floor:   1,
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chunk.Partition(tt.gaps, tt.workers, tt.floor)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, ledger.Total(tt.gaps), ledger.Total(got))
		})
	}

	_, err := chunk.Partition(nil, 1, 0)
	assert.ErrorIs(t, err, chunk.ErrInvalidChunkSize)
}

func TestPlanSteal(t *testing.T) {
	now := time.Now()
	older := now.Add(-time.Second)

	tests := []struct {
		name  string
		views []chunk.View
		floor int64
		want  chunk.StealDecision
		ok    bool
	}{
		{
			name:  "nothing to steal",
			views: nil,
			floor: 1,
		},
		{
			name: "largest remaining wins",
			views: []chunk.View{
				{ID: 0, Owner: 1, Pos: 0, End: 100, LastProgress: now},
				{ID: 1, Owner: 2, Pos: 100, End: 300, LastProgress: now},
				{ID: 2, Owner: 3, Pos: 300, End: 350, LastProgress: now},
			},
			floor: 10,
			want:  chunk.StealDecision{Victim: 1, Pos: 100, End: 300, SplitAt: 200},
			ok:    true,
		},
		{
			name: "tie goes to the stalled chunk",
			views: []chunk.View{
				{ID: 0, Owner: 1, Pos: 0, End: 100, LastProgress: now},
				{ID: 1, Owner: 2, Pos: 100, End: 200, LastProgress: older},
			},
			floor: 10,
			want:  chunk.StealDecision{Victim: 1, Pos: 100, End: 200, SplitAt: 150},
			ok:    true,
		},
		{
			name: "remaining at floor is not stolen",
			views: []chunk.View{
				{ID: 0, Owner: 1, Pos: 0, End: 10, LastProgress: now},
			},
			floor: 10,
		},
		{
			name: "unclaimed completed and unbounded chunks are skipped",
			views: []chunk.View{
				{ID: 0, Owner: chunk.Unclaimed, Pos: 0, End: 1000},
				{ID: 1, Owner: chunk.Completed, Pos: 1000, End: 1000},
				{ID: 2, Owner: 4, Pos: 1000, End: chunk.Unbounded},
			},
			floor: 1,
		},
		{
			name: "odd remaining gives the extra byte to the thief",
			views: []chunk.View{
				{ID: 5, Owner: 1, Pos: 10, End: 15, LastProgress: now},
			},
			floor: 1,
			want:  chunk.StealDecision{Victim: 5, Pos: 10, End: 15, SplitAt: 12},
			ok:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := chunk.PlanSteal(tt.views, tt.floor)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShouldSpeculate(t *testing.T) {
	busy := []chunk.View{{ID: 0, Owner: 1, Pos: 0, End: 100 * mb, LastProgress: time.Now()}}

	tests := []struct {
		name string
		in   chunk.SpeculationInput
		want bool
	}{
		{"probe while size unknown", chunk.SpeculationInput{MaxSpeculative: 3}, true},
		{"single probe only", chunk.SpeculationInput{MaxSpeculative: 3, RunningSpec: 1}, false},
		{"disabled", chunk.SpeculationInput{MaxSpeculative: 0}, false},
		{"idle base worker can steal instead", chunk.SpeculationInput{
			SizeKnown: true, IdleBase: 1, MaxSpeculative: 3, Threshold: mb, Views: busy, Floor: mb,
		}, false},
		{"large backlog with all workers busy", chunk.SpeculationInput{
			SizeKnown: true, MaxSpeculative: 3, Threshold: 16 * mb, Views: busy, Floor: mb,
		}, true},
		{"backlog below threshold", chunk.SpeculationInput{
			SizeKnown: true, MaxSpeculative: 3, Threshold: 200 * mb, Views: busy, Floor: mb,
		}, false},
		{"cap reached", chunk.SpeculationInput{
			SizeKnown: true, MaxSpeculative: 2, RunningSpec: 2, Threshold: mb, Views: busy, Floor: mb,
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chunk.ShouldSpeculate(tt.in))
		})
	}
}
