package chunk

// StealDecision names the chunk to split and where its upper half begins.
// The thief takes [SplitAt, End) and the victim keeps [Pos, SplitAt).
type StealDecision struct {
	Victim  int
	Pos     int64
	End     int64
	SplitAt int64
}

// PlanSteal picks the claimed chunk with the largest remaining span above floor and halves it.
// Equal spans go to the chunk that has made no progress for longest, then to the lowest id.
// Unbounded chunks are never split.
func PlanSteal(views []View, floor int64) (StealDecision, bool) {
	best := -1

	for i, v := range views {
		if v.Owner <= Unclaimed || v.End == Unbounded {
			continue
		}

		rem := v.Remaining()
		if rem <= floor || rem < 2 {
			continue
		}

		if best < 0 || better(v, views[best]) {
			best = i
		}
	}

	if best < 0 {
		return StealDecision{}, false
	}

	v := views[best]

	return StealDecision{
		Victim:  v.ID,
		Pos:     v.Pos,
		End:     v.End,
		SplitAt: v.Pos + v.Remaining()/2,
	}, true
}

func better(a, b View) bool {
	ra, rb := a.Remaining(), b.Remaining()
	if ra != rb {
		return ra > rb
	}

	if !a.LastProgress.Equal(b.LastProgress) {
		return a.LastProgress.Before(b.LastProgress)
	}

	return a.ID < b.ID
}

// SpeculationInput is the scheduler state the speculation policy looks at.
type SpeculationInput struct {
	SizeKnown      bool
	IdleBase       int
	RunningSpec    int
	MaxSpeculative int
	Threshold      int64
	Views          []View
	Floor          int64
}

// ShouldSpeculate reports whether one more speculative fetcher should be started.
// While the size is unknown a single prober is allowed. Otherwise every base fetcher must be
// busy and some steal candidate must exceed the threshold.
func ShouldSpeculate(in SpeculationInput) bool {
	if in.RunningSpec >= in.MaxSpeculative {
		return false
	}

	if !in.SizeKnown {
		return in.RunningSpec == 0
	}

	if in.IdleBase > 0 {
		return false
	}

	d, ok := PlanSteal(in.Views, in.Floor)
	if !ok {
		return false
	}

	return d.End-d.Pos > in.Threshold
}
