package types

import "sync/atomic"

// RunState holds the atomic counters the Job Runner updates as rows are
// processed and the Reporter reads to emit progress events. All fields are
// accessed through atomic operations so the Reporter can snapshot safely
// from a goroutine other than the one driving the worker pool.
type RunState struct {
	Total        int64
	Processed    atomic.Int64
	SkippedDone  atomic.Int64
	Succeeded    atomic.Int64
	NoMatch      atomic.Int64
	Failed       atomic.Int64
	Active       atomic.Int64
	Cancelling   atomic.Bool
}

// NewRunState creates a RunState for a run of the given total row count.
func NewRunState(total int64) *RunState {
	return &RunState{Total: total}
}

// RunSnapshot is an immutable point-in-time copy of a RunState, safe to
// hand to the Reporter or the Completion Adapter without further
// synchronization.
type RunSnapshot struct {
	Total       int64
	Processed   int64
	SkippedDone int64
	Succeeded   int64
	NoMatch     int64
	Failed      int64
	Active      int64
	Cancelling  bool
}

// Snapshot reads all counters into an immutable RunSnapshot.
func (s *RunState) Snapshot() RunSnapshot {
	return RunSnapshot{
		Total:       s.Total,
		Processed:   s.Processed.Load(),
		SkippedDone: s.SkippedDone.Load(),
		Succeeded:   s.Succeeded.Load(),
		NoMatch:     s.NoMatch.Load(),
		Failed:      s.Failed.Load(),
		Active:      s.Active.Load(),
		Cancelling:  s.Cancelling.Load(),
	}
}

// StopCondition names the reason the Cancel Controller collapsed onto its
// cancel token, carried only for logging.
type StopCondition string

const (
	StopSignal      StopCondition = "signal"
	StopFlagFile    StopCondition = "stop-flag"
	StopParentCtx   StopCondition = "parent-context"
)
