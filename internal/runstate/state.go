package runstate

import (
	"sync"
	"time"
)

// PassSummary describes the most recent completed pass.
type PassSummary struct {
	RunID         string    `json:"runId"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	Contacts      int       `json:"contacts"`
	Suppressed    int       `json:"suppressed"`
	Eligible      int       `json:"eligible"`
	Batches       int       `json:"batches"`
	Sent          int       `json:"sent"`
	Failed        int       `json:"failed"`
	Skipped       int       `json:"skipped"`
	WriteFailures int       `json:"writeFailures"`
	Marked        int       `json:"marked"`
	Interrupted   bool      `json:"interrupted"`
}

// Snapshot is a point-in-time copy of RunState.
type Snapshot struct {
	InProgress    bool         `json:"inProgress"`
	Reconciling   bool         `json:"reconciling"`
	CurrentRunID  string       `json:"currentRunId,omitempty"`
	LastRunDate   string       `json:"lastRunDate,omitempty"`
	LastReconcile time.Time    `json:"lastReconcile,omitempty"`
	LastPass      *PassSummary `json:"lastPass,omitempty"`
}

// RunState is the process-wide record shared by the poll loop, the
// reconcile loop and the status endpoint.
type RunState struct {
	mu            sync.Mutex
	inProgress    bool
	reconciling   bool
	currentRunID  string
	lastRunDate   string
	lastReconcile time.Time
	lastPass      *PassSummary
}

func New() *RunState {
	return &RunState{}
}

// TryBegin marks a pass as running. It returns false when a pass or a
// timed reconcile already is.
func (s *RunState) TryBegin(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inProgress || s.reconciling {
		return false
	}
	s.inProgress = true
	s.currentRunID = runID
	return true
}

// Finish clears the running flag. summary may be nil when the pass aborted.
func (s *RunState) Finish(summary *PassSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inProgress = false
	s.currentRunID = ""
	if summary != nil {
		copied := *summary
		s.lastPass = &copied
	}
}

// TryBeginReconcile claims the idle state for a timed reconcile. It returns
// false while a pass or another timed reconcile holds it.
func (s *RunState) TryBeginReconcile() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inProgress || s.reconciling {
		return false
	}
	s.reconciling = true
	return true
}

func (s *RunState) FinishReconcile() {
	s.mu.Lock()
	s.reconciling = false
	s.mu.Unlock()
}

func (s *RunState) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inProgress
}

// MarkRunDate records the calendar day (YYYY-MM-DD) of a completed run.
func (s *RunState) MarkRunDate(day string) {
	s.mu.Lock()
	s.lastRunDate = day
	s.mu.Unlock()
}

func (s *RunState) RanOn(day string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunDate != "" && s.lastRunDate == day
}

func (s *RunState) MarkReconciled(at time.Time) {
	s.mu.Lock()
	s.lastReconcile = at
	s.mu.Unlock()
}

func (s *RunState) LastReconcile() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReconcile
}

func (s *RunState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		InProgress:    s.inProgress,
		Reconciling:   s.reconciling,
		CurrentRunID:  s.currentRunID,
		LastRunDate:   s.lastRunDate,
		LastReconcile: s.lastReconcile,
	}
	if s.lastPass != nil {
		copied := *s.lastPass
		snap.LastPass = &copied
	}
	return snap
}
