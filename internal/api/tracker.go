package api

import (
	"sync"
	"time"
)

// RunStatus is the externally visible progress of one run.
type RunStatus struct {
	RunID     string    `json:"run_id"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Records   int       `json:"records"`
	Error     string    `json:"error,omitempty"`
}

// Tracker keeps the status of runs started by this process.
type Tracker struct {
	mu     sync.RWMutex
	now    func() time.Time
	runs   map[string]*RunStatus
	latest string
}

// NewTracker creates an empty Tracker. A nil now uses time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now, runs: make(map[string]*RunStatus)}
}

// Record sets the state of runID, registering the run on first sight.
func (t *Tracker) Record(runID, state string) {
	if runID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	st, ok := t.runs[runID]
	if !ok {
		st = &RunStatus{RunID: runID, StartedAt: now}
		t.runs[runID] = st
		t.latest = runID
	}
	st.State = state
	st.UpdatedAt = now
}

// Finish stores the outcome of a completed run.
func (t *Tracker) Finish(runID string, records int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.runs[runID]
	if !ok {
		return
	}
	st.Records = records
	st.UpdatedAt = t.now()
	if err != nil {
		st.Error = err.Error()
	}
}

// Get returns a copy of the status for runID.
func (t *Tracker) Get(runID string) (RunStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.runs[runID]
	if !ok {
		return RunStatus{}, false
	}
	return *st, true
}

// Latest returns the most recently registered run.
func (t *Tracker) Latest() (RunStatus, bool) {
	t.mu.RLock()
	id := t.latest
	t.mu.RUnlock()
	if id == "" {
		return RunStatus{}, false
	}
	return t.Get(id)
}
