// Package statusapi exposes the progress of a running bring-up over HTTP:
// the current step, finished steps, warnings and Prometheus metrics.
package statusapi

import (
	"sync"
	"time"
)

// StepResult is one finished sequencer step.
type StepResult struct {
	Name    string  `json:"name"`
	Outcome string  `json:"outcome"`
	Seconds float64 `json:"seconds"`
	Error   string  `json:"error,omitempty"`
}

// Status is a point-in-time view of the run.
type Status struct {
	RunID    string       `json:"run_id"`
	Started  time.Time    `json:"started"`
	Current  string       `json:"current,omitempty"`
	Steps    []StepResult `json:"steps"`
	Warnings []string     `json:"warnings"`
	Done     bool         `json:"done"`
	Error    string       `json:"error,omitempty"`
}

// Tracker records sequencer progress. It is written by the sequencer and
// read by HTTP handlers, so every access is locked.
type Tracker struct {
	mu sync.Mutex
	st Status
}

func NewTracker(runID string) *Tracker {
	return &Tracker{st: Status{RunID: runID, Started: time.Now(), Steps: []StepResult{}, Warnings: []string{}}}
}

func (t *Tracker) StepStarted(name string) {
	t.mu.Lock()
	t.st.Current = name
	t.mu.Unlock()
}

func (t *Tracker) StepFinished(name, outcome string, d time.Duration, err error) {
	r := StepResult{Name: name, Outcome: outcome, Seconds: d.Seconds()}
	if err != nil {
		r.Error = err.Error()
	}
	t.mu.Lock()
	t.st.Steps = append(t.st.Steps, r)
	if t.st.Current == name {
		t.st.Current = ""
	}
	t.mu.Unlock()
}

func (t *Tracker) Warn(msg string) {
	t.mu.Lock()
	t.st.Warnings = append(t.st.Warnings, msg)
	t.mu.Unlock()
}

// Finish marks the run complete; err is nil on success.
func (t *Tracker) Finish(err error) {
	t.mu.Lock()
	t.st.Done = true
	t.st.Current = ""
	if err != nil {
		t.st.Error = err.Error()
	}
	t.mu.Unlock()
}

// Snapshot returns a copy safe to use without the lock.
func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.st
	s.Steps = append([]StepResult{}, t.st.Steps...)
	s.Warnings = append([]string{}, t.st.Warnings...)
	return s
}
