package session

import (
	"time"

	"github.com/kalambet/sheetprompt/internal/progress"
	"github.com/kalambet/sheetprompt/internal/scheduler"
)

// Status is a presentation-ready summary of the current run.
type Status struct {
	RunID        string          `json:"run_id,omitempty"`
	State        scheduler.State `json:"state"`
	Done         int             `json:"done"`
	Total        int             `json:"total"`
	Elapsed      string          `json:"elapsed"`
	Remaining    string          `json:"remaining"`
	Estimate     string          `json:"estimate"`
	LastResponse string          `json:"last_response,omitempty"`
	Error        string          `json:"error,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// Status summarises the current run with a fresh time-left estimate.
func (s *Session) Status() Status {
	return StatusOf(s.sched.Snapshot())
}

// StatusOf converts a snapshot into a Status.
func StatusOf(snap scheduler.Snapshot) Status {
	est := progress.FromSnapshot(snap)
	st := Status{
		RunID:     snap.RunID,
		State:     snap.State,
		Done:      est.Done,
		Total:     est.Total,
		Elapsed:   progress.Format(est.Elapsed),
		Remaining: progress.Format(est.Remaining),
		Estimate:  est.String(),
		Error:     snap.ErrorMessage(),
	}
	if n := len(snap.Responses); n > 0 {
		st.LastResponse = snap.Responses[n-1]
	}
	if !snap.StartedAt.IsZero() {
		t := snap.StartedAt
		st.StartedAt = &t
	}
	if !snap.FinishedAt.IsZero() {
		t := snap.FinishedAt
		st.FinishedAt = &t
	}
	return st
}
