package scheduler

import (
	"fmt"
	"time"
)

// State is the lifecycle state of the scheduler's current run.
type State int

const (
	Idle State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, Running, Completed, Failed} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown run state %q", text)
}

// Snapshot is a consistent copy of a run's progress. Requests and Responses
// are copies and may be retained by the caller.
type Snapshot struct {
	RunID       string
	State       State
	Options     Options
	Requests    []string
	Responses   []string
	StartedAt   time.Time
	FinishedAt  time.Time
	Now         time.Time
	Err         error
	FailedIndex int
}

// Total is the number of prompts in the run.
func (s Snapshot) Total() int { return len(s.Requests) }

// Done is the number of responses received so far.
func (s Snapshot) Done() int { return len(s.Responses) }

// Elapsed is the wall-clock time since the run started, frozen once the run ends.
func (s Snapshot) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := s.Now
	if !s.FinishedAt.IsZero() {
		end = s.FinishedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

// ErrorMessage returns the failure text, or "" when the run has not failed.
func (s Snapshot) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}
