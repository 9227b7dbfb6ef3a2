package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/sheetprompt/internal/scheduler"
)

func TestRemaining(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		done    int
		total   int
		want    time.Duration
	}{
		{name: "nothing done", elapsed: 10 * time.Second, done: 0, total: 5, want: 0},
		{name: "linear", elapsed: 40 * time.Second, done: 2, total: 10, want: 160 * time.Second},
		{name: "all done", elapsed: time.Minute, done: 4, total: 4, want: 0},
		{name: "one left", elapsed: 90 * time.Second, done: 3, total: 4, want: 30 * time.Second},
		{name: "zero elapsed", elapsed: 0, done: 1, total: 3, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Remaining(tt.elapsed, tt.done, tt.total))
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{d: 0, want: "0h 0m 0s"},
		{d: 999 * time.Millisecond, want: "0h 0m 0s"},
		{d: 59*time.Second + 900*time.Millisecond, want: "0h 0m 59s"},
		{d: 61 * time.Second, want: "0h 1m 1s"},
		{d: 3*time.Hour + 4*time.Minute + 5*time.Second, want: "3h 4m 5s"},
		{d: 26 * time.Hour, want: "26h 0m 0s"},
		{d: -5 * time.Second, want: "0h 0m 0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.d), "Format(%s)", tt.d)
	}
}

func TestEstimateString(t *testing.T) {
	e := Estimate{Remaining: 160 * time.Second}
	assert.Equal(t, "Estimated Time Left: 0h 2m 40s", e.String())
	assert.Equal(t, "Estimated Time Left: 0h 0m 0s", Estimate{}.String())
}

func TestFromSnapshot(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	snap := scheduler.Snapshot{
		State:     scheduler.Running,
		Requests:  make([]string, 10),
		Responses: []string{"a", "b"},
		StartedAt: start,
		Now:       start.Add(40 * time.Second),
	}

	e := FromSnapshot(snap)
	assert.Equal(t, 2, e.Done)
	assert.Equal(t, 10, e.Total)
	assert.Equal(t, 40*time.Second, e.Elapsed)
	assert.Equal(t, 160*time.Second, e.Remaining)
	assert.InDelta(t, 0.2, e.Fraction(), 1e-9)

	snap.State = scheduler.Failed
	snap.FinishedAt = start.Add(50 * time.Second)
	e = FromSnapshot(snap)
	assert.Zero(t, e.Remaining)
	assert.Equal(t, 50*time.Second, e.Elapsed)
}

func TestFractionEmptyRun(t *testing.T) {
	assert.Equal(t, 1.0, Estimate{State: scheduler.Completed}.Fraction())
	assert.Equal(t, 0.0, Estimate{State: scheduler.Running}.Fraction())
}

// stepSource reports Running for a fixed number of reads, then Completed.
type stepSource struct {
	mu      sync.Mutex
	reads   int
	running int
}

func (s *stepSource) Snapshot() scheduler.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	state := scheduler.Running
	if s.reads > s.running {
		state = scheduler.Completed
	}
	return scheduler.Snapshot{State: state, Requests: []string{"a", "b"}, Responses: []string{"a"}}
}

func TestMonitorStopsWhenRunEnds(t *testing.T) {
	src := &stepSource{running: 3}
	var got []Estimate

	done := make(chan struct{})
	go func() {
		Monitor(context.Background(), src, 5*time.Millisecond, func(e Estimate) { got = append(got, e) })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Monitor did not return after the run ended")
	}
	require.Len(t, got, 3)
	for _, e := range got {
		assert.Equal(t, scheduler.Running, e.State)
	}
}

func TestMonitorIdleRunEmitsNothing(t *testing.T) {
	src := &stepSource{running: 0}
	called := false
	Monitor(context.Background(), src, time.Millisecond, func(Estimate) { called = true })
	assert.False(t, called)
}

func TestMonitorHonoursContext(t *testing.T) {
	src := &stepSource{running: 1 << 30}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Monitor(ctx, src, time.Millisecond, func(Estimate) {})
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Monitor ignored context cancellation")
	}
}
