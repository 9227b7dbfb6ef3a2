// Package progress estimates the time remaining in a scheduler run from the
// average duration of the requests completed so far.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/sheetprompt/internal/scheduler"
)

// RefreshInterval is how often Monitor recomputes the estimate.
const RefreshInterval = time.Second

// Remaining extrapolates the time left for total requests given that done
// of them took elapsed. It is zero until the first request completes.
func Remaining(elapsed time.Duration, done, total int) time.Duration {
	if done <= 0 || total <= done || elapsed <= 0 {
		return 0
	}
	perRequest := float64(elapsed) / float64(done)
	return time.Duration(perRequest * float64(total-done))
}

// Format renders d as whole hours, minutes and seconds, e.g. "1h 4m 9s".
// Fractional seconds are truncated.
func Format(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%dh %dm %ds", secs/3600, secs%3600/60, secs%60)
}

// Estimate is one reading of the estimator.
type Estimate struct {
	State     scheduler.State
	Done      int
	Total     int
	Elapsed   time.Duration
	Remaining time.Duration
}

// String renders the estimate the way it is shown to users.
func (e Estimate) String() string {
	return "Estimated Time Left: " + Format(e.Remaining)
}

// Fraction is the completed share of the run in [0, 1].
func (e Estimate) Fraction() float64 {
	if e.Total == 0 {
		if e.State == scheduler.Completed {
			return 1
		}
		return 0
	}
	return float64(e.Done) / float64(e.Total)
}

// FromSnapshot computes an estimate from a scheduler snapshot.
func FromSnapshot(s scheduler.Snapshot) Estimate {
	elapsed := s.Elapsed()
	e := Estimate{
		State:   s.State,
		Done:    s.Done(),
		Total:   s.Total(),
		Elapsed: elapsed,
	}
	if s.State == scheduler.Running {
		e.Remaining = Remaining(elapsed, e.Done, e.Total)
	}
	return e
}

// Source provides run snapshots; *scheduler.Scheduler satisfies it.
type Source interface {
	Snapshot() scheduler.Snapshot
}

// Monitor calls emit with a fresh estimate immediately and then every
// interval while the run is Running. It returns once the run has left
// Running or ctx is done. The last value emitted stays as the final reading;
// no estimate is emitted after the run ends.
func Monitor(ctx context.Context, src Source, interval time.Duration, emit func(Estimate)) {
	if interval <= 0 {
		interval = RefreshInterval
	}

	snap := src.Snapshot()
	if snap.State != scheduler.Running {
		return
	}
	emit(FromSnapshot(snap))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := src.Snapshot()
			if snap.State != scheduler.Running {
				return
			}
			emit(FromSnapshot(snap))
		}
	}
}
