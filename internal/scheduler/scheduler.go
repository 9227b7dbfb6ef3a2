package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/sheetprompt/internal/clock"
	"github.com/kalambet/sheetprompt/internal/generation"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is in progress.
	ErrAlreadyRunning = errors.New("a run is already in progress")
	// ErrCancelled is recorded as the failure of a run stopped by Cancel or
	// by its context.
	ErrCancelled = errors.New("run cancelled")
)

// Generator performs one text-generation call.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (string, error)
}

// Scheduler drives prompts through a Generator strictly one at a time,
// pausing 60/rate seconds after each successful call. A Scheduler holds at
// most one run; starting a new run discards the previous run's results.
type Scheduler struct {
	gen       Generator
	clock     clock.Clock
	logger    *slog.Logger
	observers []Observer

	mu  sync.Mutex
	cur *run
}

type run struct {
	id         string
	opts       Options
	queue      []string
	results    []string
	state      State
	startedAt  time.Time
	finishedAt time.Time
	err        error
	failedAt   int
	cancel     context.CancelFunc
	done       chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock used for pacing and timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithObserver registers an observer for run events.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, o) }
}

// New creates an idle Scheduler.
func New(gen Generator, opts ...Option) *Scheduler {
	s := &Scheduler{
		gen:    gen,
		clock:  clock.Real{},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start begins processing queue in order and returns the new run's ID.
// The run lives until it completes, fails, is cancelled, or ctx ends.
// An empty queue completes immediately.
func (s *Scheduler) Start(ctx context.Context, queue []string, opts Options) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	if opts.Mode == "" {
		opts.Mode = ModeSingle
	}

	s.mu.Lock()
	if s.cur != nil && s.cur.state == Running {
		s.mu.Unlock()
		return "", ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		id:        uuid.New().String(),
		opts:      opts,
		queue:     append([]string(nil), queue...),
		results:   make([]string, 0, len(queue)),
		state:     Running,
		startedAt: s.clock.Now(),
		failedAt:  -1,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.cur = r
	s.mu.Unlock()

	s.logger.Info("run started",
		"run_id", r.id,
		"total", len(r.queue),
		"mode", string(opts.Mode),
		"model", opts.Model,
		"rate_limit", opts.RateLimit,
		"interval", opts.Interval(),
	)
	s.emit(Event{Kind: EventStarted, RunID: r.id, Total: len(r.queue), Options: opts, At: r.startedAt})

	if len(r.queue) == 0 {
		s.complete(r)
		cancel()
		close(r.done)
		return r.id, nil
	}

	go s.loop(runCtx, r)
	return r.id, nil
}

func (s *Scheduler) loop(ctx context.Context, r *run) {
	defer close(r.done)
	defer r.cancel()

	interval := r.opts.Interval()
	for i, prompt := range r.queue {
		if ctx.Err() != nil {
			s.fail(r, i, ErrCancelled)
			return
		}

		req := BuildRequest(r.opts, r.queue, i)
		s.logger.Debug("dispatching request", "run_id", r.id, "index", i, "chat", req.IsChat())

		text, err := s.gen.Generate(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				err = ErrCancelled
			}
			s.fail(r, i, err)
			return
		}

		text = strings.TrimSpace(text)
		s.mu.Lock()
		r.results = append(r.results, text)
		s.mu.Unlock()
		s.emit(Event{Kind: EventResult, RunID: r.id, Index: i, Total: len(r.queue), Prompt: prompt, Response: text, At: s.clock.Now()})

		if i == len(r.queue)-1 {
			break
		}
		select {
		case <-ctx.Done():
			s.fail(r, i+1, ErrCancelled)
			return
		case <-s.clock.After(interval):
		}
	}

	s.complete(r)
}

func (s *Scheduler) complete(r *run) {
	now := s.clock.Now()
	s.mu.Lock()
	r.state = Completed
	r.finishedAt = now
	done := len(r.results)
	s.mu.Unlock()

	s.logger.Info("run completed", "run_id", r.id, "responses", done, "elapsed", now.Sub(r.startedAt))
	s.emit(Event{Kind: EventFinished, RunID: r.id, Index: done, Total: len(r.queue), At: now})
}

func (s *Scheduler) fail(r *run, index int, err error) {
	now := s.clock.Now()
	s.mu.Lock()
	r.state = Failed
	r.finishedAt = now
	r.err = err
	r.failedAt = index
	s.mu.Unlock()

	s.logger.Warn("run failed", "run_id", r.id, "index", index, "error", err)
	s.emit(Event{Kind: EventFailed, RunID: r.id, Index: index, Total: len(r.queue), Err: err, At: now})
}

func (s *Scheduler) emit(e Event) {
	for _, o := range s.observers {
		o.OnEvent(e)
	}
}

// Snapshot returns the current run's progress. With no run it reports Idle.
func (s *Scheduler) Snapshot() Snapshot {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.cur
	if r == nil {
		return Snapshot{State: Idle, Now: now, FailedIndex: -1}
	}
	return Snapshot{
		RunID:       r.id,
		State:       r.state,
		Options:     r.opts,
		Requests:    append([]string(nil), r.queue...),
		Responses:   append([]string(nil), r.results...),
		StartedAt:   r.startedAt,
		FinishedAt:  r.finishedAt,
		Now:         now,
		Err:         r.err,
		FailedIndex: r.failedAt,
	}
}

// Cancel stops the current run. It is a no-op when nothing is running.
// The run reports Failed with ErrCancelled once its loop observes the stop.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || s.cur.state != Running {
		return false
	}
	s.cur.cancel()
	return true
}

// Done returns a channel closed when the current run ends. With no run the
// channel is already closed.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.cur.done
}

// Wait blocks until the current run ends or ctx is done, then returns the
// final snapshot.
func (s *Scheduler) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-s.Done():
		return s.Snapshot(), nil
	case <-ctx.Done():
		return s.Snapshot(), fmt.Errorf("waiting for run: %w", ctx.Err())
	}
}
