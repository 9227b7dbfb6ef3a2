// Package session holds the state behind every user-facing action: current
// settings, the single scheduler and its last results, and the run history.
// The CLI, the HTTP API, the MCP tools and the dashboard all drive a Session.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kalambet/sheetprompt/internal/clock"
	"github.com/kalambet/sheetprompt/internal/config"
	"github.com/kalambet/sheetprompt/internal/generation"
	"github.com/kalambet/sheetprompt/internal/scheduler"
	"github.com/kalambet/sheetprompt/internal/sheet"
	"github.com/kalambet/sheetprompt/internal/storage"
)

// ErrNoResponses is returned by Save when the last run produced nothing.
var ErrNoResponses = sheet.ErrNothingToSave

// Client is the generation backend; *generation.Client satisfies it.
type Client interface {
	scheduler.Generator
	SetAPIKey(key string)
	ListModels(ctx context.Context) ([]generation.Model, error)
}

// History is the run archive; *storage.Store satisfies it.
type History interface {
	ListRuns(limit int) ([]storage.Run, error)
	GetRun(id string) (storage.Run, error)
	GetResults(runID string) ([]storage.Result, error)
	SetOutputPath(id, path string) error
}

// Settings are the values captured by the next run.
type Settings struct {
	RateLimit     int            `json:"rate_limit"`
	ResponseLimit int            `json:"response_limit"`
	Model         string         `json:"model"`
	Mode          scheduler.Mode `json:"mode"`
	SystemPrompt  string         `json:"system_prompt"`
}

// Deps bundles what New needs. History, Clock and Logger are optional.
type Deps struct {
	Config    config.Config
	Client    Client
	History   History
	Clock     clock.Clock
	Logger    *slog.Logger
	Observers []scheduler.Observer
}

type Session struct {
	client  Client
	history History
	sched   *scheduler.Scheduler
	limits  *config.Limits
	keyFile string
	logger  *slog.Logger

	mu     sync.Mutex
	model  string
	mode   scheduler.Mode
	system string
}

func New(d Deps) *Session {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := d.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	opts := []scheduler.Option{scheduler.WithClock(clk), scheduler.WithLogger(logger)}
	for _, o := range d.Observers {
		opts = append(opts, scheduler.WithObserver(o))
	}

	mode := scheduler.ModeSingle
	if m, err := config.ParseMode(d.Config.Generation.Mode); err == nil && m == config.ModeConversation {
		mode = scheduler.ModeConversation
	}

	return &Session{
		client:  d.Client,
		history: d.History,
		sched:   scheduler.New(d.Client, opts...),
		limits:  config.NewLimits(d.Config.Pacing.RateLimit, d.Config.Pacing.ResponseLimit),
		keyFile: d.Config.Credentials.KeyFile,
		logger:  logger,
		model:   d.Config.Generation.Model,
		mode:    mode,
		system:  d.Config.Generation.SystemPrompt,
	}
}

// Settings returns the current settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Settings{
		RateLimit:     s.limits.RateLimit(),
		ResponseLimit: s.limits.ResponseLimit(),
		Model:         s.model,
		Mode:          s.mode,
		SystemPrompt:  s.system,
	}
}

// Import loads the Requests column of the workbook at path and starts a run
// over it. A load failure leaves the current run state untouched. ctx bounds
// the lifetime of the run, not just the call.
func (s *Session) Import(ctx context.Context, path string) (string, error) {
	prompts, err := sheet.Load(path)
	if err != nil {
		return "", err
	}
	s.logger.Info("loaded prompts", "path", path, "count", len(prompts))
	return s.Start(ctx, prompts, path)
}

// Start begins a run over prompts with the current settings.
func (s *Session) Start(ctx context.Context, prompts []string, source string) (string, error) {
	set := s.Settings()
	return s.sched.Start(ctx, prompts, scheduler.Options{
		RateLimit:     set.RateLimit,
		ResponseLimit: set.ResponseLimit,
		Mode:          set.Mode,
		Model:         set.Model,
		SystemPrompt:  set.SystemPrompt,
		Source:        source,
	})
}

// Save writes the completed pairs of the current or last run to path.
// Saving does not change the run state.
func (s *Session) Save(path string) (int, error) {
	snap := s.sched.Snapshot()
	if len(snap.Responses) == 0 {
		return 0, ErrNoResponses
	}
	if err := sheet.Save(path, snap.Requests, snap.Responses); err != nil {
		return 0, err
	}

	if s.history != nil && snap.RunID != "" {
		if err := s.history.SetOutputPath(snap.RunID, path); err != nil {
			s.logger.Warn("recording output path", "run_id", snap.RunID, "error", err)
		}
	}
	s.logger.Info("saved responses", "path", path, "rows", len(snap.Responses))
	return len(snap.Responses), nil
}

// SetRateLimit parses and applies a requests-per-minute limit. Invalid input
// keeps the previous value, which is returned alongside the error.
func (s *Session) SetRateLimit(raw string) (int, error) {
	return s.limits.SetRateLimit(raw)
}

// SetResponseLimit parses and applies the per-response token limit.
func (s *Session) SetResponseLimit(raw string) (int, error) {
	return s.limits.SetResponseLimit(raw)
}

func (s *Session) SetModel(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &config.ValidationError{Field: "model", Value: name, Reason: "must not be empty"}
	}
	s.mu.Lock()
	s.model = name
	s.mu.Unlock()
	return nil
}

func (s *Session) SetMode(raw string) error {
	m, err := config.ParseMode(raw)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.mode = scheduler.Mode(m)
	s.mu.Unlock()
	return nil
}

// ChangeAPIKey persists key to the credential file and uses it for
// subsequent calls.
func (s *Session) ChangeAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if err := config.WriteAPIKey(s.keyFile, key); err != nil {
		return err
	}
	s.client.SetAPIKey(key)
	s.logger.Info("API key updated", "path", s.keyFile)
	return nil
}

// Snapshot returns the scheduler's view of the current run.
func (s *Session) Snapshot() scheduler.Snapshot {
	return s.sched.Snapshot()
}

// Cancel stops a run in progress. It reports whether a run was stopped.
func (s *Session) Cancel() bool {
	return s.sched.Cancel()
}

// Done is closed when the current run ends.
func (s *Session) Done() <-chan struct{} {
	return s.sched.Done()
}

// Wait blocks until the current run ends or ctx is done.
func (s *Session) Wait(ctx context.Context) (scheduler.Snapshot, error) {
	return s.sched.Wait(ctx)
}

// Models lists the models available to the configured key.
func (s *Session) Models(ctx context.Context) ([]generation.Model, error) {
	return s.client.ListModels(ctx)
}

// History returns recent archived runs, newest first.
func (s *Session) History(limit int) ([]storage.Run, error) {
	if s.history == nil {
		return []storage.Run{}, nil
	}
	return s.history.ListRuns(limit)
}

// Export writes an archived run's pairs to path in the same format as Save.
func (s *Session) Export(runID, path string) (int, error) {
	if s.history == nil {
		return 0, fmt.Errorf("run %s: %w", runID, storage.ErrNotFound)
	}
	results, err := s.history.GetResults(runID)
	if err != nil {
		return 0, fmt.Errorf("run %s: %w", runID, err)
	}
	if len(results) == 0 {
		return 0, ErrNoResponses
	}

	requests := make([]string, len(results))
	responses := make([]string, len(results))
	for i, r := range results {
		requests[i] = r.Request
		responses[i] = r.Response
	}
	if err := sheet.Save(path, requests, responses); err != nil {
		return 0, err
	}
	if err := s.history.SetOutputPath(runID, path); err != nil {
		s.logger.Warn("recording output path", "run_id", runID, "error", err)
	}
	return len(results), nil
}
