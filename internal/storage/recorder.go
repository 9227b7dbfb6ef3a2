package storage

import (
	"log/slog"

	"github.com/kalambet/sheetprompt/internal/scheduler"
)

// Recorder archives scheduler runs as they progress. Storage failures are
// logged and never interrupt the run.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// OnEvent implements scheduler.Observer.
func (r *Recorder) OnEvent(e scheduler.Event) {
	var err error
	switch e.Kind {
	case scheduler.EventStarted:
		err = r.store.CreateRun(Run{
			ID:            e.RunID,
			Source:        e.Options.Source,
			Mode:          string(e.Options.Mode),
			Model:         e.Options.Model,
			RateLimit:     e.Options.RateLimit,
			ResponseLimit: e.Options.ResponseLimit,
			Total:         e.Total,
			StartedAt:     e.At,
		})
	case scheduler.EventResult:
		err = r.store.AppendResult(Result{
			RunID:     e.RunID,
			Index:     e.Index,
			Request:   e.Prompt,
			Response:  e.Response,
			CreatedAt: e.At,
		})
	case scheduler.EventFinished:
		err = r.store.FinishRun(e.RunID, StatusCompleted, "", e.At)
	case scheduler.EventFailed:
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		err = r.store.FinishRun(e.RunID, StatusFailed, msg, e.At)
	}
	if err != nil {
		r.logger.Warn("recording run history", "run_id", e.RunID, "event", string(e.Kind), "error", err)
	}
}
