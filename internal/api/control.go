package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/sheetprompt/internal/config"
	"github.com/kalambet/sheetprompt/internal/generation"
	"github.com/kalambet/sheetprompt/internal/scheduler"
	"github.com/kalambet/sheetprompt/internal/session"
	"github.com/kalambet/sheetprompt/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Controller is the session surface exposed over HTTP and MCP;
// *session.Session satisfies it.
type Controller interface {
	Import(ctx context.Context, path string) (string, error)
	Save(path string) (int, error)
	Cancel() bool
	Status() session.Status
	Settings() session.Settings
	SetRateLimit(raw string) (int, error)
	SetResponseLimit(raw string) (int, error)
	SetModel(name string) error
	SetMode(raw string) error
	ChangeAPIKey(key string) error
	Models(ctx context.Context) ([]generation.Model, error)
	History(limit int) ([]storage.Run, error)
}

type Deps struct {
	Session Controller
	Token   string
	// RunContext bounds runs started through the API. Runs outlive the
	// request that started them; nil means context.Background.
	RunContext context.Context
}

func (d Deps) runContext() context.Context {
	if d.RunContext != nil {
		return d.RunContext
	}
	return context.Background()
}

type pathRequest struct {
	Path string `json:"path"`
}

type valueRequest struct {
	Value json.RawMessage `json:"value"`
}

// NewHandler returns the HTTP control API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/v1/status", handleStatus(deps))
		r.Post("/v1/runs", handleStartRun(deps))
		r.Post("/v1/runs/cancel", handleCancelRun(deps))
		r.Post("/v1/save", handleSave(deps))
		r.Get("/v1/settings", handleGetSettings(deps))
		r.Put("/v1/settings/{name}", handlePutSetting(deps))
		r.Get("/v1/models", handleModels(deps))
		r.Get("/v1/history", handleHistory(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Session.Status())
	}
}

func handleStartRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pathRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Path) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "path is required")
			return
		}

		id, err := deps.Session.Import(deps.runContext(), req.Path)
		switch {
		case errors.Is(err, scheduler.ErrAlreadyRunning):
			httpError(w, http.StatusConflict, "conflict_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "loading %s: %v", req.Path, err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id})
	}
}

func handleCancelRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"cancelled": deps.Session.Cancel()})
	}
}

func handleSave(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pathRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Path) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "path is required")
			return
		}

		n, err := deps.Session.Save(req.Path)
		switch {
		case errors.Is(err, session.ErrNoResponses):
			httpError(w, http.StatusConflict, "conflict_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "saving responses: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"path": req.Path, "rows": n})
	}
}

func handleGetSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Session.Settings())
	}
}

func handlePutSetting(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req valueRequest
		if !decodeBody(w, r, &req) {
			return
		}
		value := rawValue(req.Value)

		var err error
		switch name := chi.URLParam(r, "name"); name {
		case "rate-limit":
			_, err = deps.Session.SetRateLimit(value)
		case "response-limit":
			_, err = deps.Session.SetResponseLimit(value)
		case "model":
			err = deps.Session.SetModel(value)
		case "mode":
			err = deps.Session.SetMode(value)
		case "api-key":
			err = deps.Session.ChangeAPIKey(value)
		default:
			httpError(w, http.StatusNotFound, "not_found_error", "unknown setting %q", name)
			return
		}
		if errors.Is(err, config.ErrInvalidValue) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}

		writeJSON(w, http.StatusOK, deps.Session.Settings())
	}
}

func handleModels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := deps.Session.Models(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to list models: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, generation.ModelList{Object: "list", Data: models})
	}
}

type runSummary struct {
	ID         string `json:"id"`
	Source     string `json:"source,omitempty"`
	Status     string `json:"status"`
	Mode       string `json:"mode"`
	Model      string `json:"model"`
	RateLimit  int    `json:"rate_limit"`
	Total      int    `json:"total"`
	Completed  int    `json:"completed"`
	Error      string `json:"error,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

func summarizeRuns(runs []storage.Run) []runSummary {
	out := make([]runSummary, len(runs))
	for i, run := range runs {
		out[i] = runSummary{
			ID:         run.ID,
			Source:     run.Source,
			Status:     run.Status,
			Mode:       run.Mode,
			Model:      run.Model,
			RateLimit:  run.RateLimit,
			Total:      run.Total,
			Completed:  run.Completed,
			Error:      run.Error,
			OutputPath: run.OutputPath,
			StartedAt:  run.StartedAt.Format(time.RFC3339),
		}
		if !run.FinishedAt.IsZero() {
			out[i].FinishedAt = run.FinishedAt.Format(time.RFC3339)
		}
	}
	return out
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			limit = n
		}

		runs, err := deps.Session.History(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list runs: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, summarizeRuns(runs))
	}
}

// rawValue accepts either a JSON string or a bare JSON literal such as 7.
func rawValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
