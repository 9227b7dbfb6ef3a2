package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kalambet/sheetprompt/internal/config"
	"github.com/kalambet/sheetprompt/internal/scheduler"
	"github.com/kalambet/sheetprompt/internal/sheet"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

// testEnv points config, data and credentials at a temp dir and captures
// status output.
func testEnv(t *testing.T) (string, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("SHEETPROMPT_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("SHEETPROMPT_KEY_FILE", filepath.Join(dir, "api_key.txt"))
	t.Setenv("SHEETPROMPT_API_KEY", "")

	var buf bytes.Buffer
	oldStderr, oldNoColor := stderr, noColor
	stderr, noColor = &buf, true
	t.Cleanup(func() { stderr, noColor = oldStderr, oldNoColor })
	return dir, &buf
}

// resetFlags restores flag defaults; cobra keeps parsed values between
// Execute calls. --no-color is owned by testEnv.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "no-color" {
			return
		}
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetOut(nil)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), err
}

func writeInput(t *testing.T, dir string, prompts ...string) string {
	t.Helper()
	responses := make([]string, len(prompts))
	for i := range responses {
		responses[i] = "-"
	}
	path := filepath.Join(dir, "input.xlsx")
	if err := sheet.Save(path, prompts, responses); err != nil {
		t.Fatalf("writing input: %v", err)
	}
	return path
}

// generationServer answers /completions from fn, which receives the prompt
// and the 0-based call number.
func generationServer(t *testing.T, fn func(prompt string, call int) (int, string)) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/completions" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Prompt string `json:"prompt"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		mu.Lock()
		n := calls
		calls++
		mu.Unlock()

		code, body := fn(req.Prompt, n)
		w.WriteHeader(code)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /v1/status": `{"run_id":"run-1","state":"running","done":2,"total":5,"elapsed":"0h 0m 40s","remaining":"0h 1m 0s","estimate":"Estimated Time Left: 0h 1m 0s"}`,
	})

	st, err := ts.client().status(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if st.State != scheduler.Running {
		t.Errorf("state = %v, want running", st.State)
	}
	if st.Done != 2 || st.Total != 5 {
		t.Errorf("progress = %d/%d, want 2/5", st.Done, st.Total)
	}
	if st.Estimate != "Estimated Time Left: 0h 1m 0s" {
		t.Errorf("estimate = %q", st.Estimate)
	}

	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
}

func TestCancelCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/runs/cancel": `{"cancelled":true}`,
	})

	cancelled, err := ts.client().cancel(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cancelled {
		t.Error("cancelled = false, want true")
	}
	if len(ts.requests) != 1 || ts.requests[0].Method != "POST" {
		t.Errorf("requests = %+v", ts.requests)
	}
}

func TestClientWithoutToken(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /v1/status": `{"state":"idle"}`,
	})
	client := ts.client()
	client.token = ""

	if _, err := client.status(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ts.requests[0].Auth; got != "" {
		t.Errorf("auth = %q, want no header", got)
	}
}

func TestDecodeJSON_ErrorStatus(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	_, err := ts.client().status(ctx)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want it to mention 404", err.Error())
	}
}

func TestServerNotReachable(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	client := ts.client()
	ts.server.Close()

	_, err := client.status(ctx)
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestRunCommand_MissingArgs(t *testing.T) {
	_, err := execute(t, "run")
	if err == nil {
		t.Fatal("expected error for missing file argument")
	}
	if !strings.Contains(err.Error(), "arg") {
		t.Errorf("error = %q, want it to mention args", err.Error())
	}
}

func TestRunHelpNamesOutputColumns(t *testing.T) {
	for _, col := range []string{sheet.ColumnRequests, sheet.ColumnResponses, sheet.ColumnRequestWordCount, sheet.ColumnResponseWordCount} {
		if !strings.Contains(runCmd.Long, col) {
			t.Errorf("run help does not mention column %q", col)
		}
	}
}

func TestRunCommand_InvalidRate(t *testing.T) {
	dir, _ := testEnv(t)
	in := writeInput(t, dir, "2+2?")

	_, err := execute(t, "run", in, "--rate", "0")
	if !errors.Is(err, config.ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
}

func TestRunCommand_MissingColumn(t *testing.T) {
	dir, _ := testEnv(t)

	_, err := execute(t, "run", filepath.Join(dir, "nope.xlsx"))
	if err == nil {
		t.Fatal("expected error for missing input file")
	}
	if !strings.Contains(err.Error(), "nope.xlsx") {
		t.Errorf("error = %q, want it to name the file", err.Error())
	}
}

func TestRunCommand_SavesResults(t *testing.T) {
	dir, status := testEnv(t)
	srv := generationServer(t, func(prompt string, _ int) (int, string) {
		return http.StatusOK, `{"choices":[{"text":"\n4"}]}`
	})
	t.Setenv("SHEETPROMPT_BASE_URL", srv.URL)

	in := writeInput(t, dir, "2+2?")
	out := filepath.Join(dir, "out.xlsx")

	if _, err := execute(t, "run", in, "--out", out, "--rate", "60"); err != nil {
		t.Fatalf("run: %v\n%s", err, status)
	}

	rows, err := sheet.ReadResults(out)
	if err != nil {
		t.Fatalf("ReadResults: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].Request != "2+2?" || rows[0].Response != "4" {
		t.Errorf("row = %+v", rows[0])
	}
	if rows[0].RequestWordCount != 1 || rows[0].ResponseWordCount != 1 {
		t.Errorf("word counts = %d/%d, want 1/1", rows[0].RequestWordCount, rows[0].ResponseWordCount)
	}
	if !strings.Contains(status.String(), "Saved 1 responses") {
		t.Errorf("status output missing save line:\n%s", status)
	}

	listing, err := execute(t, "history", "list")
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(listing, "completed") || !strings.Contains(listing, "1/1") {
		t.Errorf("history list = %q", listing)
	}
}

func TestRunCommand_FailureKeepsPartialResults(t *testing.T) {
	dir, status := testEnv(t)
	srv := generationServer(t, func(prompt string, call int) (int, string) {
		if call == 0 {
			return http.StatusOK, `{"choices":[{"text":"first"}]}`
		}
		return http.StatusTooManyRequests, `{"error":{"message":"You exceeded your current quota.","type":"insufficient_quota"}}`
	})
	t.Setenv("SHEETPROMPT_BASE_URL", srv.URL)

	in := writeInput(t, dir, "one", "two", "three")
	out := filepath.Join(dir, "partial.xlsx")

	_, err := execute(t, "run", in, "--out", out, "--rate", "60")
	if err == nil || err.Error() != "You exceeded your current quota." {
		t.Fatalf("err = %v, want the quota message", err)
	}

	rows, err := sheet.ReadResults(out)
	if err != nil {
		t.Fatalf("ReadResults: %v", err)
	}
	if len(rows) != 1 || rows[0].Response != "first" {
		t.Errorf("rows = %+v, want only the first pair", rows)
	}
	if !strings.Contains(status.String(), "Run stopped at request 2 of 3") {
		t.Errorf("status output missing failure line:\n%s", status)
	}
}

func TestShowCommand(t *testing.T) {
	dir, _ := testEnv(t)
	path := filepath.Join(dir, "results.xlsx")
	if err := sheet.Save(path, []string{"capital of France?"}, []string{"Paris"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := execute(t, "show", path)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "[1] Q (3 words): capital of France?") {
		t.Errorf("output missing request line:\n%s", out)
	}
	if !strings.Contains(out, "A (1 words): Paris") {
		t.Errorf("output missing response line:\n%s", out)
	}
}

func TestConfigSetAndShow(t *testing.T) {
	testEnv(t)

	if _, err := execute(t, "config", "set", "pacing.rate_limit", "0"); !errors.Is(err, config.ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
	if _, err := execute(t, "config", "set", "pacing.rate_limit", "30"); err != nil {
		t.Fatalf("config set: %v", err)
	}

	out, err := execute(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "pacing.rate_limit = 30") {
		t.Errorf("config show missing new rate:\n%s", out)
	}
	if !strings.Contains(out, "credentials.api_key = not set") {
		t.Errorf("config show should report the placeholder key:\n%s", out)
	}
}

func TestKeySet(t *testing.T) {
	dir, status := testEnv(t)

	if _, err := execute(t, "key", "set", "  sk-test  "); err != nil {
		t.Fatalf("key set: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "api_key.txt"))
	if err != nil {
		t.Fatalf("reading key file: %v", err)
	}
	if string(data) != "sk-test" {
		t.Errorf("key file = %q, want sk-test", data)
	}
	if !strings.Contains(status.String(), "API key saved") {
		t.Errorf("status = %q", status)
	}
}

func TestHistoryExportUnknownRun(t *testing.T) {
	dir, _ := testEnv(t)

	_, err := execute(t, "history", "export", "missing", filepath.Join(dir, "x.xlsx"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestConsolePrintsEvents(t *testing.T) {
	_, status := testEnv(t)
	con := newConsole()

	con.OnEvent(scheduler.Event{Kind: scheduler.EventStarted, Total: 2, Options: scheduler.Options{RateLimit: 3, Model: "m", Mode: scheduler.ModeSingle}})
	con.OnEvent(scheduler.Event{Kind: scheduler.EventResult, Index: 0, Total: 2, Prompt: "first\nprompt"})
	con.OnEvent(scheduler.Event{Kind: scheduler.EventFailed, Index: 1, Total: 2, Err: scheduler.ErrCancelled})

	got := status.String()
	for _, want := range []string{
		"Sending 2 requests to m (single mode, one every 20s)",
		"[1/2] first prompt",
		"Run stopped at request 2 of 2: run cancelled",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
