package api

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/sheetprompt/internal/generation"
	"github.com/kalambet/sheetprompt/internal/storage"
)

// --- helpers ---

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := h(context.Background(), makeCallToolRequest(name, args))
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", name, err)
	}
	return result
}

// --- tests ---

func TestMCPTool_StartRunAndStatus(t *testing.T) {
	s, _ := newTestSession(t, &mockClient{})
	deps := MCPDeps{Session: s}
	in := writeInput(t, "2+2?", "capital of France?")

	result := callTool(t, mcpStartRun(deps), "start_run", map[string]interface{}{"path": in})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); !strings.Contains(text, "2 prompts") {
		t.Errorf("text = %q", text)
	}
	waitRun(t, s)

	result = callTool(t, mcpRunStatus(deps), "run_status", nil)
	var st map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &st); err != nil {
		t.Fatalf("failed to parse status: %v", err)
	}
	if st["state"] != "completed" || st["done"] != float64(2) {
		t.Errorf("status = %v", st)
	}
}

func TestMCPTool_StartRun_Errors(t *testing.T) {
	s, _ := newTestSession(t, &mockClient{})
	handler := mcpStartRun(MCPDeps{Session: s})

	for _, args := range []map[string]interface{}{
		{},
		{"path": ""},
		{"path": filepath.Join(t.TempDir(), "missing.xlsx")},
	} {
		if result := callTool(t, handler, "start_run", args); !result.IsError {
			t.Errorf("args %v: expected error result", args)
		}
	}
}

func TestMCPTool_CancelRun(t *testing.T) {
	entered := make(chan struct{}, 1)
	client := &mockClient{generateFn: func(ctx context.Context, req generation.Request) (string, error) {
		entered <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	}}
	s, _ := newTestSession(t, client)
	deps := MCPDeps{Session: s}

	if text := toolText(t, callTool(t, mcpCancelRun(deps), "cancel_run", nil)); text != "No run in progress" {
		t.Errorf("idle cancel text = %q", text)
	}

	if _, err := s.Start(context.Background(), []string{"a"}, ""); err != nil {
		t.Fatal(err)
	}
	<-entered

	if text := toolText(t, callTool(t, mcpCancelRun(deps), "cancel_run", nil)); text != "Run cancelled" {
		t.Errorf("cancel text = %q", text)
	}
	waitRun(t, s)
}

func TestMCPTool_SaveResponses(t *testing.T) {
	s, _ := newTestSession(t, &mockClient{})
	handler := mcpSaveResponses(MCPDeps{Session: s})
	out := filepath.Join(t.TempDir(), "out.xlsx")

	result := callTool(t, handler, "save_responses", map[string]interface{}{"path": out})
	if !result.IsError || toolText(t, result) != "there are no responses to save" {
		t.Errorf("empty save result = %+v", result)
	}

	if _, err := s.Start(context.Background(), []string{"x"}, ""); err != nil {
		t.Fatal(err)
	}
	waitRun(t, s)

	result = callTool(t, handler, "save_responses", map[string]interface{}{"path": out})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); !strings.Contains(text, "Saved 1 rows") {
		t.Errorf("text = %q", text)
	}
}

func TestMCPTool_SetRateLimit(t *testing.T) {
	tests := []struct {
		value   interface{}
		wantErr bool
		want    int
	}{
		{value: "7", want: 7},
		{value: float64(20), want: 20},
		{value: "0", wantErr: true, want: 3},
		{value: float64(-5), wantErr: true, want: 3},
		{value: "abc", wantErr: true, want: 3},
		{value: "", wantErr: true, want: 3},
		{value: float64(2.5), wantErr: true, want: 3},
	}
	for _, tt := range tests {
		s, _ := newTestSession(t, &mockClient{})
		result := callTool(t, mcpSetRateLimit(MCPDeps{Session: s}), "set_rate_limit", map[string]interface{}{"value": tt.value})
		if result.IsError != tt.wantErr {
			t.Errorf("value %v: IsError = %v, text = %s", tt.value, result.IsError, toolText(t, result))
		}
		if got := s.Settings().RateLimit; got != tt.want {
			t.Errorf("value %v: rate limit = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestMCPTool_SetResponseLimit(t *testing.T) {
	s, _ := newTestSession(t, &mockClient{})
	handler := mcpSetResponseLimit(MCPDeps{Session: s})

	if result := callTool(t, handler, "set_response_limit", map[string]interface{}{"value": "256"}); result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	result := callTool(t, handler, "set_response_limit", map[string]interface{}{"value": "-1"})
	if !result.IsError || !strings.Contains(toolText(t, result), "stays 256") {
		t.Errorf("result = %s", toolText(t, result))
	}
}

func TestMCPResource_History(t *testing.T) {
	s, store := newTestSession(t, &mockClient{})
	if err := store.CreateRun(storage.Run{ID: "r1", Mode: "single", Model: "m", RateLimit: 3, ResponseLimit: 100, Total: 1, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	req := mcp.ReadResourceRequest{Params: mcp.ReadResourceParams{URI: "runs://history"}}
	contents, err := mcpResourceHistory(MCPDeps{Session: s})(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var runs []runSummary
	if err := json.Unmarshal([]byte(tc.Text), &runs); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "r1" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestNewMCPServer(t *testing.T) {
	s, _ := newTestSession(t, &mockClient{})
	if srv := NewMCPServer(MCPDeps{Session: s}); srv == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
