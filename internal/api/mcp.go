package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/sheetprompt/internal/scheduler"
	"github.com/kalambet/sheetprompt/internal/session"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Session    Controller
	RunContext context.Context // bounds runs started by tools; nil means Background
}

func (d MCPDeps) runContext() context.Context {
	if d.RunContext != nil {
		return d.RunContext
	}
	return context.Background()
}

// NewMCPServer creates an MCP server exposing run control as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"sheetprompt",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sheetprompt sends the Requests column of an xlsx workbook to a text-generation API one prompt at a time, under a requests-per-minute limit."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("start_run",
			mcp.WithDescription("Load prompts from the Requests column of an xlsx workbook and start processing them."),
			mcp.WithString("path", mcp.Description("Path to the input .xlsx file"), mcp.Required()),
		),
		mcpStartRun(deps),
	)

	s.AddTool(
		mcp.NewTool("run_status",
			mcp.WithDescription("Report the state, progress and estimated time left of the current run."),
		),
		mcpRunStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("cancel_run",
			mcp.WithDescription("Stop the current run. Responses received so far are kept."),
		),
		mcpCancelRun(deps),
	)

	s.AddTool(
		mcp.NewTool("save_responses",
			mcp.WithDescription("Write the completed request/response pairs with word counts to an xlsx workbook."),
			mcp.WithString("path", mcp.Description("Destination .xlsx path"), mcp.Required()),
		),
		mcpSaveResponses(deps),
	)

	s.AddTool(
		mcp.NewTool("set_rate_limit",
			mcp.WithDescription("Set the maximum requests per minute used by the next run."),
			mcp.WithString("value", mcp.Description("Positive integer"), mcp.Required()),
		),
		mcpSetRateLimit(deps),
	)

	s.AddTool(
		mcp.NewTool("set_response_limit",
			mcp.WithDescription("Set the maximum response length in tokens used by the next run."),
			mcp.WithString("value", mcp.Description("Positive integer"), mcp.Required()),
		),
		mcpSetResponseLimit(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"runs://history",
			"Run History",
			mcp.WithResourceDescription("The 20 most recent runs as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	return s
}

func mcpStartRun(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil || strings.TrimSpace(path) == "" {
			return mcpError("path is required"), nil
		}

		id, err := deps.Session.Import(deps.runContext(), path)
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("loading %s: %v", path, err)), nil
		}

		st := deps.Session.Status()
		return mcpText(fmt.Sprintf("Started run %s with %d prompts", id, st.Total)), nil
	}
}

func mcpRunStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(deps.Session.Status())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCancelRun(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !deps.Session.Cancel() {
			return mcpText("No run in progress"), nil
		}
		return mcpText("Run cancelled"), nil
	}
}

func mcpSaveResponses(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil || strings.TrimSpace(path) == "" {
			return mcpError("path is required"), nil
		}

		n, err := deps.Session.Save(path)
		if errors.Is(err, session.ErrNoResponses) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Saved %d rows to %s", n, path)), nil
	}
}

func mcpSetRateLimit(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, err := deps.Session.SetRateLimit(argValue(req, "value"))
		if err != nil {
			return mcpError(fmt.Sprintf("%v (rate limit stays %d)", err, n)), nil
		}
		return mcpText(fmt.Sprintf("Rate limit set to %d requests per minute", n)), nil
	}
}

func mcpSetResponseLimit(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, err := deps.Session.SetResponseLimit(argValue(req, "value"))
		if err != nil {
			return mcpError(fmt.Sprintf("%v (response limit stays %d)", err, n)), nil
		}
		return mcpText(fmt.Sprintf("Response limit set to %d tokens", n)), nil
	}
}

func mcpResourceHistory(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		runs, err := deps.Session.History(20)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}

		b, err := json.Marshal(summarizeRuns(runs))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal runs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// argValue reads a tool argument as text. Clients may send numbers for
// fields declared as strings.
func argValue(req mcp.CallToolRequest, name string) string {
	switch v := req.GetArguments()[name].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
