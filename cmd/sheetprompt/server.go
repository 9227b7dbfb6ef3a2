package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/sheetprompt/internal/api"
	"github.com/kalambet/sheetprompt/internal/config"
	"github.com/kalambet/sheetprompt/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the control API (and optionally MCP over stdio)",
	Long: `Serve the HTTP control API on 127.0.0.1:<server.port>.

With --mcp the same actions are also exposed as MCP tools over stdin/stdout,
so stdout carries the MCP protocol and all other output goes to stderr.
Requests to /v1 require "Authorization: Bearer <server.token>" when
server.token (SHEETPROMPT_SERVER_TOKEN) is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(cmd.Context(), withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running sheetprompt server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the run on the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		st, err := client.status(cmd.Context())
		if err != nil {
			return err
		}
		printRunStatus(st)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the run on the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		cancelled, err := client.cancel(cmd.Context())
		if err != nil {
			return err
		}
		if !cancelled {
			printWarning("No run in progress")
			return nil
		}
		printSuccess("Cancellation requested")
		return nil
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "sheetprompt.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(parent context.Context, withMCP bool) error {
	fmt.Fprintf(stderr, "sheetprompt version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level, false)

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("sheetprompt is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("sheetprompt is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	if cfg.Server.Token == "" {
		slog.Warn("server.token is not set; the control API accepts unauthenticated requests")
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(api.Deps{
			Session:    a.session,
			Token:      cfg.Server.Token,
			RunContext: ctx,
		}),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(stderr, "sheetprompt listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Session: a.session, RunContext: ctx})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			slog.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(stderr, "shutting down...")
		return shutdown(srv, a.session)
	})

	return g.Wait()
}

// shutdown stops accepting requests and cancels any run in progress, keeping
// its completed pairs in history.
func shutdown(srv *http.Server, sess *session.Session) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if sess.Cancel() {
		if _, err := sess.Wait(shutdownCtx); err != nil {
			slog.Warn("run did not stop before shutdown", "error", err)
		}
	}
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("sheetprompt is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop sheetprompt (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to sheetprompt (PID %d)", pid)
	return nil
}

func printRunStatus(st session.Status) {
	printStatus("State", "%s", st.State)
	if st.RunID != "" {
		printStatus("Run", "%s", st.RunID)
	}
	printStatus("Progress", "%d/%d requests", st.Done, st.Total)
	printStatus("Elapsed", "%s", st.Elapsed)
	printStatus("Estimate", "%s", st.Estimate)
	if st.LastResponse != "" {
		printStatus("Last response", "%s", truncate(st.LastResponse, 72))
	}
	if st.Error != "" {
		printStatus("Error", "%s", colorize(colorRed, st.Error))
	}
}
