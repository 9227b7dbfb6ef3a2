package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/sheetprompt/internal/config"
	"github.com/kalambet/sheetprompt/internal/generation"
	"github.com/kalambet/sheetprompt/internal/scheduler"
	"github.com/kalambet/sheetprompt/internal/session"
	"github.com/kalambet/sheetprompt/internal/storage"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "sheetprompt",
	Short: "Send spreadsheet prompts to a text-generation API under a rate limit",
	Long: `sheetprompt reads the "Requests" column of an xlsx workbook, sends each
prompt to an OpenAI-compatible API one at a time, and writes the prompts,
responses and word counts back to a new workbook.

Examples:
  sheetprompt key set sk-...
  sheetprompt run prompts.xlsx --out answers.xlsx --rate 20
  sheetprompt run prompts.xlsx --mode conversation --tui
  sheetprompt history list
  sheetprompt serve --mcp`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(showCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// setupLogging installs the default slog handler. Interactive commands pass
// quiet so that info records do not interleave with the colored output;
// log.level=debug always wins.
func setupLogging(level string, quiet bool) {
	logLevel := slog.LevelInfo
	if quiet {
		logLevel = slog.LevelWarn
	}
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: logLevel})))
}

// app is the wiring shared by the commands that drive a session.
type app struct {
	cfg     config.Config
	store   *storage.Store
	client  *generation.Client
	session *session.Session
}

func newApp(cfg config.Config, observers ...scheduler.Observer) (*app, error) {
	client := generation.NewClientWithBaseURL(cfg.Credentials.APIKey, cfg.Generation.BaseURL)
	client.SetTimeout(cfg.RequestTimeout())

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	obs := append([]scheduler.Observer{storage.NewRecorder(store, slog.Default())}, observers...)
	sess := session.New(session.Deps{
		Config:    cfg,
		Client:    client,
		History:   store,
		Logger:    slog.Default(),
		Observers: obs,
	})

	return &app{cfg: cfg, store: store, client: client, session: sess}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}
