package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/sheetprompt/internal/config"
	"github.com/kalambet/sheetprompt/internal/dashboard"
	"github.com/kalambet/sheetprompt/internal/progress"
	"github.com/kalambet/sheetprompt/internal/scheduler"
	"github.com/kalambet/sheetprompt/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run <file.xlsx>",
	Short: "Send every prompt in the Requests column and collect the responses",
	Long: `Send every prompt in the "Requests" column of the first sheet to the
configured model, one at a time, pausing 60/rate seconds between calls.

The run stops at the first failed call. Completed pairs are kept in the run
history and, with --out, written to a new workbook with the columns
Requests, Responses, Requests Word Count and Responses Word Count.
Ctrl-C cancels the run and keeps what was completed.

Examples:
  sheetprompt run prompts.xlsx --out answers.xlsx
  sheetprompt run prompts.xlsx --rate 20 --max-tokens 250
  sheetprompt run prompts.xlsx --mode conversation --tui`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		useTUI, _ := cmd.Flags().GetBool("tui")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level, true)

		con := newConsole()
		var observers []scheduler.Observer
		if !useTUI {
			observers = append(observers, con)
		}

		a, err := newApp(cfg, observers...)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := applyRunFlags(cmd, a.session); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input := args[0]
		runID, err := a.session.Import(ctx, input)
		if err != nil {
			return fmt.Errorf("loading %s: %w", input, err)
		}

		if useTUI {
			title := fmt.Sprintf("sheetprompt · %s", filepath.Base(input))
			if _, err := dashboard.Run(ctx, a.session, title); err != nil {
				a.session.Cancel()
				printWarning("%v", err)
			}
		} else {
			progress.Monitor(ctx, a.session, progress.RefreshInterval, con.Estimate)
			con.Close()
		}

		// The run goroutine observes ctx as well, so this returns promptly
		// after Ctrl-C with the partial results.
		snap, err := a.session.Wait(context.Background())
		if err != nil {
			return err
		}

		printStatus("Run", "%s", runID)
		printStatus("State", "%s", snap.State)
		printStatus("Responses", "%d/%d", snap.Done(), snap.Total())
		printStatus("Elapsed", "%s", progress.Format(snap.Elapsed()))

		if out != "" {
			n, err := a.session.Save(out)
			switch {
			case errors.Is(err, session.ErrNoResponses):
				printWarning("%v", err)
			case err != nil:
				return fmt.Errorf("saving responses: %w", err)
			default:
				printSuccess("Saved %d responses to %s", n, out)
			}
		} else if snap.Done() > 0 {
			printStep("Responses kept in history; export with: sheetprompt history export %s <file.xlsx>", runID)
		}

		if snap.State == scheduler.Failed {
			return snap.Err
		}
		return nil
	},
}

// applyRunFlags routes explicit flags through the same setters the API uses,
// so invalid values are rejected before anything is sent.
func applyRunFlags(cmd *cobra.Command, s *session.Session) error {
	flags := cmd.Flags()
	if flags.Changed("rate") {
		raw, _ := flags.GetString("rate")
		if _, err := s.SetRateLimit(raw); err != nil {
			return err
		}
	}
	if flags.Changed("max-tokens") {
		raw, _ := flags.GetString("max-tokens")
		if _, err := s.SetResponseLimit(raw); err != nil {
			return err
		}
	}
	if flags.Changed("model") {
		name, _ := flags.GetString("model")
		if err := s.SetModel(name); err != nil {
			return err
		}
	}
	if flags.Changed("mode") {
		mode, _ := flags.GetString("mode")
		if err := s.SetMode(mode); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	runCmd.Flags().String("out", "", "write the results workbook to this path")
	runCmd.Flags().String("rate", "", "requests per minute (default: pacing.rate_limit)")
	runCmd.Flags().String("max-tokens", "", "response token limit for single-turn calls (default: pacing.response_limit)")
	runCmd.Flags().String("model", "", "model name (default: generation.model)")
	runCmd.Flags().String("mode", "", "single or conversation (default: generation.mode)")
	runCmd.Flags().Bool("tui", false, "show the live progress dashboard")
}
