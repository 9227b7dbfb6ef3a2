package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/sheetprompt/internal/config"
	"github.com/kalambet/sheetprompt/internal/sheet"
	"github.com/kalambet/sheetprompt/internal/storage"
)

// --- key ---

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the API key",
}

var keySetCmd = &cobra.Command{
	Use:   "set <api-key>",
	Short: "Store the API key in the credential file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := config.WriteAPIKey(cfg.Credentials.KeyFile, args[0]); err != nil {
			return err
		}
		printSuccess("API key saved to %s", cfg.Credentials.KeyFile)
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keySetCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		key := "set"
		if cfg.Credentials.APIKey == config.PlaceholderAPIKey {
			key = "not set (run: sheetprompt key set <api-key>)"
		}
		fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, "credentials.api_key"), key)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: fmt.Sprintf(`Set a configuration value in the config file.

Pacing values must be positive integers; anything else is rejected and the
previous value is kept.

Keys:
  %v`, config.ValidKeys()),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse and export archived runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		runs, err := store.ListRuns(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			printWarning("No runs recorded yet")
			return nil
		}

		out := cmd.OutOrStdout()
		for _, r := range runs {
			fmt.Fprintf(out, "%s  %s  %-9s  %3d/%-3d  %s  %s\n",
				r.ID,
				r.StartedAt.Local().Format(time.DateTime),
				r.Status,
				r.Completed, r.Total,
				r.Model,
				r.Source,
			)
			if r.Error != "" {
				fmt.Fprintf(out, "    %s\n", colorize(colorRed, r.Error))
			}
		}
		return nil
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export <run-id> <file.xlsx>",
	Short: "Write an archived run's responses to a workbook",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.session.Export(args[0], args[1])
		if err != nil {
			return err
		}
		printSuccess("Saved %d responses to %s", n, args[1])
		return nil
	},
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of runs to show")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyExportCmd)
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models available to the configured API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		models, err := a.session.Models(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing models: %w", err)
		}

		out := cmd.OutOrStdout()
		for _, m := range models {
			marker := " "
			if m.ID == cfg.Generation.Model {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\n", marker, m.ID)
		}
		return nil
	},
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <file.xlsx>",
	Short: "Print a results workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := sheet.ReadResults(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for i, r := range rows {
			fmt.Fprintf(out, "%s %s\n", colorize(colorBold, fmt.Sprintf("[%d] Q (%d words):", i+1, r.RequestWordCount)), r.Request)
			fmt.Fprintf(out, "%s %s\n", colorize(colorCyan, fmt.Sprintf("    A (%d words):", r.ResponseWordCount)), r.Response)
		}
		printStatus("Rows", "%d", len(rows))
		return nil
	},
}
