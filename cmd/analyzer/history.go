package main

import (
	"fmt"

	"github.com/genai-analyzer/demo/internal/config"
	"github.com/genai-analyzer/demo/internal/history"
	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/genai-analyzer/demo/internal/models"
	"github.com/spf13/cobra"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			store, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No runs recorded yet.")
				fmt.Fprintln(out, "Start one with: analyzer run <files>")
				return nil
			}

			fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-10s %-10s %-10s %-6s %-8s %-20s %s",
				"ID", "RUN", "MODE", "LIVE", "ELAPSED", "FINISHED", "OUTCOME")))
			for _, rec := range records {
				live := "no"
				if rec.Live {
					live = "yes"
				}
				finished := "-"
				if !rec.FinishedAt.IsZero() {
					finished = rec.FinishedAt.Local().Format("2006-01-02 15:04:05")
				}
				outcome := rec.Outcome
				if rec.Error != "" {
					outcome += ": " + rec.Error
				}
				fmt.Fprintf(out, "%-10s %-10s %-10s %-6s %-8s %-20s %s\n",
					logging.ShortID(rec.ID), logging.ShortID(rec.RunID), rec.Mode, live,
					models.ElapsedLabel(rec.Duration()), finished, outcome)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list (0 lists all)")
	return cmd
}

// openHistory opens the configured history database for reading.
func openHistory(cfg *config.AppConfig) (*history.Store, error) {
	if !cfg.Storage.EnableHistory {
		return nil, fmt.Errorf("history is disabled (storage.enable_history)")
	}
	return history.Open(cfg.Storage.HistoryPath, history.Options{
		Threads:     cfg.Advanced.DuckDBThreads,
		MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
	})
}
