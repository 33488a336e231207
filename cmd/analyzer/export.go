package main

import (
	"fmt"

	"github.com/genai-analyzer/demo/internal/export"
	"github.com/spf13/cobra"
)

func newExportCmd(root *rootOptions) *cobra.Command {
	var (
		formats []string
		dir     string
	)

	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Write the exports of a recorded run",
		Long: `Export rebuilds summary.txt, analysis.json or results.zip from a run in
the history database. The id may be a record id or a prefix of the run id,
as shown by "analyzer history".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			list, err := parseFormats(formats)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				return fmt.Errorf("no export format given")
			}
			if dir == "" {
				dir = cfg.GetExportDir()
			}

			store, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if rec.Outcome != "completed" {
				return fmt.Errorf("run %s did not complete (%s)", args[0], rec.Outcome)
			}

			src := export.Source{Config: rec.Config, Files: rec.Files, Result: rec.Result}
			for _, format := range list {
				p, err := export.Build(format, src)
				if err != nil {
					return err
				}
				path, err := export.Save(dir, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&formats, "format", []string{string(export.FormatText)}, "Export formats (txt, json, zip)")
	cmd.Flags().StringVar(&dir, "dir", "", "Output directory (defaults to storage.export_directory)")
	return cmd
}
