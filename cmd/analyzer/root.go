package main

import (
	"github.com/genai-analyzer/demo/internal/config"
	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/spf13/cobra"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "analyzer",
		Short: "Run GenAI analysis workflows from the terminal",
		Long: `analyzer walks files through the six-stage analysis workflow
(Upload, Chunking, Per-chunk analysis, Merge, Summarize, Save), either
simulated locally or against a live backend, and exports the results.`,
		Version:       Version + " (" + BuildTime + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "Path to the YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error, off)")

	root.AddCommand(
		newRunCmd(opts),
		newHealthCmd(opts),
		newHistoryCmd(opts),
		newExportCmd(opts),
	)
	return root
}

// load reads the config file and applies the logging flags.
func (o *rootOptions) load() (*config.AppConfig, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Advanced.LogLevel = o.logLevel
	}
	logging.SetLevel(cfg.Advanced.LogLevel)
	return cfg, nil
}
