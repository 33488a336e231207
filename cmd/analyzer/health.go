package main

import (
	"errors"
	"fmt"

	"github.com/genai-analyzer/demo/internal/client"
	"github.com/spf13/cobra"
)

func newHealthCmd(root *rootOptions) *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the analysis backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if baseURL == "" {
				baseURL = cfg.Client.BaseURL
			}

			c := client.New(baseURL, client.WithTimeout(cfg.RequestTimeout()))
			health, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			if !health.OK {
				return errors.New("health failed: backend reported not ok")
			}

			grid := "off"
			if health.GridChunking.Enabled() {
				grid = "on"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ok (grid chunking %s)\n", c.BaseURL(), grid)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Backend base URL (defaults to client.base_url)")
	return cmd
}
