package main

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the HTTP API and runs crawl cycles on a schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			// Run closes the application on shutdown.
			err = h.app.Run(cmd.Context())
			h.app = nil
			if h.logger != nil {
				_ = h.logger.Sync()
			}
			return err
		},
	}
}
