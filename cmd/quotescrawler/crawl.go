package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl cycle and prints its summary as JSON",
		RunE:  runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	h, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	summary, runErr := h.app.RunOnce(cmd.Context())
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		closeApp(cmd.Context())
		return fmt.Errorf("encode summary: %w", err)
	}
	if runErr != nil {
		closeApp(cmd.Context())
		return runErr
	}
	return nil
}
