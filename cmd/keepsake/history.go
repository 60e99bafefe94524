package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/keepsake/pkg/client"
	"github.com/jamesainslie/keepsake/pkg/daemon"
	"github.com/jamesainslie/keepsake/pkg/keepsake/output"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show archived daily summaries",
	Long: `Show the daily tallies archived by the daemon, newest first.

Each flushed summary is archived, so days whose summary files were pruned
by ledger.max_summaries are still listed.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", daemon.DefaultHistoryLimit, "maximum number of days to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(_ *cobra.Command, _ []string) error {
	return withClient(10*time.Second, func(ctx context.Context, c *client.Client) error {
		days, err := c.History(ctx, historyLimit)
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		if len(days) == 0 && outputFormat == "pretty" {
			printInfo("No archived days yet.")
			return nil
		}
		return render(&output.Report{History: days})
	})
}
