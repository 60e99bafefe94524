package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/keepsake/pkg/client"
	"github.com/jamesainslie/keepsake/pkg/keepsake/output"
)

var backupsCmd = &cobra.Command{
	Use:   "backups <file>",
	Short: "List retained backups of a file",
	Long: `List the backups kept for a file, newest first.

The argument may be a path, a file name or a bare stem: report.txt,
~/Documents/report.txt and report all select the same backups.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackups,
}

func init() {
	rootCmd.AddCommand(backupsCmd)
}

func runBackups(_ *cobra.Command, args []string) error {
	return withClient(10*time.Second, func(ctx context.Context, c *client.Client) error {
		stem, backups, err := c.Backups(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to list backups: %w", err)
		}
		if len(backups) == 0 && outputFormat == "pretty" {
			printInfo("No backups for %s.", stem)
			return nil
		}
		return render(&output.Report{Stem: stem, Backups: backups})
	})
}
