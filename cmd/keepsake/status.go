package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/keepsake/pkg/client"
	"github.com/jamesainslie/keepsake/pkg/keepsake/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and today's activity",
	RunE:  runStatus,
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Write today's summary and log now",
	Long: `Ask the daemon to write today's summary and consolidated log immediately
instead of waiting for the day rollover.`,
	RunE: runFlush,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Copy the watched directory now",
	Long: `Ask the daemon to copy the whole watched directory into the snapshot root.
Older snapshots beyond snapshot.max are removed.`,
	RunE: runSnapshot,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	err := withClient(5*time.Second, func(ctx context.Context, c *client.Client) error {
		st, err := c.GetStatus(ctx)
		if err != nil {
			return fmt.Errorf("failed to get daemon status: %w", err)
		}
		return render(&output.Report{Status: st})
	})
	if errors.Is(err, errNotRunning) {
		return render(&output.Report{Status: &output.Status{Running: false}})
	}
	return err
}

func runFlush(_ *cobra.Command, _ []string) error {
	return withClient(30*time.Second, func(ctx context.Context, c *client.Client) error {
		if err := c.Flush(ctx); err != nil {
			return fmt.Errorf("failed to flush: %w", err)
		}
		printInfo("Summary and log written")
		return nil
	})
}

func runSnapshot(_ *cobra.Command, _ []string) error {
	return withClient(10*time.Minute, func(ctx context.Context, c *client.Client) error {
		res, err := c.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("failed to take snapshot: %w", err)
		}
		for _, e := range res.Errors {
			printWarning("%s", e)
		}
		printInfo("Snapshot %s: %d files, %d dirs, %s in %s",
			res.Path, res.Files, res.Dirs,
			humanize.IBytes(uint64(max(res.Bytes, 0))),
			res.Duration.Round(time.Millisecond))
		return nil
	})
}
