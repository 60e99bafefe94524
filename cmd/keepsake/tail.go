package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/keepsake/pkg/keepsake/output"
	"github.com/jamesainslie/keepsake/pkg/keepsake/types"
)

var tailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Follow accepted events live",
	Long: `Stream events accepted by the daemon until interrupted.

Only events under path are shown when it is given. Use --kinds to select
created, modified or deleted events.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTail,
}

func init() {
	tailCmd.Flags().StringVarP(&tailKinds, "kinds", "k", "", "comma-separated event kinds (default: all)")
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	kinds, err := parseKinds(tailKinds)
	if err != nil {
		return err
	}

	var root string
	if len(args) > 0 {
		if root, err = filepath.Abs(args[0]); err != nil {
			return fmt.Errorf("failed to resolve path: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c, err := connect(dialCtx)
	if err != nil {
		return err
	}
	defer c.Close()

	events, err := c.WatchEvents(ctx, root, kinds...)
	if err != nil {
		return err
	}

	for ev := range events {
		if err := render(&output.Report{Events: []types.AuditEvent{ev}}); err != nil {
			return err
		}
	}

	if ctx.Err() == nil {
		return errors.New("event stream closed by daemon")
	}
	return nil
}
