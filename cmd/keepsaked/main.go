// Package main provides the keepsaked daemon, which monitors watch.root
// and serves the keepsake RPC API on a Unix socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/keepsake/pkg/daemon"
	"github.com/jamesainslie/keepsake/pkg/keepsake/config"
	"github.com/jamesainslie/keepsake/pkg/keepsake/logging"
)

// Build-time variable set by go build -ldflags.
var version = "dev"

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:           "keepsaked",
		Short:         "keepsake monitoring daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		RunE:          run,
	}
)

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/keepsake/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "keepsaked: %v\n", err)
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) (err error) {
	cfg, err := config.LoadWith(viper.New(), cfgFile)
	if err != nil {
		// Nothing else knows where the socket is yet; report on the default.
		_ = daemon.WriteStatusError(daemon.StatusPath(config.DefaultSocketPath()), err)
		return err
	}

	defer func() {
		if err != nil && !errors.Is(err, daemon.ErrDaemonAlreadyRunning) {
			_ = daemon.WriteStatusError(daemon.StatusPath(cfg.SocketPath()), err)
		}
	}()

	if daemon.IsDaemonRunning(cfg.PIDPath()) {
		return daemon.ErrDaemonAlreadyRunning
	}

	logCfg, err := cfg.LoggingConfig()
	if err != nil {
		return err
	}
	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logging.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return daemon.Run(ctx, cfg, daemon.WithVersion(version))
}
