package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/keepsake/pkg/client"
	"github.com/jamesainslie/keepsake/pkg/daemon"
	"github.com/jamesainslie/keepsake/pkg/keepsake/logging"
)

var runCmd = &cobra.Command{
	Use:   "run [root]",
	Short: "Monitor a directory in the foreground",
	Long: `Run the monitor in the foreground until interrupted.

The root argument overrides watch.root from the configuration. Audit lines
are mirrored to the terminal unless audit.console is false or --console=false
is given. Ctrl-C flushes today's summary and, when enabled, takes a final
snapshot before exiting.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("console", true, "mirror audit lines to the terminal")
	_ = viper.BindPFlag("audit.console", runCmd.Flags().Lookup("console"))

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve path: %w", err)
		}
		viper.Set("watch.root", root)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if client.IsDaemonRunning(cfg.PIDPath()) {
		return fmt.Errorf("%w (stop it with: keepsake daemon stop)", daemon.ErrDaemonAlreadyRunning)
	}

	logCfg, err := cfg.LoggingConfig()
	if err != nil {
		return err
	}
	if getVerbose() {
		logCfg.ConsoleLevel = "debug"
	}
	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logging.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printInfo("Watching %s (Ctrl-C to stop)", cfg.Watch.Root)
	return daemon.Run(ctx, cfg, daemon.WithVersion(version))
}
