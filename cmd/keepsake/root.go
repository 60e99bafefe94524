package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/keepsake/pkg/client"
	"github.com/jamesainslie/keepsake/pkg/keepsake/config"
	"github.com/jamesainslie/keepsake/pkg/keepsake/output"
)

// errNotRunning is returned by commands that need a live daemon.
var errNotRunning = errors.New("daemon is not running (start with: keepsake daemon start)")

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "keepsake",
		Short: "Keep backups and daily reports of a watched directory",
		Long: `Keepsake watches a directory, keeps rotating backups of every file that is
created or modified, and writes daily activity summaries and logs.

Examples:
  keepsake run ~/Documents       # Monitor in the foreground
  keepsake daemon start          # Monitor in the background
  keepsake status                # Show today's activity
  keepsake backups report.txt    # List retained backups of a file
  keepsake tail                  # Follow accepted events live
  keepsake history -l 7          # Show the last week of summaries`,
		SilenceUsage: true,
	}
)

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/keepsake/config.yaml)")
	rootCmd.PersistentFlags().String("socket", "", "daemon socket path")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "pretty", "output format: pretty, plain, json, jsonl, yaml, template")
	rootCmd.PersistentFlags().StringVar(&templateStr, "template", "", "Go template for --output template")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	// Bind flags to viper
	_ = viper.BindPFlag("daemon.socket_path", rootCmd.PersistentFlags().Lookup("socket"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration with flag overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWith(viper.GetViper(), cfgFile)
	if err != nil {
		return nil, err
	}
	printVerbose("config file: %s", cfg.File)
	return cfg, nil
}

// daemonPaths returns the daemon locations for cfg.
func daemonPaths(cfg *config.Config) client.DaemonPaths {
	return client.DaemonPaths{
		Binary: cfg.Daemon.BinaryPath,
		Socket: cfg.SocketPath(),
		PID:    cfg.PIDPath(),
		Config: cfg.File,
	}
}

// connect returns a client for the configured daemon, or errNotRunning.
func connect(ctx context.Context) (*client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !client.IsDaemonRunning(cfg.PIDPath()) {
		return nil, errNotRunning
	}

	printVerbose("connecting to %s", cfg.SocketPath())
	c, err := client.ConnectWithContext(ctx, cfg.SocketPath())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return c, nil
}

// withClient runs fn against the daemon with a bounded context.
func withClient(timeout time.Duration, fn func(ctx context.Context, c *client.Client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}

// render writes r to stdout in the selected output format.
func render(r *output.Report) error {
	formatter, err := newFormatter()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, r); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	_, err = os.Stdout.Write(buf.Bytes())
	return err
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printWarning prints a warning to stderr.
func printWarning(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}
