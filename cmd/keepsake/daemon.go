package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/keepsake/pkg/client"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the keepsaked daemon",
	Long: `Manage the keepsaked daemon, which monitors watch.root in the background.

The daemon reads the same configuration file as the CLI. Stopping it flushes
today's summary and log and, when snapshot.on_shutdown is set, takes a final
snapshot of the watched directory.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the keepsaked daemon",
	Long:  `Start the keepsaked daemon in the background.`,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the keepsaked daemon",
	Long:  `Stop the keepsaked daemon gracefully.`,
	RunE:  runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the keepsaked daemon",
	Long:  `Stop and start the keepsaked daemon.`,
	RunE:  runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show the current status of the keepsaked daemon.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

func runDaemonStart(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	paths := daemonPaths(cfg)
	if client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon already running")
		return nil
	}

	printVerbose("starting daemon (socket %s)", paths.Socket)
	if err := client.StartDaemon(paths); err != nil {
		printVerbose("start failed: %v", err)
		return err
	}
	printInfo("Daemon started, watching %s", cfg.Watch.Root)
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	paths := daemonPaths(cfg)
	if !client.IsDaemonRunning(paths.PID) {
		printVerbose("daemon not running (PID check failed: %s)", paths.PID)
		return errNotRunning
	}

	printVerbose("sending shutdown request to %s", paths.Socket)
	if err := client.StopDaemon(paths); err != nil {
		return err
	}
	printInfo("Daemon stopped")
	return nil
}

func runDaemonRestart(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := client.RestartDaemon(daemonPaths(cfg)); err != nil {
		return err
	}
	printInfo("Daemon restarted")
	return nil
}
