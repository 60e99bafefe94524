package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jamesainslie/keepsake/pkg/keepsake/config"
	"github.com/jamesainslie/keepsake/pkg/keepsake/logging"
)

// Run starts the monitor and its RPC server for cfg, and blocks until ctx is
// cancelled or a client requests shutdown. Startup failures are written to
// the status file so a launching client can report them.
func Run(ctx context.Context, cfg *config.Config, opts ...MonitorOption) (err error) {
	socketPath := cfg.SocketPath()
	pidPath := cfg.PIDPath()
	statusPath := StatusPath(socketPath)
	log := logging.Get("daemon")

	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("creating runtime directory: %w", err)
	}

	if err := RecoverFromStaleDaemon(pidPath, socketPath, cfg.ArchivePath()); err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = WriteStatusError(statusPath, err)
		}
	}()

	mon, err := NewMonitor(cfg, opts...)
	if err != nil {
		return err
	}

	srv, err := NewServer(Config{SocketPath: socketPath}, NewService(mon))
	if err != nil {
		_ = mon.Close()
		return fmt.Errorf("starting server: %w", err)
	}

	if err := WritePIDFile(pidPath); err != nil {
		_ = srv.Close()
		_ = mon.Close()
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() {
		if err := RemovePIDFile(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove PID file", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := srv.Serve(); err != nil {
			log.Error("server error", "error", err)
			cancel()
		}
	}()

	if err := WriteStatusReady(statusPath); err != nil {
		log.Warn("failed to write status file", "error", err)
	}
	defer func() { _ = RemoveStatus(statusPath) }()

	log.Info("keepsaked started", "socket", socketPath, "pid", os.Getpid(), "root", cfg.Watch.Root)

	runErr := mon.Run(ctx)
	if err := srv.Close(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("error during server shutdown", "error", err)
	}
	if runErr != nil {
		return runErr
	}

	log.Info("keepsaked stopped")
	return nil
}
