// Package client provides a client for connecting to the keepsaked daemon.
// It wraps the gRPC client with convenience methods and type conversions.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	keepsakev1 "github.com/jamesainslie/keepsake/pkg/api/keepsake/v1"
	"github.com/jamesainslie/keepsake/pkg/keepsake/config"
	"github.com/jamesainslie/keepsake/pkg/keepsake/output"
	"github.com/jamesainslie/keepsake/pkg/keepsake/types"
)

// DaemonBinary is the daemon executable name.
const DaemonBinary = "keepsaked"

// Client connects to the keepsaked daemon via gRPC.
type Client struct {
	conn   *grpc.ClientConn
	client keepsakev1.KeepsakeClient
}

// DefaultSocketPath returns the default Unix socket path for keepsaked.
func DefaultSocketPath() string {
	return config.DefaultSocketPath()
}

// DefaultPIDPath returns the default PID file path for keepsaked.
func DefaultPIDPath() string {
	return config.DefaultPIDPath()
}

// DaemonPaths configures paths for daemon operations.
// Empty fields use defaults.
type DaemonPaths struct {
	Binary string // Path to keepsaked binary (auto-discovered if empty)
	Socket string // Unix socket path
	PID    string // PID file path
	Config string // Config file passed to the daemon, if any
}

// withDefaults returns a copy with empty fields filled with defaults.
func (p DaemonPaths) withDefaults() DaemonPaths {
	if p.Socket == "" {
		p.Socket = DefaultSocketPath()
	}
	if p.PID == "" {
		p.PID = DefaultPIDPath()
	}
	return p
}

// Connect establishes a connection to the keepsaked daemon.
// Uses a default timeout of 5 seconds.
func Connect(socketPath string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ConnectWithContext(ctx, socketPath)
}

// ConnectWithContext establishes a connection to the keepsaked daemon with a custom context.
func ConnectWithContext(ctx context.Context, socketPath string) (*Client, error) {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("daemon socket not found at %s", socketPath)
	}

	//nolint:staticcheck // grpc.DialContext is deprecated but NewClient doesn't support blocking
	conn, err := grpc.DialContext(
		ctx,
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	return &Client{
		conn:   conn,
		client: keepsakev1.NewKeepsakeClient(conn),
	}, nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// GetStatus returns the daemon status and today's tally.
func (c *Client) GetStatus(ctx context.Context) (*output.Status, error) {
	resp, err := c.client.GetStatus(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fmt.Errorf("GetStatus RPC failed: %w", err)
	}
	var st output.Status
	if err := keepsakev1.Decode(resp, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Flush asks the daemon to write today's summary and consolidated log.
func (c *Client) Flush(ctx context.Context) error {
	if _, err := c.client.Flush(ctx, &emptypb.Empty{}); err != nil {
		return fmt.Errorf("Flush RPC failed: %w", err)
	}
	return nil
}

// Snapshot asks the daemon to copy the watched tree now.
func (c *Client) Snapshot(ctx context.Context) (*keepsakev1.SnapshotResult, error) {
	resp, err := c.client.Snapshot(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fmt.Errorf("Snapshot RPC failed: %w", err)
	}
	var res keepsakev1.SnapshotResult
	if err := keepsakev1.Decode(resp, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// History returns up to limit archived days, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]output.Day, error) {
	resp, err := c.client.History(ctx, wrapperspb.Int32(int32(limit))) //nolint:gosec // limit is a small CLI value
	if err != nil {
		return nil, fmt.Errorf("History RPC failed: %w", err)
	}
	var hist keepsakev1.HistoryResponse
	if err := keepsakev1.Decode(resp, &hist); err != nil {
		return nil, err
	}
	return hist.Days, nil
}

// Backups returns the stem and retained backups of a file, newest first.
func (c *Client) Backups(ctx context.Context, name string) (string, []output.Backup, error) {
	resp, err := c.client.Backups(ctx, wrapperspb.String(name))
	if err != nil {
		return "", nil, fmt.Errorf("Backups RPC failed: %w", err)
	}
	var b keepsakev1.BackupsResponse
	if err := keepsakev1.Decode(resp, &b); err != nil {
		return "", nil, err
	}
	return b.Stem, b.Backups, nil
}

// Shutdown requests the daemon to shut down gracefully.
func (c *Client) Shutdown(ctx context.Context) error {
	if _, err := c.client.Shutdown(ctx, &emptypb.Empty{}); err != nil {
		return fmt.Errorf("Shutdown RPC failed: %w", err)
	}
	return nil
}

// WatchEvents subscribes to accepted events under root. No kinds means all
// kinds. The channel closes when the stream ends or ctx is cancelled.
func (c *Client) WatchEvents(ctx context.Context, root string, kinds ...types.EventKind) (<-chan types.AuditEvent, error) {
	req, err := keepsakev1.Encode(keepsakev1.WatchRequest{Root: root, Kinds: kinds})
	if err != nil {
		return nil, err
	}

	stream, err := c.client.WatchEvents(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("WatchEvents RPC failed: %w", err)
	}

	events := make(chan types.AuditEvent, 100)
	go func() {
		defer close(events)
		for {
			msg, err := stream.Recv()
			if err != nil {
				return // Stream closed or error
			}

			var ev types.AuditEvent
			if err := keepsakev1.Decode(msg, &ev); err != nil {
				continue
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// EnsureDaemon ensures the daemon is running, starting it if necessary.
// Idempotent: returns nil if daemon is already running.
func EnsureDaemon(paths DaemonPaths) error {
	return StartDaemon(paths)
}

// StartDaemon starts the keepsaked daemon in the background.
// Idempotent: returns nil if daemon is already running.
func StartDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if IsDaemonRunning(paths.PID) {
		return nil
	}

	binary, err := resolveBinary(paths.Binary)
	if err != nil {
		return fmt.Errorf("find %s: %w", DaemonBinary, err)
	}

	statusPath := strings.TrimSuffix(paths.Socket, ".sock") + ".status"
	_ = os.Remove(statusPath)

	var args []string
	if paths.Config != "" {
		args = append(args, "--config", paths.Config)
	}

	// Use exec.Command (not CommandContext) intentionally: daemon must outlive caller
	cmd := exec.Command(binary, args...) //nolint:gosec // binary path is validated
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	// Poll for the status file, which carries startup errors, then the socket.
	for range 50 {
		time.Sleep(100 * time.Millisecond)

		if status, err := readStatusFile(statusPath); err == nil {
			switch status.Status {
			case "ready":
				return nil
			case "error":
				return fmt.Errorf("daemon failed to start: %s", status.Error)
			}
		}

		if _, err := os.Stat(paths.Socket); err == nil && IsDaemonRunning(paths.PID) {
			return nil
		}
	}

	return errors.New("daemon did not become ready within timeout")
}

// StopDaemon stops the daemon gracefully via RPC.
// Idempotent: returns nil if daemon is not running.
func StopDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if !IsDaemonRunning(paths.PID) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer client.Close()

	if err := client.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown daemon: %w", err)
	}

	// The shutdown sequence flushes reports and may take a snapshot.
	for range 240 {
		time.Sleep(250 * time.Millisecond)
		if !IsDaemonRunning(paths.PID) {
			return nil
		}
	}

	return errors.New("daemon did not stop within timeout")
}

// RestartDaemon stops and starts the daemon.
func RestartDaemon(paths DaemonPaths) error {
	if err := StopDaemon(paths); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if err := StartDaemon(paths); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

// resolveBinary finds the keepsaked binary path.
// Priority: configured path > same directory as executable > PATH.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured binary not found: %s", configured)
		}
		return configured, nil
	}

	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), DaemonBinary)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(DaemonBinary); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%s not found", DaemonBinary)
}

// IsDaemonRunning checks if the daemon is running based on the PID file.
func IsDaemonRunning(pidPath string) bool {
	pid, err := readPIDFile(pidPath)
	if err != nil || pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	return process.Signal(syscall.Signal(0)) == nil
}

// readPIDFile reads a PID from a file.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// statusFile represents the daemon startup status file.
type statusFile struct {
	Status string `json:"status"`
	PID    int    `json:"pid,omitempty"`
	Error  string `json:"error,omitempty"`
}

// readStatusFile reads and parses the daemon status file.
func readStatusFile(path string) (*statusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status statusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
