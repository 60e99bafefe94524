package daemon

import (
	"context"
	"net"
	"os"
	"path/filepath"

	"google.golang.org/grpc"

	keepsakev1 "github.com/jamesainslie/keepsake/pkg/api/keepsake/v1"
)

// Config holds server configuration.
type Config struct {
	SocketPath string
}

// Server is the keepsaked gRPC server.
type Server struct {
	cfg      Config
	grpc     *grpc.Server
	listener net.Listener
}

// NewServer listens on the Unix socket and registers svc.
func NewServer(cfg Config, svc keepsakev1.KeepsakeServer) (*Server, error) {
	// Remove stale socket if exists
	if err := os.RemoveAll(cfg.SocketPath); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0o755); err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "unix", cfg.SocketPath)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:      cfg,
		grpc:     grpc.NewServer(),
		listener: listener,
	}

	keepsakev1.RegisterKeepsakeServer(srv.grpc, svc)

	return srv, nil
}

// Serve starts the gRPC server. Blocks until stopped.
func (s *Server) Serve() error {
	return s.grpc.Serve(s.listener)
}

// Close stops the server and removes the socket.
func (s *Server) Close() error {
	s.grpc.GracefulStop()
	return os.RemoveAll(s.cfg.SocketPath)
}
