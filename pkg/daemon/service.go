package daemon

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	keepsakev1 "github.com/jamesainslie/keepsake/pkg/api/keepsake/v1"
	"github.com/jamesainslie/keepsake/pkg/daemon/backup"
	"github.com/jamesainslie/keepsake/pkg/daemon/snapshot"
	"github.com/jamesainslie/keepsake/pkg/keepsake/logging"
)

// DefaultHistoryLimit is used when History is called with a zero limit.
const DefaultHistoryLimit = 30

// Service implements the Keepsake gRPC service on top of a Monitor.
type Service struct {
	monitor *Monitor
}

// NewService creates a gRPC service for m.
func NewService(m *Monitor) *Service {
	return &Service{monitor: m}
}

func encode(v any) (*structpb.Struct, error) {
	s, err := keepsakev1.Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

// GetStatus returns daemon health and today's tally.
func (s *Service) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return encode(s.monitor.Status())
}

// Flush writes today's summary and consolidated log.
func (s *Service) Flush(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.monitor.Flush(); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &emptypb.Empty{}, nil
}

// Snapshot copies the watched tree.
func (s *Service) Snapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res, err := s.monitor.Snapshot(ctx)
	switch {
	case errors.Is(err, snapshot.ErrDisabled):
		return nil, status.Error(codes.FailedPrecondition, "snapshots are disabled: set snapshot.root")
	case err != nil:
		return nil, status.Error(codes.Internal, err.Error())
	}
	return encode(keepsakev1.SnapshotResult{
		Path:     res.Path,
		Files:    res.Files,
		Dirs:     res.Dirs,
		Bytes:    res.Bytes,
		Errors:   res.Errors,
		Duration: res.Duration,
	})
}

// History returns archived days, newest first.
func (s *Service) History(_ context.Context, req *wrapperspb.Int32Value) (*structpb.Struct, error) {
	limit := int(req.GetValue())
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	days, err := s.monitor.History(limit)
	switch {
	case errors.Is(err, ErrNoArchive):
		return nil, status.Error(codes.Unavailable, err.Error())
	case err != nil:
		return nil, status.Error(codes.Internal, err.Error())
	}
	return encode(keepsakev1.HistoryResponse{Days: days})
}

// Backups lists the retained backups of a file.
func (s *Service) Backups(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "file name is required")
	}
	stem, backups, err := s.monitor.Backups(req.GetValue())
	switch {
	case errors.Is(err, backup.ErrInvalidStem):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case err != nil:
		return nil, status.Error(codes.Internal, err.Error())
	}
	return encode(keepsakev1.BackupsResponse{Stem: stem, Backups: backups})
}

// Shutdown gracefully shuts down the daemon once the response is sent.
func (s *Service) Shutdown(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	logging.Get("daemon").Info("shutdown requested over rpc")
	s.monitor.RequestShutdown()
	return &emptypb.Empty{}, nil
}

// WatchEvents streams accepted events until the client goes away or the
// daemon stops.
func (s *Service) WatchEvents(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	var wr keepsakev1.WatchRequest
	if err := keepsakev1.Decode(req, &wr); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	b := s.monitor.Broadcaster()
	sub := b.Subscribe(wr.Root, wr.Kinds...)
	if sub == nil {
		return status.Error(codes.Unavailable, "daemon is shutting down")
	}
	defer b.Unsubscribe(sub.ID)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events:
			if !ok {
				return nil
			}
			msg, err := encode(ev)
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

var _ keepsakev1.KeepsakeServer = (*Service)(nil)
