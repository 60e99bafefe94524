// Package keepsakev1 defines the keepsake.v1.Keepsake gRPC service.
//
// Messages are protobuf well-known types. Structured payloads travel as
// structpb.Struct and are converted to and from the Go types in this
// package with Encode and Decode.
package keepsakev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified service name.
const ServiceName = "keepsake.v1.Keepsake"

// Full method names.
const (
	Keepsake_GetStatus_FullMethodName   = "/keepsake.v1.Keepsake/GetStatus"
	Keepsake_Flush_FullMethodName       = "/keepsake.v1.Keepsake/Flush"
	Keepsake_Snapshot_FullMethodName    = "/keepsake.v1.Keepsake/Snapshot"
	Keepsake_History_FullMethodName     = "/keepsake.v1.Keepsake/History"
	Keepsake_Backups_FullMethodName     = "/keepsake.v1.Keepsake/Backups"
	Keepsake_Shutdown_FullMethodName    = "/keepsake.v1.Keepsake/Shutdown"
	Keepsake_WatchEvents_FullMethodName = "/keepsake.v1.Keepsake/WatchEvents"
)

// KeepsakeServer is the server API for the Keepsake service.
type KeepsakeServer interface {
	// GetStatus returns a Status.
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// Flush writes today's summary and consolidated log now.
	Flush(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	// Snapshot copies the watched tree and returns a SnapshotResult.
	Snapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// History returns a HistoryResponse with at most limit days.
	History(context.Context, *wrapperspb.Int32Value) (*structpb.Struct, error)
	// Backups returns a BackupsResponse for a file name.
	Backups(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// Shutdown starts a graceful shutdown.
	Shutdown(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	// WatchEvents streams AuditEvents matching a WatchRequest.
	WatchEvents(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// RegisterKeepsakeServer registers srv with s.
func RegisterKeepsakeServer(s grpc.ServiceRegistrar, srv KeepsakeServer) {
	s.RegisterService(&Keepsake_ServiceDesc, srv)
}

func _Keepsake_GetStatus_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KeepsakeServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Keepsake_GetStatus_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(KeepsakeServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Keepsake_Flush_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KeepsakeServer).Flush(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Keepsake_Flush_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(KeepsakeServer).Flush(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Keepsake_Snapshot_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KeepsakeServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Keepsake_Snapshot_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(KeepsakeServer).Snapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Keepsake_History_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KeepsakeServer).History(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Keepsake_History_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(KeepsakeServer).History(ctx, req.(*wrapperspb.Int32Value))
	}
	return interceptor(ctx, in, info, handler)
}

func _Keepsake_Backups_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KeepsakeServer).Backups(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Keepsake_Backups_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(KeepsakeServer).Backups(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Keepsake_Shutdown_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KeepsakeServer).Shutdown(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Keepsake_Shutdown_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(KeepsakeServer).Shutdown(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Keepsake_WatchEvents_Handler(srv any, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(KeepsakeServer).WatchEvents(m, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// Keepsake_ServiceDesc is the grpc.ServiceDesc for the Keepsake service.
var Keepsake_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*KeepsakeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: _Keepsake_GetStatus_Handler},
		{MethodName: "Flush", Handler: _Keepsake_Flush_Handler},
		{MethodName: "Snapshot", Handler: _Keepsake_Snapshot_Handler},
		{MethodName: "History", Handler: _Keepsake_History_Handler},
		{MethodName: "Backups", Handler: _Keepsake_Backups_Handler},
		{MethodName: "Shutdown", Handler: _Keepsake_Shutdown_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       _Keepsake_WatchEvents_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "keepsake/v1/keepsake.proto",
}

// KeepsakeClient is the client API for the Keepsake service.
type KeepsakeClient interface {
	GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	Flush(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Snapshot(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	History(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*structpb.Struct, error)
	Backups(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	Shutdown(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
	WatchEvents(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
}

type keepsakeClient struct {
	cc grpc.ClientConnInterface
}

// NewKeepsakeClient returns a client using cc.
func NewKeepsakeClient(cc grpc.ClientConnInterface) KeepsakeClient {
	return &keepsakeClient{cc}
}

func (c *keepsakeClient) GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Keepsake_GetStatus_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *keepsakeClient) Flush(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, Keepsake_Flush_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *keepsakeClient) Snapshot(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Keepsake_Snapshot_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *keepsakeClient) History(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Keepsake_History_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *keepsakeClient) Backups(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Keepsake_Backups_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *keepsakeClient) Shutdown(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, Keepsake_Shutdown_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *keepsakeClient) WatchEvents(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &Keepsake_ServiceDesc.Streams[0], Keepsake_WatchEvents_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
