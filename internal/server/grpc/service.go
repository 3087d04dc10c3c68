package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// The dispatch trigger service uses only well-known types, so its
// descriptor is declared here instead of being generated from a .proto.
const (
	ServiceName       = "crosspost.dispatch.v1.Dispatcher"
	RunDueBatchMethod = "/" + ServiceName + "/RunDueBatch"
)

// DispatcherServer is the server API of the trigger service.
type DispatcherServer interface {
	RunDueBatch(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

func runDueBatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DispatcherServer).RunDueBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RunDueBatchMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DispatcherServer).RunDueBatch(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var dispatcherServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DispatcherServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunDueBatch", Handler: runDueBatchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "crosspost/dispatch/v1/dispatch.proto",
}

func RegisterDispatcherServer(s grpc.ServiceRegistrar, srv DispatcherServer) {
	s.RegisterService(&dispatcherServiceDesc, srv)
}

// DispatcherClient calls the trigger service.
type DispatcherClient struct {
	cc grpc.ClientConnInterface
}

func NewDispatcherClient(cc grpc.ClientConnInterface) *DispatcherClient {
	return &DispatcherClient{cc: cc}
}

func (c *DispatcherClient) RunDueBatch(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RunDueBatchMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
