package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "sleepwatch.v1.AlarmControl"

// Full method names.
const (
	GetAlarmStateMethod = "/" + ServiceName + "/GetAlarmState"
	GetHistoryMethod    = "/" + ServiceName + "/GetHistory"
	StopAlarmMethod     = "/" + ServiceName + "/StopAlarm"
	PlayTestToneMethod  = "/" + ServiceName + "/PlayTestTone"
)

// AlarmControlServer is the server API for the AlarmControl service.
type AlarmControlServer interface {
	// GetAlarmState returns the current alarm state.
	GetAlarmState(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	// GetHistory returns recent detections, newest first.
	GetHistory(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	// StopAlarm silences the alarm on behalf of the actor in req.
	StopAlarm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	// PlayTestTone plays the test sound on behalf of the actor in req.
	PlayTestTone(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// AlarmControlClient is the client API for the AlarmControl service.
type AlarmControlClient interface {
	GetAlarmState(ctx context.Context, req *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetHistory(ctx context.Context, req *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	StopAlarm(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	PlayTestTone(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

// ServiceDesc describes the AlarmControl service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AlarmControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAlarmState", Handler: getAlarmStateHandler},
		{MethodName: "GetHistory", Handler: getHistoryHandler},
		{MethodName: "StopAlarm", Handler: stopAlarmHandler},
		{MethodName: "PlayTestTone", Handler: playTestToneHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sleepwatch/v1/control.proto",
}

// RegisterAlarmControlServer registers srv on s.
func RegisterAlarmControlServer(s grpc.ServiceRegistrar, srv AlarmControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unaryHandler adapts one typed server method to grpc.MethodDesc.Handler.
func unaryHandler[Req any, PReq interface {
	*Req
}](
	fullMethod string,
	call func(ctx context.Context, srv AlarmControlServer, req PReq) (*structpb.Struct, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return call(ctx, srv.(AlarmControlServer), in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}

		handler := func(ctx context.Context, req any) (any, error) {
			return call(ctx, srv.(AlarmControlServer), req.(PReq))
		}

		return interceptor(ctx, in, info, handler)
	}
}

var (
	getAlarmStateHandler = unaryHandler[emptypb.Empty](GetAlarmStateMethod,
		func(ctx context.Context, srv AlarmControlServer, req *emptypb.Empty) (*structpb.Struct, error) {
			return srv.GetAlarmState(ctx, req)
		})

	getHistoryHandler = unaryHandler[emptypb.Empty](GetHistoryMethod,
		func(ctx context.Context, srv AlarmControlServer, req *emptypb.Empty) (*structpb.Struct, error) {
			return srv.GetHistory(ctx, req)
		})

	stopAlarmHandler = unaryHandler[structpb.Struct](StopAlarmMethod,
		func(ctx context.Context, srv AlarmControlServer, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.StopAlarm(ctx, req)
		})

	playTestToneHandler = unaryHandler[structpb.Struct](PlayTestToneMethod,
		func(ctx context.Context, srv AlarmControlServer, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.PlayTestTone(ctx, req)
		})
)

// alarmControlClient implements AlarmControlClient over a connection.
type alarmControlClient struct {
	// cc carries the calls.
	cc grpc.ClientConnInterface
}

// NewAlarmControlClient creates a client stub on cc.
func NewAlarmControlClient(cc grpc.ClientConnInterface) AlarmControlClient {
	return &alarmControlClient{cc: cc}
}

func (c *alarmControlClient) GetAlarmState(
	ctx context.Context,
	req *emptypb.Empty,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	return invoke(ctx, c.cc, GetAlarmStateMethod, req, opts)
}

func (c *alarmControlClient) GetHistory(
	ctx context.Context,
	req *emptypb.Empty,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	return invoke(ctx, c.cc, GetHistoryMethod, req, opts)
}

func (c *alarmControlClient) StopAlarm(
	ctx context.Context,
	req *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	return invoke(ctx, c.cc, StopAlarmMethod, req, opts)
}

func (c *alarmControlClient) PlayTestTone(
	ctx context.Context,
	req *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	return invoke(ctx, c.cc, PlayTestToneMethod, req, opts)
}

func invoke(
	ctx context.Context,
	cc grpc.ClientConnInterface,
	method string,
	req any,
	opts []grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, method, req, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}
