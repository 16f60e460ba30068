package api

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/wphook/internal/bus"
	"github.com/matheus3301/wphook/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	EventServiceName = "wphook.v1.EventService"

	watchMethod = "/" + EventServiceName + "/Watch"
	statsMethod = "/" + EventServiceName + "/Stats"
)

// EventServiceServer is the server API for the event service. Messages are
// protobuf well-known types so no generated code is needed.
type EventServiceServer interface {
	Watch(*wrapperspb.StringValue, grpc.ServerStreamingServer[structpb.Struct]) error
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// EventServiceDesc describes wphook.v1.EventService for grpc.Server.
var EventServiceDesc = grpc.ServiceDesc{
	ServiceName: EventServiceName,
	HandlerType: (*EventServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Stats", Handler: statsHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "wphook/v1/events.proto",
}

// RegisterEventServiceServer registers srv on s.
func RegisterEventServiceServer(s grpc.ServiceRegistrar, srv EventServiceServer) {
	s.RegisterService(&EventServiceDesc, srv)
}

func statsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventServiceServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: statsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EventServiceServer).Stats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	m := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(EventServiceServer).Watch(m, &grpc.GenericServerStream[wrapperspb.StringValue, structpb.Struct]{ServerStream: stream})
}

// StatsSource is implemented by *conversation.Service.
type StatsSource interface {
	Stats(ctx context.Context) (*store.Stats, error)
}

// EventService streams bus events to local tools over the daemon socket.
type EventService struct {
	bus   *bus.Bus
	stats StatsSource
}

func NewEventService(b *bus.Bus, stats StatsSource) *EventService {
	return &EventService{bus: b, stats: stats}
}

// Watch streams every event whose kind starts with the requested prefix until
// the client goes away. An empty prefix streams everything.
func (s *EventService) Watch(req *wrapperspb.StringValue, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ch, unsub := s.bus.Subscribe(strings.TrimSpace(req.GetValue()), 64)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			msg, err := EventToStruct(evt)
			if err != nil {
				return grpcstatus.Errorf(codes.Internal, "encode event: %v", err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *EventService) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := s.stats.Stats(ctx)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "stats: %v", err)
	}
	out, err := structpb.NewStruct(map[string]any{
		"totalMessages":      float64(st.TotalMessages),
		"totalConversations": float64(st.TotalConversations),
		"sentCount":          float64(st.Sent),
		"deliveredCount":     float64(st.Delivered),
		"readCount":          float64(st.Read),
	})
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode stats: %v", err)
	}
	return out, nil
}

// EventToStruct renders a bus event as {event_id, kind, occurred_at_unix_ms, payload}.
func EventToStruct(evt bus.Event) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"event_id":            uuid.NewString(),
		"kind":                evt.Kind,
		"occurred_at_unix_ms": float64(evt.Timestamp.UnixMilli()),
		"payload":             evt.Fields(),
	})
}

// EventServiceClient is the client API for the event service.
type EventServiceClient interface {
	Watch(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
	Stats(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type eventServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewEventServiceClient(cc grpc.ClientConnInterface) EventServiceClient {
	return &eventServiceClient{cc: cc}
}

func (c *eventServiceClient) Watch(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &EventServiceDesc.Streams[0], watchMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[wrapperspb.StringValue, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *eventServiceClient) Stats(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, statsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
