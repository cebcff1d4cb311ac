package api

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	entriesServiceName = "keygate.v1.Entries"
	entriesGetMethod   = "/" + entriesServiceName + "/Get"
	entriesSetMethod   = "/" + entriesServiceName + "/Set"
)

// EntriesServer is the gRPC form of the HTTP entry routes.
// Get takes the key and returns the value; Set takes {"key": ..., "value": ...}.
type EntriesServer interface {
	Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	Set(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// GRPCServer implements EntriesServer on top of a Server, sharing its store,
// guard and error mapping.
type GRPCServer struct {
	api *Server
}

var _ EntriesServer = (*GRPCServer)(nil)

// NewGRPCServer creates a new gRPC server with the given store.
func NewGRPCServer(api *Server) *GRPCServer {
	return &GRPCServer{api: api}
}

// RegisterGRPC registers the entries service and a health service that always
// reports SERVING, independent of the store.
func RegisterGRPC(reg grpc.ServiceRegistrar, api *Server) {
	reg.RegisterService(&entriesServiceDesc, NewGRPCServer(api))
	healthpb.RegisterHealthServer(reg, health.NewServer())
}

// Get retrieves a value by key.
func (g *GRPCServer) Get(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	key := req.GetValue()
	if key == "" {
		return nil, grpcError(&apiError{kind: kindBadRequest})
	}

	value, err := g.api.getEntry(ctx, key)
	if err != nil {
		return nil, grpcError(err)
	}
	return wrapperspb.String(value), nil
}

// Set stores a key-value pair. The write token travels in the
// "authorization" metadata entry.
func (g *GRPCServer) Set(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	credential, present := metadataCredential(md)
	if err := g.api.guard.Authorize(credential, present); err != nil {
		return nil, grpcError(err)
	}

	key, ok := stringField(req, "key")
	if !ok || key == "" {
		return nil, grpcError(&apiError{kind: kindBadRequest})
	}
	value, ok := stringField(req, "value")
	if !ok {
		return nil, grpcError(&apiError{kind: kindBadRequest})
	}
	if g.api.maxValueBytes > 0 && int64(len(value)) > g.api.maxValueBytes {
		return nil, grpcError(&apiError{kind: kindTooLarge})
	}
	if err := checkText([]byte(value)); err != nil {
		return nil, grpcError(err)
	}

	if err := g.api.setEntry(ctx, key, value); err != nil {
		return nil, grpcError(err)
	}
	return &emptypb.Empty{}, nil
}

func stringField(s *structpb.Struct, name string) (string, bool) {
	v, ok := s.GetFields()[name]
	if !ok {
		return "", false
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", false
	}
	return str.StringValue, true
}

// UnaryLogger logs one line per unary call.
func UnaryLogger(logger hclog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("rpc",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}

var entriesServiceDesc = grpc.ServiceDesc{
	ServiceName: entriesServiceName,
	HandlerType: (*EntriesServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: entriesGetHandler},
		{MethodName: "Set", Handler: entriesSetHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "keygate/v1/entries.proto",
}

func entriesGetHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EntriesServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: entriesGetMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EntriesServer).Get(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func entriesSetHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EntriesServer).Set(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: entriesSetMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EntriesServer).Set(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// EntriesClient calls the entries service.
type EntriesClient struct {
	cc grpc.ClientConnInterface
}

func NewEntriesClient(cc grpc.ClientConnInterface) *EntriesClient {
	return &EntriesClient{cc: cc}
}

// Get returns the string stored under key.
func (c *EntriesClient) Get(ctx context.Context, key string, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, entriesGetMethod, wrapperspb.String(key), out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Set stores value under key, presenting token as the write credential.
func (c *EntriesClient) Set(ctx context.Context, token, key, value string, opts ...grpc.CallOption) error {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"key":   structpb.NewStringValue(key),
		"value": structpb.NewStringValue(value),
	}}
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", token)
	return c.cc.Invoke(ctx, entriesSetMethod, in, new(emptypb.Empty), opts...)
}
