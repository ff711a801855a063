package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name of the admin API.
const ServiceName = "clavionx.admin.v1.AdminService"

// Full method names, used by the interceptors' permission and audit tables.
const (
	FullMethodUnlockAccount         = "/" + ServiceName + "/UnlockAccount"
	FullMethodTerminateUserSessions = "/" + ServiceName + "/TerminateUserSessions"
	FullMethodRevokeUserDevices     = "/" + ServiceName + "/RevokeUserDevices"
	FullMethodListUserSessions      = "/" + ServiceName + "/ListUserSessions"
)

// AdminServiceServer is the server API for the admin service. Requests and responses are
// google.protobuf.Struct so the service needs no generated message types.
type AdminServiceServer interface {
	UnlockAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TerminateUserSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RevokeUserDevices(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListUserSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type adminCall func(AdminServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call adminCall) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AdminServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(AdminServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AdminServiceDesc is the grpc.ServiceDesc for the admin service.
var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "UnlockAccount", Handler: unaryHandler(FullMethodUnlockAccount, AdminServiceServer.UnlockAccount)},
		{MethodName: "TerminateUserSessions", Handler: unaryHandler(FullMethodTerminateUserSessions, AdminServiceServer.TerminateUserSessions)},
		{MethodName: "RevokeUserDevices", Handler: unaryHandler(FullMethodRevokeUserDevices, AdminServiceServer.RevokeUserDevices)},
		{MethodName: "ListUserSessions", Handler: unaryHandler(FullMethodListUserSessions, AdminServiceServer.ListUserSessions)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clavionx/admin/v1/admin.proto",
}

// RegisterAdminServiceServer registers srv on s.
func RegisterAdminServiceServer(s grpc.ServiceRegistrar, srv AdminServiceServer) {
	s.RegisterService(&AdminServiceDesc, srv)
}

// Client calls the admin service over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a Client using cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes fullMethod with in and returns the decoded response.
func (c *Client) Call(ctx context.Context, fullMethod string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
