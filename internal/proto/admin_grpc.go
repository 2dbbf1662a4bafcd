// Package proto holds the gRPC contract of the EncryptionAdmin service
// described in admin.proto. Requests and responses are protobuf
// well-known types, so the package carries only the service stubs.
package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	EncryptionAdmin_MigrateEncryption_FullMethodName = "/openblind.admin.EncryptionAdmin/MigrateEncryption"
	EncryptionAdmin_VerifyEncryption_FullMethodName  = "/openblind.admin.EncryptionAdmin/VerifyEncryption"
	EncryptionAdmin_EncryptionStats_FullMethodName   = "/openblind.admin.EncryptionAdmin/EncryptionStats"
	EncryptionAdmin_MigrateEmails_FullMethodName     = "/openblind.admin.EncryptionAdmin/MigrateEmails"
)

// EncryptionAdminClient is the client API for EncryptionAdmin.
type EncryptionAdminClient interface {
	MigrateEncryption(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	VerifyEncryption(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	EncryptionStats(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	MigrateEmails(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type encryptionAdminClient struct {
	cc grpc.ClientConnInterface
}

func NewEncryptionAdminClient(cc grpc.ClientConnInterface) EncryptionAdminClient {
	return &encryptionAdminClient{cc}
}

func (c *encryptionAdminClient) call(ctx context.Context, method string, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *encryptionAdminClient) MigrateEncryption(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, EncryptionAdmin_MigrateEncryption_FullMethodName, in, opts...)
}

func (c *encryptionAdminClient) VerifyEncryption(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, EncryptionAdmin_VerifyEncryption_FullMethodName, in, opts...)
}

func (c *encryptionAdminClient) EncryptionStats(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, EncryptionAdmin_EncryptionStats_FullMethodName, in, opts...)
}

func (c *encryptionAdminClient) MigrateEmails(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, EncryptionAdmin_MigrateEmails_FullMethodName, in, opts...)
}

// EncryptionAdminServer is the server API for EncryptionAdmin.
// Implementations must embed UnimplementedEncryptionAdminServer.
type EncryptionAdminServer interface {
	MigrateEncryption(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	VerifyEncryption(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	EncryptionStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	MigrateEmails(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	mustEmbedUnimplementedEncryptionAdminServer()
}

// UnimplementedEncryptionAdminServer answers codes.Unimplemented for every
// method. Embed it by value.
type UnimplementedEncryptionAdminServer struct{}

func (UnimplementedEncryptionAdminServer) MigrateEncryption(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method MigrateEncryption not implemented")
}
func (UnimplementedEncryptionAdminServer) VerifyEncryption(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method VerifyEncryption not implemented")
}
func (UnimplementedEncryptionAdminServer) EncryptionStats(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method EncryptionStats not implemented")
}
func (UnimplementedEncryptionAdminServer) MigrateEmails(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method MigrateEmails not implemented")
}
func (UnimplementedEncryptionAdminServer) mustEmbedUnimplementedEncryptionAdminServer() {}

func RegisterEncryptionAdminServer(s grpc.ServiceRegistrar, srv EncryptionAdminServer) {
	s.RegisterService(&EncryptionAdmin_ServiceDesc, srv)
}

type adminCall func(EncryptionAdminServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)

func unaryHandler(method string, call adminCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EncryptionAdminServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(EncryptionAdminServer), ctx, req.(*emptypb.Empty))
		})
	}
}

// EncryptionAdmin_ServiceDesc is the grpc.ServiceDesc for EncryptionAdmin.
var EncryptionAdmin_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "openblind.admin.EncryptionAdmin",
	HandlerType: (*EncryptionAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "MigrateEncryption",
			Handler:    unaryHandler(EncryptionAdmin_MigrateEncryption_FullMethodName, EncryptionAdminServer.MigrateEncryption),
		},
		{
			MethodName: "VerifyEncryption",
			Handler:    unaryHandler(EncryptionAdmin_VerifyEncryption_FullMethodName, EncryptionAdminServer.VerifyEncryption),
		},
		{
			MethodName: "EncryptionStats",
			Handler:    unaryHandler(EncryptionAdmin_EncryptionStats_FullMethodName, EncryptionAdminServer.EncryptionStats),
		},
		{
			MethodName: "MigrateEmails",
			Handler:    unaryHandler(EncryptionAdmin_MigrateEmails_FullMethodName, EncryptionAdminServer.MigrateEmails),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/proto/admin.proto",
}
