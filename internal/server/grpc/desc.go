package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceDesc describes the membership service. Requests and responses
// are well-known protobuf types, so no generated stubs are needed.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelationshipServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "IsBlocked", Handler: isBlockedHandler},
		{MethodName: "IsMatched", Handler: isMatchedHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "passby/relationship/v1/relationship.proto",
}

func isBlockedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelationshipServer).IsBlocked(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodIsBlocked}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RelationshipServer).IsBlocked(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func isMatchedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelationshipServer).IsMatched(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodIsMatched}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RelationshipServer).IsMatched(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
