// Package grpcserver exposes relationship membership to other backend
// services over gRPC.
package grpcserver

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/and161185/passby/internal/convert"
	"github.com/and161185/passby/internal/errs"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "passby.relationship.v1.Relationship"

// Full method names.
const (
	MethodIsBlocked = "/" + ServiceName + "/IsBlocked"
	MethodIsMatched = "/" + ServiceName + "/IsMatched"
)

// Membership answers relationship questions about a pair.
type Membership interface {
	IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error)
	IsMatched(ctx context.Context, a, b uuid.UUID) (bool, error)
}

// RelationshipServer is the server API of the membership service.
type RelationshipServer interface {
	IsBlocked(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
	IsMatched(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
}

// Server wires the relationship graph into gRPC handlers.
type Server struct {
	graph Membership
}

var _ RelationshipServer = (*Server)(nil)

// New constructs the membership server.
func New(graph Membership) *Server { return &Server{graph: graph} }

// Register attaches srv to gs.
func Register(gs grpc.ServiceRegistrar, srv RelationshipServer) {
	gs.RegisterService(&ServiceDesc, srv)
}

// IsBlocked reports a block in either direction between viewer and target.
func (s *Server) IsBlocked(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	return s.ask(ctx, req, s.graph.IsBlocked)
}

// IsMatched reports whether viewer and target are matched.
func (s *Server) IsMatched(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	return s.ask(ctx, req, s.graph.IsMatched)
}

func (s *Server) ask(ctx context.Context, req *structpb.Struct, q func(context.Context, uuid.UUID, uuid.UUID) (bool, error)) (*wrapperspb.BoolValue, error) {
	viewer, target, err := convert.FromProtoPair(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad pair: %v", err)
	}
	ok, err := q(ctx, viewer, target)
	if err != nil {
		return nil, toStatus(err)
	}
	return convert.ToProtoBool(ok), nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrSelf):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		return status.Errorf(codes.Internal, "membership: %v", err)
	}
}
