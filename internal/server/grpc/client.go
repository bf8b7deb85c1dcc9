package grpcserver

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/and161185/passby/internal/convert"
)

// Client calls the membership service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// IsBlocked asks whether viewer and target are blocked in either direction.
func (c *Client) IsBlocked(ctx context.Context, viewer, target uuid.UUID, opts ...grpc.CallOption) (bool, error) {
	return c.call(ctx, MethodIsBlocked, viewer, target, opts...)
}

// IsMatched asks whether viewer and target are matched.
func (c *Client) IsMatched(ctx context.Context, viewer, target uuid.UUID, opts ...grpc.CallOption) (bool, error) {
	return c.call(ctx, MethodIsMatched, viewer, target, opts...)
}

func (c *Client) call(ctx context.Context, method string, viewer, target uuid.UUID, opts ...grpc.CallOption) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, method, convert.ToProtoPair(viewer, target), out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}
