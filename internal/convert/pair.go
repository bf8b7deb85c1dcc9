// Package convert maps domain values to the well-known protobuf messages
// carried by the relationship membership service.
package convert

import (
	"fmt"

	u "github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Field names of the membership request.
const (
	FieldViewer = "viewer_id"
	FieldTarget = "target_id"
)

// ToProtoPair packs a membership query into a Struct.
func ToProtoPair(viewer, target u.UUID) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldViewer: structpb.NewStringValue(viewer.String()),
		FieldTarget: structpb.NewStringValue(target.String()),
	}}
}

// FromProtoPair unpacks a membership query. Both ids are required.
func FromProtoPair(in *structpb.Struct) (viewer, target u.UUID, err error) {
	if in == nil {
		return u.Nil, u.Nil, fmt.Errorf("nil request")
	}
	if viewer, err = uuidField(in, FieldViewer); err != nil {
		return u.Nil, u.Nil, err
	}
	if target, err = uuidField(in, FieldTarget); err != nil {
		return u.Nil, u.Nil, err
	}
	return viewer, target, nil
}

func uuidField(in *structpb.Struct, name string) (u.UUID, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return u.Nil, fmt.Errorf("missing %s", name)
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return u.Nil, fmt.Errorf("%s: not a string", name)
	}
	var id u.UUID
	if err := id.UnmarshalText([]byte(s.StringValue)); err != nil {
		return u.Nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	if id == u.Nil {
		return u.Nil, fmt.Errorf("empty %s", name)
	}
	return id, nil
}

// ToProtoBool wraps a membership answer.
func ToProtoBool(v bool) *wrapperspb.BoolValue { return wrapperspb.Bool(v) }
