package network

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodePayload marshals v as a google.protobuf.Struct. v must encode to a JSON
// object.
func EncodePayload(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode payload: not an object: %w", err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return proto.Marshal(st)
}

// DecodePayload unmarshals a payload written by EncodePayload into v.
func DecodePayload(b []byte, v any) error {
	var st structpb.Struct
	if err := proto.Unmarshal(b, &st); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return json.Unmarshal(raw, v)
}
