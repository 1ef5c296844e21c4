// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package qdrant

import (
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
)

// recordIDKey holds the caller's id; Qdrant point ids must be UUIDs or
// unsigned integers.
const recordIDKey = "_record_id"

func toPayload(id string, metadata map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = toValue(v)
	}
	payload[recordIDKey] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: id}}
	return payload
}

func toValue(v any) *pb.Value {
	switch tv := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{}}
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int32:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(tv)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case []string:
		values := make([]*pb.Value, len(tv))
		for i, s := range tv {
			values[i] = toValue(s)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
	case []any:
		values := make([]*pb.Value, len(tv))
		for i, e := range tv {
			values[i] = toValue(e)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
	case map[string]any:
		fields := make(map[string]*pb.Value, len(tv))
		for k, e := range tv {
			fields[k] = toValue(e)
		}
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

// fromPayload returns the record id and the caller's metadata.
func fromPayload(payload map[string]*pb.Value) (string, map[string]any) {
	id := payload[recordIDKey].GetStringValue()
	if len(payload) <= 1 {
		return id, nil
	}

	meta := make(map[string]any, len(payload)-1)
	for k, v := range payload {
		if k == recordIDKey {
			continue
		}
		meta[k] = fromValue(v)
	}
	return id, meta
}

// fromValue mirrors JSON decoding: integers come back as float64.
func fromValue(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_IntegerValue:
		return float64(kind.IntegerValue)
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_ListValue:
		out := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, e := range kind.ListValue.GetValues() {
			out = append(out, fromValue(e))
		}
		return out
	case *pb.Value_StructValue:
		out := make(map[string]any, len(kind.StructValue.GetFields()))
		for k, e := range kind.StructValue.GetFields() {
			out[k] = fromValue(e)
		}
		return out
	default:
		return nil
	}
}
