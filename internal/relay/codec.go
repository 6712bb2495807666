package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lythra/lythra/internal/bus"
)

// EncodeEvent serializes e as a protobuf Struct. The payload is first
// normalized through JSON so structs and typed maps become plain values.
func EncodeEvent(e bus.Event) ([]byte, error) {
	fields := map[string]any{
		"type":      e.Type,
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if e.ModuleID != "" {
		fields["moduleId"] = e.ModuleID
	}
	if e.ModuleType != "" {
		fields["moduleType"] = e.ModuleType
	}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		var plain any
		if err := json.Unmarshal(raw, &plain); err != nil {
			return nil, fmt.Errorf("normalize payload: %w", err)
		}
		fields["payload"] = plain
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	return proto.Marshal(st)
}

// DecodeEvent is the inverse of EncodeEvent. Payloads come back as plain
// JSON values.
func DecodeEvent(data []byte) (bus.Event, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return bus.Event{}, fmt.Errorf("decode event: %w", err)
	}
	m := st.AsMap()
	e := bus.Event{Payload: m["payload"]}
	e.Type, _ = m["type"].(string)
	e.ModuleID, _ = m["moduleId"].(string)
	e.ModuleType, _ = m["moduleType"].(string)
	if ts, ok := m["timestamp"].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return bus.Event{}, fmt.Errorf("decode timestamp: %w", err)
		}
		e.Timestamp = t
	}
	if e.Type == "" {
		return bus.Event{}, fmt.Errorf("decode event: missing type")
	}
	return e, nil
}
