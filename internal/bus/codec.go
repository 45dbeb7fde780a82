package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Encodings accepted by EncodeEvent.
const (
	EncodingJSON     = "json"
	EncodingProtobuf = "protobuf"
)

// ContentType returns the MIME type recorded in the Kafka header.
func ContentType(encoding string) string {
	if encoding == EncodingProtobuf {
		return "application/x-protobuf; messageType=google.protobuf.Struct"
	}
	return "application/json"
}

// EncodeEvent serializes evt. The protobuf form is a google.protobuf.Struct
// with the same field names as the JSON form.
func EncodeEvent(evt *Event, encoding string) ([]byte, error) {
	switch encoding {
	case EncodingJSON, "":
		return json.Marshal(evt)
	case EncodingProtobuf:
		st, err := eventStruct(evt)
		if err != nil {
			return nil, err
		}
		return proto.Marshal(st)
	}
	return nil, fmt.Errorf("unknown event encoding %q", encoding)
}

// DecodeEvent reverses EncodeEvent.
func DecodeEvent(data []byte, encoding string) (*Event, error) {
	var evt Event
	switch encoding {
	case EncodingJSON, "":
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, err
		}
		return &evt, nil
	case EncodingProtobuf:
		var st structpb.Struct
		if err := proto.Unmarshal(data, &st); err != nil {
			return nil, err
		}
		m := st.AsMap()
		evt.ID, _ = m["id"].(string)
		evt.Type, _ = m["type"].(string)
		evt.ActorID, _ = m["actor_id"].(string)
		evt.EntityID, _ = m["entity_id"].(string)
		evt.Data, _ = m["data"].(map[string]any)
		if ts, ok := m["timestamp"].(string); ok {
			parsed, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return nil, fmt.Errorf("event timestamp: %w", err)
			}
			evt.Timestamp = parsed
		}
		return &evt, nil
	}
	return nil, fmt.Errorf("unknown event encoding %q", encoding)
}

// eventStruct round-trips through JSON so Data values of any JSON-compatible
// Go type become structpb values.
func eventStruct(evt *Event) (*structpb.Struct, error) {
	raw, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
