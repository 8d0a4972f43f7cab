package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sodacore/sodacore/pkg/cqrs"
)

// wireFields are the Redis Streams entry field names this transport
// writes on publish and reads on consume.
const (
	fieldType       = "type"
	fieldEventID    = "id"
	fieldOccurredOn = "occurred_on"
	fieldEnvelope   = "envelope"
	fieldData       = "data"
	// fieldPayload is a legacy wrapper shape tolerated on decode: a single
	// two-element JSON array [eventType, payload], matching producers that
	// never adopted the separate type/data fields.
	fieldPayload = "payload"
)

// EncodeMessage renders evt into the field map written to a stream entry
// via XADD.
func EncodeMessage(evt cqrs.DomainEvent) (map[string]any, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, cqrs.NewSerializationFailure("encode", evt.EventType(), err)
	}
	envJSON, err := json.Marshal(evt.Envelope())
	if err != nil {
		return nil, cqrs.NewSerializationFailure("encode", evt.EventType(), err)
	}
	return map[string]any{
		fieldType:       evt.EventType(),
		fieldEventID:    evt.EventID(),
		fieldOccurredOn: evt.OccurredOn().Format(time.RFC3339Nano),
		fieldEnvelope:   string(envJSON),
		fieldData:       string(data),
	}, nil
}

// DecodedMessage is a stream entry after field extraction, before the
// payload has been unmarshalled into its concrete Go type.
type DecodedMessage struct {
	StreamEntryID string
	EventType     string
	EventID       string
	OccurredOn    time.Time
	EnvelopeJSON  []byte
	DataJSON      []byte
}

// DecodeFields extracts a DecodedMessage from a raw Redis Streams entry's
// field map, tolerating both the canonical {type, data} shape this
// transport writes and a legacy {payload: [type, data]} wrapper shape.
func DecodeFields(streamEntryID string, values map[string]any) (*DecodedMessage, error) {
	msg := &DecodedMessage{StreamEntryID: streamEntryID}

	typ, hasType := stringField(values, fieldType)
	data, hasData := stringField(values, fieldData)

	if !hasType || !hasData {
		if wrapped, ok := stringField(values, fieldPayload); ok {
			var pair []json.RawMessage
			if err := json.Unmarshal([]byte(wrapped), &pair); err != nil || len(pair) != 2 {
				return nil, cqrs.NewSerializationFailure("decode", "unknown", fmt.Errorf("unrecognized message shape for entry %s", streamEntryID))
			}
			var typeName string
			if err := json.Unmarshal(pair[0], &typeName); err != nil {
				return nil, cqrs.NewSerializationFailure("decode", "unknown", err)
			}
			typ, hasType = typeName, true
			data, hasData = string(pair[1]), true
		}
	}
	if !hasType || !hasData {
		return nil, cqrs.NewSerializationFailure("decode", "unknown", fmt.Errorf("stream entry %s missing type/data fields", streamEntryID))
	}

	msg.EventType = typ
	msg.DataJSON = []byte(data)

	if id, ok := stringField(values, fieldEventID); ok {
		msg.EventID = id
	}
	if occ, ok := stringField(values, fieldOccurredOn); ok {
		if t, err := time.Parse(time.RFC3339Nano, occ); err == nil {
			msg.OccurredOn = t
		}
	}
	if env, ok := stringField(values, fieldEnvelope); ok {
		msg.EnvelopeJSON = []byte(env)
	}
	return msg, nil
}

// Hydrate unmarshals msg's payload into a fresh instance produced by codec
// and returns it as a cqrs.DomainEvent.
func (msg *DecodedMessage) Hydrate(codec *Codec) (cqrs.DomainEvent, error) {
	evt, err := codec.New(msg.EventType)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(msg.DataJSON, evt); err != nil {
		return nil, cqrs.NewSerializationFailure("decode", msg.EventType, err)
	}
	if len(msg.EnvelopeJSON) > 0 {
		var env cqrs.Envelope
		if err := json.Unmarshal(msg.EnvelopeJSON, &env); err == nil {
			evt.Envelope().Merge(env)
		}
	}
	return evt, nil
}

func stringField(values map[string]any, key string) (string, bool) {
	v, ok := values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
