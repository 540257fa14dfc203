package spool

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const envelopeVersion = 1

// Codec converts messages to and from the opaque payload bytes kept by a Store.
type Codec interface {
	// Encode serializes a message.
	Encode(msg Message) ([]byte, error)
	// Decode deserializes a payload. Failures must wrap ErrMalformedPayload.
	Decode(payload []byte) (Message, error)
}

// JSONCodec stores messages as a versioned JSON envelope.
type JSONCodec struct{}

type envelope struct {
	Version int              `json:"v"`
	Message *json.RawMessage `json:"message"`
}

// Encode implements Codec.
func (JSONCodec) Encode(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("spool: encode message: %w", err)
	}
	raw := json.RawMessage(body)

	return json.Marshal(envelope{Version: envelopeVersion, Message: &raw})
}

// Decode implements Codec. Payloads that are empty, not JSON, of another version or
// without a message object are reported as ErrMalformedPayload.
func (JSONCodec) Decode(payload []byte) (Message, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return Message{}, fmt.Errorf("%w: empty", ErrMalformedPayload)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Version != envelopeVersion {
		return Message{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedPayload, env.Version)
	}
	if env.Message == nil || len(*env.Message) == 0 || (*env.Message)[0] != '{' {
		return Message{}, fmt.Errorf("%w: missing message object", ErrMalformedPayload)
	}

	var msg Message
	if err := json.Unmarshal(*env.Message, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return msg, nil
}
