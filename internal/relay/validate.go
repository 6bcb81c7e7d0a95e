package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// payloadValidators checks the payload of each client→server message type.
var payloadValidators = map[string]func(json.RawMessage) error{
	TypeQueryStart: func(raw json.RawMessage) error {
		var p QueryStartPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		if p.Prompt == "" {
			return errors.New("missing required field 'prompt'")
		}
		return nil
	},
	TypeQueryCancel: func(raw json.RawMessage) error {
		var p QueryCancelPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		if p.RunID == "" {
			return errors.New("missing required field 'runId'")
		}
		return nil
	},
}

// ValidateClientMessage parses a raw client message and checks its type and
// payload.
func ValidateClientMessage(raw []byte) (*Envelope, error) {
	var msg Envelope
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if msg.Type == "" {
		return nil, errors.New("missing 'type' field")
	}

	validate, ok := payloadValidators[msg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}
	if len(msg.Payload) == 0 {
		return nil, errors.New("missing 'payload' field")
	}
	if err := validate(msg.Payload); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", msg.Type, err)
	}
	return &msg, nil
}

// NewErrorEnvelope creates an error message ready to send to the client.
func NewErrorEnvelope(code, message string) (*Envelope, error) {
	return NewEnvelope(TypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}
