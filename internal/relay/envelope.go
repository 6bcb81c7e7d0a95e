package relay

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope wraps every WebSocket message.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope creates a server-originated message with the current timestamp.
func NewEnvelope(msgType string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Envelope{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server → Client message types.
const (
	TypeRunUpdate     = "run.update"
	TypeRunMessage    = "run.message"
	TypeRunFinished   = "run.finished"
	TypeOptionsUpdate = "options.update"
	TypeError         = "error"
)

// Client → Server message types.
const (
	TypeQueryStart  = "query.start"
	TypeQueryCancel = "query.cancel"
)

// Error codes.
const (
	ErrCodeRunNotFound    = "RUN_NOT_FOUND"
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeInvalidOptions = "INVALID_OPTIONS"
	ErrCodeMaxRuns        = "MAX_RUNS"
)

// Server → Client payloads.

type RunUpdatePayload struct {
	Run Run `json:"run"`
}

type RunMessagePayload struct {
	RunID   string          `json:"runId"`
	Message json.RawMessage `json:"message"`
}

type RunFinishedPayload struct {
	RunID    string   `json:"runId"`
	State    RunState `json:"state"`
	Error    string   `json:"error,omitempty"`
	ExitCode *int     `json:"exitCode,omitempty"`
}

type OptionsUpdatePayload struct {
	Path  string `json:"path"`
	Error string `json:"error,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Client → Server payloads.

type QueryStartPayload struct {
	Prompt  string         `json:"prompt"`
	Options map[string]any `json:"options,omitempty"`
}

type QueryCancelPayload struct {
	RunID string `json:"runId"`
}
