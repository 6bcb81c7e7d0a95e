package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Wire record types emitted by the CLI in stream-json mode.
const (
	RecordUser      = "user"
	RecordAssistant = "assistant"
	RecordSystem    = "system"
	RecordResult    = "result"
	RecordThinking  = "thinking"
)

// Record is the typed form of one wire record. Fields whose shape differs
// between record types stay raw and are interpreted by the Mapper.
type Record struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	ID      string `json:"id,omitempty"`

	Text   *string `json:"text,omitempty"`
	Prompt *string `json:"prompt,omitempty"`
	Status string  `json:"status,omitempty"`

	// Content is an array of blocks on legacy assistant records and a
	// string on thinking records.
	Content json.RawMessage `json:"content,omitempty"`
	// Message is the nested API message on assistant and user records and
	// may be a plain string on thinking records.
	Message json.RawMessage `json:"message,omitempty"`

	TotalCostUSD *float64       `json:"total_cost_usd,omitempty"`
	Cost         map[string]any `json:"cost,omitempty"`
	Usage        map[string]any `json:"usage,omitempty"`

	SessionID  string  `json:"session_id,omitempty"`
	Result     *string `json:"result,omitempty"`
	IsError    bool    `json:"is_error,omitempty"`
	NumTurns   int     `json:"num_turns,omitempty"`
	DurationMS int64   `json:"duration_ms,omitempty"`

	// Raw is the compact JSON text of the whole record.
	Raw json.RawMessage `json:"-"`
}

// nestedMessage is the "message" object of assistant and user records.
type nestedMessage struct {
	ID      string          `json:"id"`
	Content json.RawMessage `json:"content"`
}

// wireBlock is one element of a content array.
type wireBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Output    json.RawMessage `json:"output"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

var (
	ErrNotObject   = errors.New("wire record is not a JSON object")
	ErrMissingType = errors.New("wire record has no type")
)

// ParseRecord decodes one wire value into a Record. It is the single
// validation boundary for CLI output: values that are not objects or carry
// no type are rejected here, every other oddity is tolerated.
func ParseRecord(raw []byte) (Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Record{}, ErrNotObject
	}

	var rec Record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		// Fields of an unexpected shape; fall back to the envelope.
		var envelope struct {
			Type    string `json:"type"`
			Subtype string `json:"subtype"`
			ID      string `json:"id"`
		}
		if envErr := json.Unmarshal(trimmed, &envelope); envErr != nil {
			return Record{}, fmt.Errorf("parse wire record: %w", err)
		}
		rec = Record{Type: envelope.Type, Subtype: envelope.Subtype, ID: envelope.ID}
		rec.salvage(trimmed)
	}
	if rec.Type == "" {
		return Record{}, ErrMissingType
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return Record{}, fmt.Errorf("compact wire record: %w", err)
	}
	rec.Raw = compact.Bytes()
	return rec, nil
}

// salvage fills the fields that do decode when the record as a whole did
// not fit the Record shape.
func (r *Record) salvage(raw []byte) {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil {
		return
	}
	decode := func(key string, dst any) {
		if v, ok := fields[key]; ok {
			_ = json.Unmarshal(v, dst)
		}
	}
	decode("text", &r.Text)
	decode("prompt", &r.Prompt)
	decode("status", &r.Status)
	decode("total_cost_usd", &r.TotalCostUSD)
	decode("cost", &r.Cost)
	decode("usage", &r.Usage)
	decode("session_id", &r.SessionID)
	decode("result", &r.Result)
	r.Content = fields["content"]
	r.Message = fields["message"]
}

// nested decodes the record's "message" field when it is an object.
func (r Record) nested() (nestedMessage, bool) {
	var msg nestedMessage
	if len(r.Message) == 0 || r.Message[0] != '{' {
		return msg, false
	}
	if err := json.Unmarshal(r.Message, &msg); err != nil {
		return msg, false
	}
	return msg, true
}
