// Package protocol decodes the Claude Code CLI stream-json output into typed
// conversation messages.
package protocol

import (
	"encoding/json"
	"strings"
)

// Kind is the discriminant of a Message.
type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
	KindSystem    Kind = "system"
	KindResult    Kind = "result"
	KindThinking  Kind = "thinking"
)

// Message is one typed conversation event decoded from the CLI stream.
// The concrete types are *UserMessage, *AssistantMessage, *SystemMessage,
// *ResultMessage and *ThinkingMessage.
type Message interface {
	Kind() Kind
	MessageID() string
}

// BlockType is the discriminant of a ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockThinking   BlockType = "thinking"
)

// ContentBlock is one unit of an assistant turn.
type ContentBlock interface {
	BlockType() BlockType
}

// UserMessage is a user turn.
type UserMessage struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (UserMessage) Kind() Kind          { return KindUser }
func (m UserMessage) MessageID() string { return m.ID }
func (m UserMessage) MarshalJSON() ([]byte, error) {
	type plain UserMessage
	return marshalWithKind(KindUser, plain(m))
}

// AssistantMessage is an assistant turn. Thinking holds the newline-joined
// text of any thinking blocks, which are not part of Content.
type AssistantMessage struct {
	ID       string         `json:"id"`
	Content  []ContentBlock `json:"content"`
	Thinking string         `json:"thinking,omitempty"`
}

func (AssistantMessage) Kind() Kind          { return KindAssistant }
func (m AssistantMessage) MessageID() string { return m.ID }
func (m AssistantMessage) MarshalJSON() ([]byte, error) {
	type plain AssistantMessage
	return marshalWithKind(KindAssistant, plain(m))
}

// Text joins the text of every TextBlock in the message with newlines.
func (m AssistantMessage) Text() string {
	var parts []string
	for _, block := range m.Content {
		if text, ok := block.(TextBlock); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// SystemMessage carries CLI metadata such as the init record. RawMessage is
// the complete wire record as compact JSON text.
type SystemMessage struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	RawMessage string `json:"raw_message"`
}

func (SystemMessage) Kind() Kind          { return KindSystem }
func (m SystemMessage) MessageID() string { return m.ID }
func (m SystemMessage) MarshalJSON() ([]byte, error) {
	type plain SystemMessage
	return marshalWithKind(KindSystem, plain(m))
}

// ResultMessage is the final record of a query.
type ResultMessage struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Cost   map[string]any `json:"cost,omitempty"`
	Usage  map[string]any `json:"usage,omitempty"`

	SessionID  string `json:"session_id,omitempty"`
	Result     string `json:"result,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
	NumTurns   int    `json:"num_turns,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

func (ResultMessage) Kind() Kind          { return KindResult }
func (m ResultMessage) MessageID() string { return m.ID }
func (m ResultMessage) MarshalJSON() ([]byte, error) {
	type plain ResultMessage
	return marshalWithKind(KindResult, plain(m))
}

// CostUSD returns the "usd" entry of Cost when it is numeric.
func (m ResultMessage) CostUSD() (float64, bool) {
	switch v := m.Cost["usd"].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// ThinkingMessage is a standalone reasoning record.
type ThinkingMessage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

func (ThinkingMessage) Kind() Kind          { return KindThinking }
func (m ThinkingMessage) MessageID() string { return m.ID }
func (m ThinkingMessage) MarshalJSON() ([]byte, error) {
	type plain ThinkingMessage
	return marshalWithKind(KindThinking, plain(m))
}

// TextBlock is plain assistant text.
type TextBlock struct {
	Text string `json:"text"`
}

func (TextBlock) BlockType() BlockType { return BlockText }
func (b TextBlock) MarshalJSON() ([]byte, error) {
	type plain TextBlock
	return marshalWithType(BlockText, plain(b))
}

// ToolUseBlock is a tool invocation. Input is the decoded JSON input.
type ToolUseBlock struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input any    `json:"input"`
}

func (ToolUseBlock) BlockType() BlockType { return BlockToolUse }
func (b ToolUseBlock) MarshalJSON() ([]byte, error) {
	type plain ToolUseBlock
	return marshalWithType(BlockToolUse, plain(b))
}

// ToolResultBlock is the output of a tool invocation.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Output    any    `json:"output"`
	IsError   bool   `json:"is_error"`
}

func (ToolResultBlock) BlockType() BlockType { return BlockToolResult }
func (b ToolResultBlock) MarshalJSON() ([]byte, error) {
	type plain ToolResultBlock
	return marshalWithType(BlockToolResult, plain(b))
}

func marshalWithKind(kind Kind, v any) ([]byte, error) {
	return mergeDiscriminant("kind", string(kind), v)
}

func marshalWithType(blockType BlockType, v any) ([]byte, error) {
	return mergeDiscriminant("type", string(blockType), v)
}

// mergeDiscriminant marshals v and prepends a discriminant field to the
// resulting object.
func mergeDiscriminant(field, value string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	head, err := json.Marshal(map[string]string{field: value})
	if err != nil {
		return nil, err
	}
	if len(body) <= 2 {
		return head, nil
	}
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}
