package protocol

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// IDFunc synthesizes a message id for records that carry none.
type IDFunc func(kind Kind) string

// NewID returns "<kind>-<random uuid>".
func NewID(kind Kind) string {
	return string(kind) + "-" + uuid.NewString()
}

// Mapper converts typed wire records into Messages.
type Mapper struct {
	// NewID synthesizes missing ids. Nil selects NewID.
	NewID IDFunc
}

// Map returns the Message for rec, or nil when the record type is not one
// of the five message kinds. Unknown types are skipped, not reported.
func (m Mapper) Map(rec Record) Message {
	switch rec.Type {
	case RecordUser:
		return m.user(rec)
	case RecordAssistant:
		return m.assistant(rec)
	case RecordSystem:
		title := rec.Subtype
		if title == "" {
			title = "system"
		}
		return &SystemMessage{
			ID:         m.id(rec.ID, KindSystem),
			Title:      title,
			RawMessage: string(rec.Raw),
		}
	case RecordResult:
		return m.result(rec)
	case RecordThinking:
		return &ThinkingMessage{
			ID:      m.id(rec.ID, KindThinking),
			Content: firstString(rec.Content, rawString(rec.Text), rec.Message),
		}
	default:
		return nil
	}
}

func (m Mapper) id(id string, kind Kind) string {
	if id != "" {
		return id
	}
	if m.NewID != nil {
		if synthesized := m.NewID(kind); synthesized != "" {
			return synthesized
		}
	}
	return NewID(kind)
}

func (m Mapper) user(rec Record) Message {
	text := ""
	switch {
	case rec.Text != nil:
		text = *rec.Text
	case rec.Prompt != nil:
		text = *rec.Prompt
	default:
		if nested, ok := rec.nested(); ok {
			var s string
			if json.Unmarshal(nested.Content, &s) == nil {
				text = s
			}
		}
	}
	return &UserMessage{ID: m.id(rec.ID, KindUser), Text: text}
}

func (m Mapper) assistant(rec Record) Message {
	id := rec.ID
	content := rec.Content
	if nested, ok := rec.nested(); ok {
		content = nested.Content
		if nested.ID != "" {
			id = nested.ID
		}
	}

	blocks, thinking := mapBlocks(content)
	return &AssistantMessage{
		ID:       m.id(id, KindAssistant),
		Content:  blocks,
		Thinking: thinking,
	}
}

func (m Mapper) result(rec Record) Message {
	status := rec.Subtype
	if status == "" {
		status = rec.Status
	}

	cost := rec.Cost
	if rec.TotalCostUSD != nil {
		cost = map[string]any{"usd": *rec.TotalCostUSD}
	}

	msg := &ResultMessage{
		ID:         m.id(rec.ID, KindResult),
		Status:     status,
		Cost:       cost,
		Usage:      rec.Usage,
		SessionID:  rec.SessionID,
		IsError:    rec.IsError,
		NumTurns:   rec.NumTurns,
		DurationMS: rec.DurationMS,
	}
	if rec.Result != nil {
		msg.Result = *rec.Result
	}
	return msg
}

// mapBlocks converts a raw content array into content blocks, in order.
// Thinking blocks are pulled out and joined with newlines; unknown block
// types and malformed elements are dropped.
func mapBlocks(raw json.RawMessage) ([]ContentBlock, string) {
	var elems []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &elems) != nil {
		return []ContentBlock{}, ""
	}

	blocks := make([]ContentBlock, 0, len(elems))
	var thinking []string
	for _, elem := range elems {
		var wb wireBlock
		if json.Unmarshal(elem, &wb) != nil {
			continue
		}
		switch BlockType(wb.Type) {
		case BlockText:
			blocks = append(blocks, TextBlock{Text: wb.Text})
		case BlockToolUse:
			blocks = append(blocks, ToolUseBlock{
				ID:    wb.ID,
				Name:  wb.Name,
				Input: decodeAny(wb.Input),
			})
		case BlockToolResult:
			output := wb.Output
			if len(output) == 0 {
				output = wb.Content
			}
			blocks = append(blocks, ToolResultBlock{
				ToolUseID: wb.ToolUseID,
				Output:    decodeAny(output),
				IsError:   wb.IsError,
			})
		case BlockThinking:
			thinking = append(thinking, wb.Thinking)
		}
	}
	return blocks, strings.Join(thinking, "\n")
}

func decodeAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if json.Unmarshal(raw, &v) != nil {
		return nil
	}
	return v
}

func rawString(s *string) json.RawMessage {
	if s == nil {
		return nil
	}
	b, _ := json.Marshal(*s)
	return b
}

// firstString returns the first candidate that is present and not null,
// as text. Strings are unquoted; other JSON values keep their JSON text.
func firstString(candidates ...json.RawMessage) string {
	for _, raw := range candidates {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
		return string(raw)
	}
	return ""
}
