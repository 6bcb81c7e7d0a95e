package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestMessage_MarshalIncludesDiscriminants(t *testing.T) {
	msg := &AssistantMessage{
		ID: "a1",
		Content: []ContentBlock{
			TextBlock{Text: "hi"},
			ToolUseBlock{ID: "t1", Name: "Bash", Input: map[string]any{"cmd": "ls"}},
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Kind    string `json:"kind"`
		ID      string `json:"id"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
			Name string `json:"name"`
		} `json:"content"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Kind != "assistant" || decoded.ID != "a1" {
		t.Errorf("unexpected envelope %s", data)
	}
	if len(decoded.Content) != 2 || decoded.Content[0].Type != "text" || decoded.Content[1].Type != "tool_use" {
		t.Errorf("unexpected blocks %s", data)
	}
	if strings.Contains(string(data), `"thinking"`) {
		t.Errorf("empty thinking should be omitted: %s", data)
	}
}

func TestMessage_KindsAndIDs(t *testing.T) {
	msgs := []Message{
		&UserMessage{ID: "1"},
		&AssistantMessage{ID: "2"},
		&SystemMessage{ID: "3"},
		&ResultMessage{ID: "4"},
		&ThinkingMessage{ID: "5"},
	}
	kinds := []Kind{KindUser, KindAssistant, KindSystem, KindResult, KindThinking}

	for i, msg := range msgs {
		if msg.Kind() != kinds[i] {
			t.Errorf("message %d: expected kind %s, got %s", i, kinds[i], msg.Kind())
		}
		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if !strings.HasPrefix(string(data), `{"kind":"`+string(kinds[i])+`",`) {
			t.Errorf("message %d: expected leading kind, got %s", i, data)
		}
	}
}

func TestResultMessage_CostUSD(t *testing.T) {
	if _, ok := (ResultMessage{}).CostUSD(); ok {
		t.Error("expected no cost on empty result")
	}
	if _, ok := (ResultMessage{Cost: map[string]any{"usd": "free"}}).CostUSD(); ok {
		t.Error("expected non-numeric cost to be rejected")
	}
	if v, ok := (ResultMessage{Cost: map[string]any{"usd": 2}}).CostUSD(); !ok || v != 2 {
		t.Errorf("expected 2, got %v", v)
	}
}

func TestCLIJSONDecodeError_Truncates(t *testing.T) {
	long := strings.Repeat("a", 250)
	err := NewCLIJSONDecodeError(long, errors.New("boom"))

	msg := err.Error()
	if !strings.Contains(msg, "boom") {
		t.Errorf("expected cause in message, got %s", msg)
	}
	if !strings.HasSuffix(msg, strings.Repeat("a", 100)+"...") {
		t.Errorf("expected truncated line, got %s", msg)
	}
	if len(err.Line) != 250 {
		t.Error("Line field should keep the full text")
	}
}
