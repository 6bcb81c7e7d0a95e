package protocol

import (
	"reflect"
	"strings"
	"testing"
)

func mustParse(t *testing.T, raw string) Record {
	t.Helper()
	rec, err := ParseRecord([]byte(raw))
	if err != nil {
		t.Fatalf("ParseRecord(%s): %v", raw, err)
	}
	return rec
}

func fixedIDs(kind Kind) string { return "fixed-" + string(kind) }

func TestMapper_User(t *testing.T) {
	m := Mapper{NewID: fixedIDs}

	tests := []struct {
		name string
		raw  string
		want UserMessage
	}{
		{"text", `{"type":"user","id":"u1","text":"hi"}`, UserMessage{ID: "u1", Text: "hi"}},
		{"prompt", `{"type":"user","prompt":"from prompt"}`, UserMessage{ID: "fixed-user", Text: "from prompt"}},
		{"text wins over prompt", `{"type":"user","text":"a","prompt":"b"}`, UserMessage{ID: "fixed-user", Text: "a"}},
		{"nested string content", `{"type":"user","message":{"content":"nested"}}`, UserMessage{ID: "fixed-user", Text: "nested"}},
		{"nested block content", `{"type":"user","message":{"content":[{"type":"tool_result"}]}}`, UserMessage{ID: "fixed-user"}},
		{"empty", `{"type":"user"}`, UserMessage{ID: "fixed-user"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := m.Map(mustParse(t, tt.raw)).(*UserMessage)
			if !ok {
				t.Fatalf("expected *UserMessage")
			}
			if *msg != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, *msg)
			}
		})
	}
}

func TestMapper_AssistantNested(t *testing.T) {
	raw := `{"type":"assistant","message":{"id":"msg_01","content":[
		{"type":"thinking","thinking":"hmm"},
		{"type":"text","text":"Hello!"},
		{"type":"tool_use","id":"tu1","name":"Read","input":{"path":"a.go"}},
		{"type":"tool_result","tool_use_id":"tu1","content":"ok","is_error":true},
		{"type":"image","source":{}},
		{"type":"thinking","thinking":"done"}
	]}}`

	msg, ok := Mapper{}.Map(mustParse(t, raw)).(*AssistantMessage)
	if !ok {
		t.Fatal("expected *AssistantMessage")
	}
	if msg.ID != "msg_01" {
		t.Errorf("expected id msg_01, got %s", msg.ID)
	}
	if msg.Thinking != "hmm\ndone" {
		t.Errorf("expected joined thinking, got %q", msg.Thinking)
	}

	want := []ContentBlock{
		TextBlock{Text: "Hello!"},
		ToolUseBlock{ID: "tu1", Name: "Read", Input: map[string]any{"path": "a.go"}},
		ToolResultBlock{ToolUseID: "tu1", Output: "ok", IsError: true},
	}
	if !reflect.DeepEqual(msg.Content, want) {
		t.Errorf("unexpected content:\n got  %#v\n want %#v", msg.Content, want)
	}
}

func TestMapper_AssistantLegacyContent(t *testing.T) {
	raw := `{"type":"assistant","id":"a1","content":[{"type":"text","text":"one"},{"type":"text","text":"two"}]}`

	msg := Mapper{}.Map(mustParse(t, raw)).(*AssistantMessage)
	if msg.ID != "a1" {
		t.Errorf("expected id a1, got %s", msg.ID)
	}
	if msg.Text() != "one\ntwo" {
		t.Errorf("expected joined text, got %q", msg.Text())
	}
	if msg.Thinking != "" {
		t.Errorf("expected no thinking, got %q", msg.Thinking)
	}
}

func TestMapper_AssistantWithoutContent(t *testing.T) {
	msg := Mapper{NewID: fixedIDs}.Map(mustParse(t, `{"type":"assistant"}`)).(*AssistantMessage)
	if msg.Content == nil || len(msg.Content) != 0 {
		t.Errorf("expected empty non-nil content, got %#v", msg.Content)
	}
	if msg.ID != "fixed-assistant" {
		t.Errorf("expected synthesized id, got %s", msg.ID)
	}
}

func TestMapper_System(t *testing.T) {
	raw := `{ "type": "system", "subtype": "init", "session_id": "s1" }`
	msg := Mapper{NewID: fixedIDs}.Map(mustParse(t, raw)).(*SystemMessage)

	if msg.Title != "init" {
		t.Errorf("expected title init, got %s", msg.Title)
	}
	if msg.RawMessage != `{"type":"system","subtype":"init","session_id":"s1"}` {
		t.Errorf("unexpected raw message %s", msg.RawMessage)
	}

	bare := Mapper{NewID: fixedIDs}.Map(mustParse(t, `{"type":"system"}`)).(*SystemMessage)
	if bare.Title != "system" {
		t.Errorf("expected default title, got %s", bare.Title)
	}
}

func TestMapper_Result(t *testing.T) {
	raw := `{"type":"result","subtype":"success","total_cost_usd":0.5,"usage":{"input_tokens":10},
		"session_id":"s1","result":"Hello!","num_turns":2,"duration_ms":1200}`

	msg := Mapper{NewID: fixedIDs}.Map(mustParse(t, raw)).(*ResultMessage)
	if msg.Status != "success" {
		t.Errorf("expected status success, got %s", msg.Status)
	}
	usd, ok := msg.CostUSD()
	if !ok || usd != 0.5 {
		t.Errorf("expected cost 0.5, got %v (ok=%v)", usd, ok)
	}
	if msg.Usage["input_tokens"] != float64(10) {
		t.Errorf("unexpected usage %v", msg.Usage)
	}
	if msg.SessionID != "s1" || msg.Result != "Hello!" || msg.NumTurns != 2 || msg.DurationMS != 1200 {
		t.Errorf("unexpected result fields %+v", msg)
	}
}

func TestMapper_ResultFallbacks(t *testing.T) {
	raw := `{"type":"result","status":"error","cost":{"usd":1.25,"tokens":3}}`
	msg := Mapper{NewID: fixedIDs}.Map(mustParse(t, raw)).(*ResultMessage)

	if msg.Status != "error" {
		t.Errorf("expected status from status field, got %s", msg.Status)
	}
	want := map[string]any{"usd": 1.25, "tokens": float64(3)}
	if !reflect.DeepEqual(msg.Cost, want) {
		t.Errorf("expected cost %v, got %v", want, msg.Cost)
	}
}

func TestMapper_Thinking(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"type":"thinking","content":"from content","text":"x"}`, "from content"},
		{`{"type":"thinking","text":"from text"}`, "from text"},
		{`{"type":"thinking","message":"from message"}`, "from message"},
		{`{"type":"thinking","content":null,"text":"after null"}`, "after null"},
		{`{"type":"thinking"}`, ""},
	}

	for _, tt := range tests {
		msg := Mapper{NewID: fixedIDs}.Map(mustParse(t, tt.raw)).(*ThinkingMessage)
		if msg.Content != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.raw, tt.want, msg.Content)
		}
	}
}

func TestMapper_UnknownTypeSkipped(t *testing.T) {
	for _, raw := range []string{
		`{"type":"stream_event","event":{}}`,
		`{"type":"control_request"}`,
	} {
		if msg := (Mapper{}).Map(mustParse(t, raw)); msg != nil {
			t.Errorf("%s: expected nil, got %#v", raw, msg)
		}
	}
}

func TestMapper_SynthesizedIDsAreUnique(t *testing.T) {
	rec := mustParse(t, `{"type":"result","subtype":"success"}`)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := Mapper{}.Map(rec).MessageID()
		if !strings.HasPrefix(id, "result-") {
			t.Fatalf("expected result- prefix, got %s", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestMapper_EmptyIDFuncFallsBack(t *testing.T) {
	m := Mapper{NewID: func(Kind) string { return "" }}
	id := m.Map(mustParse(t, `{"type":"user","text":"x"}`)).MessageID()
	if !strings.HasPrefix(id, "user-") {
		t.Errorf("expected fallback id, got %q", id)
	}
}
