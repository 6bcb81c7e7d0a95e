package transport

import (
	"errors"
	"reflect"
	"testing"

	"github.com/chemistrywow31/claudecode/internal/protocol"
)

func TestOneShot_ExpandsResultDocument(t *testing.T) {
	cli := writeFakeCLI(t, `
case "$*" in
  *"--output-format json"*) ;;
  *) echo "missing json output format: $*" >&2; exit 2 ;;
esac
printf '%s' '{"type":"result","subtype":"success","result":"Hi there","session_id":"abc","total_cost_usd":0.1}'
`)

	msgs, err := collect(t, NewOneShot(testConfig(cli)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}

	user := msgs[0].(*protocol.UserMessage)
	if user.Text != "hello" {
		t.Errorf("expected the prompt as user text, got %q", user.Text)
	}
	assistant := msgs[1].(*protocol.AssistantMessage)
	if assistant.ID != "msg-abc" || assistant.Text() != "Hi there" {
		t.Errorf("unexpected assistant %+v", assistant)
	}
	result := msgs[2].(*protocol.ResultMessage)
	if result.SessionID != "abc" || result.Status != "success" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestOneShot_InvalidJSON(t *testing.T) {
	cli := writeFakeCLI(t, `echo 'not json at all'`)

	_, err := collect(t, NewOneShot(testConfig(cli)))
	var decodeErr *protocol.CLIJSONDecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected CLIJSONDecodeError, got %v", err)
	}
	if decodeErr.Line != "not json at all\n" {
		t.Errorf("expected the raw output, got %q", decodeErr.Line)
	}
}

func TestOneShot_FailureUsesStdoutWhenStderrEmpty(t *testing.T) {
	cli := writeFakeCLI(t, `
echo 'usage: claude [options]'
exit 1
`)

	_, err := collect(t, NewOneShot(testConfig(cli)))
	var procErr *ProcessError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ProcessError, got %v", err)
	}
	if procErr.ExitCode != 1 || procErr.Stderr != "usage: claude [options]" {
		t.Errorf("unexpected process error %+v", procErr)
	}
}

func TestExpandDocument(t *testing.T) {
	tests := []struct {
		name   string
		output string
		count  int
	}{
		{"result", `{"type":"result","result":"ok"}`, 3},
		{"null result", `{"type":"result","result":null}`, 0},
		{"missing result", `{"type":"result"}`, 0},
		{"other type", `{"type":"system","result":"ok"}`, 0},
		{"array", `[{"type":"result"}]`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := expandDocument([]byte(tt.output), "p")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(records) != tt.count {
				t.Errorf("expected %d records, got %d", tt.count, len(records))
			}
		})
	}

	if _, err := expandDocument([]byte("  "), "p"); err == nil {
		t.Error("expected an error for empty output")
	}
}

func TestExpandDocument_NoSessionID(t *testing.T) {
	records, err := expandDocument([]byte(`{"type":"result","result":"ok"}`), "p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, err := protocol.ParseRecord(records[1])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	msg := protocol.Mapper{NewID: func(protocol.Kind) string { return "synth" }}.Map(rec)
	if msg.MessageID() != "synth" {
		t.Errorf("expected a synthesized id, got %s", msg.MessageID())
	}
}

func TestOneShotArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "stream flags replaced",
			args: []string{"--output-format", "stream-json", "--verbose", "--model", "opus"},
			want: []string{"--output-format", "json", "--model", "opus", "--print", "q"},
		},
		{
			name: "format added",
			args: []string{"--continue"},
			want: []string{"--output-format", "json", "--continue", "--print", "q"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := oneShotArgs(Config{Args: tt.args, Prompt: "q"})
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
