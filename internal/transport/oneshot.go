package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/chemistrywow31/claudecode/internal/protocol"
)

// OneShot runs the CLI with a single JSON document as output and replays
// it as messages once the process has exited. It suits CLI builds whose
// streaming output is unavailable.
type OneShot struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	proc *process
}

var _ Transport = (*OneShot)(nil)

// NewOneShot creates a OneShot transport.
func NewOneShot(cfg Config) *OneShot {
	return &OneShot{cfg: cfg, logger: cfg.logger()}
}

// oneShotArgs switches the output format to json and drops --verbose.
func oneShotArgs(cfg Config) []string {
	args := make([]string, 0, len(cfg.Args)+4)
	hasFormat := false
	for i := 0; i < len(cfg.Args); i++ {
		switch arg := cfg.Args[i]; arg {
		case "--verbose":
		case "--output-format":
			hasFormat = true
			args = append(args, arg, "json")
			i++
		default:
			args = append(args, arg)
		}
	}
	if !hasFormat {
		args = append([]string{"--output-format", "json"}, args...)
	}
	return append(args, "--print", cfg.Prompt)
}

// Connect spawns the CLI. It does nothing while a process is already held.
func (t *OneShot) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.proc != nil {
		return nil
	}
	p, err := start(t.cfg, oneShotArgs(t.cfg), t.logger)
	if err != nil {
		return err
	}
	t.proc = p
	return nil
}

// ReceiveMessages waits for the CLI to finish, then delivers the user
// prompt, the assistant reply and the result record.
func (t *OneShot) ReceiveMessages(ctx context.Context, fn func(protocol.Message) error) error {
	if err := t.Connect(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	p := t.proc
	t.mu.Unlock()
	if p == nil {
		return ctx.Err()
	}
	if !p.receiving.CompareAndSwap(false, true) {
		return ErrAlreadyReceiving
	}
	defer t.release(p)

	stopWatch := context.AfterFunc(ctx, func() { t.release(p) })
	defer stopWatch()

	output, readErr := io.ReadAll(p.stdout)
	if err := ctx.Err(); err != nil {
		return err
	}
	if readErr != nil {
		t.logger.Warn("reading cli stdout", "error", readErr)
	}

	if err := p.waitExit(ctx, t.logger); err != nil {
		var procErr *ProcessError
		if errors.As(err, &procErr) && procErr.Stderr == "" {
			procErr.Stderr = string(bytes.TrimSpace(output))
		}
		return err
	}

	records, err := expandDocument(output, t.cfg.Prompt)
	if err != nil {
		return err
	}

	mapper := protocol.Mapper{NewID: t.cfg.NewID}
	for _, raw := range records {
		if t.cfg.OnRecord != nil {
			t.cfg.OnRecord(raw)
		}
		rec, err := protocol.ParseRecord(raw)
		if err != nil {
			t.logger.Debug("skipping wire record", "error", err)
			continue
		}
		if msg := mapper.Map(rec); msg != nil {
			if err := fn(msg); err != nil {
				return err
			}
		}
	}
	return nil
}

// expandDocument turns the CLI's single result document into the wire
// records a streaming run would have produced. Documents other than a
// result carrying a result value expand to nothing.
func expandDocument(output []byte, prompt string) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(output)
	if !json.Valid(trimmed) {
		return nil, protocol.NewCLIJSONDecodeError(string(output), errInvalidDocument)
	}

	var doc struct {
		Type      string          `json:"type"`
		Result    json.RawMessage `json:"result"`
		SessionID string          `json:"session_id"`
	}
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &doc) != nil {
		return nil, nil
	}
	if doc.Type != protocol.RecordResult || len(doc.Result) == 0 || string(doc.Result) == "null" {
		return nil, nil
	}

	text := string(doc.Result)
	var s string
	if json.Unmarshal(doc.Result, &s) == nil {
		text = s
	}

	user, err := json.Marshal(map[string]string{"type": protocol.RecordUser, "text": prompt})
	if err != nil {
		return nil, err
	}

	nested := map[string]any{
		"content": []map[string]string{{"type": string(protocol.BlockText), "text": text}},
	}
	if doc.SessionID != "" {
		nested["id"] = "msg-" + doc.SessionID
	}
	assistant, err := json.Marshal(map[string]any{"type": protocol.RecordAssistant, "message": nested})
	if err != nil {
		return nil, err
	}

	return []json.RawMessage{user, assistant, trimmed}, nil
}

// Disconnect terminates the process if it is still running.
func (t *OneShot) Disconnect() error {
	t.mu.Lock()
	p := t.proc
	t.mu.Unlock()
	if p != nil {
		t.release(p)
	}
	return nil
}

func (t *OneShot) release(p *process) {
	p.stopOnce.Do(func() {
		t.mu.Lock()
		if t.proc == p {
			t.proc = nil
		}
		t.mu.Unlock()

		p.stop(t.cfg.gracePeriod(), !t.cfg.DisableForceKill, t.logger)
	})
}

// Connected reports whether a process is held and has not exited.
func (t *OneShot) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.proc != nil && !t.proc.hasExited()
}
