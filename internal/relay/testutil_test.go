package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chemistrywow31/claudecode"
)

// stubQuerier replays canned messages instead of running the CLI.
type stubQuerier struct {
	messages []claudecode.Message
	err      error
	gate     chan struct{} // when set, nothing is emitted until it is closed
	block    bool          // wait for cancellation after the messages

	mu      sync.Mutex
	prompts []string
	opts    []*claudecode.Options
}

func (q *stubQuerier) Query(ctx context.Context, prompt string, opts *claudecode.Options, fn func(claudecode.Message) error) error {
	q.mu.Lock()
	q.prompts = append(q.prompts, prompt)
	q.opts = append(q.opts, opts)
	q.mu.Unlock()

	if q.gate != nil {
		select {
		case <-q.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, msg := range q.messages {
		if err := fn(msg); err != nil {
			return err
		}
	}
	if q.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return q.err
}

func (q *stubQuerier) lastOptions() *claudecode.Options {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.opts) == 0 {
		return nil
	}
	return q.opts[len(q.opts)-1]
}

func conversation() []claudecode.Message {
	return []claudecode.Message{
		&claudecode.UserMessage{ID: "user-1", Text: "hi"},
		&claudecode.AssistantMessage{ID: "msg-1", Content: []claudecode.ContentBlock{claudecode.TextBlock{Text: "Hello!"}}},
		&claudecode.ResultMessage{
			ID:        "result-1",
			Status:    "success",
			Cost:      map[string]any{"usd": 0.25},
			SessionID: "sess-1",
		},
	}
}

func waitRun(t *testing.T, reg *Registry, id string) Run {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := reg.Wait(ctx, id)
	if err != nil {
		t.Fatalf("waiting for run %s: %v", id, err)
	}
	return run
}
