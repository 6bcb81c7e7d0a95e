package claudecode

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/chemistrywow31/claudecode/internal/transcript"
	"github.com/chemistrywow31/claudecode/internal/transport"
)

// Config holds the settings shared by every query of a Client. The zero
// value searches for the CLI and logs nothing.
type Config struct {
	// CLIPath is the CLI executable. Empty searches CLAUDE_CODE_CLI_PATH,
	// PATH and the usual install locations.
	CLIPath string
	// Defaults supplies SystemPrompt, Cwd, PermissionMode and Model when a
	// query leaves them empty.
	Defaults Options
	Logger   *slog.Logger
	// Env holds extra variables for the CLI process.
	Env map[string]string

	// GracePeriod is the wait between SIGTERM and SIGKILL when a query is
	// torn down early. Zero means 5s.
	GracePeriod      time.Duration
	DisableForceKill bool
	// MaxBufferSize caps a single output record. Zero means 1 MiB.
	MaxBufferSize int

	// OneShot runs the CLI with plain JSON output and replays the reply
	// after the process exits.
	OneShot bool
	// TranscriptPath, when set, receives every wire record as JSONL.
	// A ".zst" suffix compresses it.
	TranscriptPath string
}

// Client runs queries against the CLI.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{cfg: cfg, logger: logger}
}

// errStopIteration ends a query when a range loop over Messages breaks.
var errStopIteration = errors.New("iteration stopped")

// Query runs prompt and calls fn for every message in arrival order. An
// error from fn stops the CLI and is returned. opts may be nil.
func (c *Client) Query(ctx context.Context, prompt string, opts *Options, fn func(Message) error) error {
	var o Options
	if opts != nil {
		o = *opts
	}
	o = o.withDefaults(c.cfg.Defaults)
	if err := o.Validate(); err != nil {
		return err
	}
	args, err := o.CLIArgs()
	if err != nil {
		return err
	}

	tcfg := transport.Config{
		CLIPath:          c.cfg.CLIPath,
		Args:             args,
		Prompt:           prompt,
		Dir:              o.Cwd,
		Env:              c.cfg.Env,
		Version:          Version,
		Logger:           c.logger,
		GracePeriod:      c.cfg.GracePeriod,
		DisableForceKill: c.cfg.DisableForceKill,
		MaxBufferSize:    c.cfg.MaxBufferSize,
	}

	if c.cfg.TranscriptPath != "" {
		w, err := transcript.Create(c.cfg.TranscriptPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				c.logger.Warn("closing transcript", "path", c.cfg.TranscriptPath, "error", err)
			}
		}()
		tcfg.OnRecord = func(raw json.RawMessage) {
			if err := w.Write(raw); err != nil {
				c.logger.Warn("writing transcript", "path", c.cfg.TranscriptPath, "error", err)
			}
		}
	}

	var tr transport.Transport
	if c.cfg.OneShot {
		tr = transport.NewOneShot(tcfg)
	} else {
		tr = transport.NewSubprocess(tcfg)
	}
	defer tr.Disconnect()

	start := time.Now()
	count := 0
	err = tr.ReceiveMessages(ctx, func(msg Message) error {
		count++
		return fn(msg)
	})
	c.logger.Debug("query finished", "messages", count, "duration", time.Since(start), "error", err)
	return err
}

// Collect runs prompt and returns every message. On error the messages
// received so far are returned with it.
func (c *Client) Collect(ctx context.Context, prompt string, opts *Options) ([]Message, error) {
	var msgs []Message
	err := c.Query(ctx, prompt, opts, func(msg Message) error {
		msgs = append(msgs, msg)
		return nil
	})
	return msgs, err
}

// Messages returns the messages of prompt as a sequence. Breaking out of
// the loop stops the CLI. A failure is yielded once, as the final element.
func (c *Client) Messages(ctx context.Context, prompt string, opts *Options) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		err := c.Query(ctx, prompt, opts, func(msg Message) error {
			if !yield(msg, nil) {
				return errStopIteration
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopIteration) {
			yield(nil, err)
		}
	}
}

// Ask runs prompt with the default options and returns the text blocks of
// every assistant message joined with newlines, or "" if there are none.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	msgs, err := c.Collect(ctx, prompt, nil)
	if err != nil {
		return "", err
	}
	return AssistantText(msgs), nil
}

// AssistantText joins the text blocks of every assistant message in msgs
// with newlines.
func AssistantText(msgs []Message) string {
	var parts []string
	for _, msg := range msgs {
		assistant, ok := msg.(*AssistantMessage)
		if !ok {
			continue
		}
		for _, block := range assistant.Content {
			if text, ok := block.(TextBlock); ok {
				parts = append(parts, text.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}
