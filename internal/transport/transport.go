// Package transport runs the Claude Code CLI as a child process and turns
// its output into protocol messages.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/chemistrywow31/claudecode/internal/protocol"
)

const (
	defaultGracePeriod    = 5 * time.Second
	defaultStderrTimeout  = 5 * time.Second
	defaultStderrMaxLines = 1000
	defaultStderrMaxBytes = 1024 * 1024 // 1 MB
)

// Transport is a single CLI invocation. ReceiveMessages may be called once
// per connection.
type Transport interface {
	Connect(ctx context.Context) error
	ReceiveMessages(ctx context.Context, fn func(protocol.Message) error) error
	Disconnect() error
	Connected() bool
}

// Config describes one CLI invocation.
type Config struct {
	// CLIPath is an explicit executable. Empty selects Locate's search.
	CLIPath string
	// Args are the option arguments, placed before "--print <prompt>".
	Args   []string
	Prompt string
	// Dir is the working directory of the child process.
	Dir string
	// Env holds extra variables added on top of the inherited environment.
	Env map[string]string
	// Version is reported to the CLI as CLAUDE_CODE_SDK=go/<Version>.
	Version string

	Logger *slog.Logger

	// GracePeriod is how long Disconnect waits after SIGTERM. Zero means 5s.
	GracePeriod time.Duration
	// DisableForceKill stops Disconnect from sending SIGKILL once the grace
	// period runs out.
	DisableForceKill bool

	// MaxBufferSize caps the decoder's accumulation buffer.
	MaxBufferSize int

	StderrMaxLines int
	StderrMaxBytes int

	// NewID synthesizes ids for records that carry none.
	NewID protocol.IDFunc

	// OnRecord, when set, observes every complete wire record before it is
	// parsed.
	OnRecord func(raw json.RawMessage)
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (c Config) gracePeriod() time.Duration {
	if c.GracePeriod > 0 {
		return c.GracePeriod
	}
	return defaultGracePeriod
}

func (c Config) stderrLimits() (lines, bytes int) {
	lines, bytes = c.StderrMaxLines, c.StderrMaxBytes
	if lines <= 0 {
		lines = defaultStderrMaxLines
	}
	if bytes <= 0 {
		bytes = defaultStderrMaxBytes
	}
	return lines, bytes
}

// argv returns the complete argument list of the child process.
func (c Config) argv() []string {
	args := make([]string, 0, len(c.Args)+2)
	args = append(args, c.Args...)
	return append(args, "--print", c.Prompt)
}
