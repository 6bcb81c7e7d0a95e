package transport

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/chemistrywow31/claudecode/internal/protocol"
)

// writeFakeCLI writes an executable shell script standing in for the CLI.
func writeFakeCLI(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake CLI scripts need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "claude")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake cli: %v", err)
	}
	return path
}

func testConfig(cliPath string) Config {
	return Config{
		CLIPath:     cliPath,
		Args:        []string{"--output-format", "stream-json", "--verbose"},
		Prompt:      "hello",
		GracePeriod: 200 * time.Millisecond,
		NewID:       func(kind protocol.Kind) string { return "test-" + string(kind) },
	}
}

func collect(t *testing.T, tr Transport) ([]protocol.Message, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var msgs []protocol.Message
	err := tr.ReceiveMessages(ctx, func(msg protocol.Message) error {
		msgs = append(msgs, msg)
		return nil
	})
	return msgs, err
}
