package transport

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/chemistrywow31/claudecode/internal/protocol"
)

var errInvalidDocument = errors.New("output is not a JSON document")

// ErrCLIConnection is matched by errors that kept the CLI from running at
// all. CLINotFoundError matches it as well as protocol.ErrSDK.
var ErrCLIConnection = fmt.Errorf("cli connection failed: %w", protocol.ErrSDK)

// CLINotFoundError is returned when the CLI executable cannot be resolved or
// fails to start.
type CLINotFoundError struct {
	CLIPath string
	Err     error
}

// NewCLINotFoundError creates a CLINotFoundError for the given path, which
// may be empty when the search found nothing.
func NewCLINotFoundError(cliPath string, err error) *CLINotFoundError {
	return &CLINotFoundError{CLIPath: cliPath, Err: err}
}

func (e *CLINotFoundError) Error() string {
	msg := "Claude Code not found"
	if e.CLIPath != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.CLIPath)
	} else {
		msg += "; install it with: npm install -g @anthropic-ai/claude-code"
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *CLINotFoundError) Unwrap() error { return e.Err }

func (e *CLINotFoundError) Is(target error) bool {
	return target == ErrCLIConnection || target == protocol.ErrSDK
}

// ProcessError is returned when the CLI exits with a non-zero status.
// ExitCode is -1 when the process was killed by a signal.
type ProcessError struct {
	ExitCode int
	Stderr   string
}

// NewProcessError creates a ProcessError.
func NewProcessError(exitCode int, stderr string) *ProcessError {
	return &ProcessError{ExitCode: exitCode, Stderr: stderr}
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("Claude Code process failed (exit code: %d)", e.ExitCode)
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s\nError output: %s", msg, e.Stderr)
	}
	return msg
}

func (e *ProcessError) Is(target error) bool { return target == protocol.ErrSDK }

// exitCode extracts the exit status from a cmd.Wait error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
