package protocol

import (
	"errors"
	"fmt"
)

const maxErrorLineLen = 100

// ErrSDK is matched by every error type the client reports about the CLI:
// errors.Is(err, ErrSDK) holds for CLIJSONDecodeError and for the transport's
// CLINotFoundError and ProcessError.
var ErrSDK = errors.New("claude code sdk error")

// CLIJSONDecodeError reports CLI output that could not be decoded as JSON:
// a whole-output document that does not parse, or a streamed record that
// outgrew the decoder's buffer.
type CLIJSONDecodeError struct {
	Line string
	Err  error
}

// NewCLIJSONDecodeError creates a CLIJSONDecodeError for the offending text.
func NewCLIJSONDecodeError(line string, err error) *CLIJSONDecodeError {
	return &CLIJSONDecodeError{Line: line, Err: err}
}

func (e *CLIJSONDecodeError) Error() string {
	line := e.Line
	if len(line) > maxErrorLineLen {
		line = line[:maxErrorLineLen] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("failed to decode JSON: %v: %s", e.Err, line)
	}
	return fmt.Sprintf("failed to decode JSON: %s", line)
}

func (e *CLIJSONDecodeError) Unwrap() error { return e.Err }

func (e *CLIJSONDecodeError) Is(target error) bool { return target == ErrSDK }
