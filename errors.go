package claudecode

import (
	"github.com/chemistrywow31/claudecode/internal/protocol"
	"github.com/chemistrywow31/claudecode/internal/transport"
)

// Errors returned by queries. Match them with errors.As, or match any of
// them with errors.Is(err, ErrSDK).
type (
	// CLINotFoundError: the CLI executable could not be resolved or started.
	CLINotFoundError = transport.CLINotFoundError
	// ProcessError: the CLI exited with a non-zero status.
	ProcessError = transport.ProcessError
	// CLIJSONDecodeError: CLI output could not be decoded.
	CLIJSONDecodeError = protocol.CLIJSONDecodeError
)

// ErrBufferOverflow is wrapped by the CLIJSONDecodeError returned when one
// record outgrows Config.MaxBufferSize.
var ErrBufferOverflow = protocol.ErrBufferOverflow

var (
	// ErrSDK is matched by CLINotFoundError, ProcessError and
	// CLIJSONDecodeError.
	ErrSDK = protocol.ErrSDK
	// ErrCLIConnection is matched by CLINotFoundError.
	ErrCLIConnection = transport.ErrCLIConnection
)
