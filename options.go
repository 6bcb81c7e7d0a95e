package claudecode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PermissionMode controls how the CLI asks for tool permissions.
type PermissionMode string

const (
	PermissionDefault           PermissionMode = "default"
	PermissionAcceptEdits       PermissionMode = "acceptEdits"
	PermissionBypassPermissions PermissionMode = "bypassPermissions"
)

// DefaultMaxThinkingTokens is the thinking budget NewOptions starts with.
const DefaultMaxThinkingTokens = 8000

// Options configures one query. The zero value is valid and leaves every
// CLI setting at its default.
type Options struct {
	AllowedTools       []string       `json:"allowed_tools,omitempty" yaml:"allowed_tools,omitempty"`
	BlockedTools       []string       `json:"blocked_tools,omitempty" yaml:"blocked_tools,omitempty"`
	PermissionMode     PermissionMode `json:"permission_mode,omitempty" yaml:"permission_mode,omitempty"`
	SystemPrompt       string         `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	AppendSystemPrompt string         `json:"append_system_prompt,omitempty" yaml:"append_system_prompt,omitempty"`
	Cwd                string         `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	Model              string         `json:"model,omitempty" yaml:"model,omitempty"`

	// MCPServers is passed to the CLI as {"mcpServers": MCPServers}
	// without interpretation.
	MCPServers map[string]any `json:"mcp_servers,omitempty" yaml:"mcp_servers,omitempty"`

	ContinueConversation bool   `json:"continue_conversation,omitempty" yaml:"continue_conversation,omitempty"`
	Resume               string `json:"resume,omitempty" yaml:"resume,omitempty"`
	MaxTurns             int    `json:"max_turns,omitempty" yaml:"max_turns,omitempty"`

	// MaxThinkingTokens is carried for callers but the CLI has no flag
	// for it, so it never reaches the argument list.
	MaxThinkingTokens int `json:"max_thinking_tokens,omitempty" yaml:"max_thinking_tokens,omitempty"`
}

// NewOptions returns Options with the default thinking budget.
func NewOptions() Options {
	return Options{MaxThinkingTokens: DefaultMaxThinkingTokens}
}

// Validate rejects unknown permission modes and negative limits.
func (o Options) Validate() error {
	switch o.PermissionMode {
	case "", PermissionDefault, PermissionAcceptEdits, PermissionBypassPermissions:
	default:
		return fmt.Errorf("unknown permission mode %q", o.PermissionMode)
	}
	if o.MaxTurns < 0 {
		return fmt.Errorf("max_turns must not be negative, got %d", o.MaxTurns)
	}
	if o.MaxThinkingTokens < 0 {
		return fmt.Errorf("max_thinking_tokens must not be negative, got %d", o.MaxThinkingTokens)
	}
	return nil
}

// CLIArgs returns the CLI arguments for o in a fixed order. Unset fields are
// left out; the prompt is appended by the transport.
func (o Options) CLIArgs() ([]string, error) {
	args := []string{"--output-format", "stream-json", "--verbose"}

	if o.SystemPrompt != "" {
		args = append(args, "--system-prompt", o.SystemPrompt)
	}
	if o.AppendSystemPrompt != "" {
		args = append(args, "--append-system-prompt", o.AppendSystemPrompt)
	}
	if len(o.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(o.AllowedTools, ","))
	}
	if len(o.BlockedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(o.BlockedTools, ","))
	}
	if o.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(o.MaxTurns))
	}
	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	if o.PermissionMode != "" && o.PermissionMode != PermissionDefault {
		args = append(args, "--permission-mode", string(o.PermissionMode))
	}
	if o.ContinueConversation {
		args = append(args, "--continue")
	}
	if o.Resume != "" {
		args = append(args, "--resume", o.Resume)
	}
	if o.Cwd != "" {
		args = append(args, "--add-dir", o.Cwd)
	}
	if len(o.MCPServers) > 0 {
		config, err := json.Marshal(map[string]any{"mcpServers": o.MCPServers})
		if err != nil {
			return nil, fmt.Errorf("encoding mcp config: %w", err)
		}
		args = append(args, "--mcp-config", string(config))
	}
	return args, nil
}

// withDefaults fills the empty SystemPrompt, Cwd, PermissionMode and Model
// fields of o from defaults.
func (o Options) withDefaults(defaults Options) Options {
	if o.SystemPrompt == "" {
		o.SystemPrompt = defaults.SystemPrompt
	}
	if o.Cwd == "" {
		o.Cwd = defaults.Cwd
	}
	if o.PermissionMode == "" {
		o.PermissionMode = defaults.PermissionMode
	}
	if o.Model == "" {
		o.Model = defaults.Model
	}
	return o
}

// OptionsFromMap builds Options from a loose map with snake_case keys, as
// produced by decoding JSON or YAML into map[string]any. Unknown keys and
// values of the wrong type are errors.
func OptionsFromMap(m map[string]any) (Options, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Options{}, fmt.Errorf("encoding options: %w", err)
	}
	return decodeOptionsJSON(data)
}

func decodeOptionsJSON(data []byte) (Options, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var opts Options
	if err := dec.Decode(&opts); err != nil {
		return Options{}, fmt.Errorf("decoding options: %w", err)
	}
	if dec.More() {
		return Options{}, errors.New("decoding options: trailing data after object")
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}
