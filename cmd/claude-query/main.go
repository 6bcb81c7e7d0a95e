// claude-query runs a single Claude Code query and prints the conversation.
//
// Usage:
//
//	claude-query [flags] <prompt>
//	echo "prompt" | claude-query [flags]
//
// Options come from --options-file first; flags given on the command line
// override the file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/chemistrywow31/claudecode"
	"github.com/chemistrywow31/claudecode/internal/logging"
)

// invocation is a parsed command line.
type invocation struct {
	prompt   string
	opts     claudecode.Options
	client   claudecode.Config
	jsonOut  bool
	ask      bool
	logLevel string
}

func parseArgs(args []string) (invocation, error) {
	var (
		inv         invocation
		optionsFile string
		mcpServers  string
		o           claudecode.Options
	)

	flagSet := pflag.NewFlagSet("claude-query", pflag.ContinueOnError)
	flagSet.StringVar(&o.SystemPrompt, "system-prompt", "", "replace the system prompt")
	flagSet.StringVar(&o.AppendSystemPrompt, "append-system-prompt", "", "append to the system prompt")
	flagSet.StringSliceVar(&o.AllowedTools, "allowed-tools", nil, "tools the model may use (comma separated)")
	flagSet.StringSliceVar(&o.BlockedTools, "blocked-tools", nil, "tools the model may not use (comma separated)")
	flagSet.StringVar((*string)(&o.PermissionMode), "permission-mode", "", "default, acceptEdits or bypassPermissions")
	flagSet.StringVar(&o.Cwd, "cwd", "", "working directory for the CLI")
	flagSet.StringVarP(&o.Model, "model", "m", "", "model name")
	flagSet.StringVar(&mcpServers, "mcp-servers", "", `MCP servers as a JSON object, e.g. '{"fs":{"command":"mcp-fs"}}'`)
	flagSet.BoolVarP(&o.ContinueConversation, "continue", "c", false, "continue the most recent conversation")
	flagSet.StringVarP(&o.Resume, "resume", "r", "", "resume the conversation with this session id")
	flagSet.IntVar(&o.MaxTurns, "max-turns", 0, "maximum agent turns")
	flagSet.IntVar(&o.MaxThinkingTokens, "max-thinking-tokens", 0, "thinking token budget")

	flagSet.StringVarP(&optionsFile, "options-file", "f", "", "YAML or JSONC options file")
	flagSet.BoolVar(&inv.jsonOut, "json", false, "print one JSON message per line")
	flagSet.BoolVar(&inv.ask, "ask", false, "print only the assistant's text")
	flagSet.BoolVar(&inv.client.OneShot, "oneshot", false, "use single-document JSON output instead of streaming")
	flagSet.StringVar(&inv.client.TranscriptPath, "transcript", "", "append raw CLI records to this JSONL file (.zst compresses)")
	flagSet.StringVar(&inv.client.CLIPath, "cli-path", "", "Claude Code executable")
	flagSet.StringVar(&inv.logLevel, "log-level", "warn", "debug, info, warn or error")

	if err := flagSet.Parse(args); err != nil {
		return inv, err
	}
	if inv.jsonOut && inv.ask {
		return inv, errors.New("--json and --ask are mutually exclusive")
	}

	if optionsFile != "" {
		loaded, err := claudecode.LoadOptions(optionsFile)
		if err != nil {
			return inv, err
		}
		inv.opts = loaded
	}

	if mcpServers != "" {
		if err := json.Unmarshal([]byte(mcpServers), &o.MCPServers); err != nil {
			return inv, fmt.Errorf("--mcp-servers: %w", err)
		}
	}

	// Flags given on the command line win over the file.
	overrides := map[string]func(){
		"system-prompt":        func() { inv.opts.SystemPrompt = o.SystemPrompt },
		"append-system-prompt": func() { inv.opts.AppendSystemPrompt = o.AppendSystemPrompt },
		"allowed-tools":        func() { inv.opts.AllowedTools = o.AllowedTools },
		"blocked-tools":        func() { inv.opts.BlockedTools = o.BlockedTools },
		"permission-mode":      func() { inv.opts.PermissionMode = o.PermissionMode },
		"cwd":                  func() { inv.opts.Cwd = o.Cwd },
		"model":                func() { inv.opts.Model = o.Model },
		"mcp-servers":          func() { inv.opts.MCPServers = o.MCPServers },
		"continue":             func() { inv.opts.ContinueConversation = o.ContinueConversation },
		"resume":               func() { inv.opts.Resume = o.Resume },
		"max-turns":            func() { inv.opts.MaxTurns = o.MaxTurns },
		"max-thinking-tokens":  func() { inv.opts.MaxThinkingTokens = o.MaxThinkingTokens },
	}
	flagSet.Visit(func(f *pflag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})

	if err := inv.opts.Validate(); err != nil {
		return inv, err
	}

	inv.prompt = strings.TrimSpace(strings.Join(flagSet.Args(), " "))
	return inv, nil
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		var procErr *claudecode.ProcessError
		if errors.As(err, &procErr) && procErr.ExitCode > 0 {
			os.Exit(procErr.ExitCode)
		}
		os.Exit(1)
	}
}

func run() error {
	inv, err := parseArgs(os.Args[1:])
	if err != nil {
		return err
	}

	if inv.prompt == "" && !term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading prompt from stdin: %w", err)
		}
		inv.prompt = strings.TrimSpace(string(data))
	}
	if inv.prompt == "" {
		return errors.New("no prompt given")
	}

	logger, err := logging.NewStderr(inv.logLevel)
	if err != nil {
		return err
	}
	inv.client.Logger = logger
	client := claudecode.NewClient(inv.client)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return execute(ctx, client, inv, os.Stdout, !term.IsTerminal(int(os.Stdout.Fd())))
}

// execute runs the query and writes its output to w.
func execute(ctx context.Context, client *claudecode.Client, inv invocation, w io.Writer, plain bool) error {
	switch {
	case inv.ask:
		msgs, err := client.Collect(ctx, inv.prompt, &inv.opts)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, claudecode.AssistantText(msgs))
		return err

	case inv.jsonOut:
		enc := json.NewEncoder(w)
		return client.Query(ctx, inv.prompt, &inv.opts, func(msg claudecode.Message) error {
			return enc.Encode(msg)
		})

	default:
		r := newRenderer(w, plain)
		return client.Query(ctx, inv.prompt, &inv.opts, r.Render)
	}
}
