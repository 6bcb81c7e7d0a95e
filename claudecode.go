package claudecode

import "context"

// Version is reported to the CLI in CLAUDE_CODE_SDK.
const Version = "0.1.0"

var defaultClient = NewClient(Config{})

// Query runs prompt with a zero Config. See Client.Query.
func Query(ctx context.Context, prompt string, opts *Options, fn func(Message) error) error {
	return defaultClient.Query(ctx, prompt, opts, fn)
}

// Collect runs prompt with a zero Config. See Client.Collect.
func Collect(ctx context.Context, prompt string, opts *Options) ([]Message, error) {
	return defaultClient.Collect(ctx, prompt, opts)
}

// Ask runs prompt with a zero Config. See Client.Ask.
func Ask(ctx context.Context, prompt string) (string, error) {
	return defaultClient.Ask(ctx, prompt)
}
