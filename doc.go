// Package claudecode runs the Claude Code CLI and streams its conversation
// as typed messages.
//
// Each query spawns one CLI process. Output is decoded incrementally, so
// messages reach the caller while the agent is still working:
//
//	err := claudecode.Query(ctx, "list the files here", nil, func(msg claudecode.Message) error {
//		if a, ok := msg.(*claudecode.AssistantMessage); ok {
//			fmt.Println(a.Text())
//		}
//		return nil
//	})
//
// A Client carries settings shared by many queries, such as the CLI path,
// default options and a logger. Ask is a shortcut that returns only the
// assistant's text.
package claudecode
