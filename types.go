package claudecode

import "github.com/chemistrywow31/claudecode/internal/protocol"

type (
	Message          = protocol.Message
	Kind             = protocol.Kind
	UserMessage      = protocol.UserMessage
	AssistantMessage = protocol.AssistantMessage
	SystemMessage    = protocol.SystemMessage
	ResultMessage    = protocol.ResultMessage
	ThinkingMessage  = protocol.ThinkingMessage

	ContentBlock    = protocol.ContentBlock
	BlockType       = protocol.BlockType
	TextBlock       = protocol.TextBlock
	ToolUseBlock    = protocol.ToolUseBlock
	ToolResultBlock = protocol.ToolResultBlock
)

const (
	KindUser      = protocol.KindUser
	KindAssistant = protocol.KindAssistant
	KindSystem    = protocol.KindSystem
	KindResult    = protocol.KindResult
	KindThinking  = protocol.KindThinking

	BlockText       = protocol.BlockText
	BlockToolUse    = protocol.BlockToolUse
	BlockToolResult = protocol.BlockToolResult
)
