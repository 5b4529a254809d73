package chat

import (
	"context"
	"encoding/json"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Message is one conversation entry in the model's view.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // set on assistant messages requesting tools
	ToolCallID string     // set on tool result messages
}

// ToolSpec advertises one callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Completion is one model response.
type Completion struct {
	Message      Message
	FinishReason string
}

// Engine is the hosted language model behind the chat. Implementations must
// support tool calling: a completion either carries final content or a list
// of tool calls to satisfy before the next round.
type Engine interface {
	// Complete sends the conversation and available tools to the model.
	Complete(ctx context.Context, messages []Message, tools []ToolSpec) (*Completion, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}
