// Package model defines the LLM chat contract the "ai" check type binds
// to (spec §4, check type "ai"): a provider-agnostic ChatModel interface
// plus the message/tool/output shapes the anthropic, openai, and google
// sub-packages adapt to their respective SDKs.
package model

import "context"

// ChatModel is the contract internal/provider/ai invokes for every "ai"
// check. Implementations own provider authentication, request/response
// translation, and context-cancellation handling; retry and
// circuit-breaking are the caller's responsibility (internal/provider/ai
// wraps every call in a breaker, and internal/runtime applies the check's
// configured retry policy around the whole provider invocation).
type ChatModel interface {
	// Chat sends messages (conversation history, oldest first) plus an
	// optional tool list and returns the model's response. tools may be
	// nil when the check defines no tools.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is one turn in a conversation passed to Chat.
type Message struct {
	Role    string
	Content string
}

// Role constants for Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolSpec describes a tool the model may call, in JSON-Schema terms.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ChatOut is a model's response: generated text, requested tool calls, or
// both.
type ChatOut struct {
	Text      string
	ToolCalls []ToolCall
}

// ToolCall is one invocation the model is requesting, matching a ToolSpec
// by name.
type ToolCall struct {
	Name  string
	Input map[string]interface{}
}
