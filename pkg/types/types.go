// Package types defines the shared types used across the bot's packages.
//
// These types are the common language between the language model gateway, the
// tool provider session and the answer engines. Each package keeps its own
// domain types; only cross-cutting data structures live here to avoid
// circular imports.
package types

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single message in an LLM conversation history.
//
// A conversation is an ordered, append-only slice of messages. Order is
// chronological and the model conditions on all of it.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser], [RoleAssistant] or [RoleTool].
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name.
	Name string

	// ToolCalls contains any tool invocations requested by the assistant.
	// Only set on assistant messages.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call this
	// message answers.
	ToolCallID string
}

// ToolCall represents a tool/function invocation requested by the LLM.
type ToolCall struct {
	// ID is the unique identifier for this tool call (provider-assigned).
	ID string

	// Name is the tool/function name.
	Name string

	// Arguments maps parameter names to values. It is normally an object
	// [Value]; a model that emits something else is passed through as-is so
	// the tool provider can reject it.
	Arguments Value
}

// ToolDefinition describes a tool that can be offered to an LLM.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// InputSchema is the JSON Schema describing the tool's input parameters.
	InputSchema Value
}

// ToolResult is the textual outcome of one dispatched tool call.
type ToolResult struct {
	// ToolName is the name of the tool that produced the output.
	ToolName string

	// Output is the text appended to the conversation as a tool message.
	Output string
}

// ModelCapabilities describes what a specific LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum number of tokens the model can process.
	ContextWindow int

	// MaxOutputTokens is the maximum number of tokens the model can generate.
	MaxOutputTokens int

	// SupportsToolCalling indicates whether the model supports function calling.
	SupportsToolCalling bool

	// SupportsStructuredOutput indicates whether the model can be constrained
	// to a JSON schema for its reply.
	SupportsStructuredOutput bool
}
