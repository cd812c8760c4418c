// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (an OpenAI-compatible
// endpoint, a local Ollama instance, Anthropic, ...) and exposes one uniform
// chat-completion call to the answer engines, plus token estimation and
// static capability metadata.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/oltiss/mattermost-bot/pkg/types"
)

// ErrGateway marks a failed chat-completion call. Providers wrap every
// request failure with it so callers can tell a gateway fault from their own
// errors using errors.Is.
var ErrGateway = errors.New("llm: gateway error")

// GatewayError wraps err with [ErrGateway] under the given provider prefix.
func GatewayError(provider, action string, err error) error {
	return fmt.Errorf("%s: %s: %w: %w", provider, action, ErrGateway, err)
}

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history.
	Messages []types.Message

	// Tools is the set of function declarations offered to the model, already
	// in the calling-schema shape. Nil or empty means the model is offered no
	// tools and must answer in text.
	Tools []Tool

	// Temperature controls output randomness. Nil means the provider default;
	// a pointer to 0 requests deterministic decoding.
	Temperature *float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int

	// SystemPrompt is an optional instruction injected before the conversation
	// history as a system-role message.
	SystemPrompt string

	// ResponseFormat, when set, asks the model to reply with JSON matching the
	// schema. Providers whose Capabilities report no structured output support
	// ignore it.
	ResponseFormat *ResponseFormat
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply. Empty when the model
	// responds exclusively with tool calls.
	Content string

	// ToolCalls lists all tool invocations requested by the model, in the
	// order the model returned them.
	ToolCalls []types.ToolCall

	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Request failures are wrapped with [ErrGateway].
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the number of tokens the given message list would
	// consume in the model's context window. The result should not undercount.
	CountTokens(messages []types.Message) (int, error)

	// Capabilities returns static metadata describing what the underlying
	// model supports.
	Capabilities() types.ModelCapabilities
}

// Temperature returns a pointer to t for use in [CompletionRequest].
func Temperature(t float64) *float64 { return &t }
