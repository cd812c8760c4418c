// Package bridge wires an MCP tool provider session into the function-calling
// interface of a language model.
//
// [Adapt] is the tool catalog adapter: it converts the provider's tool list
// into the calling-schema shape the model gateway expects. A [Bridge] holds
// one session plus the catalogue listed at the start of the run, and routes
// the model's tool calls back through the session.
//
// Typical usage:
//
//	tools, err := session.ListTools(ctx)
//	if err != nil { ... }
//	b, err := bridge.New(session, tools)
//	if err != nil { ... }
//
//	resp, err := provider.Complete(ctx, llm.CompletionRequest{Tools: b.Tools(), ...})
//	for _, tc := range resp.ToolCalls {
//	    res, err := b.Call(ctx, tc) // res.Output is always usable
//	}
package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/oltiss/mattermost-bot/internal/mcp"
	"github.com/oltiss/mattermost-bot/pkg/provider/llm"
	"github.com/oltiss/mattermost-bot/pkg/types"
)

// defaultToolTimeout is the context deadline applied to each tool execution.
const defaultToolTimeout = 30 * time.Second

// Adapt converts a provider tool list into the model's calling schema. Each
// entry carries the "function" kind tag, the tool name, its description and
// its input schema unchanged. It is pure and total: N definitions in, N tools
// out, in the same order; an empty list yields an empty, non-nil slice.
func Adapt(defs []types.ToolDefinition) []llm.Tool {
	out := make([]llm.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, llm.Tool{
			Type: llm.ToolTypeFunction,
			Function: llm.Function{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.InputSchema,
			},
		})
	}
	return out
}

// Option is a functional option for configuring a [Bridge].
type Option func(*Bridge)

// WithToolTimeout sets the deadline applied to each individual tool
// execution. The default is 30 seconds; zero disables it.
func WithToolTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.toolTimeout = d
	}
}

// Bridge routes model tool calls to one MCP session.
//
// The bridge is tied to a single run and should be created once the tools
// are listed and discarded when the run ends. It does not close the session.
type Bridge struct {
	session     mcp.Session
	catalog     []types.ToolDefinition
	toolTimeout time.Duration
}

// New creates a Bridge over session with the catalogue listed for this run.
// Returns an error if session is nil.
func New(session mcp.Session, catalog []types.ToolDefinition, opts ...Option) (*Bridge, error) {
	if session == nil {
		return nil, fmt.Errorf("bridge: session must not be nil")
	}
	b := &Bridge{
		session:     session,
		catalog:     catalog,
		toolTimeout: defaultToolTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Tools returns the adapted catalogue to offer the model.
func (b *Bridge) Tools() []llm.Tool {
	return Adapt(b.catalog)
}

// Call dispatches one tool call. The call is not checked against the
// catalogue first; an unknown name is reported by the provider like any other
// dispatch failure.
//
// The returned result is always usable as a tool message: on failure its
// Output carries the error text. The error, wrapping [mcp.ErrToolDispatch],
// is returned alongside for logging and metrics only.
func (b *Bridge) Call(ctx context.Context, tc types.ToolCall) (types.ToolResult, error) {
	if b.toolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.toolTimeout)
		defer cancel()
	}

	res, err := b.session.CallTool(ctx, tc.Name, tc.Arguments)
	if err != nil {
		return types.ToolResult{
			ToolName: tc.Name,
			Output:   fmt.Sprintf("error: tool %q failed: %v%s", tc.Name, err, b.hint(tc.Name)),
		}, fmt.Errorf("bridge: tool %q execution failed: %w", tc.Name, err)
	}
	if res.IsError {
		out := types.ToolResult{ToolName: tc.Name, Output: "error: " + res.Content}
		return out, fmt.Errorf("bridge: tool %q reported an error: %w: %s", tc.Name, mcp.ErrToolDispatch, res.Content)
	}
	return types.ToolResult{ToolName: tc.Name, Output: res.Content}, nil
}
