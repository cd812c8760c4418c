// Package tools holds the registration helper shared by the built-in MCP
// tool servers. Each sub-package builds an [mcpsdk.Server] whose tools are
// registered through [AddText], so every built-in tool has a schema derived
// from its Go input type and answers with a single text content item.
package tools

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// TextHandler executes a tool with its decoded input and returns the text
// sent back to the caller. A non-nil error is reported to the client as a
// tool result with IsError set; it does not fail the protocol request.
// Implementations must be safe for concurrent use.
type TextHandler[In any] func(ctx context.Context, in In) (string, error)

// AddText registers a text-returning tool on srv. The input schema is
// inferred from In (json tags name the properties, jsonschema tags describe
// them; fields without omitempty are required).
func AddText[In any](srv *mcpsdk.Server, name, description string, h TextHandler[In]) error {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return fmt.Errorf("tools: %s: infer input schema: %w", name, err)
	}
	tool := &mcpsdk.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}
	mcpsdk.AddTool(srv, tool, func(ctx context.Context, _ *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, any, error) {
		text, err := h(ctx, in)
		if err != nil {
			return nil, nil, err
		}
		return TextResult(text), nil, nil
	})
	return nil
}

// TextResult wraps text in a tool result with one text content item.
func TextResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}
