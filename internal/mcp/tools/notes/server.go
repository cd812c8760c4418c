// Package notes is a small MCP tool provider: it stores free-text notes and
// offers a few utility tools, a resource with the latest note and a prompt
// that asks the model to summarise the notes.
//
// The bot's tool engine talks to it like to any other MCP server; the
// notes-server command serves it over stdio, streamable HTTP or SSE.
package notes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/oltiss/mattermost-bot/internal/mcp/tools"
)

const (
	// ServerName is the implementation name announced during the handshake.
	ServerName = "notes"

	// LatestURI is the URI of the latest-note resource.
	LatestURI = "notes://latest"

	// SummaryPrompt is the name of the summary prompt.
	SummaryPrompt = "note_summary"

	noNotes = "No notes yet."
)

type addNoteArgs struct {
	Message string `json:"message" jsonschema:"the note text to save"`
}

type addNumbersArgs struct {
	A float64 `json:"a" jsonschema:"first number"`
	B float64 `json:"b" jsonschema:"second number"`
}

type greetingArgs struct {
	Name string `json:"name" jsonschema:"name of the person to greet"`
}

// NewServer returns an MCP server exposing store. version is announced to
// clients in the handshake.
func NewServer(store *Store, version string) (*mcpsdk.Server, error) {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: ServerName, Version: version}, nil)

	err := tools.AddText(srv, "add_note",
		"Save a user note. Use this when the user wants something remembered for later.",
		func(_ context.Context, in addNoteArgs) (string, error) {
			if err := store.Add(in.Message); err != nil {
				return "", err
			}
			return "Note saved!", nil
		})
	if err != nil {
		return nil, err
	}

	err = tools.AddText(srv, "read_notes",
		"Read every saved note. Use this to find out what the user stored earlier.",
		func(_ context.Context, _ struct{}) (string, error) {
			all := store.All()
			if len(all) == 0 {
				return noNotes, nil
			}
			return strings.Join(all, "\n"), nil
		})
	if err != nil {
		return nil, err
	}

	err = tools.AddText(srv, "add_numbers",
		"Add two numbers. Use this for simple arithmetic.",
		func(_ context.Context, in addNumbersArgs) (string, error) {
			return strconv.FormatFloat(in.A+in.B, 'f', -1, 64), nil
		})
	if err != nil {
		return nil, err
	}

	err = tools.AddText(srv, "greeting",
		"Greet the user by name.",
		func(_ context.Context, in greetingArgs) (string, error) {
			return fmt.Sprintf("Hello, %s!", in.Name), nil
		})
	if err != nil {
		return nil, err
	}

	srv.AddResource(&mcpsdk.Resource{
		URI:         LatestURI,
		Name:        "latest_note",
		Description: "The most recently saved note.",
		MIMEType:    "text/plain",
	}, func(_ context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
		text, ok := store.Latest()
		if !ok {
			text = noNotes
		}
		return &mcpsdk.ReadResourceResult{
			Contents: []*mcpsdk.ResourceContents{{URI: req.Params.URI, MIMEType: "text/plain", Text: text}},
		}, nil
	})

	srv.AddPrompt(&mcpsdk.Prompt{
		Name:        SummaryPrompt,
		Description: "Ask the model to summarise all saved notes.",
	}, func(_ context.Context, _ *mcpsdk.GetPromptRequest) (*mcpsdk.GetPromptResult, error) {
		return &mcpsdk.GetPromptResult{
			Messages: []*mcpsdk.PromptMessage{{
				Role:    "user",
				Content: &mcpsdk.TextContent{Text: summaryText(store.All())},
			}},
		}, nil
	})

	return srv, nil
}

func summaryText(all []string) string {
	if len(all) == 0 {
		return "There are no notes yet."
	}
	return "Summarize the current notes: " + strings.Join(all, "\n")
}
