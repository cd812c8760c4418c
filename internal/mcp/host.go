// Package mcp defines how the bot talks to a Model Context Protocol (MCP)
// tool provider.
//
// The provider is a separate process (or an in-process server) exposing a
// discoverable set of tools. Every answer run acquires its own [Session]
// through a [Dialer], lists the tools exactly once, dispatches whatever the
// model asks for, and releases the session before returning. Tool lists are
// never cached across runs because providers may add or remove tools at any
// time.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/oltiss/mattermost-bot/pkg/types"
)

var (
	// ErrProviderUnavailable means a session could not be established or the
	// tool list could not be read. It aborts the run.
	ErrProviderUnavailable = errors.New("mcp: tool provider unavailable")

	// ErrToolDispatch means a named tool was not found or failed while
	// executing. It is recorded in the conversation, never fatal.
	ErrToolDispatch = errors.New("mcp: tool dispatch failed")
)

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name is the human-readable identifier for this server. Used in log
	// messages and errors.
	Name string

	// Transport specifies the connection mechanism.
	Transport Transport

	// Command is the executable path (and optional arguments) used when
	// Transport is "stdio".
	// Example: "/usr/local/bin/mattermost-bot notes-server --file notes.txt"
	Command string

	// URL is the endpoint address used when Transport is "streamable-http"
	// or "sse".
	// Example: "http://localhost:8000/sse"
	URL string

	// Env holds additional environment variables injected into the server
	// process when Transport is "stdio". May be nil.
	Env map[string]string
}

// ToolResult holds the outcome of a single tool execution.
type ToolResult struct {
	// Content is the tool's textual output, ready for insertion into the
	// conversation.
	Content string

	// IsError indicates that the tool returned an application-level error
	// (as opposed to a transport or protocol failure returned via the Go error
	// return value). When IsError is true, Content contains the error message.
	IsError bool

	// DurationMs is the wall-clock time in milliseconds from when the request
	// was dispatched until the full response was received.
	DurationMs int64
}

// Session is one live connection to a tool provider.
//
// A Session is owned by a single run and is not shared between goroutines.
type Session interface {
	// ListTools returns the provider's current tool catalogue in the order
	// the provider declares it.
	ListTools(ctx context.Context) ([]types.ToolDefinition, error)

	// CallTool invokes the named tool with the given arguments. A non-nil
	// *ToolResult is returned on success even when [ToolResult.IsError] is
	// true. A Go error wrapping [ErrToolDispatch] is returned on transport or
	// protocol failure.
	CallTool(ctx context.Context, name string, args types.Value) (*ToolResult, error)

	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// Dialer opens new sessions to a tool provider.
//
// Implementations must be safe for concurrent use; each call returns an
// independent session.
type Dialer interface {
	// Dial establishes a session. Failures wrap [ErrProviderUnavailable].
	Dial(ctx context.Context) (Session, error)
}

// WithSession dials a session, runs fn with it and always closes it before
// returning, whether fn succeeds, fails or panics.
func WithSession(ctx context.Context, d Dialer, fn func(Session) error) (err error) {
	s, err := d.Dial(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("mcp: close session: %w", cerr)
		}
	}()
	return fn(s)
}
