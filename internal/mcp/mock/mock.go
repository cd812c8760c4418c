// Package mock provides in-memory test doubles for the [mcp.Dialer] and
// [mcp.Session] interfaces.
//
// [Session] records every method call for assertion in tests and exposes
// exported fields that control what the mock returns. [Dialer] hands out one
// shared Session. Both are safe for concurrent use via an internal
// [sync.Mutex].
//
// Typical usage:
//
//	s := &mock.Session{
//	    Tools:       []types.ToolDefinition{{Name: "read_notes"}},
//	    ToolResults: map[string]*mcp.ToolResult{"read_notes": {Content: "No notes yet."}},
//	}
//	d := &mock.Dialer{Session: s}
//
//	// inject d into the system under test …
//
//	if got := s.CallCount("CallTool"); got != 1 {
//	    t.Errorf("expected 1 CallTool call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/oltiss/mattermost-bot/internal/mcp"
	"github.com/oltiss/mattermost-bot/pkg/types"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Dialer is a configurable test double for [mcp.Dialer].
type Dialer struct {
	mu sync.Mutex

	// Session is returned by every successful Dial. When nil, an empty
	// Session is created on first use.
	Session *Session

	// DialErr is returned by [Dialer.Dial] when non-nil.
	DialErr error

	dials int
}

// Dial implements [mcp.Dialer].
func (d *Dialer) Dial(_ context.Context) (mcp.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	if d.Session == nil {
		d.Session = &Session{}
	}
	return d.Session, nil
}

// DialCount returns how many times Dial was invoked.
func (d *Dialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Session is a configurable test double for [mcp.Session].
// All exported *Err fields default to nil (success).
type Session struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// ──── ListTools ────────────────────────────────────────────────────────

	// Tools is returned by [Session.ListTools].
	Tools []types.ToolDefinition

	// ListToolsErr is returned by [Session.ListTools] when non-nil.
	ListToolsErr error

	// ──── CallTool ─────────────────────────────────────────────────────────

	// ToolResults maps tool names to their result. A tool without an entry
	// returns a zero-value *ToolResult.
	ToolResults map[string]*mcp.ToolResult

	// ToolErrs maps tool names to a dispatch error. Checked before
	// ToolResults.
	ToolErrs map[string]error

	// ──── Close ────────────────────────────────────────────────────────────

	// CloseErr is returned by [Session.Close] when non-nil.
	CloseErr error

	closed int
}

// Calls returns a copy of all recorded method invocations.
func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (s *Session) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Closed reports whether Close has been called at least once.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed > 0
}

// ListTools implements [mcp.Session].
func (s *Session) ListTools(_ context.Context) ([]types.ToolDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "ListTools"})
	if s.ListToolsErr != nil {
		return nil, s.ListToolsErr
	}
	out := make([]types.ToolDefinition, len(s.Tools))
	copy(out, s.Tools)
	return out, nil
}

// CallTool implements [mcp.Session].
func (s *Session) CallTool(_ context.Context, name string, args types.Value) (*mcp.ToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "CallTool", Args: []any{name, args}})
	if err, ok := s.ToolErrs[name]; ok && err != nil {
		return nil, err
	}
	res, ok := s.ToolResults[name]
	if !ok || res == nil {
		return &mcp.ToolResult{}, nil
	}
	// Return a copy so the caller cannot mutate the configured result.
	cp := *res
	return &cp, nil
}

// Close implements [mcp.Session].
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "Close"})
	s.closed++
	return s.CloseErr
}

// Ensure the mocks satisfy the interfaces at compile time.
var (
	_ mcp.Dialer  = (*Dialer)(nil)
	_ mcp.Session = (*Session)(nil)
)
