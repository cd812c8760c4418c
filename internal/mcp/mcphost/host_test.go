package mcphost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/oltiss/mattermost-bot/internal/mcp"
	"github.com/oltiss/mattermost-bot/pkg/types"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

type echoArgs struct {
	Text string `json:"text" jsonschema:"text to echo back"`
}

type sumArgs struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// newTestServer returns an in-process MCP server with an echo tool, a sum
// tool and a tool that always fails.
func newTestServer() *mcpsdk.Server {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "test", Version: "0.0.1"}, nil)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{Name: "echo", Description: "echoes text"},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, in echoArgs) (*mcpsdk.CallToolResult, any, error) {
			return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: in.Text}}}, nil, nil
		})
	mcpsdk.AddTool(srv, &mcpsdk.Tool{Name: "sum", Description: "adds two numbers"},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, in sumArgs) (*mcpsdk.CallToolResult, any, error) {
			return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprint(in.A + in.B)}}}, nil, nil
		})
	mcpsdk.AddTool(srv, &mcpsdk.Tool{Name: "broken", Description: "always fails"},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, any, error) {
			return nil, nil, errors.New("disk on fire")
		})
	return srv
}

func dialTest(t *testing.T) mcp.Session {
	t.Helper()
	h, err := New(mcp.ServerConfig{Name: "test"}, WithInProcessServer(newTestServer()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s, err := h.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

// TestListTools verifies that every server tool is listed with its schema.
func TestListTools(t *testing.T) {
	t.Parallel()
	s := dialTest(t)

	tools, err := s.ListTools(context.Background())
	must(t, err)
	if len(tools) != 3 {
		t.Fatalf("got %d tools, want 3", len(tools))
	}
	byName := map[string]types.ToolDefinition{}
	for _, td := range tools {
		byName[td.Name] = td
	}
	echo, ok := byName["echo"]
	if !ok {
		t.Fatal("echo tool missing")
	}
	if echo.Description != "echoes text" {
		t.Errorf("description = %q, want %q", echo.Description, "echoes text")
	}
	props, ok := echo.InputSchema.Get("properties")
	if !ok {
		t.Fatalf("echo schema has no properties: %s", echo.InputSchema)
	}
	if _, ok := props.Get("text"); !ok {
		t.Errorf("echo schema lacks the text property: %s", echo.InputSchema)
	}
}

// TestCallTool verifies argument passing and text extraction.
func TestCallTool(t *testing.T) {
	t.Parallel()
	s := dialTest(t)

	args := types.Object(
		types.Field{Key: "a", Value: types.Int(2)},
		types.Field{Key: "b", Value: types.Int(3)},
	)
	res, err := s.CallTool(context.Background(), "sum", args)
	must(t, err)
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", res.Content)
	}
	if res.Content != "5" {
		t.Errorf("got %q, want %q", res.Content, "5")
	}
}

// TestCallToolNullArguments verifies that null arguments are sent as {} and
// reach the handler.
func TestCallToolNullArguments(t *testing.T) {
	t.Parallel()
	s := dialTest(t)

	res, err := s.CallTool(context.Background(), "broken", types.Null())
	must(t, err)
	if !res.IsError || res.Content != "disk on fire" {
		t.Errorf("got %+v, want the handler's error result", res)
	}
}

// TestCallToolInvalidArguments verifies that arguments failing the input
// schema map to ErrToolDispatch.
func TestCallToolInvalidArguments(t *testing.T) {
	t.Parallel()
	s := dialTest(t)

	_, err := s.CallTool(context.Background(), "sum", types.Object(types.Field{Key: "a", Value: types.String("two")}))
	if !errors.Is(err, mcp.ErrToolDispatch) {
		t.Fatalf("expected ErrToolDispatch, got %v", err)
	}
}

// TestCallToolApplicationError verifies that a failing handler produces an
// IsError result, not a Go error.
func TestCallToolApplicationError(t *testing.T) {
	t.Parallel()
	s := dialTest(t)

	res, err := s.CallTool(context.Background(), "broken", types.Object())
	must(t, err)
	if !res.IsError {
		t.Fatal("expected IsError result")
	}
	if res.Content != "disk on fire" {
		t.Errorf("got %q, want %q", res.Content, "disk on fire")
	}
}

// TestCallToolUnknown verifies that an unknown tool maps to ErrToolDispatch.
func TestCallToolUnknown(t *testing.T) {
	t.Parallel()
	s := dialTest(t)

	_, err := s.CallTool(context.Background(), "nope", types.Object())
	if !errors.Is(err, mcp.ErrToolDispatch) {
		t.Fatalf("expected ErrToolDispatch, got %v", err)
	}
}

// TestWithSessionClosesSession verifies that the session is released and
// later calls fail.
func TestWithSessionClosesSession(t *testing.T) {
	t.Parallel()
	h, err := New(mcp.ServerConfig{}, WithInProcessServer(newTestServer()))
	must(t, err)
	if h.Name() != inProcessServerName {
		t.Errorf("Name() = %q, want %q", h.Name(), inProcessServerName)
	}

	var kept mcp.Session
	err = mcp.WithSession(context.Background(), h, func(s mcp.Session) error {
		kept = s
		_, err := s.ListTools(context.Background())
		return err
	})
	must(t, err)

	if _, err := kept.ListTools(context.Background()); err == nil {
		t.Error("expected error listing tools on a closed session")
	}
	// Close is idempotent.
	must(t, kept.Close())
}

// serveHTTP exposes the test server over transport on an httptest server.
func serveHTTP(t *testing.T, transport mcp.Transport) string {
	t.Helper()
	srv := newTestServer()
	getServer := func(*http.Request) *mcpsdk.Server { return srv }
	var handler http.Handler
	if transport == mcp.TransportSSE {
		handler = mcpsdk.NewSSEHandler(getServer, nil)
	} else {
		handler = mcpsdk.NewStreamableHTTPHandler(getServer, nil)
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts.URL
}

// TestDialNetworkTransports verifies that HTTP sessions stay usable after
// Dial returns, after the dial timeout has elapsed and after the caller's
// context is cancelled.
func TestDialNetworkTransports(t *testing.T) {
	t.Parallel()
	for _, transport := range []mcp.Transport{mcp.TransportSSE, mcp.TransportStreamableHTTP} {
		t.Run(string(transport), func(t *testing.T) {
			t.Parallel()
			h, err := New(mcp.ServerConfig{Name: "notes", Transport: transport, URL: serveHTTP(t, transport)},
				WithDialTimeout(2*time.Second))
			must(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			s, err := h.Dial(ctx)
			must(t, err)
			t.Cleanup(func() { _ = s.Close() })
			cancel()

			tools, err := s.ListTools(context.Background())
			must(t, err)
			if len(tools) != 3 {
				t.Fatalf("got %d tools, want 3", len(tools))
			}

			time.Sleep(2100 * time.Millisecond)
			res, err := s.CallTool(context.Background(), "echo", types.Object(types.Field{Key: "text", Value: types.String("still here")}))
			must(t, err)
			if res.Content != "still here" {
				t.Errorf("got %q, want %q", res.Content, "still here")
			}
		})
	}
}

// TestDialTimeout verifies that a server that never answers the handshake
// maps to ErrProviderUnavailable once the dial timeout expires.
func TestDialTimeout(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(ts.Close)

	h, err := New(mcp.ServerConfig{Name: "stuck", Transport: mcp.TransportStreamableHTTP, URL: ts.URL},
		WithDialTimeout(100*time.Millisecond))
	must(t, err)

	start := time.Now()
	_, err = h.Dial(context.Background())
	if !errors.Is(err, mcp.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Dial took %v, want it bounded by the dial timeout", elapsed)
	}
}

// TestDialUnavailable verifies that a provider that cannot start maps to
// ErrProviderUnavailable.
func TestDialUnavailable(t *testing.T) {
	t.Parallel()
	h, err := New(mcp.ServerConfig{
		Name:      "missing",
		Transport: mcp.TransportStdio,
		Command:   "/nonexistent/mcp-server --flag",
	})
	must(t, err)

	_, err = h.Dial(context.Background())
	if !errors.Is(err, mcp.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

// TestNewValidation verifies config validation.
func TestNewValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  mcp.ServerConfig
	}{
		{"empty name", mcp.ServerConfig{Transport: mcp.TransportStdio, Command: "x"}},
		{"bad transport", mcp.ServerConfig{Name: "a", Transport: "carrier-pigeon"}},
		{"stdio without command", mcp.ServerConfig{Name: "a", Transport: mcp.TransportStdio}},
		{"sse without url", mcp.ServerConfig{Name: "a", Transport: mcp.TransportSSE}},
		{"http without url", mcp.ServerConfig{Name: "a", Transport: mcp.TransportStreamableHTTP}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

// TestSplitCommand verifies command-line splitting.
func TestSplitCommand(t *testing.T) {
	t.Parallel()
	exe, args := splitCommand("  /bin/foo --bar  baz ")
	if exe != "/bin/foo" || len(args) != 2 || args[0] != "--bar" || args[1] != "baz" {
		t.Errorf("got %q %q", exe, args)
	}
	if exe, _ := splitCommand("   "); exe != "" {
		t.Errorf("got %q, want empty", exe)
	}
}

// TestSchemaValueFallback verifies the object-schema fallback.
func TestSchemaValueFallback(t *testing.T) {
	t.Parallel()
	for _, in := range []any{nil, "not a schema", []any{1}} {
		if got := schemaValue(in).String(); got != `{"type":"object"}` {
			t.Errorf("schemaValue(%v) = %s", in, got)
		}
	}
}
