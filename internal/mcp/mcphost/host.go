// Package mcphost provides a concrete implementation of the [mcp.Dialer]
// interface on top of the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk).
//
// Each Dial opens a fresh client session over stdio, streamable HTTP, SSE or
// an in-memory pipe to an in-process server. Sessions are never pooled: one
// answer run owns one session and closes it when done.
//
// Typical usage:
//
//	h, err := mcphost.New(mcp.ServerConfig{
//	    Name:      "notes",
//	    Transport: mcp.TransportSSE,
//	    URL:       "http://localhost:8000/sse",
//	})
//
//	err = mcp.WithSession(ctx, h, func(s mcp.Session) error {
//	    tools, err := s.ListTools(ctx)
//	    ...
//	    res, err := s.CallTool(ctx, "read_notes", types.Object())
//	    ...
//	})
package mcphost

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/oltiss/mattermost-bot/internal/mcp"
	"github.com/oltiss/mattermost-bot/pkg/types"
)

// defaultDialTimeout bounds connection setup including the MCP handshake.
const defaultDialTimeout = 30 * time.Second

// Host is a concrete implementation of [mcp.Dialer].
//
// The zero value is NOT usable; create instances with [New].
type Host struct {
	cfg         mcp.ServerConfig
	client      *mcpsdk.Client
	server      *mcpsdk.Server
	httpClient  *http.Client
	dialTimeout time.Duration
	logger      *slog.Logger
}

// Compile-time check: Host must implement mcp.Dialer.
var _ mcp.Dialer = (*Host)(nil)

// Option is a functional option for [New].
type Option func(*Host)

// WithDialTimeout overrides the connection setup timeout. Zero disables it.
func WithDialTimeout(d time.Duration) Option {
	return func(h *Host) { h.dialTimeout = d }
}

// WithHTTPClient sets the HTTP client used by the streamable-http and sse
// transports.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Host) { h.httpClient = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// New creates a Host for the server described by cfg.
//
// For [mcp.TransportStdio]: cfg.Command is split on spaces into executable
// and args; cfg.Env is appended to the current process environment.
//
// For [mcp.TransportStreamableHTTP] and [mcp.TransportSSE]: cfg.URL is the
// endpoint address.
func New(cfg mcp.ServerConfig, opts ...Option) (*Host, error) {
	h := &Host{
		cfg:         cfg,
		dialTimeout: defaultDialTimeout,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	if h.server == nil {
		if err := validate(cfg); err != nil {
			return nil, err
		}
	}
	h.client = mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "mattermost-bot", Version: "1.0.0"},
		&mcpsdk.ClientOptions{Logger: h.logger},
	)
	return h, nil
}

func validate(cfg mcp.ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcp host: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("mcp host: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}
	switch cfg.Transport {
	case mcp.TransportStdio:
		if exe, _ := splitCommand(cfg.Command); exe == "" {
			return fmt.Errorf("mcp host: stdio server %q requires a non-empty Command", cfg.Name)
		}
	default:
		if cfg.URL == "" {
			return fmt.Errorf("mcp host: %s server %q requires a non-empty URL", cfg.Transport, cfg.Name)
		}
	}
	return nil
}

// Name returns the configured server name.
func (h *Host) Name() string { return h.cfg.Name }

// Dial implements [mcp.Dialer].
//
// The SSE transport keeps its event stream on the context passed to Connect,
// so the session runs on a context of its own. Setup is bounded by the dial
// timeout and by ctx; after that only Close ends the session.
func (h *Host) Dial(ctx context.Context) (mcp.Session, error) {
	sessCtx, release := context.WithCancel(context.WithoutCancel(ctx))
	stopOnCaller := context.AfterFunc(ctx, release)
	var timer *time.Timer
	if h.dialTimeout > 0 {
		timer = time.AfterFunc(h.dialTimeout, release)
	}

	var (
		cs  *mcpsdk.ClientSession
		err error
	)
	if h.server != nil {
		cs, err = h.dialInProcess(sessCtx)
	} else {
		cs, err = h.client.Connect(sessCtx, h.transport(), nil)
	}

	stopOnCaller()
	if timer != nil {
		timer.Stop()
	}
	if err == nil && sessCtx.Err() != nil {
		// Setup finished but the deadline or the caller won the race.
		_ = cs.Close()
		err = sessCtx.Err()
	}
	if err != nil {
		release()
		return nil, fmt.Errorf("mcp host: connect to server %q: %w: %w", h.cfg.Name, mcp.ErrProviderUnavailable, err)
	}
	h.logger.Debug("mcp session opened", slog.String("server", h.cfg.Name), slog.String("session", cs.ID()))
	return &session{cs: cs, server: h.cfg.Name, release: release}, nil
}

// transport builds a fresh SDK transport. Command transports wrap an
// exec.Cmd, which can only be started once, so nothing is reused.
func (h *Host) transport() mcpsdk.Transport {
	switch h.cfg.Transport {
	case mcp.TransportStdio:
		executable, args := splitCommand(h.cfg.Command)
		// Not CommandContext: the subprocess must outlive the dial timeout and
		// is terminated by session Close.
		cmd := exec.Command(executable, args...)
		if len(h.cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range h.cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		return &mcpsdk.CommandTransport{Command: cmd}
	case mcp.TransportSSE:
		return &mcpsdk.SSEClientTransport{Endpoint: h.cfg.URL, HTTPClient: h.httpClient}
	default:
		return &mcpsdk.StreamableClientTransport{Endpoint: h.cfg.URL, HTTPClient: h.httpClient}
	}
}

// session adapts an SDK client session to [mcp.Session].
type session struct {
	cs      *mcpsdk.ClientSession
	server  string
	release context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// ListTools implements [mcp.Session].
func (s *session) ListTools(ctx context.Context) ([]types.ToolDefinition, error) {
	var defs []types.ToolDefinition
	for tool, err := range s.cs.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcp host: list tools for server %q: %w: %w", s.server, mcp.ErrProviderUnavailable, err)
		}
		defs = append(defs, types.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaValue(tool.InputSchema),
		})
	}
	return defs, nil
}

// CallTool implements [mcp.Session].
func (s *session) CallTool(ctx context.Context, name string, args types.Value) (*mcp.ToolResult, error) {
	var arguments any = args
	if args.IsNull() {
		arguments = types.Object()
	}

	start := time.Now()
	res, err := s.cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp host: call to tool %q failed: %w: %w", name, mcp.ErrToolDispatch, err)
	}

	return &mcp.ToolResult{
		Content:    textContent(res.Content),
		IsError:    res.IsError,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// Close implements [mcp.Session].
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.cs.Close()
		s.release()
	})
	return s.closeErr
}

// textContent concatenates all text items of a tool result. A single-item
// result yields exactly that item's text; non-text items are skipped.
func textContent(content []mcpsdk.Content) string {
	var sb strings.Builder
	for _, c := range content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

// schemaValue converts the SDK's untyped input schema into a [types.Value],
// substituting an empty object schema when it is missing or unreadable.
func schemaValue(schema any) types.Value {
	fallback := types.Object(types.Field{Key: "type", Value: types.String("object")})
	if schema == nil {
		return fallback
	}
	v, err := types.FromAny(schema)
	if err != nil || v.Kind() != types.KindObject {
		return fallback
	}
	return v
}

// splitCommand splits a command string into executable and arguments.
func splitCommand(command string) (string, []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
