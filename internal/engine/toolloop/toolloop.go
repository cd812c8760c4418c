// Package toolloop implements the tool-calling conversation orchestrator.
//
// One [Orchestrator.Answer] call is one run: open a session with the tool
// provider, list its tools, offer them to the model, dispatch the tool calls
// the model asks for, then ask the model for the final answer without tools.
// There is at most one dispatch round per run.
//
//	INIT → TOOLS_LISTED → AWAITING_MODEL ──────────────→ FINALIZED
//	                                    └→ TOOL_DISPATCH ┘
package toolloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/oltiss/mattermost-bot/internal/engine"
	"github.com/oltiss/mattermost-bot/internal/mcp"
	"github.com/oltiss/mattermost-bot/internal/mcp/bridge"
	"github.com/oltiss/mattermost-bot/internal/observe"
	"github.com/oltiss/mattermost-bot/pkg/provider/llm"
	"github.com/oltiss/mattermost-bot/pkg/types"
)

// DefaultSystemPrompt seeds every conversation.
const DefaultSystemPrompt = "You are a helpful assistant. You have access to tools for querying a database, " +
	"but you should ONLY use them when the user explicitly asks for data or performs an action that requires them. " +
	"For greetings (like 'hi', 'hello'), general questions, or small talk, respond naturally as a chat assistant " +
	"without using or mentioning tools."

// errorAnswer is the user-facing text of a failed run.
const errorAnswer = "Sorry, I could not process your request: %v"

// Model call steps, used as the step metric attribute.
const (
	stepTools = "tools"
	stepFinal = "final"
)

// Orchestrator is the tool-calling [engine.Engine]. It keeps no per-run state
// and is safe for concurrent use.
type Orchestrator struct {
	llm          llm.Provider
	dialer       mcp.Dialer
	providerName string
	systemPrompt string
	toolTimeout  time.Duration
	metrics      *observe.Metrics
	log          *slog.Logger
}

var _ engine.Engine = (*Orchestrator)(nil)

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithSystemPrompt replaces [DefaultSystemPrompt].
func WithSystemPrompt(p string) Option {
	return func(o *Orchestrator) { o.systemPrompt = p }
}

// WithToolTimeout bounds each tool execution. Zero keeps the bridge default.
func WithToolTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.toolTimeout = d }
}

// WithProviderName sets the provider label used in metrics.
func WithProviderName(name string) Option {
	return func(o *Orchestrator) { o.providerName = name }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// New returns an Orchestrator that talks to provider and opens one tool
// session per run through dialer.
func New(provider llm.Provider, dialer mcp.Dialer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		llm:          provider,
		dialer:       dialer,
		providerName: "llm",
		systemPrompt: DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	return o
}

// Answer runs the tool loop for utterance. Failures that abort the run
// (provider unavailable, gateway error, panic) become an apology.
func (o *Orchestrator) Answer(ctx context.Context, utterance string) (answer string) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "toolloop.answer")
	defer span.End()
	log := o.log.With("engine", engine.KindTools)
	if id := observe.JobID(ctx); id != "" {
		log = log.With("job_id", id)
	}
	defer engine.Recover(ctx, log, &answer, errorAnswer)

	text, err := o.run(ctx, log, utterance)
	o.metrics.RecordAnswer(ctx, engine.KindTools, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorContext(ctx, "tool loop failed", "err", err)
		return fmt.Sprintf(errorAnswer, err)
	}
	return text
}

func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, utterance string) (string, error) {
	var answer string
	err := mcp.WithSession(ctx, o.dialer, func(s mcp.Session) error {
		defs, err := s.ListTools(ctx)
		if err != nil {
			return fmt.Errorf("toolloop: list tools: %w", err)
		}
		log.DebugContext(ctx, "tools listed", "count", len(defs))

		var opts []bridge.Option
		if o.toolTimeout > 0 {
			opts = append(opts, bridge.WithToolTimeout(o.toolTimeout))
		}
		b, err := bridge.New(s, defs, opts...)
		if err != nil {
			return fmt.Errorf("toolloop: %w", err)
		}

		history := []types.Message{
			{Role: types.RoleSystem, Content: o.systemPrompt},
			{Role: types.RoleUser, Content: utterance},
		}
		resp, err := o.complete(ctx, stepTools, llm.CompletionRequest{Messages: history, Tools: b.Tools()})
		if err != nil {
			return err
		}
		if len(resp.ToolCalls) == 0 {
			answer = resp.Content
			return nil
		}

		calls := withCallIDs(resp.ToolCalls)
		history = append(history, types.Message{
			Role:      types.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: calls,
		})
		for _, tc := range calls {
			res := o.dispatch(ctx, log, b, tc)
			history = append(history, types.Message{
				Role:       types.RoleTool,
				Name:       tc.Name,
				Content:    res.Output,
				ToolCallID: tc.ID,
			})
		}

		final, err := o.complete(ctx, stepFinal, llm.CompletionRequest{Messages: history})
		if err != nil {
			return err
		}
		answer = final.Content
		return nil
	})
	return answer, err
}

// dispatch runs one tool call. Failures are logged and recorded but never
// abort the run: the error text is what the model gets to see.
func (o *Orchestrator) dispatch(ctx context.Context, log *slog.Logger, b *bridge.Bridge, tc types.ToolCall) types.ToolResult {
	ctx, span := observe.StartSpan(ctx, "toolloop.tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool", tc.Name))

	start := time.Now()
	res, err := b.Call(ctx, tc)
	o.metrics.RecordToolCall(ctx, tc.Name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		log.WarnContext(ctx, "tool call failed", "tool", tc.Name, "err", err)
	} else {
		log.DebugContext(ctx, "tool call finished", "tool", tc.Name, "duration", time.Since(start))
	}
	return res
}

func (o *Orchestrator) complete(ctx context.Context, step string, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, span := observe.StartSpan(ctx, "toolloop.llm")
	defer span.End()
	span.SetAttributes(attribute.String("step", step), attribute.Int("tools", len(req.Tools)))

	start := time.Now()
	resp, err := o.llm.Complete(ctx, req)
	if err == nil && resp == nil {
		err = fmt.Errorf("empty response: %w", llm.ErrGateway)
	}
	o.metrics.RecordLLMCall(ctx, o.providerName, step, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, llm.ErrGateway) {
			err = fmt.Errorf("%w: %w", llm.ErrGateway, err)
		}
		return nil, fmt.Errorf("toolloop: %s completion: %w", step, err)
	}
	return resp, nil
}

// withCallIDs returns calls with every missing ID filled in, so each tool
// message can be paired with its request. Gateways such as Ollama omit IDs.
// Generated IDs never repeat an ID already present in the batch.
func withCallIDs(calls []types.ToolCall) []types.ToolCall {
	out := make([]types.ToolCall, len(calls))
	copy(out, calls)
	taken := make(map[string]bool, len(out))
	for _, c := range out {
		if c.ID != "" {
			taken[c.ID] = true
		}
	}
	next := 0
	for i := range out {
		if out[i].ID != "" {
			continue
		}
		id := "call_" + strconv.Itoa(next)
		for taken[id] {
			next++
			id = "call_" + strconv.Itoa(next)
		}
		next++
		taken[id] = true
		out[i].ID = id
	}
	return out
}
