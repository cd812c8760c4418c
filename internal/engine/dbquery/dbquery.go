// Package dbquery implements the intent-gated natural-language query
// pipeline.
//
// Every utterance is first classified. CHAT utterances get one
// conversational reply. DATABASE utterances go through schema fetch, SQL
// synthesis, the read-only guard and a narration step that always runs, even
// when the guard reported an error, so the user is never left without an
// explanation. There is at most one SQL execution per request.
package dbquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/oltiss/mattermost-bot/internal/engine"
	"github.com/oltiss/mattermost-bot/internal/observe"
	"github.com/oltiss/mattermost-bot/internal/schema"
	"github.com/oltiss/mattermost-bot/internal/sqlguard"
	"github.com/oltiss/mattermost-bot/pkg/provider/llm"
	"github.com/oltiss/mattermost-bot/pkg/types"
)

const errorAnswer = "Sorry, I could not process your request: %v"

const chatPrompt = `You are a helpful assistant. Reply concisely to the user's message.

Message: %s`

const synthesisPrompt = `You translate questions into PostgreSQL queries.

Database schema:
%s

Write exactly one SELECT statement that answers the question below. Reply with the raw SQL only: no explanation, no code fences.

Question: %s`

const narrationPrompt = `The user asked: %s

To answer it, this SQL query was run:
%s

It returned:
%s

Answer the user's question in plain language using this result. If the result is an error, briefly explain what went wrong.`

// Model call steps, used as the step metric attribute.
const (
	stepClassify  = "classify"
	stepChat      = "chat"
	stepSynthesis = "synthesis"
	stepNarration = "narration"
)

// SchemaSource yields the schema snapshot embedded in the synthesis prompt.
// *schema.Catalog implements it.
type SchemaSource interface {
	Fetch(ctx context.Context) (schema.Snapshot, error)
}

// QueryGuard runs one generated statement and returns its text outcome.
// *sqlguard.Guard implements it.
type QueryGuard interface {
	Execute(ctx context.Context, stmt string) string
}

// Plan is the record of one pipeline run. It is built once per request and
// never persisted.
type Plan struct {
	UserText string
	Intent   Intent

	// Method tells how Intent was decided.
	Method string

	// Schema, SQL and Result are set on the DATABASE branch only. Result is
	// the guard's output, rows or an error line.
	Schema string
	SQL    string
	Result string

	Answer string
}

// Pipeline is the query pipeline [engine.Engine]. It keeps no per-run state
// and is safe for concurrent use.
type Pipeline struct {
	llm          llm.Provider
	catalog      SchemaSource
	guard        QueryGuard
	providerName string
	metrics      *observe.Metrics
	log          *slog.Logger
}

var _ engine.Engine = (*Pipeline)(nil)

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithProviderName sets the provider label used in metrics.
func WithProviderName(name string) Option {
	return func(p *Pipeline) { p.providerName = name }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// New returns a Pipeline using provider for every model step.
func New(provider llm.Provider, catalog SchemaSource, guard QueryGuard, opts ...Option) *Pipeline {
	p := &Pipeline{
		llm:          provider,
		catalog:      catalog,
		guard:        guard,
		providerName: "llm",
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	return p
}

// Answer runs the pipeline and returns the final answer. Schema and gateway
// failures, and panics, become an apology.
func (p *Pipeline) Answer(ctx context.Context, utterance string) (answer string) {
	log := p.log.With("engine", engine.KindDatabase)
	if id := observe.JobID(ctx); id != "" {
		log = log.With("job_id", id)
	}
	defer engine.Recover(ctx, log, &answer, errorAnswer)

	plan, err := p.Run(ctx, utterance)
	if err != nil {
		log.ErrorContext(ctx, "query pipeline failed", "err", err)
		return fmt.Sprintf(errorAnswer, err)
	}
	return plan.Answer
}

// Run executes one request and returns its plan. The error is non-nil only
// for failures that abort the run: a schema fetch or gateway error.
func (p *Pipeline) Run(ctx context.Context, utterance string) (plan *Plan, err error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "dbquery.run")
	defer func() {
		p.metrics.RecordAnswer(ctx, engine.KindDatabase, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	plan = &Plan{UserText: utterance}
	plan.Intent, plan.Method, err = p.Classify(ctx, utterance)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordIntent(ctx, string(plan.Intent), plan.Method)
	span.SetAttributes(attribute.String("intent", string(plan.Intent)), attribute.String("method", plan.Method))

	if plan.Intent == IntentChat {
		reply, err := p.prompt(ctx, stepChat, fmt.Sprintf(chatPrompt, utterance), nil)
		if err != nil {
			return nil, err
		}
		plan.Answer = engine.MarkerChat + " " + reply
		return plan, nil
	}

	snap, err := p.catalog.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbquery: %w", err)
	}
	plan.Schema = p.fitSchema(ctx, snap, utterance)

	generated, err := p.prompt(ctx, stepSynthesis, fmt.Sprintf(synthesisPrompt, plan.Schema, utterance), llm.Temperature(0))
	if err != nil {
		return nil, err
	}
	plan.SQL = StripFences(generated)

	plan.Result = p.execute(ctx, plan.SQL)

	narration, err := p.prompt(ctx, stepNarration, fmt.Sprintf(narrationPrompt, utterance, plan.SQL, plan.Result), nil)
	if err != nil {
		return nil, err
	}
	plan.Answer = fmt.Sprintf("%s\nSQL: %s\n\n%s", engine.MarkerDatabase, plan.SQL, narration)
	return plan, nil
}

// execute runs the statement through the guard. Its outcome is recorded but
// never stops the run.
func (p *Pipeline) execute(ctx context.Context, stmt string) string {
	ctx, span := observe.StartSpan(ctx, "dbquery.sql")
	defer span.End()

	start := time.Now()
	out := p.guard.Execute(ctx, stmt)
	var err error
	if strings.HasPrefix(out, sqlguard.ErrorPrefix) {
		err = errors.New(strings.TrimPrefix(out, sqlguard.ErrorPrefix))
		span.SetStatus(codes.Error, err.Error())
	}
	p.metrics.RecordSQL(ctx, time.Since(start), err)
	p.log.DebugContext(ctx, "generated statement ran", "sql", stmt, "ok", err == nil)
	return out
}

// prompt sends a single user message and returns the reply text.
func (p *Pipeline) prompt(ctx context.Context, step, text string, temperature *float64) (string, error) {
	resp, err := p.complete(ctx, step, llm.CompletionRequest{
		Messages:    []types.Message{{Role: types.RoleUser, Content: text}},
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (p *Pipeline) complete(ctx context.Context, step string, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, span := observe.StartSpan(ctx, "dbquery.llm")
	defer span.End()
	span.SetAttributes(attribute.String("step", step))

	start := time.Now()
	resp, err := p.llm.Complete(ctx, req)
	if err == nil && resp == nil {
		err = fmt.Errorf("empty response: %w", llm.ErrGateway)
	}
	p.metrics.RecordLLMCall(ctx, p.providerName, step, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, llm.ErrGateway) {
			err = fmt.Errorf("%w: %w", llm.ErrGateway, err)
		}
		return nil, fmt.Errorf("dbquery: %s: %w", step, err)
	}
	return resp, nil
}

// StripFences removes Markdown code fences the model added despite being
// told not to. Text outside the first fenced block is dropped.
func StripFences(reply string) string {
	s := strings.TrimSpace(reply)
	if start := strings.Index(s, "```"); start >= 0 {
		body := s[start+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && isInfoString(body[:nl]) {
			body = body[nl+1:]
		}
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		s = body
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "`"))
}

// isInfoString reports whether line is a fence language tag such as "sql".
func isInfoString(line string) bool {
	line = strings.TrimSpace(line)
	if strings.EqualFold(line, "select") {
		return false
	}
	for _, r := range line {
		if !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}
