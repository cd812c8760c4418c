// Package observe provides the bot's observability primitives: OpenTelemetry
// metrics and tracing, job-scoped structured logging and HTTP middleware that
// ties them together.
//
// Metrics go through the OpenTelemetry Metrics API and are exposed for
// Prometheus scraping by [Setup]. [DefaultMetrics] returns a shared
// instance bound to the global meter provider; tests should use [NewMetrics]
// with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every instrument.
const meterName = "github.com/oltiss/mattermost-bot"

// Status attribute values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the application's metric instruments. The OTel instruments
// synchronise internally, so a Metrics value is safe for concurrent use.
type Metrics struct {
	// LLMDuration tracks language model call latency.
	// Attributes: provider, step.
	LLMDuration metric.Float64Histogram

	// ToolExecutionDuration tracks MCP tool call latency. Attribute: tool.
	ToolExecutionDuration metric.Float64Histogram

	// SQLDuration tracks guarded statement latency. Attribute: status.
	SQLDuration metric.Float64Histogram

	// AnswerDuration tracks end-to-end answer latency. Attribute: engine.
	AnswerDuration metric.Float64Histogram

	// ProviderRequests counts model gateway calls.
	// Attributes: provider, step, status.
	ProviderRequests metric.Int64Counter

	// ToolCalls counts tool dispatches. Attributes: tool, status.
	ToolCalls metric.Int64Counter

	// Intents counts classifier decisions. Attributes: intent, method.
	Intents metric.Int64Counter

	// Answers counts finished engine runs. Attributes: engine, status.
	Answers metric.Int64Counter

	// WebhookRequests counts slash-command requests. Attribute: outcome.
	WebhookRequests metric.Int64Counter

	// ActiveJobs is the number of answer jobs currently running.
	ActiveJobs metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP handler latency.
	// Attributes: method, route.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Model calls on a local
// GPU routinely take tens of seconds, so the range is wide.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	var err error
	if met.LLMDuration, err = histogram("mattermost_bot.llm.duration", "Latency of language model calls."); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = histogram("mattermost_bot.tool_execution.duration", "Latency of MCP tool calls."); err != nil {
		return nil, err
	}
	if met.SQLDuration, err = histogram("mattermost_bot.sql.duration", "Latency of guarded SQL statements."); err != nil {
		return nil, err
	}
	if met.AnswerDuration, err = histogram("mattermost_bot.answer.duration", "End-to-end latency of one answer."); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("mattermost_bot.provider.requests",
		metric.WithDescription("Language model requests by provider, step and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("mattermost_bot.tool.calls",
		metric.WithDescription("Tool dispatches by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.Intents, err = m.Int64Counter("mattermost_bot.intents",
		metric.WithDescription("Intent classifications by intent and method."),
	); err != nil {
		return nil, err
	}
	if met.Answers, err = m.Int64Counter("mattermost_bot.answers",
		metric.WithDescription("Finished answers by engine and status."),
	); err != nil {
		return nil, err
	}
	if met.WebhookRequests, err = m.Int64Counter("mattermost_bot.webhook.requests",
		metric.WithDescription("Slash-command webhook requests by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveJobs, err = m.Int64UpDownCounter("mattermost_bot.active_jobs",
		metric.WithDescription("Answer jobs currently running."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("mattermost_bot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route pattern."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first use
// from [otel.GetMeterProvider]. Panics if instrument creation fails, which
// does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// Status maps an error to [StatusOK] or [StatusError].
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// RecordLLMCall records one model gateway call.
func (m *Metrics) RecordLLMCall(ctx context.Context, provider, step string, d time.Duration, err error) {
	m.LLMDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("provider", provider), Attr("step", step)))
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("step", step),
		Attr("status", Status(err)),
	))
}

// RecordToolCall records one tool dispatch.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, d time.Duration, err error) {
	m.ToolExecutionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("tool", tool)))
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(Attr("tool", tool), Attr("status", Status(err))))
}

// RecordSQL records one guarded statement.
func (m *Metrics) RecordSQL(ctx context.Context, d time.Duration, err error) {
	m.SQLDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("status", Status(err))))
}

// RecordIntent records one classifier decision. method names how it was
// reached: "structured" or "heuristic".
func (m *Metrics) RecordIntent(ctx context.Context, intent, method string) {
	m.Intents.Add(ctx, 1, metric.WithAttributes(Attr("intent", intent), Attr("method", method)))
}

// RecordAnswer records one finished engine run.
func (m *Metrics) RecordAnswer(ctx context.Context, engine string, d time.Duration, err error) {
	m.AnswerDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("engine", engine)))
	m.Answers.Add(ctx, 1, metric.WithAttributes(Attr("engine", engine), Attr("status", Status(err))))
}

// RecordWebhook records one webhook request outcome.
func (m *Metrics) RecordWebhook(ctx context.Context, outcome string) {
	m.WebhookRequests.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}
