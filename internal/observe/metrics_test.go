package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the first Sum data point carrying key=value.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"mattermost_bot.llm.duration", m.LLMDuration},
		{"mattermost_bot.tool_execution.duration", m.ToolExecutionDuration},
		{"mattermost_bot.sql.duration", m.SQLDuration},
		{"mattermost_bot.answer.duration", m.AnswerDuration},
	}
	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 4.5)
	}

	rm := collect(t, reader)
	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 2 {
				t.Errorf("metric %q: unexpected data points %+v", tc.name, hist.DataPoints)
			}
		})
	}
}

func TestRecordLLMCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLLMCall(ctx, "ollama", "classify", time.Second, nil)
	m.RecordLLMCall(ctx, "ollama", "classify", time.Second, nil)
	m.RecordLLMCall(ctx, "ollama", "narrate", time.Second, errors.New("boom"))

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "mattermost_bot.provider.requests", "status", StatusOK); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "mattermost_bot.provider.requests", "status", StatusError); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
}

func TestRecordToolCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "add_note", 10*time.Millisecond, nil)
	m.RecordToolCall(ctx, "read_notes", 10*time.Millisecond, errors.New("x"))

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "mattermost_bot.tool.calls", "tool", "add_note"); got != 1 {
		t.Errorf("add_note calls = %d, want 1", got)
	}
}

func TestRecordIntentAndAnswer(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordIntent(ctx, "DATABASE", "heuristic")
	m.RecordIntent(ctx, "DATABASE", "heuristic")
	m.RecordIntent(ctx, "CHAT", "structured")
	m.RecordAnswer(ctx, "database", time.Second, nil)
	m.RecordWebhook(ctx, "accepted")
	m.RecordSQL(ctx, time.Millisecond, nil)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "mattermost_bot.intents", "intent", "DATABASE"); got != 2 {
		t.Errorf("DATABASE intents = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "mattermost_bot.answers", "engine", "database"); got != 1 {
		t.Errorf("answers = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "mattermost_bot.webhook.requests", "outcome", "accepted"); got != 1 {
		t.Errorf("webhook requests = %d, want 1", got)
	}
}

func TestActiveJobs(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveJobs.Add(ctx, 1)
	m.ActiveJobs.Add(ctx, 1)
	m.ActiveJobs.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "mattermost_bot.active_jobs")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatalf("unexpected data %+v", met.Data)
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active jobs = %d, want 1", got)
	}
}

func TestStatus(t *testing.T) {
	if Status(nil) != StatusOK || Status(errors.New("x")) != StatusError {
		t.Error("Status mapping is wrong")
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different pointers")
	}
}
