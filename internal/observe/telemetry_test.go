package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// restoreGlobals puts the OTel globals back after a test that calls Setup.
func restoreGlobals(t *testing.T) {
	t.Helper()
	mp, tp := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
	})
}

func TestSetup_RejectsSampleRatio(t *testing.T) {
	for _, r := range []float64{-0.1, 1.5} {
		if _, err := Setup(context.Background(), TelemetryConfig{SampleRatio: r}); err == nil {
			t.Errorf("ratio %v: expected error", r)
		}
	}
}

func TestSetup_ServesMetrics(t *testing.T) {
	restoreGlobals(t)
	tel, err := Setup(context.Background(), TelemetryConfig{
		ServiceName:    "test-bot",
		ServiceVersion: "1.2.3",
		Attributes:     []attribute.KeyValue{attribute.String("engine", "database")},
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	tel.Metrics.RecordWebhook(context.Background(), "accepted")

	rec := httptest.NewRecorder()
	tel.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"mattermost_bot_webhook_requests",
		`outcome="accepted"`,
		`service_name="test-bot"`,
		"go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

// keepSpans is an in-memory exporter whose Shutdown keeps the spans.
type keepSpans struct {
	*tracetest.InMemoryExporter
}

func (keepSpans) Shutdown(context.Context) error { return nil }

func TestSetup_ExportsSpansOnShutdown(t *testing.T) {
	restoreGlobals(t)
	exp := keepSpans{tracetest.NewInMemoryExporter()}
	tel, err := Setup(context.Background(), TelemetryConfig{SpanExporter: exp})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	_, span := StartSpan(context.Background(), "toolloop.run")
	span.End()
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "toolloop.run" {
		t.Fatalf("got %d spans, want the run span", len(spans))
	}
	if got, ok := spans[0].Resource.Set().Value("service.name"); !ok || got.AsString() != DefaultServiceName {
		t.Errorf("service.name = %q, want %q", got.AsString(), DefaultServiceName)
	}
}
