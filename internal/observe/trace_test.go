package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTestTracer installs an in-memory tracer provider as the global one for
// the duration of the test.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects slog.Default into a buffer for the duration of the
// test.
func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func TestCorrelationID(t *testing.T) {
	useTestTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}

	ctx, span := StartSpan(context.Background(), "toolloop.run")
	defer span.End()
	cid := CorrelationID(ctx)
	if len(cid) != 32 || !isHex(cid) {
		t.Errorf("CorrelationID = %q, want 32 hex characters", cid)
	}
}

func TestStartSpan_ChildSharesTrace(t *testing.T) {
	exp := useTestTracer(t)

	ctx, run := StartSpan(context.Background(), "dbquery.run")
	childCtx, step := StartSpan(ctx, "dbquery.llm")
	if CorrelationID(childCtx) != CorrelationID(ctx) {
		t.Errorf("child trace %q differs from parent %q", CorrelationID(childCtx), CorrelationID(ctx))
	}
	step.End()
	run.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Name != "dbquery.llm" || spans[1].Name != "dbquery.run" {
		t.Errorf("span names = %q, %q", spans[0].Name, spans[1].Name)
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("step span is not a child of the run span")
	}
}

func TestCorrelationID_UniquePerRun(t *testing.T) {
	useTestTracer(t)

	seen := make(map[string]bool, 50)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "answer")
		cid := CorrelationID(ctx)
		span.End()
		if seen[cid] {
			t.Fatalf("duplicate correlation ID: %s", cid)
		}
		seen[cid] = true
	}
}

func TestJobID_SurvivesDetach(t *testing.T) {
	if got := JobID(context.Background()); got != "" {
		t.Errorf("JobID(background) = %q, want empty", got)
	}

	req, cancel := context.WithCancel(context.Background())
	job := WithJobID(context.WithoutCancel(req), "3f1c2a9e-job")
	cancel()

	if got := JobID(job); got != "3f1c2a9e-job" {
		t.Errorf("JobID = %q, want %q", got, "3f1c2a9e-job")
	}
	if job.Err() != nil {
		t.Errorf("detached job context cancelled with the request: %v", job.Err())
	}
}

func TestLogger_Attributes(t *testing.T) {
	useTestTracer(t)

	spanCtx, span := StartSpan(WithJobID(context.Background(), "job-7"), "webhook")
	defer span.End()

	tests := []struct {
		name    string
		ctx     context.Context
		want    []string
		wantNot []string
	}{
		{"bare", context.Background(), nil, []string{"job_id", "trace_id", "span_id"}},
		{"job only", WithJobID(context.Background(), "job-42"), []string{"job_id=job-42"}, []string{"trace_id"}},
		{"job and span", spanCtx, []string{"job_id=job-7", "trace_id=" + CorrelationID(spanCtx), "span_id="}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t, slog.LevelInfo)
			Logger(tt.ctx).Info("answering")
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("log %q missing %q", out, w)
				}
			}
			for _, w := range tt.wantNot {
				if strings.Contains(out, w) {
					t.Errorf("log %q should not contain %q", out, w)
				}
			}
		})
	}
}
