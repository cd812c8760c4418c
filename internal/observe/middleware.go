package observe

import (
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedRoute labels requests no mux pattern matched, so stray paths
// cannot grow metric cardinality.
const unmatchedRoute = "unmatched"

// probeRoutes are hit by orchestrators and scrapers; successful requests to
// them are logged at debug level.
var probeRoutes = map[string]bool{
	"GET /healthz": true,
	"GET /readyz":  true,
	"GET /metrics": true,
}

// Middleware wraps a [http.ServeMux] (or any handler that sets
// [http.Request.Pattern]) with a server span continuing incoming W3C trace
// context, an X-Correlation-ID response header, a latency observation keyed
// by route pattern and one log line per request. Request bodies are never
// logged: slash-command forms carry the shared token.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if cid := CorrelationID(ctx); cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			// The mux stores the matched pattern on the request it is given.
			inner := r.WithContext(ctx)
			stats := httpsnoop.CaptureMetrics(next, w, inner)

			route := inner.Pattern
			if route == "" {
				route = unmatchedRoute
			} else {
				span.SetName("HTTP " + route)
				span.SetAttributes(semconv.HTTPRoute(route))
			}
			span.SetAttributes(semconv.HTTPResponseStatusCode(stats.Code))

			m.HTTPRequestDuration.Record(ctx, stats.Duration.Seconds(),
				metric.WithAttributes(Attr("method", r.Method), Attr("route", route)),
			)

			level := slog.LevelInfo
			if probeRoutes[route] && stats.Code < http.StatusBadRequest {
				level = slog.LevelDebug
			}
			Logger(ctx).LogAttrs(ctx, level, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", route),
				slog.Int("status", stats.Code),
				slog.Int64("bytes", stats.Written),
				slog.Duration("duration", stats.Duration),
			)
		})
	}
}
