package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/devpayr/devpayr-go/internal/infrastructure"
)

// HTTPMetrics are the demo server's request instruments
type HTTPMetrics struct {
	Requests metric.Int64Counter
	Duration metric.Float64Histogram
	InFlight metric.Int64UpDownCounter
}

// NewHTTPMetrics registers the request instruments on meter
func NewHTTPMetrics(meter metric.Meter) (*HTTPMetrics, error) {
	requests, err := meter.Int64Counter("devpayr_http_requests_total",
		metric.WithDescription("HTTP requests served, by route and status"))
	if err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}
	duration, err := meter.Float64Histogram("devpayr_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	inFlight, err := meter.Int64UpDownCounter("devpayr_http_requests_in_flight",
		metric.WithDescription("HTTP requests being served"))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-flight counter: %w", err)
	}
	return &HTTPMetrics{Requests: requests, Duration: duration, InFlight: inFlight}, nil
}

// OTelMiddleware opens a server span per request and records HTTPMetrics.
// The span's trace id replaces the request id as the log trace id.
type OTelMiddleware struct {
	tracer  trace.Tracer
	metrics *HTTPMetrics
	logger  *slog.Logger
}

// NewOTelMiddleware creates the middleware from initialized providers
func NewOTelMiddleware(providers *infrastructure.OTelProviders) (*OTelMiddleware, error) {
	metrics, err := NewHTTPMetrics(providers.Meter)
	if err != nil {
		return nil, err
	}
	return &OTelMiddleware{
		tracer:  providers.Tracer,
		metrics: metrics,
		logger:  infrastructure.WithComponent(providers.Logger, "http_telemetry"),
	}, nil
}

func (m *OTelMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := m.tracer.Start(ctx, "HTTP "+r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.ServerAddressKey.String(r.Host),
				semconv.ClientAddressKey.String(r.RemoteAddr),
			))
		defer span.End()

		if sc := span.SpanContext(); sc.IsValid() {
			ctx = infrastructure.WithTraceID(ctx, sc.TraceID().String())
		}

		m.metrics.InFlight.Add(ctx, 1)
		defer m.metrics.InFlight.Add(ctx, -1)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		elapsed := time.Since(start)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		attrs := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", route),
			attribute.Int("status_code", status),
		)
		m.metrics.Requests.Add(ctx, 1, attrs)
		m.metrics.Duration.Record(ctx, elapsed.Seconds(), attrs)

		span.SetName("HTTP " + r.Method + " " + route)
		span.SetAttributes(
			semconv.HTTPRouteKey.String(route),
			semconv.HTTPResponseStatusCodeKey.Int(status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		m.logger.DebugContext(ctx, "request traced",
			slog.String("route", route),
			slog.Int("status_code", status),
			slog.Duration("duration", elapsed))
	})
}
