package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/devpayr/devpayr-go/internal/errors"
	"github.com/devpayr/devpayr-go/internal/injectable"
)

const TracerName = "devpayr-license"

// Metrics holds the validator instruments.
type Metrics struct {
	Validations        metric.Int64Counter
	ValidationDuration metric.Float64Histogram
	CacheHits          metric.Int64Counter
	CacheMisses        metric.Int64Counter
	InjectablesTotal   metric.Int64Counter
}

// NewMetrics creates the validator instruments on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Validations, err = meter.Int64Counter(
		"devpayr_license_validations_total",
		metric.WithDescription("License validations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validations counter: %w", err)
	}

	m.ValidationDuration, err = meter.Float64Histogram(
		"devpayr_license_validation_duration_seconds",
		metric.WithDescription("License validation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation duration histogram: %w", err)
	}

	m.CacheHits, err = meter.Int64Counter(
		"devpayr_license_cache_hits_total",
		metric.WithDescription("Validation cache hits"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}

	m.CacheMisses, err = meter.Int64Counter(
		"devpayr_license_cache_misses_total",
		metric.WithDescription("Validation cache misses"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}

	m.InjectablesTotal, err = meter.Int64Counter(
		"devpayr_injectables_processed_total",
		metric.WithDescription("Injectables processed by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create injectables counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordCache(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("component", "license_cache"))
	if hit {
		m.CacheHits.Add(ctx, 1, attrs)
		return
	}
	m.CacheMisses.Add(ctx, 1, attrs)
}

func (m *Metrics) recordValidation(ctx context.Context, outcome string, kind apperrors.Kind, d time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("outcome", outcome)}
	if kind != "" {
		attrs = append(attrs, attribute.String("failure_kind", string(kind)))
	}
	m.Validations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.ValidationDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) recordInjectable(ctx context.Context, res injectable.ItemResult) {
	if m == nil {
		return
	}
	m.InjectablesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(res.Status))))
}

// traceValidation runs fn inside a span and records the outcome metrics.
func (v *Validator) traceValidation(ctx context.Context, fn func(context.Context) (*Result, error)) (*Result, error) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "license.validate",
		trace.WithAttributes(
			attribute.Bool("license.recheck", v.cfg.Recheck),
			attribute.Bool("license.injectables", v.cfg.Injectables),
		),
	)
	defer span.End()

	start := time.Now()
	res, err := fn(ctx)
	duration := time.Since(start)

	outcome := "validated"
	switch {
	case err != nil:
		outcome = "rejected"
	case res != nil && res.Cached:
		outcome = "cached"
	}

	span.SetAttributes(
		attribute.String("license.outcome", outcome),
		attribute.Float64("license.duration_ms", float64(duration.Milliseconds())),
	)
	if res != nil {
		span.SetAttributes(attribute.String("license.identity_source", string(res.Identity.Source)))
	}

	kind := apperrors.KindOf(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	v.metrics.recordValidation(ctx, outcome, kind, duration)

	return res, err
}
