package license

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/devpayr/devpayr-go/internal/infrastructure"
)

// logAction logs a validator step with the standard attributes and mirrors
// it as a span event.
func (v *Validator) logAction(ctx context.Context, level slog.Level, action, result string, attrs ...slog.Attr) {
	traceID := infrastructure.GetTraceID(ctx)

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("license."+action, trace.WithAttributes(
			attribute.String("action", action),
			attribute.String("result", result),
		))
	}

	all := []slog.Attr{
		slog.String("action", action),
		slog.String("result", result),
		slog.String("trace_id", traceID),
	}
	all = append(all, attrs...)
	v.logger.LogAttrs(ctx, level, result, all...)
}

// logLicenseAction adds masked and hashed license attributes.
func (v *Validator) logLicenseAction(ctx context.Context, level slog.Level, action, result, licenseKey string, attrs ...slog.Attr) {
	licenseAttrs := []slog.Attr{
		slog.String("license_key_masked", infrastructure.MaskCredential(licenseKey)),
		slog.String("license_key_hash", hashLicenseKey(licenseKey)),
	}
	licenseAttrs = append(licenseAttrs, attrs...)
	v.logAction(ctx, level, action, result, licenseAttrs...)
}

func (v *Validator) logDebug(ctx context.Context, action, result string, attrs ...slog.Attr) {
	v.logAction(ctx, slog.LevelDebug, action, result, attrs...)
}

func (v *Validator) logWarn(ctx context.Context, action, result string, attrs ...slog.Attr) {
	v.logAction(ctx, slog.LevelWarn, action, result, attrs...)
}

// hashLicenseKey returns a short digest for log correlation
func hashLicenseKey(key string) string {
	if key == "" {
		return ""
	}
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)[:16]
}
