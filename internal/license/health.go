package license

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents health of a specific component
type ComponentHealth struct {
	Status   HealthStatus           `json:"status"`
	Message  string                 `json:"message"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// HealthCheckResult is the aggregate report.
type HealthCheckResult struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Duration   string                     `json:"duration"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthCheck reports on the cache directory and the last validation.
type HealthCheck struct {
	validator *Validator
}

// NewHealthCheck creates a health check over v
func NewHealthCheck(v *Validator) *HealthCheck {
	return &HealthCheck{validator: v}
}

// Check never performs a remote call.
func (h *HealthCheck) Check(ctx context.Context) HealthCheckResult {
	_, span := otel.Tracer(TracerName).Start(ctx, "license.health_check")
	defer span.End()

	start := time.Now()
	result := HealthCheckResult{
		Timestamp: start,
		Components: map[string]ComponentHealth{
			"cache":      h.checkCache(),
			"validation": h.checkValidation(),
		},
	}
	result.Status = overallStatus(result.Components)
	result.Duration = time.Since(start).String()

	span.SetAttributes(attribute.String("health.status", string(result.Status)))
	return result
}

func (h *HealthCheck) checkCache() ComponentHealth {
	cache := h.validator.Cache()
	meta := cache.GetStats()

	if err := os.MkdirAll(cache.Dir(), 0o755); err != nil {
		return ComponentHealth{
			Status:   HealthStatusDegraded,
			Message:  "cache directory unavailable; every validation goes remote",
			Error:    err.Error(),
			Metadata: meta,
		}
	}
	probe, err := os.CreateTemp(cache.Dir(), ".probe-*")
	if err != nil {
		return ComponentHealth{
			Status:   HealthStatusDegraded,
			Message:  "cache directory not writable; every validation goes remote",
			Error:    err.Error(),
			Metadata: meta,
		}
	}
	probe.Close()
	os.Remove(probe.Name())

	return ComponentHealth{Status: HealthStatusHealthy, Message: "cache writable", Metadata: meta}
}

func (h *HealthCheck) checkValidation() ComponentHealth {
	last := h.validator.Last()
	if last == nil {
		return ComponentHealth{Status: HealthStatusDegraded, Message: "license not validated yet"}
	}

	meta := map[string]interface{}{
		"state":      string(last.State()),
		"cached":     last.Cached,
		"identity":   last.Identity.Value,
		"checked_at": last.CheckedAt,
	}
	if !last.OK() {
		health := ComponentHealth{Status: HealthStatusUnhealthy, Message: "license rejected", Metadata: meta}
		if last.Failure != nil {
			health.Error = last.Failure.Message
			meta["failure_kind"] = string(last.Failure.Kind)
		}
		return health
	}
	return ComponentHealth{Status: HealthStatusHealthy, Message: "license valid", Metadata: meta}
}

func overallStatus(components map[string]ComponentHealth) HealthStatus {
	status := HealthStatusHealthy
	for _, c := range components {
		switch c.Status {
		case HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case HealthStatusDegraded:
			status = HealthStatusDegraded
		}
	}
	return status
}
