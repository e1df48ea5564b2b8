package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/devpayr/devpayr-go/internal/errors"
	"github.com/devpayr/devpayr-go/internal/identity"
	"github.com/devpayr/devpayr-go/internal/license"
)

// LicenseValidator is the validation the gate depends on. Identity must
// resolve hints the same way Validate does; its value keys the memo.
type LicenseValidator interface {
	Validate(ctx context.Context, hints identity.Hints) (*license.Result, error)
	Identity(hints identity.Hints) identity.Identity
}

// FailureResponder presents a rejected validation over HTTP; it reports
// whether it wrote a response.
type FailureResponder interface {
	Respond(w http.ResponseWriter, r *http.Request, f *apperrors.Failure) bool
}

const (
	defaultSuccessTTL = 5 * time.Minute
	defaultFailureTTL = time.Minute
)

// LicenseGate blocks requests until the license validates for the
// requesting host. Outcomes are remembered per resolved identity, so hosts
// that fail normalization share the fingerprint's entry.
type LicenseGate struct {
	validator    LicenseValidator
	policy       FailureResponder
	errorHandler *apperrors.ErrorHandler
	logger       *slog.Logger
	metrics      *GateMetrics

	excludePaths    []string
	excludePrefixes []string
	successTTL      time.Duration
	failureTTL      time.Duration

	mu   sync.RWMutex
	memo map[string]gateEntry
	// validationMu serializes remote checks
	validationMu sync.Mutex
}

type gateEntry struct {
	ok        bool
	failure   *apperrors.Failure
	checkedAt time.Time
}

// GateMetrics holds OpenTelemetry metrics for the gate
type GateMetrics struct {
	RequestsTotal  metric.Int64Counter
	PathExclusions metric.Int64Counter
	MemoHits       metric.Int64Counter
	MemoMisses     metric.Int64Counter
	Blocked        metric.Int64Counter
}

// NewGateMetrics creates the gate instruments on meter
func NewGateMetrics(meter metric.Meter) (*GateMetrics, error) {
	m := &GateMetrics{}
	var err error
	if m.RequestsTotal, err = meter.Int64Counter("devpayr_gate_requests_total",
		metric.WithDescription("Requests seen by the license gate")); err != nil {
		return nil, fmt.Errorf("failed to create gate requests counter: %w", err)
	}
	if m.PathExclusions, err = meter.Int64Counter("devpayr_gate_exclusions_total",
		metric.WithDescription("Requests skipped by path exclusion")); err != nil {
		return nil, fmt.Errorf("failed to create gate exclusions counter: %w", err)
	}
	if m.MemoHits, err = meter.Int64Counter("devpayr_gate_memo_hits_total",
		metric.WithDescription("Requests answered from the gate memo")); err != nil {
		return nil, fmt.Errorf("failed to create gate memo hits counter: %w", err)
	}
	if m.MemoMisses, err = meter.Int64Counter("devpayr_gate_memo_misses_total",
		metric.WithDescription("Requests that ran a validation")); err != nil {
		return nil, fmt.Errorf("failed to create gate memo misses counter: %w", err)
	}
	if m.Blocked, err = meter.Int64Counter("devpayr_gate_blocked_total",
		metric.WithDescription("Requests answered by the failure policy")); err != nil {
		return nil, fmt.Errorf("failed to create gate blocked counter: %w", err)
	}
	return m, nil
}

// GateOption configures a LicenseGate
type GateOption func(*LicenseGate)

func WithGateMetrics(m *GateMetrics) GateOption { return func(g *LicenseGate) { g.metrics = m } }

func WithErrorHandler(h *apperrors.ErrorHandler) GateOption {
	return func(g *LicenseGate) { g.errorHandler = h }
}

// WithMemoTTL sets how long successes and failures are remembered.
func WithMemoTTL(success, failure time.Duration) GateOption {
	return func(g *LicenseGate) {
		g.successTTL = success
		g.failureTTL = failure
	}
}

// WithExcludePaths skips validation for exact paths.
func WithExcludePaths(paths ...string) GateOption {
	return func(g *LicenseGate) { g.excludePaths = append(g.excludePaths, paths...) }
}

// WithExcludePrefixes skips validation for path prefixes.
func WithExcludePrefixes(prefixes ...string) GateOption {
	return func(g *LicenseGate) { g.excludePrefixes = append(g.excludePrefixes, prefixes...) }
}

// NewLicenseGate creates the gate. Health, metrics and license status
// routes are excluded by default.
func NewLicenseGate(validator LicenseValidator, policy FailureResponder, logger *slog.Logger, opts ...GateOption) *LicenseGate {
	if logger == nil {
		logger = slog.Default()
	}
	g := &LicenseGate{
		validator:  validator,
		policy:     policy,
		logger:     logger.With(slog.String("component", "license_gate")),
		successTTL: defaultSuccessTTL,
		failureTTL: defaultFailureTTL,
		memo:       make(map[string]gateEntry),
		excludePaths: []string{
			"/metrics",
			"/favicon.ico",
			"/robots.txt",
		},
		excludePrefixes: []string{
			"/api/health",
			"/api/license/",
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.errorHandler == nil {
		g.errorHandler = apperrors.NewErrorHandler(g.logger, false)
	}
	return g
}

// Handler returns the middleware.
func (g *LicenseGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer("devpayr-gate").Start(r.Context(), "license_gate.check",
			trace.WithAttributes(attribute.String("http.path", r.URL.Path)))
		defer span.End()
		r = r.WithContext(ctx)

		g.count(ctx, func(m *GateMetrics) metric.Int64Counter { return m.RequestsTotal })

		if g.shouldExcludePath(r.URL.Path) {
			span.SetAttributes(attribute.String("license.gate", "excluded"))
			g.count(ctx, func(m *GateMetrics) metric.Int64Counter { return m.PathExclusions })
			next.ServeHTTP(w, r)
			return
		}

		hints := identity.HintsFromRequest(r)
		key := g.validator.Identity(hints).Value

		entry, ok := g.lookup(key)
		if ok {
			span.SetAttributes(attribute.String("license.gate", "memo"))
			g.count(ctx, func(m *GateMetrics) metric.Int64Counter { return m.MemoHits })
		} else {
			g.count(ctx, func(m *GateMetrics) metric.Int64Counter { return m.MemoMisses })
			entry = g.validate(ctx, key, hints)
			span.SetAttributes(attribute.String("license.gate", "validated"))
		}

		span.SetAttributes(attribute.Bool("license.valid", entry.ok))
		if entry.ok {
			next.ServeHTTP(w, r)
			return
		}

		if entry.failure != nil && entry.failure.Fatal() {
			g.errorHandler.HandleError(w, r, entry.failure)
			return
		}
		if g.policy.Respond(w, r, entry.failure) {
			g.count(ctx, func(m *GateMetrics) metric.Int64Counter { return m.Blocked })
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validate runs one validation for key, re-checking the memo after taking
// the lock since another request may have finished it. The check is
// detached from request cancellation; the outcome is shared by every
// request for key.
func (g *LicenseGate) validate(ctx context.Context, key string, hints identity.Hints) gateEntry {
	g.validationMu.Lock()
	defer g.validationMu.Unlock()

	if entry, ok := g.lookup(key); ok {
		return entry
	}

	start := time.Now()
	res, err := g.validator.Validate(context.WithoutCancel(ctx), hints)
	entry := gateEntry{ok: err == nil && res != nil && res.OK(), checkedAt: time.Now()}
	if err != nil {
		entry.failure = apperrors.AsFailure(err)
	}

	attrs := []slog.Attr{
		slog.String("key", key),
		slog.Bool("valid", entry.ok),
		slog.Duration("validation_duration", time.Since(start)),
	}
	if res != nil {
		attrs = append(attrs, slog.String("identity", res.Identity.Value), slog.Bool("cached", res.Cached))
	}
	if entry.failure != nil {
		attrs = append(attrs, slog.String("failure_kind", string(entry.failure.Kind)))
	}
	g.logger.LogAttrs(ctx, slog.LevelInfo, "license validation performed", attrs...)

	g.mu.Lock()
	for k, e := range g.memo {
		if g.expired(e) {
			delete(g.memo, k)
		}
	}
	g.memo[key] = entry
	g.mu.Unlock()
	return entry
}

// lookup returns the live entry for key and drops it once expired.
func (g *LicenseGate) lookup(key string) (gateEntry, bool) {
	g.mu.RLock()
	entry, ok := g.memo[key]
	g.mu.RUnlock()
	if !ok {
		return gateEntry{}, false
	}
	if !g.expired(entry) {
		return entry, true
	}

	g.mu.Lock()
	if current, ok := g.memo[key]; ok && g.expired(current) {
		delete(g.memo, key)
	}
	g.mu.Unlock()
	return gateEntry{}, false
}

func (g *LicenseGate) expired(entry gateEntry) bool {
	ttl := g.successTTL
	if !entry.ok {
		ttl = g.failureTTL
	}
	return time.Since(entry.checkedAt) > ttl
}

// Invalidate forgets every remembered outcome.
func (g *LicenseGate) Invalidate() {
	g.mu.Lock()
	g.memo = make(map[string]gateEntry)
	g.mu.Unlock()
}

func (g *LicenseGate) shouldExcludePath(path string) bool {
	for _, excluded := range g.excludePaths {
		if path == excluded {
			return true
		}
	}
	for _, prefix := range g.excludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (g *LicenseGate) count(ctx context.Context, pick func(*GateMetrics) metric.Int64Counter) {
	if g.metrics == nil {
		return
	}
	pick(g.metrics).Add(ctx, 1, metric.WithAttributes(attribute.String("component", "license_gate")))
}
