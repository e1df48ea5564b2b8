package license

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/devpayr/devpayr-go/internal/client"
	"github.com/devpayr/devpayr-go/internal/config"
	apperrors "github.com/devpayr/devpayr-go/internal/errors"
	"github.com/devpayr/devpayr-go/internal/identity"
	"github.com/devpayr/devpayr-go/internal/infrastructure"
	"github.com/devpayr/devpayr-go/internal/injectable"
)

// State is a step of the validation walk.
type State string

const (
	StateStart       State = "START"
	StateCacheCheck  State = "CACHE_CHECK"
	StateCachedOK    State = "CACHED_OK"
	StateRemoteCheck State = "REMOTE_CHECK"
	StateValidated   State = "VALIDATED"
	StateRejected    State = "REJECTED"
	StateInject      State = "INJECT"
	StateDone        State = "DONE"
)

const (
	CachedMessage = "License validated from cache"
	UnpaidMessage = "Project is unpaid or unauthorized."
)

// Authority is the remote paid/unpaid check.
type Authority interface {
	CheckWithLicenseKey(ctx context.Context, opts ...client.RequestOption) (*client.PaymentStatus, error)
}

// Result is the outcome of one validation.
type Result struct {
	Cached      bool                  `json:"cached"`
	Message     string                `json:"message,omitempty"`
	Identity    identity.Identity     `json:"identity"`
	Status      *client.PaymentStatus `json:"-"`
	Injectables *injectable.Report    `json:"injectables,omitempty"`
	Failure     *apperrors.Failure    `json:"failure,omitempty"`
	Trace       []State               `json:"trace"`
	CheckedAt   time.Time             `json:"checked_at"`
}

func (r *Result) enter(s State) { r.Trace = append(r.Trace, s) }

// State returns the terminal state reached.
func (r *Result) State() State {
	if r == nil || len(r.Trace) == 0 {
		return ""
	}
	return r.Trace[len(r.Trace)-1]
}

// OK reports whether the walk ended in DONE.
func (r *Result) OK() bool { return r.State() == StateDone }

// Payload is what the host's ready hook receives: the remote response, or a
// minimal marker when served from cache.
func (r *Result) Payload() map[string]interface{} {
	if r == nil {
		return nil
	}
	if r.Cached {
		return map[string]interface{}{"cached": true, "message": CachedMessage}
	}
	if r.Status != nil {
		return r.Status.Raw
	}
	return nil
}

// Validator runs the license validation walk.
type Validator struct {
	cfg       *config.Config
	authority Authority
	cache     *Cache
	resolver  *identity.Resolver
	pipeline  *injectable.Pipeline
	metrics   *Metrics
	logger    *slog.Logger

	mu   sync.RWMutex
	last *Result
}

// Option configures a Validator
type Option func(*Validator)

func WithCache(c *Cache) Option { return func(v *Validator) { v.cache = c } }

func WithResolver(r *identity.Resolver) Option { return func(v *Validator) { v.resolver = r } }

func WithPipeline(p *injectable.Pipeline) Option { return func(v *Validator) { v.pipeline = p } }

func WithMetrics(m *Metrics) Option { return func(v *Validator) { v.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(v *Validator) { v.logger = l } }

// NewValidator wires a validator from cfg. Components not supplied through
// options are built from cfg.
func NewValidator(cfg *config.Config, authority Authority, opts ...Option) (*Validator, error) {
	v := &Validator{cfg: cfg, authority: authority, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With(slog.String("component", "license_validator"))

	if v.cache == nil || v.resolver == nil {
		dir, err := cfg.ResolveCacheDir()
		if err != nil {
			return nil, &apperrors.ConfigurationError{Field: "cache_path", Err: err}
		}
		if v.cache == nil {
			v.cache = NewCache(dir, v.logger)
		}
		if v.resolver == nil {
			v.resolver = identity.NewResolver(dir, v.logger)
		}
	}

	if v.pipeline == nil {
		v.pipeline = injectable.NewPipeline(injectable.Options{
			Secret:      cfg.Secret,
			Destination: cfg.ResolveInjectablesDir(),
			Verify:      cfg.InjectablesVerify,
			Concurrency: cfg.InjectablesConcurrency,
			Processor:   cfg.InjectablesProcessor,
			OnResult:    v.metrics.recordInjectable,
		}, v.logger)
	}
	return v, nil
}

// Cache returns the validation cache
func (v *Validator) Cache() *Cache { return v.cache }

// Resolver returns the identity resolver
func (v *Validator) Resolver() *identity.Resolver { return v.resolver }

// Identity resolves the identity a validation for hints would check,
// without contacting the authority.
func (v *Validator) Identity(hints identity.Hints) identity.Identity {
	return v.resolver.Resolve(v.cfg.Domain, hints)
}

// Last returns the most recent result, or nil before the first run.
func (v *Validator) Last() *Result {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.last
}

// Validate runs the walk. The returned Result is never nil; err is a
// *errors.Failure whenever the walk ends in REJECTED.
func (v *Validator) Validate(ctx context.Context, hints identity.Hints) (*Result, error) {
	ctx = infrastructure.EnsureTraceID(ctx)
	res, err := v.traceValidation(ctx, func(ctx context.Context) (*Result, error) {
		return v.run(ctx, hints)
	})

	v.mu.Lock()
	v.last = res
	v.mu.Unlock()
	return res, err
}

func (v *Validator) run(ctx context.Context, hints identity.Hints) (*Result, error) {
	res := &Result{CheckedAt: time.Now()}
	res.enter(StateStart)

	license := v.cfg.License
	if license == "" {
		return v.reject(ctx, res, &apperrors.ConfigurationError{Field: "license", Err: apperrors.ErrLicenseRequired})
	}

	res.Identity = v.resolver.Resolve(v.cfg.Domain, hints)

	if !v.cfg.Recheck {
		res.enter(StateCacheCheck)
		hit := v.cache.IsValid(license, res.Identity.Value)
		v.metrics.recordCache(ctx, hit)
		if hit {
			res.Cached = true
			res.Message = CachedMessage
			res.enter(StateCachedOK)
			res.enter(StateDone)
			v.logLicenseAction(ctx, slog.LevelInfo, "cache_check", "license validated from cache", license,
				slog.String("identity", res.Identity.Value))
			return res, nil
		}
		v.logDebug(ctx, "cache_check", "cache miss", slog.String("identity", res.Identity.Value))
	}

	res.enter(StateRemoteCheck)
	status, err := v.authority.CheckWithLicenseKey(ctx, client.WithRequestDomain(res.Identity.Value))
	if err != nil {
		return v.reject(ctx, res, err)
	}
	res.Status = status
	if status == nil || !status.Data.HasPaid {
		return v.reject(ctx, res, &apperrors.Failure{
			Kind:    apperrors.KindUnpaid,
			Message: UnpaidMessage,
			Err:     apperrors.ErrProjectUnpaid,
		})
	}

	res.enter(StateValidated)
	res.Message = status.Message
	v.cache.MarkValid(license, res.Identity.Value)
	v.logLicenseAction(ctx, slog.LevelInfo, "remote_check", "license validated", license,
		slog.String("identity", res.Identity.Value),
		slog.String("identity_source", string(res.Identity.Source)),
		slog.Int("injectables", len(status.Data.Injectables)))

	if v.cfg.Injectables && v.cfg.HandleInjectables && len(status.Data.Injectables) > 0 {
		res.enter(StateInject)
		report := v.pipeline.Process(ctx, status.Data.Injectables)
		res.Injectables = report
		if failed := report.Failed(); len(failed) > 0 {
			v.logWarn(ctx, "inject", "some injectables failed",
				slog.Int("failed", len(failed)),
				slog.Int("succeeded", report.Succeeded()))
		}
	}

	res.enter(StateDone)
	return res, nil
}

func (v *Validator) reject(ctx context.Context, res *Result, err error) (*Result, error) {
	failure := apperrors.AsFailure(err)
	res.Failure = failure
	res.enter(StateRejected)

	level := slog.LevelWarn
	if failure.Fatal() {
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("failure_kind", string(failure.Kind)),
		slog.String("error", failure.Message),
	}
	var apiErr *apperrors.APIError
	if errors.As(err, &apiErr) {
		attrs = append(attrs, slog.Int("upstream_status", apiErr.StatusCode))
	}
	v.logLicenseAction(ctx, level, "validate", "license rejected", v.cfg.License, attrs...)
	return res, failure
}
