package devpayr

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/devpayr/devpayr-go/internal/client"
	"github.com/devpayr/devpayr-go/internal/config"
	apperrors "github.com/devpayr/devpayr-go/internal/errors"
	"github.com/devpayr/devpayr-go/internal/failure"
	"github.com/devpayr/devpayr-go/internal/identity"
	"github.com/devpayr/devpayr-go/internal/infrastructure"
	"github.com/devpayr/devpayr-go/internal/injectable"
	"github.com/devpayr/devpayr-go/internal/license"
)

// Re-exported types so callers never import internal packages.
type (
	Config        = config.Config
	ConfigOption  = config.Option
	Result        = license.Result
	State         = license.State
	Failure       = apperrors.Failure
	Kind          = apperrors.Kind
	APIError      = apperrors.APIError
	Hints         = identity.Hints
	Identity      = identity.Identity
	Injectable    = injectable.Injectable
	Processor     = injectable.Processor
	ProcessorFunc = injectable.ProcessorFunc
	Report        = injectable.Report
	Response      = client.Response
	ItemResult    = injectable.ItemResult
	RequestOption = client.RequestOption
	PaymentStatus = client.PaymentStatus
)

// Failure kinds
const (
	KindConfiguration = apperrors.KindConfiguration
	KindTransport     = apperrors.KindTransport
	KindAPI           = apperrors.KindAPI
	KindUnpaid        = apperrors.KindUnpaid
	KindVerification  = apperrors.KindVerification
	KindDecryption    = apperrors.KindDecryption
)

// Configuration helpers
var (
	NewConfig                  = config.New
	LoadConfig                 = config.Load
	WithBaseURL                = config.WithBaseURL
	WithLicense                = config.WithLicense
	WithAPIKey                 = config.WithAPIKey
	WithSecret                 = config.WithSecret
	WithDomain                 = config.WithDomain
	WithRecheck                = config.WithRecheck
	WithTimeout                = config.WithTimeout
	WithCachePath              = config.WithCachePath
	WithAction                 = config.WithAction
	WithQuery                  = config.WithQuery
	WithInjectables            = config.WithInjectables
	WithInjectablesPath        = config.WithInjectablesPath
	WithInjectablesVerify      = config.WithInjectablesVerify
	WithInjectablesConcurrency = config.WithInjectablesConcurrency
	WithInjectablesProcessor   = config.WithInjectablesProcessor
	WithInvalidBehavior        = config.WithInvalidBehavior
	WithRedirectURL            = config.WithRedirectURL
	WithCustomInvalidView      = config.WithCustomInvalidView
	WithCustomInvalidMessage   = config.WithCustomInvalidMessage
	WithRateLimit              = config.WithRateLimit

	// Per-request options
	WithRequestQuery  = client.WithQuery
	WithRequestDomain = client.WithRequestDomain
	WithRequestHeader = client.WithHeader
)

// ReadyFunc receives the remote response, the cached-success marker, or nil
// in API-key mode.
type ReadyFunc func(payload map[string]interface{})

// Option customises a Client.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
	onReady    ReadyFunc
	exit       func(int)
	out        io.Writer
	hints      *identity.Hints
	authority  license.Authority
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithHTTPClient replaces the HTTP client used to reach the authority.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// WithOnReady registers a hook fired once after a successful Bootstrap.
func WithOnReady(fn ReadyFunc) Option { return func(o *options) { o.onReady = fn } }

// WithExitFunc replaces os.Exit for the modal and redirect failure modes.
func WithExitFunc(fn func(int)) Option { return func(o *options) { o.exit = fn } }

// WithOutput sets where failure pages are written (default stdout).
func WithOutput(w io.Writer) Option { return func(o *options) { o.out = w } }

// WithHints overrides the identity hints read from the environment.
func WithHints(h Hints) Option { return func(o *options) { o.hints = &h } }

// WithAuthority replaces the remote payment check, mainly for tests.
func WithAuthority(a license.Authority) Option { return func(o *options) { o.authority = a } }

// Client is the SDK entry point: resource services plus the runtime validator.
type Client struct {
	cfg       *config.Config
	services  *client.Services
	validator *license.Validator
	policy    *failure.Policy
	logger    *slog.Logger
	onReady   ReadyFunc
	hints     identity.Hints
	identity  identity.Identity
	readyOnce sync.Once
}

// New builds a Client without contacting the authority. cfg is validated
// first; a bad configuration is returned as a *ConfigurationError.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, &apperrors.ConfigurationError{Field: "license", Err: apperrors.ErrMissingCredential}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = infrastructure.GetLogger()
	}

	hints := identity.HintsFromEnv()
	if o.hints != nil {
		hints = *o.hints
	}

	cacheDir, err := cfg.ResolveCacheDir()
	if err != nil {
		return nil, &apperrors.ConfigurationError{Field: "cache_path", Err: err}
	}
	resolver := identity.NewResolver(cacheDir, o.logger)
	ident := resolver.Resolve(cfg.Domain, hints)

	clientOpts := []client.Option{client.WithLogger(o.logger), client.WithDomain(ident.Value)}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, client.WithHTTPClient(o.httpClient))
	}
	hc, err := client.New(cfg, clientOpts...)
	if err != nil {
		return nil, err
	}
	services := client.NewServices(hc)

	authority := o.authority
	if authority == nil {
		authority = services.Payments
	}
	validator, err := license.NewValidator(cfg, authority,
		license.WithLogger(o.logger),
		license.WithResolver(resolver))
	if err != nil {
		return nil, err
	}

	policyOpts := []failure.Option{failure.WithLogger(o.logger)}
	if o.exit != nil {
		policyOpts = append(policyOpts, failure.WithExitFunc(o.exit))
	}
	if o.out != nil {
		policyOpts = append(policyOpts, failure.WithOutput(o.out))
	}

	return &Client{
		cfg:       cfg,
		services:  services,
		validator: validator,
		policy:    failure.New(cfg, policyOpts...),
		logger:    infrastructure.WithComponent(o.logger, "devpayr"),
		onReady:   o.onReady,
		hints:     hints,
		identity:  ident,
	}, nil
}

// Bootstrap builds a Client and, in license mode, validates the license.
//
// A configuration failure is returned before any network call. Any other
// failure is handed to the failure policy (which may end the process) and
// returned as a *Failure. In API-key mode no validation runs and the
// result is nil.
func Bootstrap(ctx context.Context, cfg *Config, opts ...Option) (*Client, *Result, error) {
	c, err := New(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	res, err := c.Validate(ctx)
	return c, res, err
}

// Validate runs one validation and applies the failure policy. In API-key
// mode no validation runs: the result is nil and the ready hook receives a
// nil payload.
func (c *Client) Validate(ctx context.Context) (*Result, error) {
	if c.cfg.License == "" {
		c.logger.DebugContext(ctx, "no license configured, skipping runtime validation",
			slog.String("action", "bootstrap"))
		c.ready(nil)
		return nil, nil
	}

	res, err := c.validator.Validate(ctx, c.hints)
	if err != nil {
		f := apperrors.AsFailure(err)
		if f.Fatal() {
			return res, f
		}
		c.policy.Handle(ctx, f)
		return res, f
	}

	c.ready(res.Payload())
	return res, nil
}

func (c *Client) ready(payload map[string]interface{}) {
	if c.onReady != nil {
		c.readyOnce.Do(func() { c.onReady(payload) })
	}
}

// Identity is the deployment identity sent as X-Devpayr-Domain on every
// request: the configured or environment domain, else the fingerprint.
func (c *Client) Identity() Identity { return c.identity }

// Config returns the validated configuration
func (c *Client) Config() *Config { return c.cfg }

// Validator exposes the runtime validator, e.g. for HTTP middleware.
func (c *Client) Validator() *license.Validator { return c.validator }

// Policy exposes the failure policy
func (c *Client) Policy() *failure.Policy { return c.policy }

func (c *Client) Projects() *client.ProjectService { return c.services.Projects }

func (c *Client) Licenses() *client.LicenseService { return c.services.Licenses }

func (c *Client) Domains() *client.DomainService { return c.services.Domains }

func (c *Client) Injectables() *client.InjectableService { return c.services.Injectables }

func (c *Client) Payments() *client.PaymentService { return c.services.Payments }

// ProcessInjectables materializes items with the configured pipeline
// settings. Use it with Injectables().Stream when handleInjectables is off.
func (c *Client) ProcessInjectables(ctx context.Context, items []Injectable) *Report {
	return injectable.NewPipeline(injectable.Options{
		Secret:      c.cfg.Secret,
		Destination: c.cfg.ResolveInjectablesDir(),
		Verify:      c.cfg.InjectablesVerify,
		Concurrency: c.cfg.InjectablesConcurrency,
		Processor:   c.cfg.InjectablesProcessor,
	}, c.logger).Process(ctx, items)
}
