package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/devpayr/devpayr-go/internal/config"
	apperrors "github.com/devpayr/devpayr-go/internal/errors"
	"github.com/devpayr/devpayr-go/internal/identity"
	"github.com/devpayr/devpayr-go/internal/infrastructure"
	"github.com/devpayr/devpayr-go/internal/security"
)

const (
	TracerName      = "devpayr-client"
	maxResponseSize = 10 << 20
	userAgent       = config.AppName + "/" + config.AppVersion
)

// Response is a decoded JSON object returned by the authority.
type Response map[string]interface{}

// Data returns the "data" member when it is an object.
func (r Response) Data() map[string]interface{} {
	if d, ok := r["data"].(map[string]interface{}); ok {
		return d
	}
	return nil
}

// HTTPClient dispatches authenticated requests to the DevPayr API.
type HTTPClient struct {
	cfg     *config.Config
	baseURL *url.URL
	http    *http.Client
	domain  string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures an HTTPClient
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.http = hc }
}

// WithDomain sets the default X-Devpayr-Domain value.
func WithDomain(domain string) Option {
	return func(c *HTTPClient) { c.domain = strings.TrimSpace(domain) }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *HTTPClient) { c.logger = logger }
}

// New creates a client for cfg. cfg must already be validated.
func New(cfg *config.Config, opts ...Option) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, &apperrors.ConfigurationError{Field: "base_url", Err: err}
	}

	limit := rate.Inf
	if cfg.RateLimit.RPS > 0 {
		limit = rate.Limit(cfg.RateLimit.RPS)
	}
	burst := cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &HTTPClient{
		cfg:     cfg,
		baseURL: base,
		http:    newHTTPClient(cfg.Timeout),
		domain:  defaultDomain(cfg.Domain),
		limiter: rate.NewLimiter(limit, burst),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = security.NewCertificatePinner(cfg.PinnedCertificates).Apply(c.http)
	c.logger = c.logger.With(slog.String("component", "devpayr_client"))
	return c, nil
}

// defaultDomain is the normalized configured domain, or the raw value when
// it does not normalize. Hosts that resolve identity pass WithDomain.
func defaultDomain(configured string) string {
	if host, ok := identity.Normalize(configured); ok {
		return host
	}
	return strings.TrimSpace(configured)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// requestOptions are per-call overrides
type requestOptions struct {
	query   map[string]string
	domain  string
	headers map[string]string
}

// RequestOption customizes a single call
type RequestOption func(*requestOptions)

// WithQuery adds query parameters; they win over the configured global query.
func WithQuery(q map[string]string) RequestOption {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = make(map[string]string, len(q))
		}
		for k, v := range q {
			o.query[k] = v
		}
	}
}

// WithRequestDomain overrides X-Devpayr-Domain for one call.
func WithRequestDomain(domain string) RequestOption {
	return func(o *requestOptions) { o.domain = strings.TrimSpace(domain) }
}

// WithHeader sets an extra request header.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}

func (c *HTTPClient) Get(ctx context.Context, path string, opts ...RequestOption) (Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, opts...)
}

func (c *HTTPClient) Post(ctx context.Context, path string, body interface{}, opts ...RequestOption) (Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, opts...)
}

func (c *HTTPClient) Put(ctx context.Context, path string, body interface{}, opts ...RequestOption) (Response, error) {
	return c.Do(ctx, http.MethodPut, path, body, opts...)
}

func (c *HTTPClient) Patch(ctx context.Context, path string, body interface{}, opts ...RequestOption) (Response, error) {
	return c.Do(ctx, http.MethodPatch, path, body, opts...)
}

func (c *HTTPClient) Delete(ctx context.Context, path string, opts ...RequestOption) (Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, opts...)
}

// Do sends a request and decodes the JSON object response.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body interface{}, opts ...RequestOption) (Response, error) {
	raw, err := c.send(ctx, method, path, body, opts...)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apperrors.NewRawAPIError(http.StatusOK, raw, "Invalid JSON response")
	}
	return resp, nil
}

// DoInto sends a request and decodes the response into out.
func (c *HTTPClient) DoInto(ctx context.Context, method, path string, body, out interface{}, opts ...RequestOption) error {
	raw, err := c.send(ctx, method, path, body, opts...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.NewRawAPIError(http.StatusOK, raw, "Unexpected response shape")
	}
	return nil
}

// send performs the exchange and returns a body that is a JSON object.
func (c *HTTPClient) send(ctx context.Context, method, path string, body interface{}, opts ...RequestOption) ([]byte, error) {
	ro := &requestOptions{}
	for _, opt := range opts {
		opt(ro)
	}

	method = strings.ToUpper(method)
	endpoint, err := c.resolve(path, ro.query)
	if err != nil {
		return nil, apperrors.NewTransportError(method, path, err)
	}

	ctx, span := otel.Tracer(TracerName).Start(ctx, "devpayr.http "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("devpayr.path", path),
		),
	)
	defer span.End()

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.fail(span, apperrors.NewTransportError(method, endpoint, err))
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, c.fail(span, fmt.Errorf("failed to encode request body: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, c.fail(span, apperrors.NewTransportError(method, endpoint, err))
	}
	c.applyHeaders(ctx, req, ro)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(span, apperrors.NewTransportError(method, endpoint, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, c.fail(span, apperrors.NewTransportError(method, endpoint, err))
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.logger.DebugContext(ctx, "authority request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	var obj map[string]interface{}
	decodeErr := json.Unmarshal(raw, &obj)

	if resp.StatusCode >= 400 {
		if decodeErr != nil || obj == nil {
			return nil, c.fail(span, apperrors.NewRawAPIError(resp.StatusCode, raw, "API Request Failed"))
		}
		return nil, c.fail(span, apperrors.NewAPIError(resp.StatusCode, obj, "API Request Failed"))
	}
	if decodeErr != nil || obj == nil {
		return nil, c.fail(span, apperrors.NewRawAPIError(resp.StatusCode, raw, "API Error"))
	}

	span.SetStatus(codes.Ok, "")
	return raw, nil
}

func (c *HTTPClient) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (c *HTTPClient) applyHeaders(ctx context.Context, req *http.Request, ro *requestOptions) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	switch req.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		req.Header.Set("Content-Type", "application/json")
	}

	if c.cfg.APIKey != "" {
		req.Header.Set(config.APIKeyHeader, c.cfg.APIKey)
	}
	if c.cfg.License != "" {
		req.Header.Set(config.LicenseHeader, c.cfg.License)
	}

	domain := c.domain
	if ro.domain != "" {
		domain = ro.domain
	}
	if domain != "" {
		req.Header.Set(config.DomainHeader, domain)
	}

	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Request-ID", traceID)
	}

	for k, v := range ro.headers {
		req.Header.Set(k, v)
	}
}

// resolve joins path to the base URL and builds the merged query:
// global query, then call query, then include/action/per_page defaults.
func (c *HTTPClient) resolve(path string, callQuery map[string]string) (string, error) {
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return "", err
	}
	u := c.baseURL.ResolveReference(ref)

	q := url.Values{}
	for k, v := range c.cfg.Query {
		q.Set(k, v)
	}
	for k, v := range callQuery {
		q.Set(k, v)
	}
	if c.cfg.Injectables && !q.Has("include") {
		q.Set("include", "injectables")
	}
	if c.cfg.Action != "" && !q.Has("action") {
		q.Set("action", c.cfg.Action)
	}
	if c.cfg.PerPage > 0 && !q.Has("per_page") {
		q.Set("per_page", strconv.Itoa(c.cfg.PerPage))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}
