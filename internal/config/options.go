package config

import (
	"time"

	"github.com/devpayr/devpayr-go/internal/injectable"
)

// Option mutates a Config built with New.
type Option func(*Config)

func WithBaseURL(url string) Option { return func(c *Config) { c.BaseURL = url } }

func WithLicense(key string) Option { return func(c *Config) { c.License = key } }

func WithAPIKey(key string) Option { return func(c *Config) { c.APIKey = key } }

func WithSecret(secret string) Option { return func(c *Config) { c.Secret = secret } }

func WithDomain(domain string) Option { return func(c *Config) { c.Domain = domain } }

func WithRecheck(recheck bool) Option { return func(c *Config) { c.Recheck = recheck } }

func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }

func WithCachePath(path string) Option { return func(c *Config) { c.CachePath = path } }

func WithAction(action string) Option { return func(c *Config) { c.Action = action } }

func WithQuery(query map[string]string) Option { return func(c *Config) { c.Query = query } }

// WithInjectables toggles requesting injectables and auto-processing them.
func WithInjectables(request, handle bool) Option {
	return func(c *Config) {
		c.Injectables = request
		c.HandleInjectables = handle
	}
}

func WithInjectablesPath(path string) Option { return func(c *Config) { c.InjectablesPath = path } }

func WithInjectablesVerify(verify bool) Option {
	return func(c *Config) { c.InjectablesVerify = verify }
}

func WithInjectablesConcurrency(n int) Option {
	return func(c *Config) { c.InjectablesConcurrency = n }
}

func WithInjectablesProcessor(p injectable.Processor) Option {
	return func(c *Config) { c.InjectablesProcessor = p }
}

// WithInvalidBehavior sets the failure mode: modal, redirect, log or silent.
func WithInvalidBehavior(mode string) Option {
	return func(c *Config) { c.InvalidBehavior = mode }
}

func WithRedirectURL(url string) Option { return func(c *Config) { c.RedirectURL = url } }

func WithCustomInvalidView(path string) Option {
	return func(c *Config) { c.CustomInvalidView = path }
}

func WithCustomInvalidMessage(msg string) Option {
	return func(c *Config) { c.CustomInvalidMessage = msg }
}

func WithRateLimit(rps float64, burst int) Option {
	return func(c *Config) {
		c.RateLimit.RPS = rps
		c.RateLimit.Burst = burst
	}
}

// WithPinnedCertificates pins the authority's TLS certificate chain
func WithPinnedCertificates(hashes ...string) Option {
	return func(c *Config) { c.PinnedCertificates = hashes }
}
