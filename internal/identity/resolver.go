package identity

import (
	"log/slog"
	"net/http"
	"os"
	"sync"
)

// Source records which candidate produced an identity.
type Source string

const (
	SourceConfig      Source = "config"
	SourceOverride    Source = "override_header"
	SourceHost        Source = "host_header"
	SourceServerName  Source = "server_name"
	SourceAppURL      Source = "app_url"
	SourceFingerprint Source = "fingerprint"
)

// DomainHeader lets a proxy state the deployment domain explicitly.
const DomainHeader = "X-Devpayr-Domain"

// EnvAppURL is the application-URL environment variable.
const EnvAppURL = "APP_URL"

// Identity names the running deployment.
type Identity struct {
	Value  string `json:"value"`
	Source Source `json:"source"`
}

func (i Identity) String() string { return i.Value }

// Hints are the transport and environment candidates consulted after the
// configured domain.
type Hints struct {
	DomainOverride string
	Host           string
	ServerName     string
	AppURL         string
}

// HintsFromEnv reads the environment only.
func HintsFromEnv() Hints {
	return Hints{AppURL: os.Getenv(EnvAppURL)}
}

// HintsFromRequest collects the request headers plus the environment.
func HintsFromRequest(r *http.Request) Hints {
	h := HintsFromEnv()
	if r == nil {
		return h
	}
	h.DomainOverride = r.Header.Get(DomainHeader)
	h.Host = r.Host
	if r.TLS != nil {
		h.ServerName = r.TLS.ServerName
	}
	return h
}

// Resolver resolves identities against one cache directory. It memoizes
// the fingerprint so a run that cannot persist it still answers
// consistently.
type Resolver struct {
	cacheDir string
	logger   *slog.Logger

	mu          sync.Mutex
	fingerprint string
}

// NewResolver creates a resolver rooted at cacheDir
func NewResolver(cacheDir string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		cacheDir: cacheDir,
		logger:   logger.With(slog.String("component", "identity")),
	}
}

// Resolve returns the first acceptable candidate, ending at the fingerprint.
func (r *Resolver) Resolve(configured string, hints Hints) Identity {
	candidates := []struct {
		value  string
		source Source
	}{
		{configured, SourceConfig},
		{hints.DomainOverride, SourceOverride},
		{hints.Host, SourceHost},
		{hints.ServerName, SourceServerName},
		{hints.AppURL, SourceAppURL},
	}

	for _, c := range candidates {
		if c.value == "" {
			continue
		}
		if host, ok := Normalize(c.value); ok {
			return Identity{Value: host, Source: c.source}
		}
		r.logger.Debug("identity candidate rejected",
			slog.String("source", string(c.source)),
			slog.String("value", c.value))
	}

	return Identity{Value: r.Fingerprint(), Source: SourceFingerprint}
}

// Fingerprint returns the deployment fingerprint, loading it once.
func (r *Resolver) Fingerprint() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fingerprint == "" {
		r.fingerprint = LoadOrCreateFingerprint(r.cacheDir, r.logger)
	}
	return r.fingerprint
}

// Resolve is the one-shot form of Resolver.Resolve.
func Resolve(configured string, hints Hints, cacheDir string) Identity {
	return NewResolver(cacheDir, nil).Resolve(configured, hints)
}
