package license

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/devpayr/devpayr-go/internal/config"
	apperrors "github.com/devpayr/devpayr-go/internal/errors"
)

// Cache is the file-backed validation cache.
type Cache struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger

	hitCount  atomic.Int64
	missCount atomic.Int64
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithClock replaces time.Now; tests use it to move across midnight.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a cache rooted at dir.
func NewCache(dir string, logger *slog.Logger, opts ...CacheOption) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		dir:    dir,
		now:    time.Now,
		logger: logger.With(slog.String("component", "license_cache")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheKey is the hex SHA-256 of license + "::" + identity.
func CacheKey(license, identity string) string {
	sum := sha256.Sum256([]byte(license + "::" + identity))
	return hex.EncodeToString(sum[:])
}

// Dir returns the cache directory
func (c *Cache) Dir() string { return c.dir }

// Path returns the entry file for (license, identity).
func (c *Cache) Path(license, identity string) string {
	return filepath.Join(c.dir, CacheKey(license, identity)+".txt")
}

func (c *Cache) today() string {
	return c.now().Format(config.CacheDateLayout)
}

// IsValid reports whether a paid verdict was recorded today.
func (c *Cache) IsValid(license, identity string) bool {
	path := c.Path(license, identity)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logIOError(&apperrors.CacheIOError{Op: "read", Path: path, Err: err})
		}
		c.missCount.Add(1)
		return false
	}
	if strings.TrimSpace(string(data)) != c.today() {
		c.missCount.Add(1)
		return false
	}
	c.hitCount.Add(1)
	return true
}

// MarkValid records today's date for (license, identity). Failures are
// logged only.
func (c *Cache) MarkValid(license, identity string) {
	path := c.Path(license, identity)
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.logIOError(&apperrors.CacheIOError{Op: "mkdir", Path: c.dir, Err: err})
		return
	}
	if err := os.WriteFile(path, []byte(c.today()), 0o644); err != nil {
		c.logIOError(&apperrors.CacheIOError{Op: "write", Path: path, Err: err})
	}
}

// GetStats returns hit and miss counters
func (c *Cache) GetStats() map[string]interface{} {
	hits := c.hitCount.Load()
	misses := c.missCount.Load()
	ratio := 0.0
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return map[string]interface{}{
		"dir":        c.dir,
		"hit_count":  hits,
		"miss_count": misses,
		"hit_ratio":  ratio,
	}
}

func (c *Cache) logIOError(err *apperrors.CacheIOError) {
	c.logger.Warn("cache io failed",
		slog.String("action", "cache_"+err.Op),
		slog.String("result", "ignored"),
		slog.String("path", err.Path),
		slog.String("error", err.Err.Error()))
}

// IsValid checks the cache in cacheDir using the local clock.
func IsValid(license, identity, cacheDir string) bool {
	return NewCache(cacheDir, nil).IsValid(license, identity)
}

// MarkValid records a validation in cacheDir using the local clock.
func MarkValid(license, identity, cacheDir string) {
	NewCache(cacheDir, nil).MarkValid(license, identity)
}
