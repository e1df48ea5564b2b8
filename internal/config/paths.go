package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveCacheDir returns the absolute directory used for validation markers
// and the identity fingerprint. Relative cache paths are joined to the
// working directory.
func (c *Config) ResolveCacheDir() (string, error) {
	return ResolveCacheDir(c.CachePath)
}

// ResolveCacheDir is the function form used by callers without a Config.
func ResolveCacheDir(cachePath string) (string, error) {
	if cachePath != "" && filepath.IsAbs(cachePath) {
		return filepath.Clean(cachePath), nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	if cachePath == "" {
		return filepath.Join(cwd, DefaultCacheDirName), nil
	}
	return filepath.Join(cwd, cachePath), nil
}

// ResolveInjectablesDir returns where injectables are written, falling back
// to the system temporary directory.
func (c *Config) ResolveInjectablesDir() string {
	if c.InjectablesPath == "" {
		return os.TempDir()
	}
	if filepath.IsAbs(c.InjectablesPath) {
		return filepath.Clean(c.InjectablesPath)
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, c.InjectablesPath)
	}
	return c.InjectablesPath
}

// FingerprintPath returns <cacheDir>/fingerprint.txt.
func FingerprintPath(cacheDir string) string {
	return filepath.Join(cacheDir, FingerprintFileName)
}
