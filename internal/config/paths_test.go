package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCacheDir(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)
	abs := t.TempDir()

	tests := []struct {
		name      string
		cachePath string
		want      string
	}{
		{"default", "", filepath.Join(cwd, DefaultCacheDirName)},
		{"relative", "var/cache", filepath.Join(cwd, "var/cache")},
		{"absolute", abs, abs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveCacheDir(tt.cachePath)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveInjectablesDir(t *testing.T) {
	cfg := Default()
	assert.Equal(t, os.TempDir(), cfg.ResolveInjectablesDir())

	dir := t.TempDir()
	cfg.InjectablesPath = dir
	assert.Equal(t, dir, cfg.ResolveInjectablesDir())
}

func TestFingerprintPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/tmp/x", "fingerprint.txt"), FingerprintPath("/tmp/x"))
}
