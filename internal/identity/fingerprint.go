package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/devpayr/devpayr-go/internal/config"
)

const fingerprintPrefix = "fp_"

// LoadOrCreateFingerprint returns the persisted fingerprint under cacheDir,
// generating and persisting one when the file is absent or empty. Write
// failures are logged and the generated value is still returned.
func LoadOrCreateFingerprint(cacheDir string, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}
	path := config.FingerprintPath(cacheDir)

	if fp := readFingerprint(path); fp != "" {
		return fp
	}

	fp := newFingerprint()
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		logger.Warn("fingerprint directory unavailable",
			slog.String("path", cacheDir),
			slog.String("error", err.Error()))
		return fp
	}

	// O_EXCL so two processes racing here agree on whichever file landed first.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		if existing := readFingerprint(path); existing != "" {
			return existing
		}
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
	}
	if err != nil {
		logger.Warn("fingerprint not persisted",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return fp
	}
	defer f.Close()

	if _, err := f.WriteString(fp); err != nil {
		logger.Warn("fingerprint write failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	return fp
}

func readFingerprint(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func newFingerprint() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		id := uuid.New()
		b = id[:]
	}
	return fingerprintPrefix + hex.EncodeToString(b)
}
