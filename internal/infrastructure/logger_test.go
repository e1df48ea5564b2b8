package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpayr/devpayr-go/internal/config"
)

func decodeLine(t *testing.T, b []byte) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(b), &entry))
	return entry
}

func TestNewLoggerWritesFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "agent.log")

	logger, err := NewLogger(config.LoggingConfig{
		Level:    "info",
		Output:   "file",
		FilePath: logFile,
	}, os.Stderr)
	require.NoError(t, err)

	logger.Info("license validated", slog.String("component", "license"))
	require.NoError(t, CloseLogFiles())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	entry := decodeLine(t, content)
	assert.Equal(t, "license validated", entry["msg"])
	assert.Equal(t, "license", entry["component"])
}

func TestTraceIDInjection(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(config.LoggingConfig{Level: "debug"}, &buf)
	require.NoError(t, err)

	logger.InfoContext(WithTraceID(context.Background(), "trace-123"), "with trace")
	assert.Equal(t, "trace-123", decodeLine(t, buf.Bytes())["trace_id"])

	buf.Reset()
	logger.Info("without trace")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestCredentialsAreMasked(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(config.LoggingConfig{Level: "info"}, &buf)
	require.NoError(t, err)

	logger.Info("calling authority",
		slog.String("license", "lic-0123456789"),
		slog.String("secret", "hunter2"),
		slog.String("domain", "shop.example.com"))

	entry := decodeLine(t, buf.Bytes())
	assert.Equal(t, "lic-****6789", entry["license"])
	assert.Equal(t, "****", entry["secret"])
	assert.Equal(t, "shop.example.com", entry["domain"])
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}

func TestEnsureTraceID(t *testing.T) {
	ctx := EnsureTraceID(context.Background())
	id := GetTraceID(ctx)
	require.NotEmpty(t, id)
	assert.Equal(t, id, GetTraceID(EnsureTraceID(ctx)), "existing id must be kept")
	assert.NotNil(t, WithComponent(nil, "identity"))
}
