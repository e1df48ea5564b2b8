package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/devpayr/devpayr-go/internal/config"
)

type contextKey string

// TraceIDContextKey stores the trace id of the current validation or request
const TraceIDContextKey contextKey = "trace_id"

// Attribute keys whose values are credentials. They are masked before a
// record reaches the handler, whatever component logged them.
var credentialKeys = map[string]bool{
	"license":       true,
	"license_key":   true,
	"api_key":       true,
	"secret":        true,
	"x-license-key": true,
	"x-api-key":     true,
}

var (
	logFileMu sync.Mutex
	logFiles  []*os.File
)

// GetLogger returns slog.Default(). Components that were not handed a
// logger fall back to it.
func GetLogger() *slog.Logger {
	return slog.Default()
}

// NewLogger builds the agent's JSON logger. Output "console" writes to
// console, "file" to cfg.FilePath and "both" to the two. Records carry the
// context trace id and never carry a credential in clear.
func NewLogger(cfg config.LoggingConfig, console io.Writer) (*slog.Logger, error) {
	out := console
	if mode := strings.ToLower(cfg.Output); mode == "file" || mode == "both" {
		file, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		if mode == "both" {
			out = io.MultiWriter(console, file)
		} else {
			out = file
		}
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		AddSource:   strings.EqualFold(cfg.Level, "debug"),
		Level:       parseLogLevel(cfg.Level),
		ReplaceAttr: redactCredentials,
	})
	return slog.New(&traceHandler{Handler: handler}), nil
}

// CloseLogFiles closes every file opened by NewLogger.
func CloseLogFiles() error {
	logFileMu.Lock()
	defer logFileMu.Unlock()

	var firstErr error
	for _, f := range logFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	logFiles = nil
	return firstErr
}

func redactCredentials(_ []string, a slog.Attr) slog.Attr {
	if !credentialKeys[strings.ToLower(a.Key)] || a.Value.Kind() != slog.KindString {
		return a
	}
	return slog.String(a.Key, MaskCredential(a.Value.String()))
}

// MaskCredential keeps the first and last four characters of long values.
func MaskCredential(v string) string {
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "****" + v[len(v)-4:]
}

// traceHandler adds trace_id from the context to every record
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if traceID := GetTraceID(ctx); traceID != "" {
		r.AddAttrs(slog.String("trace_id", traceID))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		path = filepath.Join("logs", "devpayr.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	logFileMu.Lock()
	logFiles = append(logFiles, f)
	logFileMu.Unlock()
	return f, nil
}
