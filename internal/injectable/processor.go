package injectable

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Processor materializes one decrypted injectable at target.
// Implementations must not retain content after returning.
type Processor interface {
	Process(ctx context.Context, item Injectable, content []byte, target string) error
}

// ProcessorFunc adapts a function into a custom Processor, letting hosts
// route injectables into a database, memory or another medium.
type ProcessorFunc func(ctx context.Context, item Injectable, content []byte, target string) error

func (f ProcessorFunc) Process(ctx context.Context, item Injectable, content []byte, target string) error {
	return f(ctx, item, content, target)
}

// FileWriter is the default Processor. It writes through a temporary file
// and renames it over target so readers never see a partial file.
type FileWriter struct {
	FileMode os.FileMode
	DirMode  os.FileMode
}

// DefaultFileWriter uses 0644 files under 0755 directories.
var DefaultFileWriter = FileWriter{FileMode: 0o644, DirMode: 0o755}

func (w FileWriter) Process(ctx context.Context, item Injectable, content []byte, target string) error {
	fileMode, dirMode := w.FileMode, w.DirMode
	if fileMode == 0 {
		fileMode = 0o644
	}
	if dirMode == 0 {
		dirMode = 0o755
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".devpayr-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to move into %s: %w", target, err)
	}
	return nil
}
