package storage

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/PaulLerner/Forced-Alignment/internal/diag"
)

// Writer commits artifacts atomically: content goes to a temp file in the
// destination directory and is renamed into place once complete.
type Writer struct {
	overwrite bool
	mu        sync.Mutex
}

func NewWriter(overwrite bool) *Writer {
	return &Writer{overwrite: overwrite}
}

// Exists reports whether path is present. Callers check every output
// before writing the first one.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteFile streams fill into path and returns the digest of what was
// written. Without overwrite an existing path is a precondition error.
func (w *Writer) WriteFile(path string, fill func(io.Writer) error) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	if !w.overwrite && Exists(path) {
		return "", fmt.Errorf("%w: %s already exists", diag.ErrPrecondition, path)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	h := newHasher()
	if err := fill(io.MultiWriter(tmp, h)); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", tmpPath, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.overwrite && Exists(path) {
		return "", fmt.Errorf("%w: %s already exists", diag.ErrPrecondition, path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("rename %s: %w", path, err)
	}
	committed = true

	return hex.EncodeToString(h.Sum(nil)), nil
}
