package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultExt is used when NewPath is given no extension.
const DefaultExt = "jpg"

// Local is the shared temp root. Every file it names carries a random UUID,
// so concurrent requests never collide and never touch each other's files.
type Local struct {
	tempDir string
}

// NewLocal creates a Local rooted at tempDir.
// If tempDir is empty, a "thumbnailer" directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocal(tempDir string) (*Local, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "thumbnailer")
	}

	abs, err := filepath.Abs(tempDir)
	if err != nil {
		return nil, fmt.Errorf("resolve temp directory: %w", err)
	}

	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	return &Local{tempDir: abs}, nil
}

// TempDir returns the temp root.
func (s *Local) TempDir() string {
	return s.tempDir
}

// NewPath returns a fresh path {label}-{uuid}.{ext} under the temp root.
// Nothing is created on disk.
func (s *Local) NewPath(label, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = DefaultExt
	}
	return filepath.Join(s.tempDir, fmt.Sprintf("%s-%s.%s", sanitizeLabel(label), uuid.NewString(), ext))
}

// Contains reports whether path names a file directly inside the temp root.
func (s *Local) Contains(path string) bool {
	if path == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return filepath.Dir(abs) == s.tempDir
}

// LoadTemp opens a file inside the temp root.
// The caller is responsible for closing the returned ReadCloser.
func (s *Local) LoadTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if !s.Contains(path) {
		return nil, fmt.Errorf("open temp file %s: %w", path, fs.ErrPermission)
	}

	f, err := os.Open(path) // #nosec G304 - path is checked against the temp root
	if err != nil {
		return nil, fmt.Errorf("open temp file: %w", err)
	}

	return f, nil
}

// RemoveFile deletes path. A missing file counts as success.
func RemoveFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove temp file %s: %w", path, err)
	}
	return nil
}

// sanitizeLabel keeps filenames predictable: lowercase letters, digits and
// underscores only.
func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '-' || r == ' ' || r == '.':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
