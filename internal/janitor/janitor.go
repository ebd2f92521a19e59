// Package janitor tracks the temp files created while serving one request and
// deletes every one of them that was not handed over to the caller.
package janitor

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/maauso/thumbnailer/internal/storage"
)

// PathAllocator hands out collision-free paths under the temp root.
type PathAllocator interface {
	NewPath(label, ext string) string
}

// Observer is notified of every deletion attempt.
type Observer interface {
	FileRemoved(ok bool)
}

// Janitor is request-scoped: create one per request, defer Cleanup.
// It is safe for concurrent use.
type Janitor struct {
	alloc    PathAllocator
	logger   *slog.Logger
	observer Observer

	mu      sync.Mutex
	order   []string
	tracked map[string]struct{}
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithObserver reports deletions to o.
func WithObserver(o Observer) Option {
	return func(j *Janitor) {
		j.observer = o
	}
}

// New creates a Janitor allocating paths from alloc.
// If logger is nil, slog.Default() is used.
func New(alloc PathAllocator, logger *slog.Logger, opts ...Option) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Janitor{
		alloc:   alloc,
		logger:  logger,
		tracked: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// NewPath allocates a fresh path and tracks it before anything is written.
func (j *Janitor) NewPath(label, ext string) string {
	p := j.alloc.NewPath(label, ext)
	j.Track(p)
	return p
}

// Track adds path to the set deleted by Cleanup.
func (j *Janitor) Track(path string) {
	if path == "" {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.tracked[path]; ok {
		return
	}
	j.tracked[path] = struct{}{}
	j.order = append(j.order, path)
}

// Release stops tracking path without deleting it; the caller now owns it.
func (j *Janitor) Release(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.tracked[path]; !ok {
		return
	}
	delete(j.tracked, path)
	j.order = slices.DeleteFunc(j.order, func(p string) bool { return p == path })
}

// Discard deletes path now and stops tracking it.
func (j *Janitor) Discard(path string) {
	j.Release(path)
	j.remove(path)
}

// Tracked returns the still-tracked paths in the order they were tracked.
func (j *Janitor) Tracked() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.tracked))
	for _, p := range j.order {
		if _, ok := j.tracked[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Cleanup deletes every tracked path. Failures are logged, never returned.
// Calling Cleanup again is a no-op.
func (j *Janitor) Cleanup() {
	paths := j.Tracked()

	j.mu.Lock()
	j.tracked = make(map[string]struct{})
	j.order = nil
	j.mu.Unlock()

	for _, p := range paths {
		j.remove(p)
	}
}

func (j *Janitor) remove(path string) {
	err := storage.RemoveFile(path)
	if j.observer != nil {
		j.observer.FileRemoved(err == nil)
	}
	if err != nil {
		j.logger.Warn("failed to remove temp file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// Remove deletes paths on behalf of a caller that took ownership of them.
// It is idempotent and best-effort: missing files count as removed and
// failures are logged. It returns the number of paths that could not be
// removed.
func Remove(logger *slog.Logger, paths []string) int {
	if logger == nil {
		logger = slog.Default()
	}
	failed := 0
	for _, p := range paths {
		if err := storage.RemoveFile(p); err != nil {
			failed++
			logger.Warn("cleanup failed",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
		}
	}
	return failed
}
