// Package storage owns the temp root every pipeline artifact lives under and
// publishes retained thumbnails to object storage.
package storage

import (
	"context"
	"errors"
	"mime"
	"path/filepath"
	"strings"
)

// ErrPublishNotConfigured is returned when a retained thumbnail should be
// published but no object store is configured.
var ErrPublishNotConfigured = errors.New("publishing is not configured")

// Publisher uploads a retained thumbnail and returns the URL it is reachable at.
type Publisher interface {
	// Publish uploads the file at path under key.
	Publish(ctx context.Context, key, path string) (url string, err error)
}

// NoopPublisher is used when no object store is configured.
type NoopPublisher struct{}

// Publish always returns ErrPublishNotConfigured.
func (NoopPublisher) Publish(context.Context, string, string) (string, error) {
	return "", ErrPublishNotConfigured
}

// contentType guesses the MIME type of path from its extension.
func contentType(path string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Verify interface implementation at compile time.
var (
	_ Publisher = NoopPublisher{}
	_ Publisher = (*S3Publisher)(nil)
	_ Publisher = (*MinioPublisher)(nil)
)
