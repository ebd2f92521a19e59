// Package fetch downloads small remote files (preview images, manually
// uploaded thumbnails) with rate limiting, a size cap and retries.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Static errors for fetch operations.
var (
	// ErrEmptyURL is returned when no URL is given.
	ErrEmptyURL = errors.New("fetch: URL is required")
	// ErrEmptyFileRef is returned when no file reference is given.
	ErrEmptyFileRef = errors.New("fetch: file reference is required")
	// ErrTokenRequired is returned when a platform file path is given without a bot token.
	ErrTokenRequired = errors.New("fetch: bot token is required to resolve a file path")
	// ErrTooLarge is returned when the body exceeds the configured limit.
	ErrTooLarge = errors.New("fetch: response body too large")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("fetch: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("fetch: rate limited")
	// ErrRequestFailed is returned when the request fails with another non-2xx status code.
	ErrRequestFailed = errors.New("fetch: request failed")
)

// DefaultFileBaseURL is the messaging platform's file endpoint.
const DefaultFileBaseURL = "https://api.telegram.org/file"

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes = 20 << 20

// Credentials authenticate a download.
type Credentials struct {
	// BotToken resolves platform file paths to download URLs.
	BotToken string
	// Bearer, when set, is sent as an Authorization header.
	Bearer string
}

// Downloader fetches files over HTTP.
type Downloader struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxBytes    int64
	maxRetries  int
	baseBackoff time.Duration
	fileBaseURL string
	logger      *slog.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) {
		d.httpClient = c
	}
}

// WithMaxBytes caps the size of a single download.
func WithMaxBytes(n int64) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.maxBytes = n
		}
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) Option {
	return func(d *Downloader) {
		d.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(b time.Duration) Option {
	return func(d *Downloader) {
		d.baseBackoff = b
	}
}

// WithRateLimit allows perSec requests per second with the given burst.
// A non-positive perSec disables limiting.
func WithRateLimit(perSec float64, burst int) Option {
	return func(d *Downloader) {
		if perSec <= 0 {
			d.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// WithFileBaseURL sets the platform file endpoint used by ResolveFileURL.
func WithFileBaseURL(u string) Option {
	return func(d *Downloader) {
		if u != "" {
			d.fileBaseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Downloader) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDownloader creates a Downloader.
func NewDownloader(opts ...Option) *Downloader {
	d := &Downloader{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(5), 5),
		maxBytes:    DefaultMaxBytes,
		maxRetries:  3,
		baseBackoff: 500 * time.Millisecond,
		fileBaseURL: DefaultFileBaseURL,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ResolveFileURL turns a file reference into a download URL. Absolute http(s)
// URLs are returned as is; anything else is a platform file path that needs
// the bot token.
func (d *Downloader) ResolveFileURL(ref string, creds Credentials) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrEmptyFileRef
	}
	if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return ref, nil
	}
	if creds.BotToken == "" {
		return "", ErrTokenRequired
	}
	return fmt.Sprintf("%s/bot%s/%s", d.fileBaseURL, creds.BotToken, strings.TrimPrefix(ref, "/")), nil
}

// Fetch downloads rawURL into memory, retrying transient failures with
// exponential backoff.
func (d *Downloader) Fetch(ctx context.Context, rawURL string, creds Credentials) ([]byte, error) {
	if rawURL == "" {
		return nil, ErrEmptyURL
	}

	var lastErr error
	backoff := d.baseBackoff

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		if err := d.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("fetch: rate limiter: %w", err)
		}

		body, err := d.fetchOnce(ctx, rawURL, creds)
		if err == nil {
			return body, nil
		}

		if !isRetryable(err) {
			return nil, err
		}

		d.logger.Debug("download failed, retrying",
			slog.String("url", redact(rawURL, creds)),
			slog.Int("attempt", attempt+1),
			slog.String("error", redact(err.Error(), creds)),
		)
		lastErr = err
	}

	return nil, fmt.Errorf("fetch: max retries exceeded: %w", lastErr)
}

// SaveTo downloads rawURL and writes it to dst. A partially written file is
// removed on failure.
func (d *Downloader) SaveTo(ctx context.Context, rawURL string, creds Credentials, dst string) error {
	body, err := d.Fetch(ctx, rawURL, creds)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, body, 0600); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("fetch: write %s: %w", dst, err)
	}
	return nil
}

// fetchOnce performs a single GET.
func (d *Downloader) fetchOnce(ctx context.Context, rawURL string, creds Credentials) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: create request: %w", err)
	}
	if creds.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Bearer)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("fetch: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The body only helps diagnose the failure; keep it short.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= 500 {
			return nil, &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, bytes.TrimSpace(snippet))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, bytes.TrimSpace(snippet))}
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}

	if resp.ContentLength > d.maxBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, resp.ContentLength, d.maxBytes)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("fetch: read response: %w", err)}
	}
	if int64(len(body)) > d.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, d.maxBytes)
	}

	return body, nil
}

// HTTPError is a non-retryable, non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%v with status %d: %s", ErrRequestFailed, e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error {
	return ErrRequestFailed
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// redact hides the bot token, which is part of platform file URLs.
func redact(s string, creds Credentials) string {
	if creds.BotToken == "" {
		return s
	}
	return strings.ReplaceAll(s, creds.BotToken, "***")
}
