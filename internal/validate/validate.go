// Package validate decides whether a file the decoder produced is a usable
// thumbnail.
package validate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/maauso/thumbnailer/internal/process"
	"github.com/maauso/thumbnailer/internal/storage"
)

// Level is how much work the validator does per file.
type Level string

// Validation levels, from cheapest to strictest.
const (
	// LevelBasic checks that the file exists and is at least MinBytes long.
	LevelBasic Level = "basic"
	// LevelDecode additionally decodes the image in-process.
	LevelDecode Level = "decode"
	// LevelRedecode additionally runs the decoder on the file and requires it
	// to produce another non-trivial image.
	LevelRedecode Level = "redecode"
)

// DefaultMinBytes rejects empty and header-only files.
const DefaultMinBytes = 512

// Rejection reasons.
var (
	ErrMissing      = errors.New("output file does not exist")
	ErrTooSmall     = errors.New("output file is too small")
	ErrNotDecodable = errors.New("output file is not a decodable image")
	ErrRedecode     = errors.New("output file failed the second decode pass")
	ErrUnknownLevel = errors.New("unknown validation level")
)

// ParseLevel parses a level name. The empty string means LevelBasic.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case "", LevelBasic:
		return LevelBasic, nil
	case LevelDecode:
		return LevelDecode, nil
	case LevelRedecode:
		return LevelRedecode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// PathAllocator names scratch files under the temp root.
type PathAllocator interface {
	NewPath(label, ext string) string
}

// Validator gates every file the pipeline produces.
type Validator struct {
	level    Level
	minBytes int64
	runner   process.Runner
	alloc    PathAllocator
	timeout  time.Duration
}

// Option configures a Validator.
type Option func(*Validator)

// WithLevel sets the strictness.
func WithLevel(l Level) Option {
	return func(v *Validator) {
		v.level = l
	}
}

// WithMinBytes sets the minimum accepted file size.
func WithMinBytes(n int64) Option {
	return func(v *Validator) {
		if n > 0 {
			v.minBytes = n
		}
	}
}

// WithRedecoder enables LevelRedecode: runner runs the decoder, alloc names
// the scratch output and timeout bounds the second pass.
func WithRedecoder(runner process.Runner, alloc PathAllocator, timeout time.Duration) Option {
	return func(v *Validator) {
		v.runner = runner
		v.alloc = alloc
		v.timeout = timeout
	}
}

// New creates a Validator. Without options it runs LevelBasic with
// DefaultMinBytes.
func New(opts ...Option) *Validator {
	v := &Validator{
		level:    LevelBasic,
		minBytes: DefaultMinBytes,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Level returns the configured strictness.
func (v *Validator) Level() Level {
	return v.level
}

// Validate reports whether path is an acceptable thumbnail.
func (v *Validator) Validate(ctx context.Context, path string) bool {
	return v.Check(ctx, path) == nil
}

// Check returns nil for an acceptable file, or the reason it was rejected.
func (v *Validator) Check(ctx context.Context, path string) error {
	if err := checkSize(path, v.minBytes); err != nil {
		return err
	}
	if v.level == LevelBasic {
		return nil
	}

	if _, err := imaging.Open(path); err != nil {
		return fmt.Errorf("%w: %w", ErrNotDecodable, err)
	}
	if v.level == LevelDecode || v.runner == nil || v.alloc == nil {
		return nil
	}

	return v.redecode(ctx, path)
}

// redecode runs the decoder on path and requires it to write a non-trivial
// image. The scratch file is removed before returning.
func (v *Validator) redecode(ctx context.Context, path string) error {
	scratch := v.alloc.NewPath("verify", "jpg")
	defer func() { _ = storage.RemoveFile(scratch) }()

	args := []string{"-i", path, "-frames:v", "1", "-f", "image2", scratch}
	out := v.runner.Run(ctx, args, v.timeout)
	if err := out.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRedecode, err)
	}
	if err := checkSize(scratch, v.minBytes); err != nil {
		return fmt.Errorf("%w: %w", ErrRedecode, err)
	}
	return nil
}

func checkSize(path string, minBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMissing, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: not a regular file", ErrMissing)
	}
	if info.Size() < minBytes {
		return fmt.Errorf("%w: %d < %d bytes", ErrTooSmall, info.Size(), minBytes)
	}
	return nil
}
