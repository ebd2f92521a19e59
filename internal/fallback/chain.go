// Package fallback produces a single last-resort thumbnail once every
// extraction strategy has failed.
package fallback

import (
	"context"
	"errors"
	"log/slog"

	"github.com/maauso/thumbnailer/internal/fetch"
	"github.com/maauso/thumbnailer/internal/media"
)

// ErrNotAvailable is returned by a producer that has nothing to work with,
// for example no preview URL.
var ErrNotAvailable = errors.New("fallback: producer not available for this input")

// Label marks every fallback result.
const Label = "fallback"

// Input is what the fallback producers know about the request.
type Input struct {
	Locator     string
	Meta        media.Metadata
	DisplayName string
	PreviewURL  string
	Credentials fetch.Credentials
}

// Scratch allocates request-scoped temp files.
type Scratch interface {
	NewPath(label, ext string) string
	Discard(path string)
}

// Validator gates produced files.
type Validator interface {
	Validate(ctx context.Context, path string) bool
}

// Producer makes one fallback image.
type Producer interface {
	Name() string
	// Produce writes an image to a path allocated from scratch and returns it.
	// On error nothing is left behind.
	Produce(ctx context.Context, in Input, scratch Scratch) (string, error)
}

// Synthetic is implemented by producers that render the image themselves.
// Their output is not passed through the validator.
type Synthetic interface {
	Synthetic() bool
}

// Observer is told how each producer fared.
type Observer interface {
	FallbackProduced(producer string, ok bool)
}

// Output is the chain's single result.
type Output struct {
	Path      string
	Producer  string
	Timestamp float64
}

// Chain runs producers in order; the first valid image wins.
type Chain struct {
	producers []Producer
	validator Validator
	observer  Observer
	logger    *slog.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithObserver reports producer outcomes to o.
func WithObserver(o Observer) ChainOption {
	return func(c *Chain) {
		c.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChain creates a chain over producers. A nil validator accepts everything.
func NewChain(validator Validator, producers []Producer, opts ...ChainOption) *Chain {
	c := &Chain{
		producers: producers,
		validator: validator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Producers returns the producer names in order.
func (c *Chain) Producers() []string {
	names := make([]string, len(c.producers))
	for i, p := range c.producers {
		names[i] = p.Name()
	}
	return names
}

// Run returns the first producer's valid output, or false if none produced one.
func (c *Chain) Run(ctx context.Context, in Input, scratch Scratch) (Output, bool) {
	for _, p := range c.producers {
		path, err := p.Produce(ctx, in, scratch)
		if err != nil {
			c.report(p.Name(), false)
			if !errors.Is(err, ErrNotAvailable) {
				c.logger.Info("fallback producer failed",
					slog.String("producer", p.Name()),
					slog.String("locator", in.Locator),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		if !isSynthetic(p) && c.validator != nil && !c.validator.Validate(ctx, path) {
			c.report(p.Name(), false)
			c.logger.Info("fallback output rejected",
				slog.String("producer", p.Name()),
				slog.String("locator", in.Locator),
			)
			scratch.Discard(path)
			continue
		}

		c.report(p.Name(), true)
		c.logger.Info("fallback thumbnail used",
			slog.String("producer", p.Name()),
			slog.String("locator", in.Locator),
		)
		return Output{Path: path, Producer: p.Name()}, true
	}
	return Output{}, false
}

func (c *Chain) report(name string, ok bool) {
	if c.observer != nil {
		c.observer.FallbackProduced(name, ok)
	}
}

func isSynthetic(p Producer) bool {
	s, ok := p.(Synthetic)
	return ok && s.Synthetic()
}
