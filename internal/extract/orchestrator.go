// Package extract runs the thumbnail extraction pipeline: strategies in
// priority order, each candidate gated by the validator, and the fallback
// chain once every strategy is exhausted.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/maauso/thumbnailer/internal/fallback"
	"github.com/maauso/thumbnailer/internal/fetch"
	"github.com/maauso/thumbnailer/internal/janitor"
	"github.com/maauso/thumbnailer/internal/media"
	"github.com/maauso/thumbnailer/internal/process"
	"github.com/maauso/thumbnailer/internal/strategy"
)

// Static errors for extraction.
var (
	// ErrDecoderUnavailable means the decoder binary cannot be executed.
	// Retrying cannot help; it is a configuration fault.
	ErrDecoderUnavailable = errors.New("decoder unavailable")
	// ErrEmptyLocator is returned when the request has no media locator.
	ErrEmptyLocator = errors.New("media locator is required")
)

// Defaults for Config.
const (
	DefaultMaxResults     = 5
	DefaultDecoderTimeout = 15 * time.Second
)

// Request is one extraction request.
type Request struct {
	Locator string
	// Metadata is the caller's hint. Nil, or a zero duration, triggers a probe.
	Metadata    *media.Metadata
	DisplayName string
	// PreviewURL is a thumbnail the media platform already made, if any.
	PreviewURL  string
	Credentials fetch.Credentials
}

// Result is one accepted thumbnail. The caller owns Path.
type Result struct {
	Path      string  `json:"path" bson:"path"`
	Label     string  `json:"label" bson:"label"`
	Timestamp float64 `json:"timestamp" bson:"timestamp"`
	Index     int     `json:"index" bson:"index"`
	Strategy  string  `json:"strategy" bson:"strategy"`
}

// Paths returns the paths of results.
func Paths(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Path
	}
	return out
}

// Resolver fills in missing metadata. It never fails.
type Resolver interface {
	Resolve(ctx context.Context, locator string, hint *media.Metadata) media.Metadata
}

// Validator gates every produced file.
type Validator interface {
	Validate(ctx context.Context, path string) bool
}

// Fallback produces a last-resort thumbnail.
type Fallback interface {
	Run(ctx context.Context, in fallback.Input, scratch fallback.Scratch) (fallback.Output, bool)
}

// Observer is told about every decoder run, strategy and request.
type Observer interface {
	PipelineStarted()
	DecoderRun(strategy, outcome string, d time.Duration)
	StrategyFinished(strategy string, accepted int)
	PipelineFinished(outcome string, d time.Duration)
}

// Decoder run outcomes reported to the Observer.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeExit     = "exit"
	OutcomeTimeout  = "timeout"
	OutcomeSpawn    = "spawn"

	// OutcomeIntermediate is a raw file kept for the next attempt.
	OutcomeIntermediate = "intermediate"
)

// Pipeline outcomes reported to the Observer.
const (
	PipelineExtracted = "extracted"
	PipelineFallback  = "fallback"
	PipelineEmpty     = "empty"
	PipelineError     = "error"
)

// Orchestrator runs the pipeline. It holds no per-request state and is safe
// for concurrent use.
type Orchestrator struct {
	runner     process.Runner
	alloc      janitor.PathAllocator
	strategies []strategy.Strategy

	resolver  Resolver
	validator Validator
	fallback  Fallback
	observer  Observer

	retries        int
	maxResults     int
	decoderTimeout time.Duration
	logger         *slog.Logger
	janitorOpts    []janitor.Option
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithResolver sets the metadata resolver.
func WithResolver(r Resolver) Option {
	return func(o *Orchestrator) {
		o.resolver = r
	}
}

// WithValidator sets the output validator.
func WithValidator(v Validator) Option {
	return func(o *Orchestrator) {
		o.validator = v
	}
}

// WithFallback sets the chain run after every strategy failed.
func WithFallback(f Fallback) Option {
	return func(o *Orchestrator) {
		o.fallback = f
	}
}

// WithObserver reports pipeline events to obs.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

// WithRetries sets how many more times a strategy that produced nothing is
// run again before moving on.
func WithRetries(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithMaxResults caps how many results one strategy may return.
func WithMaxResults(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxResults = n
		}
	}
}

// WithDecoderTimeout bounds every decoder invocation.
func WithDecoderTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.decoderTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithJanitorOptions configures the per-request janitor.
func WithJanitorOptions(opts ...janitor.Option) Option {
	return func(o *Orchestrator) {
		o.janitorOpts = append(o.janitorOpts, opts...)
	}
}

// New creates an Orchestrator that runs strategies, in order, through runner
// and allocates temp files from alloc.
func New(runner process.Runner, alloc janitor.PathAllocator, strategies []strategy.Strategy, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:         runner,
		alloc:          alloc,
		strategies:     strategies,
		maxResults:     DefaultMaxResults,
		decoderTimeout: DefaultDecoderTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Strategies returns the strategy kinds in priority order.
func (o *Orchestrator) Strategies() []strategy.Kind {
	kinds := make([]strategy.Kind, len(o.strategies))
	for i, s := range o.strategies {
		kinds[i] = s.Kind()
	}
	return kinds
}

// Generate runs the pipeline for req. It returns a non-empty list of
// results, an empty list when nothing could be produced, or an error
// wrapping ErrDecoderUnavailable. Every temp file other than the returned
// paths is deleted before Generate returns.
func (o *Orchestrator) Generate(ctx context.Context, req Request) ([]Result, error) {
	start := time.Now()
	if o.observer != nil {
		o.observer.PipelineStarted()
	}

	j := janitor.New(o.alloc, o.logger, o.janitorOpts...)
	defer j.Cleanup()

	r := &run{o: o, req: req, janitor: j}
	results, err := r.execute(ctx)

	for _, res := range results {
		j.Release(res.Path)
	}

	outcome := r.outcome(err)
	if o.observer != nil {
		o.observer.PipelineFinished(outcome, time.Since(start))
	}

	logAttrs := []any{
		slog.String("locator", req.Locator),
		slog.String("outcome", outcome),
		slog.Int("results", len(results)),
		slog.String("strategy", r.winner),
		slog.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		o.logger.Error("thumbnail extraction failed", append(logAttrs, slog.String("error", err.Error()))...)
		return nil, err
	}
	o.logger.Info("thumbnail extraction finished", logAttrs...)

	if results == nil {
		results = []Result{}
	}
	return results, nil
}

// nonEmptyFile reports whether path holds at least one byte.
func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func decoderUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrDecoderUnavailable, err)
}
