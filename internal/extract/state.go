package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/thumbnailer/internal/fallback"
	"github.com/maauso/thumbnailer/internal/janitor"
	"github.com/maauso/thumbnailer/internal/media"
	"github.com/maauso/thumbnailer/internal/process"
	"github.com/maauso/thumbnailer/internal/strategy"
)

// State is a step of the pipeline state machine.
type State int

// Pipeline states.
const (
	StateIdle State = iota
	StateMetadataResolved
	StateTryingStrategy
	StateAccepted
	StateStrategiesExhausted
	StateTryingFallback
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMetadataResolved:
		return "metadata_resolved"
	case StateTryingStrategy:
		return "trying_strategy"
	case StateAccepted:
		return "accepted"
	case StateStrategiesExhausted:
		return "strategies_exhausted"
	case StateTryingFallback:
		return "trying_fallback"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// run is the state of one Generate call.
type run struct {
	o       *Orchestrator
	req     Request
	janitor *janitor.Janitor

	meta     media.Metadata
	state    State
	index    int
	results  []Result
	winner   string
	fellBack bool
	// trace records every state entered, for tests and debug logging.
	trace []State
}

func (r *run) enter(s State) {
	r.state = s
	r.trace = append(r.trace, s)
}

// execute drives the state machine until StateDone.
func (r *run) execute(ctx context.Context) ([]Result, error) {
	r.enter(StateIdle)
	for r.state != StateDone {
		if err := r.step(ctx); err != nil {
			r.enter(StateDone)
			return nil, err
		}
	}
	r.o.logger.Debug("pipeline states", slog.Any("trace", r.trace))
	return r.results, nil
}

func (r *run) step(ctx context.Context) error {
	switch r.state {
	case StateIdle:
		if r.req.Locator == "" {
			return ErrEmptyLocator
		}
		r.meta = r.resolve(ctx)
		r.enter(StateMetadataResolved)

	case StateMetadataResolved:
		r.index = 0
		if len(r.o.strategies) == 0 {
			r.enter(StateStrategiesExhausted)
			return nil
		}
		r.enter(StateTryingStrategy)

	case StateTryingStrategy:
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("extraction cancelled: %w", err)
		}
		s := r.o.strategies[r.index]
		results, err := r.o.runStrategy(ctx, s, r.input(), r.janitor)
		if err != nil {
			return err
		}
		if len(results) > 0 {
			r.results = results
			r.winner = string(s.Kind())
			r.enter(StateAccepted)
			return nil
		}
		r.index++
		if r.index >= len(r.o.strategies) {
			r.enter(StateStrategiesExhausted)
		}

	case StateAccepted:
		r.enter(StateDone)

	case StateStrategiesExhausted:
		if r.o.fallback == nil {
			r.enter(StateDone)
			return nil
		}
		r.enter(StateTryingFallback)

	case StateTryingFallback:
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("extraction cancelled: %w", err)
		}
		out, ok := r.o.fallback.Run(ctx, fallback.Input{
			Locator:     r.req.Locator,
			Meta:        r.meta,
			DisplayName: r.req.DisplayName,
			PreviewURL:  r.req.PreviewURL,
			Credentials: r.req.Credentials,
		}, r.janitor)
		if ok {
			r.fellBack = true
			r.winner = fallback.Label + ":" + out.Producer
			r.results = []Result{{
				Path:      out.Path,
				Label:     string(strategy.LabelFallback),
				Timestamp: out.Timestamp,
				Index:     0,
				Strategy:  r.winner,
			}}
		}
		r.enter(StateDone)
	}
	return nil
}

func (r *run) resolve(ctx context.Context) media.Metadata {
	if r.o.resolver != nil {
		return r.o.resolver.Resolve(ctx, r.req.Locator, r.req.Metadata)
	}
	if r.req.Metadata != nil {
		return *r.req.Metadata
	}
	return media.Metadata{}
}

func (r *run) input() strategy.Input {
	return strategy.Input{Locator: r.req.Locator, Meta: r.meta, Scratch: r.janitor}
}

func (r *run) outcome(err error) string {
	switch {
	case err != nil:
		return PipelineError
	case r.fellBack:
		return PipelineFallback
	case len(r.results) > 0:
		return PipelineExtracted
	default:
		return PipelineEmpty
	}
}

// runStrategy runs s, and runs it again up to the configured retry count
// while it produces nothing.
func (o *Orchestrator) runStrategy(ctx context.Context, s strategy.Strategy, in strategy.Input, j *janitor.Janitor) ([]Result, error) {
	for try := 0; try <= o.retries; try++ {
		if try > 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("extraction cancelled: %w", err)
			}
			o.logger.Debug("retrying strategy",
				slog.String("strategy", string(s.Kind())),
				slog.Int("retry", try),
			)
		}

		results, err := o.runStrategyOnce(ctx, s, in, j)
		if o.observer != nil && err == nil {
			o.observer.StrategyFinished(string(s.Kind()), len(results))
		}
		if err != nil || len(results) > 0 {
			return results, err
		}
	}
	return nil, nil
}

// runStrategyOnce tries every candidate of s in order until maxResults are
// accepted.
func (o *Orchestrator) runStrategyOnce(ctx context.Context, s strategy.Strategy, in strategy.Input, j *janitor.Janitor) ([]Result, error) {
	candidates, err := s.Propose(ctx, in)
	if err != nil {
		var spawnErr *process.SpawnError
		if errors.As(err, &spawnErr) {
			o.observe(s, OutcomeSpawn, 0)
			return nil, decoderUnavailable(err)
		}
		o.logger.Warn("strategy could not propose candidates",
			slog.String("strategy", string(s.Kind())),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}

	var results []Result
	for _, c := range candidates {
		if len(results) >= o.maxResults {
			break
		}
		path, err := o.extractCandidate(ctx, s, in.Locator, c, j)
		if err != nil {
			return nil, err
		}
		if path == "" {
			continue
		}
		results = append(results, Result{
			Path:      path,
			Label:     string(c.Label),
			Timestamp: c.Seek,
			Index:     len(results),
			Strategy:  string(s.Kind()),
		})
	}
	return results, nil
}

// extractCandidate runs every argument configuration of c until one yields
// an accepted file. It returns "" when the candidate failed, and an error
// only when the decoder cannot be spawned.
func (o *Orchestrator) extractCandidate(ctx context.Context, s strategy.Strategy, locator string, c strategy.Candidate, j *janitor.Janitor) (string, error) {
	attempts := s.Attempts()
	if attempts < 1 {
		attempts = 1
	}

	var previous string
	defer func() {
		if previous != "" {
			j.Discard(previous)
		}
	}()

	for attempt := 0; attempt < attempts; attempt++ {
		out := j.NewPath(string(c.Label), c.Output.Ext)
		args := s.BuildArgs(strategy.ArgsRequest{
			Locator:   locator,
			Candidate: c,
			Attempt:   attempt,
			Output:    out,
			Previous:  previous,
		})

		res := o.runner.Run(ctx, args, o.decoderTimeout)
		if res.SpawnErr != nil {
			o.observe(s, OutcomeSpawn, res.Duration)
			return "", decoderUnavailable(res.SpawnErr)
		}

		raw := strategy.IsIntermediate(s, attempt)
		if res.OK() && !raw && (o.validator == nil || o.validator.Validate(ctx, out)) {
			o.observe(s, OutcomeAccepted, res.Duration)
			return out, nil
		}

		outcome := OutcomeRejected
		switch {
		case res.TimedOut:
			outcome = OutcomeTimeout
		case !res.OK():
			outcome = OutcomeExit
		case raw:
			outcome = OutcomeIntermediate
		}
		o.observe(s, outcome, res.Duration)
		o.logger.Debug("candidate attempt not accepted",
			slog.String("strategy", string(s.Kind())),
			slog.String("label", string(c.Label)),
			slog.Float64("seek", c.Seek),
			slog.Int("attempt", attempt),
			slog.String("outcome", outcome),
			slog.Int("exit_code", res.ExitCode),
		)

		// Keep a non-empty leftover for the next attempt to work from.
		if previous != "" {
			j.Discard(previous)
			previous = ""
		}
		if nonEmptyFile(out) {
			previous = out
		} else {
			j.Discard(out)
		}
	}
	return "", nil
}

func (o *Orchestrator) observe(s strategy.Strategy, outcome string, d time.Duration) {
	if o.observer != nil {
		o.observer.DecoderRun(string(s.Kind()), outcome, d)
	}
}
