// Package strategy holds the closed set of frame extraction strategies. Each
// strategy proposes candidate frames for a video and builds the decoder
// arguments that extract one candidate.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maauso/thumbnailer/internal/media"
	"github.com/maauso/thumbnailer/internal/process"
)

// Kind identifies a strategy.
type Kind string

// Strategy kinds.
const (
	KindPositional     Kind = "positional"
	KindMultiTimestamp Kind = "multi_timestamp"
	KindEmbeddedCover  Kind = "embedded_cover"
	KindSceneDetection Kind = "scene_detection"
)

// Kinds lists every strategy in the default priority order.
var Kinds = []Kind{KindPositional, KindMultiTimestamp, KindEmbeddedCover, KindSceneDetection}

// DefaultOrder is the strategy order used when none is configured.
var DefaultOrder = []Kind{KindPositional, KindMultiTimestamp, KindEmbeddedCover}

// Label tells the caller where in the video a thumbnail came from.
type Label string

// Candidate labels.
const (
	LabelStart     Label = "start"
	LabelMiddle    Label = "middle"
	LabelEnd       Label = "end"
	LabelTimestamp Label = "timestamp"
	LabelEmbedded  Label = "embedded"
	LabelScene     Label = "scene"
	LabelFallback  Label = "fallback"
)

// ErrUnknownKind is returned for a strategy name outside the closed set.
var ErrUnknownKind = errors.New("unknown strategy")

// ParseKind parses a strategy name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Candidate is one proposed frame: where to seek and how to encode it.
type Candidate struct {
	Seek   float64
	Output OutputSpec
	Label  Label
}

// Scratch allocates request-scoped temp files. Strategies use it for side
// channel files that never become results.
type Scratch interface {
	NewPath(label, ext string) string
	Discard(path string)
}

// Input is what a strategy knows when proposing candidates.
type Input struct {
	Locator string
	// Meta has already been resolved; a zero Duration still means unknown.
	Meta    media.Metadata
	Scratch Scratch
}

// ArgsRequest describes one decoder invocation for a candidate.
type ArgsRequest struct {
	Locator   string
	Candidate Candidate
	// Attempt is the zero-based secondary configuration, below Attempts().
	Attempt int
	// Output is the file the decoder must write.
	Output string
	// Previous is the file written by the previous attempt of the same
	// candidate, when that attempt left a non-empty file behind.
	Previous string
}

// Strategy proposes candidates and turns each into decoder arguments.
type Strategy interface {
	Kind() Kind
	// Propose returns candidates in priority order. The error is reserved for
	// faults retrying cannot fix, such as a decoder that cannot be spawned.
	Propose(ctx context.Context, in Input) ([]Candidate, error)
	// Attempts is how many argument configurations BuildArgs knows per
	// candidate.
	Attempts() int
	// BuildArgs returns the decoder arguments, without the safety prefix.
	BuildArgs(req ArgsRequest) []string
}

// Intermediate is implemented by strategies whose early attempts write a raw
// file for a later attempt to convert. Such an attempt is never accepted as a
// result, however valid its file looks.
type Intermediate interface {
	IntermediateAttempt(attempt int) bool
}

// IsIntermediate reports whether attempt of s only produces raw input for the
// next attempt.
func IsIntermediate(s Strategy, attempt int) bool {
	i, ok := s.(Intermediate)
	return ok && i.IntermediateAttempt(attempt)
}

// Options configures every strategy.
type Options struct {
	Timeline Timeline
	Output   OutputOptions
	Scene    SceneOptions
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		Timeline: DefaultTimeline(),
		Output:   DefaultOutputOptions(),
		Scene:    DefaultSceneOptions(),
	}
}

// New builds the strategy of the given kind. Scene detection runs the decoder
// itself while proposing, through runner.
func New(kind Kind, opts Options, runner process.Runner) (Strategy, error) {
	switch kind {
	case KindPositional:
		return NewPositional(opts), nil
	case KindMultiTimestamp:
		return NewMultiTimestamp(opts), nil
	case KindEmbeddedCover:
		return NewEmbeddedCover(opts), nil
	case KindSceneDetection:
		if runner == nil {
			return nil, fmt.Errorf("%s: decoder runner is required", kind)
		}
		return NewSceneDetection(opts, runner), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Build builds strategies in the order given by names. Duplicates are
// rejected so the priority order stays unambiguous.
func Build(names []string, opts Options, runner process.Runner) ([]Strategy, error) {
	seen := make(map[Kind]bool, len(names))
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		kind, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		if seen[kind] {
			return nil, fmt.Errorf("strategy %q listed twice", kind)
		}
		seen[kind] = true

		s, err := New(kind, opts, runner)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// SceneOptions tunes scene detection.
type SceneOptions struct {
	// Threshold is the minimum scene change score, 0..1.
	Threshold float64
	// IntroSkip is skipped before sampling, in seconds.
	IntroSkip float64
	// Window is how much video is sampled, in seconds.
	Window float64
	// TopK is how many of the highest scoring changes become candidates.
	TopK int
	// Timeout bounds the sampling pass.
	Timeout time.Duration
}

// DefaultSceneOptions returns the stock scene detection tuning.
func DefaultSceneOptions() SceneOptions {
	return SceneOptions{
		Threshold: 0.3,
		IntroSkip: 5,
		Window:    30,
		TopK:      3,
		Timeout:   20 * time.Second,
	}
}
