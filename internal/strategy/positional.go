package strategy

import (
	"context"
	"math"
)

// positionEpsilon is how close two seek positions may be before the later
// one is dropped as a duplicate.
const positionEpsilon = 1e-3

// Positional proposes the start, middle and end of the video.
type Positional struct {
	timeline Timeline
	output   OutputOptions
}

// NewPositional creates the start/middle/end strategy.
func NewPositional(opts Options) *Positional {
	return &Positional{timeline: opts.Timeline, output: opts.Output}
}

// Kind implements Strategy.
func (p *Positional) Kind() Kind { return KindPositional }

// Attempts implements Strategy.
func (p *Positional) Attempts() int { return 2 }

// Propose implements Strategy.
func (p *Positional) Propose(_ context.Context, in Input) ([]Candidate, error) {
	d := p.timeline.Duration(in.Meta)
	spec := p.output.Spec(in.Meta)

	return dedupe([]Candidate{
		{Seek: p.timeline.Start(d), Output: spec, Label: LabelStart},
		{Seek: p.timeline.At(0.5, d), Output: spec, Label: LabelMiddle},
		{Seek: p.timeline.At(0.9, d), Output: spec, Label: LabelEnd},
	}), nil
}

// BuildArgs implements Strategy.
func (p *Positional) BuildArgs(req ArgsRequest) []string {
	return singleFrameArgs(req)
}

// MultiTimestampFractions spread candidates across the video.
var MultiTimestampFractions = []float64{0.05, 0.25, 0.5, 0.75, 0.9}

// MultiTimestamp proposes frames spread between 5% and 90% of the video.
type MultiTimestamp struct {
	timeline  Timeline
	output    OutputOptions
	fractions []float64
}

// NewMultiTimestamp creates the spread strategy.
func NewMultiTimestamp(opts Options) *MultiTimestamp {
	return &MultiTimestamp{
		timeline:  opts.Timeline,
		output:    opts.Output,
		fractions: MultiTimestampFractions,
	}
}

// Kind implements Strategy.
func (m *MultiTimestamp) Kind() Kind { return KindMultiTimestamp }

// Attempts implements Strategy.
func (m *MultiTimestamp) Attempts() int { return 2 }

// Propose implements Strategy.
func (m *MultiTimestamp) Propose(_ context.Context, in Input) ([]Candidate, error) {
	return m.candidates(in), nil
}

func (m *MultiTimestamp) candidates(in Input) []Candidate {
	d := m.timeline.Duration(in.Meta)
	spec := m.output.Spec(in.Meta)

	out := make([]Candidate, 0, len(m.fractions))
	for _, f := range m.fractions {
		out = append(out, Candidate{Seek: m.timeline.At(f, d), Output: spec, Label: LabelTimestamp})
	}
	return dedupe(out)
}

// BuildArgs implements Strategy.
func (m *MultiTimestamp) BuildArgs(req ArgsRequest) []string {
	return singleFrameArgs(req)
}

// dedupe drops candidates whose position repeats the previous one, which
// happens when short videos clamp several fractions to the same bound.
func dedupe(in []Candidate) []Candidate {
	out := in[:0]
	for i, c := range in {
		if i > 0 && math.Abs(c.Seek-out[len(out)-1].Seek) < positionEpsilon {
			continue
		}
		out = append(out, c)
	}
	return out
}
