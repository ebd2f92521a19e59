package strategy

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/thumbnailer/internal/media"
)

func TestTimeline_Clamp(t *testing.T) {
	tl := DefaultTimeline()

	tests := []struct {
		name     string
		pos, d   float64
		expected float64
	}{
		{"inside range", 60, 120, 60},
		{"below floor", 0.2, 120, 1},
		{"inside tail margin", 119, 120, 117},
		{"short video uses whole range", 1.5, 3, 1.5},
		{"short video negative", -1, 3, 0},
		{"short video past end", 4, 3, 3},
		{"exactly floor plus margin", 3, 4, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, tl.Clamp(tt.pos, tt.d), 1e-9)
		})
	}
}

func seeks(cs []Candidate) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Seek
	}
	return out
}

func TestPositional_PositionsStayInsideClamps(t *testing.T) {
	tl := DefaultTimeline()
	p := NewPositional(DefaultOptions())

	for d := 0.05; d < 4000; d *= 1.37 {
		cs, err := p.Propose(context.Background(), Input{Meta: media.Metadata{Duration: d}})
		require.NoError(t, err)
		require.NotEmpty(t, cs)

		prev := math.Inf(-1)
		for _, c := range cs {
			assert.GreaterOrEqual(t, c.Seek, 0.0, "d=%v", d)
			assert.LessOrEqual(t, c.Seek, d, "d=%v", d)
			if d > tl.Floor+tl.TailMargin {
				assert.GreaterOrEqual(t, c.Seek, tl.Floor, "d=%v", d)
				assert.LessOrEqual(t, c.Seek, d-tl.TailMargin, "d=%v", d)
			}
			assert.GreaterOrEqual(t, c.Seek, prev, "positions must not decrease, d=%v", d)
			prev = c.Seek
		}
	}
}

func TestStrategies_UnknownDurationMatchesDefault(t *testing.T) {
	opts := DefaultOptions()
	ctx := context.Background()
	reference := Input{Meta: media.Metadata{Duration: media.DefaultDuration}}

	for _, s := range []Strategy{NewPositional(opts), NewMultiTimestamp(opts)} {
		want, err := s.Propose(ctx, reference)
		require.NoError(t, err)

		for _, d := range []float64{0, -5, math.NaN()} {
			got, err := s.Propose(ctx, Input{Meta: media.Metadata{Duration: d}})
			require.NoError(t, err)
			assert.Equal(t, want, got, "%s with duration %v", s.Kind(), d)
		}
	}
}
