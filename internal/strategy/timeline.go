package strategy

import (
	"math"

	"github.com/maauso/thumbnailer/internal/media"
)

// Timeline turns fractions of the duration into seek positions that avoid
// black leader and trailer frames.
type Timeline struct {
	// Floor is the earliest position, in seconds.
	Floor float64
	// TailMargin is kept free at the end, in seconds.
	TailMargin float64
	// StartCap bounds the "start" position, in seconds.
	StartCap float64
	// DefaultDuration stands in for an unknown duration.
	DefaultDuration float64
}

// DefaultTimeline returns the stock clamps.
func DefaultTimeline() Timeline {
	return Timeline{
		Floor:           1,
		TailMargin:      3,
		StartCap:        3,
		DefaultDuration: media.DefaultDuration,
	}
}

// Duration returns the duration positions are computed from.
func (t Timeline) Duration(meta media.Metadata) float64 {
	return meta.EffectiveDuration(t.DefaultDuration)
}

// Clamp keeps pos inside [Floor, d-TailMargin]. When the video is too short
// for that range, pos is kept inside [0, d] instead.
func (t Timeline) Clamp(pos, d float64) float64 {
	hi := d - t.TailMargin
	lo := t.Floor
	if hi < lo {
		lo, hi = 0, d
	}
	return math.Min(math.Max(pos, lo), hi)
}

// At returns the clamped position of fraction f of d.
func (t Timeline) At(f, d float64) float64 {
	return t.Clamp(f*d, d)
}

// Start returns the clamped "start" position: a tenth of d, but no later
// than StartCap.
func (t Timeline) Start(d float64) float64 {
	pos := 0.1 * d
	if t.StartCap > 0 && pos > t.StartCap {
		pos = t.StartCap
	}
	return t.Clamp(pos, d)
}
