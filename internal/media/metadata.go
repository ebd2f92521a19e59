// Package media describes the source video (duration and frame size) and
// resolves that description with the probe binary when the caller has none.
package media

import (
	"fmt"
	"math"
)

// DefaultDuration is substituted whenever a duration is unknown or not positive.
const DefaultDuration = 10.0

// Metadata is what the pipeline knows about a source video.
// A zero Duration means unknown. Zero Width or Height means unknown.
type Metadata struct {
	Duration float64 `json:"duration" bson:"duration"`
	Width    int     `json:"width" bson:"width"`
	Height   int     `json:"height" bson:"height"`
}

// EffectiveDuration returns Duration, or def when Duration is unknown, negative
// or not a number. If def is not positive either, DefaultDuration is used.
func (m Metadata) EffectiveDuration(def float64) float64 {
	if m.Duration > 0 && !math.IsInf(m.Duration, 0) && !math.IsNaN(m.Duration) {
		return m.Duration
	}
	if def > 0 {
		return def
	}
	return DefaultDuration
}

// HasDimensions reports whether both frame dimensions are known.
func (m Metadata) HasDimensions() bool {
	return m.Width > 0 && m.Height > 0
}

// AspectRatio returns width/height, or 0 when the dimensions are unknown.
func (m Metadata) AspectRatio() float64 {
	if !m.HasDimensions() {
		return 0
	}
	return float64(m.Width) / float64(m.Height)
}

// String implements fmt.Stringer.
func (m Metadata) String() string {
	return fmt.Sprintf("%.2fs %dx%d", m.Duration, m.Width, m.Height)
}

// Box is an output frame size. A zero Box means "let the scale rule decide".
type Box struct {
	Width  int
	Height int
}

// IsZero reports whether the box carries no size.
func (b Box) IsZero() bool {
	return b.Width <= 0 || b.Height <= 0
}

// FitBox sizes the thumbnail for meta: maxW wide with the height following the
// aspect ratio, unless that height exceeds maxH, in which case the height is
// maxH and the width follows. Both sides are rounded to even numbers, which
// the JPEG encoder's chroma subsampling requires. When the dimensions are
// unknown FitBox returns a zero Box.
func FitBox(meta Metadata, maxW, maxH int) Box {
	ratio := meta.AspectRatio()
	if ratio <= 0 || maxW <= 0 || maxH <= 0 {
		return Box{}
	}

	w := maxW
	h := int(math.Round(float64(w) / ratio))
	if h > maxH {
		h = maxH
		w = int(math.Round(float64(h) * ratio))
	}
	return Box{Width: even(w), Height: even(h)}
}

// ScaleFilter returns the decoder scale filter for the box. For a zero box it
// returns a rule that fits the frame into maxW x maxH keeping the aspect ratio.
func ScaleFilter(b Box, maxW, maxH int) string {
	if b.IsZero() {
		return fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease:force_divisible_by=2", maxW, maxH)
	}
	return fmt.Sprintf("scale=%d:%d", b.Width, b.Height)
}

func even(n int) int {
	if n < 2 {
		return 2
	}
	return n &^ 1
}
