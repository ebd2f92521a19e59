package strategy

import (
	"strconv"
	"strings"

	"github.com/maauso/thumbnailer/internal/media"
)

// OutputOptions bounds every still the strategies produce.
type OutputOptions struct {
	MaxWidth  int
	MaxHeight int
	// Quality is the decoder's -q:v value, 2 (best) to 31 (worst).
	Quality int
	// Enhance applies a light sharpen and contrast boost.
	Enhance bool
	Ext     string
}

// DefaultOutputOptions returns the stock output bounds.
func DefaultOutputOptions() OutputOptions {
	return OutputOptions{
		MaxWidth:  320,
		MaxHeight: 240,
		Quality:   3,
		Ext:       "jpg",
	}
}

// Enhance filters, applied after scaling.
const (
	sharpenFilter  = "unsharp=5:5:0.8:5:5:0.0"
	contrastFilter = "eq=contrast=1.1:saturation=1.05"
)

// OutputSpec is the encoding of one candidate.
type OutputSpec struct {
	// Width and Height are the exact size; zero means fit into the max box.
	Width     int
	Height    int
	MaxWidth  int
	MaxHeight int
	Quality   int
	Filters   []string
	Ext       string
}

// Spec sizes the output for meta.
func (o OutputOptions) Spec(meta media.Metadata) OutputSpec {
	box := media.FitBox(meta, o.MaxWidth, o.MaxHeight)
	spec := OutputSpec{
		Width:     box.Width,
		Height:    box.Height,
		MaxWidth:  o.MaxWidth,
		MaxHeight: o.MaxHeight,
		Quality:   o.Quality,
		Ext:       o.Ext,
	}
	if o.Enhance {
		spec.Filters = []string{sharpenFilter, contrastFilter}
	}
	return spec
}

// VideoFilter returns the -vf chain: scaling first, then cosmetic filters.
func (s OutputSpec) VideoFilter() string {
	chain := []string{media.ScaleFilter(media.Box{Width: s.Width, Height: s.Height}, s.MaxWidth, s.MaxHeight)}
	chain = append(chain, s.Filters...)
	return strings.Join(chain, ",")
}

// encodeArgs are the output options shared by every single-frame extraction.
func (s OutputSpec) encodeArgs() []string {
	args := []string{"-frames:v", "1", "-an", "-sn", "-vf", s.VideoFilter()}
	if s.Quality > 0 {
		args = append(args, "-q:v", strconv.Itoa(s.Quality))
	}
	return append(args, "-f", "image2")
}

// formatSeconds renders a position the way the decoder expects.
func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

// singleFrameArgs extracts the frame at c.Seek. Attempt 0 seeks before
// opening the input, which is fast on remote sources; later attempts seek
// after it, which decodes up to the position but tolerates broken indexes.
func singleFrameArgs(req ArgsRequest) []string {
	seek := formatSeconds(req.Candidate.Seek)
	var args []string
	if req.Attempt == 0 {
		args = []string{"-ss", seek, "-i", req.Locator}
	} else {
		args = []string{"-i", req.Locator, "-ss", seek}
	}
	args = append(args, req.Candidate.Output.encodeArgs()...)
	return append(args, req.Output)
}
