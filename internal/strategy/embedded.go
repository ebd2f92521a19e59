package strategy

import "context"

// EmbeddedCover extracts the cover image stored in the container. The first
// attempt copies the attached picture as is into a raw intermediate file; the
// second scales and re-encodes whatever the first left behind, or the first
// video frame when nothing was copied. Only the second attempt's output can
// become a result.
type EmbeddedCover struct {
	output OutputOptions
}

// NewEmbeddedCover creates the embedded cover strategy.
func NewEmbeddedCover(opts Options) *EmbeddedCover {
	return &EmbeddedCover{output: opts.Output}
}

// Kind implements Strategy.
func (e *EmbeddedCover) Kind() Kind { return KindEmbeddedCover }

// Attempts implements Strategy.
func (e *EmbeddedCover) Attempts() int { return 2 }

// Propose implements Strategy.
func (e *EmbeddedCover) Propose(_ context.Context, in Input) ([]Candidate, error) {
	return []Candidate{{Seek: 0, Output: e.output.Spec(in.Meta), Label: LabelEmbedded}}, nil
}

// IntermediateAttempt implements Intermediate.
func (e *EmbeddedCover) IntermediateAttempt(attempt int) bool { return attempt == 0 }

// BuildArgs implements Strategy.
func (e *EmbeddedCover) BuildArgs(req ArgsRequest) []string {
	if req.Attempt == 0 {
		// 0:v selects every video stream, -0:V removes the ones that are not
		// attached pictures.
		return []string{
			"-i", req.Locator,
			"-map", "0:v", "-map", "-0:V",
			"-c", "copy",
			"-frames:v", "1",
			"-f", "image2",
			req.Output,
		}
	}

	var args []string
	if req.Previous != "" {
		args = []string{"-i", req.Previous}
	} else {
		args = []string{"-i", req.Locator, "-map", "0:v:0"}
	}
	args = append(args, req.Candidate.Output.encodeArgs()...)
	return append(args, req.Output)
}
