package fallback

import (
	"context"
	"time"

	"github.com/maauso/thumbnailer/internal/process"
)

// FirstFrame extracts the very first frame with the most compatible
// arguments the decoder accepts.
type FirstFrame struct {
	runner  process.Runner
	timeout time.Duration
}

// NewFirstFrame creates the first-frame producer.
func NewFirstFrame(runner process.Runner, timeout time.Duration) *FirstFrame {
	return &FirstFrame{runner: runner, timeout: timeout}
}

// Name implements Producer.
func (f *FirstFrame) Name() string { return "first_frame" }

// Produce implements Producer.
func (f *FirstFrame) Produce(ctx context.Context, in Input, scratch Scratch) (string, error) {
	if in.Locator == "" {
		return "", ErrNotAvailable
	}

	path := scratch.NewPath(Label, "jpg")
	out := f.runner.Run(ctx, []string{"-i", in.Locator, "-frames:v", "1", "-f", "image2", path}, f.timeout)
	if err := out.Err(); err != nil {
		scratch.Discard(path)
		return "", err
	}
	return path, nil
}
