// Package process runs the external decoder binary with bounded arguments,
// a wall-clock timeout and bounded output capture.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultOutputLimit bounds how many bytes of stdout and stderr are kept per run.
const DefaultOutputLimit = 64 * 1024

// pipeWaitDelay bounds how long Run waits for output pipes to close after the
// process was killed.
const pipeWaitDelay = time.Second

// DecoderPrefix is prepended to every decoder invocation. It keeps the decoder
// on a single thread, silences the banner and never waits for stdin.
var DecoderPrefix = []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-threads", "1", "-y"}

// ProbePrefix is prepended to every probe invocation.
var ProbePrefix = []string{"-hide_banner", "-v", "error"}

// Runner runs the configured binary once and reports how it ended.
// Run never returns an error: every failure is described by the Outcome.
type Runner interface {
	Run(ctx context.Context, args []string, timeout time.Duration) Outcome
}

// Outcome describes a finished (or killed) process.
type Outcome struct {
	// Args are the arguments passed to the binary, prefix included.
	Args []string
	// ExitCode is the process exit status, -1 when killed or never started.
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	// TimedOut is set when the process was killed because the timeout expired.
	TimedOut bool
	// SpawnErr is set when the binary could not be started at all.
	SpawnErr error
	Duration time.Duration
}

// OK reports whether the process started, finished in time and exited 0.
func (o Outcome) OK() bool {
	return o.SpawnErr == nil && !o.TimedOut && o.ExitCode == 0
}

// Err returns nil for a successful outcome and a descriptive error otherwise.
func (o Outcome) Err() error {
	if o.SpawnErr != nil {
		return o.SpawnErr
	}
	if o.OK() {
		return nil
	}
	return &DecoderError{
		Args:     o.Args,
		ExitCode: o.ExitCode,
		TimedOut: o.TimedOut,
		Stderr:   strings.TrimSpace(string(o.Stderr)),
	}
}

// SpawnError reports that the binary could not be executed (missing,
// not executable). Retrying cannot fix it.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// DecoderError describes a run that started but did not succeed.
type DecoderError struct {
	Args     []string
	ExitCode int
	TimedOut bool
	Stderr   string
}

func (e *DecoderError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("decoder timed out\nargs: %v", e.Args)
	}
	return fmt.Sprintf("decoder exited with code %d\nargs: %v\nstderr: %s", e.ExitCode, e.Args, e.Stderr)
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct {
	binary      string
	prefix      []string
	outputLimit int
}

// RunnerOption configures an ExecRunner.
type RunnerOption func(*ExecRunner)

// WithOutputLimit caps the captured stdout and stderr, each, to n bytes.
func WithOutputLimit(n int) RunnerOption {
	return func(r *ExecRunner) {
		if n > 0 {
			r.outputLimit = n
		}
	}
}

// NewExecRunner creates a runner for binary. The prefix is copied and
// prepended to the arguments of every run.
func NewExecRunner(binary string, prefix []string, opts ...RunnerOption) *ExecRunner {
	r := &ExecRunner{
		binary:      binary,
		prefix:      append([]string(nil), prefix...),
		outputLimit: DefaultOutputLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDecoderRunner creates a runner for the decoder binary with DecoderPrefix.
// If binary is empty, it defaults to "ffmpeg" (found via PATH).
func NewDecoderRunner(binary string, opts ...RunnerOption) *ExecRunner {
	if binary == "" {
		binary = "ffmpeg"
	}
	return NewExecRunner(binary, DecoderPrefix, opts...)
}

// NewProbeRunner creates a runner for the probe binary with ProbePrefix.
// If binary is empty, it defaults to "ffprobe" (found via PATH).
func NewProbeRunner(binary string, opts ...RunnerOption) *ExecRunner {
	if binary == "" {
		binary = "ffprobe"
	}
	return NewExecRunner(binary, ProbePrefix, opts...)
}

// Binary returns the configured binary path.
func (r *ExecRunner) Binary() string {
	return r.binary
}

// Run starts the binary and waits for it to exit or for the timeout to expire.
// On expiry the process is killed (SIGKILL, no grace period).
func (r *ExecRunner) Run(ctx context.Context, args []string, timeout time.Duration) Outcome {
	full := make([]string, 0, len(r.prefix)+len(args))
	full = append(full, r.prefix...)
	full = append(full, args...)

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// #nosec G204 - binary is fixed configuration, args are built internally
	cmd := exec.CommandContext(runCtx, r.binary, full...)
	cmd.WaitDelay = pipeWaitDelay

	stdout := newCappedBuffer(r.outputLimit)
	stderr := newCappedBuffer(r.outputLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	out := Outcome{Args: full, ExitCode: -1}
	start := time.Now()

	if err := cmd.Start(); err != nil {
		out.Duration = time.Since(start)
		if runCtx.Err() != nil {
			out.TimedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)
			return out
		}
		out.SpawnErr = &SpawnError{Binary: r.binary, Err: err}
		return out
	}

	err := cmd.Wait()
	out.Duration = time.Since(start)
	out.Stdout = stdout.Bytes()
	out.Stderr = stderr.Bytes()

	if runCtx.Err() != nil {
		out.TimedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)
		return out
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
		}
		return out
	}

	out.ExitCode = 0
	return out
}

// cappedBuffer keeps the first limit bytes written to it and silently drops
// the rest, so a chatty process can never grow memory without bound.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

// Verify interface implementation at compile time.
var _ Runner = (*ExecRunner)(nil)
