// Package processtest provides a scriptable process.Runner for tests.
package processtest

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/maauso/thumbnailer/internal/process"
)

// Handler decides the outcome of one call. It may write files.
type Handler func(call Call) process.Outcome

// Call records one invocation of the fake runner.
type Call struct {
	Args    []string
	Timeout time.Duration
}

// Output returns the last argument, which is where every decoder invocation
// in this module writes its result.
func (c Call) Output() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[len(c.Args)-1]
}

// Has reports whether the call contains the given argument.
func (c Call) Has(arg string) bool {
	for _, a := range c.Args {
		if a == arg {
			return true
		}
	}
	return false
}

// Value returns the argument following flag, or "" when flag is absent.
func (c Call) Value(flag string) string {
	for i := 0; i < len(c.Args)-1; i++ {
		if c.Args[i] == flag {
			return c.Args[i+1]
		}
	}
	return ""
}

// Runner is a concurrency-safe fake process.Runner.
type Runner struct {
	mu      sync.Mutex
	handler Handler
	calls   []Call
}

// NewRunner returns a fake runner that delegates every call to h.
func NewRunner(h Handler) *Runner {
	return &Runner{handler: h}
}

// Run implements process.Runner.
func (r *Runner) Run(_ context.Context, args []string, timeout time.Duration) process.Outcome {
	call := Call{Args: append([]string(nil), args...), Timeout: timeout}

	r.mu.Lock()
	r.calls = append(r.calls, call)
	h := r.handler
	r.mu.Unlock()

	out := h(call)
	if out.Args == nil {
		out.Args = call.Args
	}
	return out
}

// Calls returns a copy of the recorded calls.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallCount returns the number of recorded calls.
func (r *Runner) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Success is a successful outcome.
func Success() process.Outcome {
	return process.Outcome{ExitCode: 0}
}

// Exit is an outcome with the given non-zero exit code and stderr.
func Exit(code int, stderr string) process.Outcome {
	return process.Outcome{ExitCode: code, Stderr: []byte(stderr)}
}

// Timeout is the outcome of a killed process.
func Timeout() process.Outcome {
	return process.Outcome{ExitCode: -1, TimedOut: true}
}

// SpawnFailure is the outcome of a binary that cannot be executed.
func SpawnFailure(binary string) process.Outcome {
	return process.Outcome{
		ExitCode: -1,
		SpawnErr: &process.SpawnError{Binary: binary, Err: os.ErrNotExist},
	}
}

// Stdout is a successful outcome with the given stdout.
func Stdout(s string) process.Outcome {
	return process.Outcome{ExitCode: 0, Stdout: []byte(s)}
}

// WriteOutput returns a handler that writes data to the call's output path
// and succeeds.
func WriteOutput(data []byte) Handler {
	return func(call Call) process.Outcome {
		if err := os.WriteFile(call.Output(), data, 0o600); err != nil {
			return Exit(1, err.Error())
		}
		return Success()
	}
}
