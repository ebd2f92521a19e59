package process

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates an executable shell script that stands in for the decoder.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not available on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-decoder.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestNewDecoderRunner_Defaults(t *testing.T) {
	t.Run("default path", func(t *testing.T) {
		r := NewDecoderRunner("")
		assert.Equal(t, "ffmpeg", r.Binary())
		assert.Equal(t, DecoderPrefix, r.prefix)
	})

	t.Run("custom path", func(t *testing.T) {
		r := NewDecoderRunner("/usr/local/bin/ffmpeg")
		assert.Equal(t, "/usr/local/bin/ffmpeg", r.Binary())
	})

	t.Run("probe runner", func(t *testing.T) {
		r := NewProbeRunner("")
		assert.Equal(t, "ffprobe", r.Binary())
		assert.Equal(t, ProbePrefix, r.prefix)
	})
}

func TestExecRunner_Success(t *testing.T) {
	script := writeScript(t, `echo "$@"`)
	r := NewExecRunner(script, []string{"-threads", "1"})

	out := r.Run(context.Background(), []string{"-i", "input.mp4", "out.jpg"}, 5*time.Second)

	require.True(t, out.OK(), "outcome: %+v", out)
	assert.NoError(t, out.Err())
	assert.Equal(t, 0, out.ExitCode)
	assert.False(t, out.TimedOut)
	assert.Equal(t, "-threads 1 -i input.mp4 out.jpg", strings.TrimSpace(string(out.Stdout)))
	assert.Equal(t, []string{"-threads", "1", "-i", "input.mp4", "out.jpg"}, out.Args)
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "bad input" >&2; exit 3`)
	r := NewExecRunner(script, nil)

	out := r.Run(context.Background(), nil, 5*time.Second)

	assert.False(t, out.OK())
	assert.Equal(t, 3, out.ExitCode)
	assert.Nil(t, out.SpawnErr)
	assert.False(t, out.TimedOut)

	var decErr *DecoderError
	require.ErrorAs(t, out.Err(), &decErr)
	assert.Equal(t, 3, decErr.ExitCode)
	assert.Contains(t, decErr.Stderr, "bad input")
}

func TestExecRunner_TimeoutKills(t *testing.T) {
	script := writeScript(t, `exec sleep 10`)
	r := NewExecRunner(script, nil)

	start := time.Now()
	out := r.Run(context.Background(), nil, 100*time.Millisecond)

	assert.True(t, out.TimedOut)
	assert.False(t, out.OK())
	assert.Equal(t, -1, out.ExitCode)
	assert.Nil(t, out.SpawnErr)
	assert.Less(t, time.Since(start), 5*time.Second)

	var decErr *DecoderError
	require.ErrorAs(t, out.Err(), &decErr)
	assert.True(t, decErr.TimedOut)
}

func TestExecRunner_SpawnFailure(t *testing.T) {
	t.Run("missing binary", func(t *testing.T) {
		r := NewExecRunner(filepath.Join(t.TempDir(), "does-not-exist"), nil)

		out := r.Run(context.Background(), []string{"-version"}, time.Second)

		require.Error(t, out.SpawnErr)
		var spawnErr *SpawnError
		require.ErrorAs(t, out.SpawnErr, &spawnErr)
		assert.True(t, errors.Is(out.SpawnErr, fs.ErrNotExist))
		assert.False(t, out.OK())
		assert.False(t, out.TimedOut)
	})

	t.Run("not executable", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("permission bits are not enforced on windows")
		}
		path := filepath.Join(t.TempDir(), "plain-file")
		require.NoError(t, os.WriteFile(path, []byte("not a program"), 0o644))

		out := NewExecRunner(path, nil).Run(context.Background(), nil, time.Second)

		require.Error(t, out.SpawnErr)
		assert.True(t, errors.Is(out.SpawnErr, fs.ErrPermission))
	})
}

func TestExecRunner_OutputIsCapped(t *testing.T) {
	script := writeScript(t, `head -c 200000 /dev/zero`)
	runner := NewExecRunner(script, nil, WithOutputLimit(1024))

	out := runner.Run(context.Background(), nil, 5*time.Second)

	require.True(t, out.OK(), "outcome: %+v", out)
	assert.Len(t, out.Stdout, 1024)
}

func TestExecRunner_CancelledParentIsNotSpawnFailure(t *testing.T) {
	script := writeScript(t, `exec sleep 10`)
	runner := NewExecRunner(script, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := runner.Run(ctx, nil, time.Second)

	assert.Nil(t, out.SpawnErr)
	assert.False(t, out.OK())
}

func TestCappedBuffer(t *testing.T) {
	b := newCappedBuffer(4)

	n, err := b.Write([]byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = b.Write([]byte("cdef"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = b.Write([]byte("gh"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, "abcd", string(b.Bytes()))
}
