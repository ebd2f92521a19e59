package validate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/thumbnailer/internal/process"
	"github.com/maauso/thumbnailer/internal/process/processtest"
	"github.com/maauso/thumbnailer/internal/storage"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", LevelBasic, false},
		{"basic", LevelBasic, false},
		{"DECODE", LevelDecode, false},
		{" redecode ", LevelRedecode, false},
		{"paranoid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownLevel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidator_Basic(t *testing.T) {
	v := New()
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		err := v.Check(ctx, filepath.Join(t.TempDir(), "missing.jpg"))
		assert.ErrorIs(t, err, ErrMissing)
	})

	t.Run("zero-byte file", func(t *testing.T) {
		err := v.Check(ctx, writeFile(t, "empty.jpg", nil))
		assert.ErrorIs(t, err, ErrTooSmall)
	})

	t.Run("header-only file", func(t *testing.T) {
		err := v.Check(ctx, writeFile(t, "short.jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0}))
		assert.ErrorIs(t, err, ErrTooSmall)
	})

	t.Run("directory", func(t *testing.T) {
		assert.ErrorIs(t, v.Check(ctx, t.TempDir()), ErrMissing)
	})

	t.Run("large enough garbage passes basic level", func(t *testing.T) {
		assert.True(t, v.Validate(ctx, writeFile(t, "garbage.jpg", make([]byte, 1024))))
	})

	t.Run("custom minimum", func(t *testing.T) {
		strict := New(WithMinBytes(4096))
		assert.False(t, strict.Validate(ctx, writeFile(t, "small.jpg", make([]byte, 1024))))
	})
}

func TestValidator_Decode(t *testing.T) {
	v := New(WithLevel(LevelDecode))
	ctx := context.Background()

	assert.True(t, v.Validate(ctx, writeFile(t, "ok.jpg", processtest.JPEG(64, 48))))

	err := v.Check(ctx, writeFile(t, "garbage.jpg", make([]byte, 1024)))
	assert.ErrorIs(t, err, ErrNotDecodable)
}

func TestValidator_Redecode(t *testing.T) {
	ctx := context.Background()
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	good := writeFile(t, "ok.jpg", processtest.JPEG(64, 48))

	t.Run("second pass succeeds and scratch is removed", func(t *testing.T) {
		runner := processtest.NewRunner(processtest.WriteOutput(processtest.JPEG(32, 24)))
		v := New(WithLevel(LevelRedecode), WithRedecoder(runner, local, time.Second))

		require.NoError(t, v.Check(ctx, good))

		calls := runner.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, good, calls[0].Value("-i"))
		assert.Equal(t, time.Second, calls[0].Timeout)
		assert.NoFileExists(t, calls[0].Output())
	})

	t.Run("second pass fails", func(t *testing.T) {
		runner := processtest.NewRunner(func(processtest.Call) process.Outcome {
			return processtest.Exit(1, "Invalid data found when processing input")
		})
		v := New(WithLevel(LevelRedecode), WithRedecoder(runner, local, time.Second))

		assert.ErrorIs(t, v.Check(ctx, good), ErrRedecode)
	})

	t.Run("second pass writes trivial output", func(t *testing.T) {
		runner := processtest.NewRunner(processtest.WriteOutput([]byte("tiny")))
		v := New(WithLevel(LevelRedecode), WithRedecoder(runner, local, time.Second))

		assert.ErrorIs(t, v.Check(ctx, good), ErrRedecode)
		entries, _ := os.ReadDir(local.TempDir())
		assert.Empty(t, entries)
	})

	t.Run("basic rejection short-circuits", func(t *testing.T) {
		runner := processtest.NewRunner(processtest.WriteOutput(processtest.JPEG(32, 24)))
		v := New(WithLevel(LevelRedecode), WithRedecoder(runner, local, time.Second))

		assert.False(t, v.Validate(ctx, writeFile(t, "empty.jpg", nil)))
		assert.Zero(t, runner.CallCount())
	})
}
