// Package cli implements the thumbgen command line: one-shot extraction,
// probing and temp file cleanup without the HTTP server.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/maauso/thumbnailer/internal/extract"
	"github.com/maauso/thumbnailer/internal/fetch"
	"github.com/maauso/thumbnailer/internal/janitor"
	"github.com/maauso/thumbnailer/internal/media"
)

// ErrKeepOutOfRange is returned when --keep names a result that does not exist.
var ErrKeepOutOfRange = errors.New("keep index out of range")

// Generator runs the extraction pipeline.
type Generator interface {
	Generate(ctx context.Context, req extract.Request) ([]extract.Result, error)
}

// Prober reads media metadata.
type Prober interface {
	Probe(ctx context.Context, locator string) (media.Metadata, error)
}

// TempFiles tells whether a path lives in the temp root.
type TempFiles interface {
	Contains(path string) bool
}

// Deps are the components a command needs.
type Deps struct {
	Generator   Generator
	Prober      Prober
	Files       TempFiles
	Credentials fetch.Credentials
	Logger      *slog.Logger
	// Close releases external connections. It may be nil.
	Close func(context.Context) error
}

// Loader builds Deps when a command runs, so --help works without a decoder.
type Loader func(ctx context.Context) (*Deps, error)

// NewRootCommand returns the thumbgen command tree.
func NewRootCommand(load Loader) *cobra.Command {
	root := &cobra.Command{
		Use:           "thumbgen",
		Short:         "Extract video thumbnails",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newExtractCommand(load),
		newProbeCommand(load),
		newCleanupCommand(load),
	)
	return root
}

func newExtractCommand(load Loader) *cobra.Command {
	var (
		name       string
		previewURL string
		duration   float64
		width      int
		height     int
		keep       int
	)
	cmd := &cobra.Command{
		Use:   "extract <locator>",
		Short: "Extract candidate thumbnails and print them as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, load, func(ctx context.Context, deps *Deps) error {
				req := extract.Request{
					Locator:     args[0],
					DisplayName: name,
					PreviewURL:  previewURL,
					Credentials: deps.Credentials,
				}
				if duration > 0 || width > 0 || height > 0 {
					req.Metadata = &media.Metadata{Duration: duration, Width: width, Height: height}
				}

				results, err := deps.Generator.Generate(ctx, req)
				if err != nil {
					return err
				}
				if keep >= 0 {
					if results, err = keepOne(deps.Logger, results, keep); err != nil {
						return err
					}
				}
				return writeJSON(cmd.OutOrStdout(), results)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name rendered on the placeholder")
	cmd.Flags().StringVar(&previewURL, "preview-url", "", "platform thumbnail tried first by the fallback chain")
	cmd.Flags().Float64Var(&duration, "duration", 0, "duration hint in seconds (0 probes)")
	cmd.Flags().IntVar(&width, "width", 0, "frame width hint")
	cmd.Flags().IntVar(&height, "height", 0, "frame height hint")
	cmd.Flags().IntVar(&keep, "keep", -1, "retain only this result index and delete the others")
	return cmd
}

func newProbeCommand(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <locator>",
		Short: "Print the duration and frame size of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, load, func(ctx context.Context, deps *Deps) error {
				meta, err := deps.Prober.Probe(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), meta)
			})
		},
	}
}

// CleanupReport is printed by the cleanup command.
type CleanupReport struct {
	Requested int      `json:"requested"`
	Failed    int      `json:"failed"`
	Rejected  []string `json:"rejected,omitempty"`
}

func newCleanupCommand(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <path>...",
		Short: "Delete thumbnails previously returned by extract",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, load, func(_ context.Context, deps *Deps) error {
				var report CleanupReport
				var accepted []string
				for _, p := range args {
					if deps.Files.Contains(p) {
						accepted = append(accepted, p)
					} else {
						report.Rejected = append(report.Rejected, p)
					}
				}
				report.Requested = len(accepted)
				report.Failed = janitor.Remove(deps.Logger, accepted)
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func withDeps(cmd *cobra.Command, load Loader, fn func(context.Context, *Deps) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	deps, err := load(ctx)
	if err != nil {
		return err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Close != nil {
		defer func() {
			if err := deps.Close(context.WithoutCancel(ctx)); err != nil {
				deps.Logger.Warn("failed to close dependencies", slog.String("error", err.Error()))
			}
		}()
	}
	return fn(ctx, deps)
}

// keepOne deletes every result but results[index]. An out of range index
// deletes them all.
func keepOne(logger *slog.Logger, results []extract.Result, index int) ([]extract.Result, error) {
	if index >= len(results) {
		janitor.Remove(logger, extract.Paths(results))
		return nil, fmt.Errorf("%w: %d of %d", ErrKeepOutOfRange, index, len(results))
	}
	drop := make([]string, 0, len(results)-1)
	for i, r := range results {
		if i != index {
			drop = append(drop, r.Path)
		}
	}
	janitor.Remove(logger, drop)
	return results[index : index+1], nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
