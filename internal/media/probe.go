package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/maauso/thumbnailer/internal/process"
)

// Static errors for probe operations.
var (
	// ErrEmptyLocator is returned when no media locator is given.
	ErrEmptyLocator = errors.New("media locator is empty")
	// ErrNoDuration is returned when the probe output carries no usable duration.
	ErrNoDuration = errors.New("duration not available in probe output")
)

// DefaultProbeTimeout bounds a single probe invocation.
const DefaultProbeTimeout = 5 * time.Second

// probeStream is a media stream as reported by the probe binary.
type probeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Duration  string `json:"duration,omitempty"`
	// Disposition marks attached pictures (cover art) among video streams.
	Disposition struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

// probeFormat is the container section of the probe output.
type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

// probeOutput is the raw JSON document printed by the probe binary.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

// Prober reads video metadata with the probe binary.
type Prober struct {
	runner   process.Runner
	timeout  time.Duration
	fallback float64
	logger   *slog.Logger
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProbeTimeout sets the wall-clock limit of one probe run.
func WithProbeTimeout(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithFallbackDuration sets the duration Resolve uses when probing fails.
func WithFallbackDuration(sec float64) ProberOption {
	return func(p *Prober) {
		if sec > 0 {
			p.fallback = sec
		}
	}
}

// WithProbeLogger sets the logger.
func WithProbeLogger(logger *slog.Logger) ProberOption {
	return func(p *Prober) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProber creates a Prober that runs the probe binary through runner.
func NewProber(runner process.Runner, opts ...ProberOption) *Prober {
	p := &Prober{
		runner:   runner,
		timeout:  DefaultProbeTimeout,
		fallback: DefaultDuration,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe runs the probe binary against locator and returns the duration and
// the size of the first real video stream (attached pictures are skipped).
func (p *Prober) Probe(ctx context.Context, locator string) (Metadata, error) {
	if locator == "" {
		return Metadata{}, ErrEmptyLocator
	}

	args := []string{
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		locator,
	}
	out := p.runner.Run(ctx, args, p.timeout)
	if err := out.Err(); err != nil {
		return Metadata{}, fmt.Errorf("probe %s: %w", locator, err)
	}

	return parseProbeOutput(out.Stdout)
}

// Resolve fills in whatever hint leaves unknown. A hint with a positive
// duration is returned untouched without running the probe. Probe failures
// are logged and replaced by the fallback duration; Resolve never fails.
func (p *Prober) Resolve(ctx context.Context, locator string, hint *Metadata) Metadata {
	var meta Metadata
	if hint != nil {
		meta = *hint
	}
	if meta.Duration > 0 {
		return meta
	}

	probed, err := p.Probe(ctx, locator)
	if err != nil {
		p.logger.Warn("metadata probe failed, using fallback duration",
			slog.String("locator", locator),
			slog.Float64("fallback_sec", p.fallback),
			slog.String("error", err.Error()),
		)
		meta.Duration = p.fallback
		return meta
	}

	meta.Duration = probed.EffectiveDuration(p.fallback)
	if !meta.HasDimensions() {
		meta.Width, meta.Height = probed.Width, probed.Height
	}
	return meta
}

// parseProbeOutput extracts Metadata from the JSON printed by the probe binary.
// The container duration wins; a video stream duration is used when the
// container has none.
func parseProbeOutput(data []byte) (Metadata, error) {
	var raw probeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return Metadata{}, fmt.Errorf("parse probe JSON output: %w", err)
	}

	var meta Metadata
	var streamDuration string
	for _, s := range raw.Streams {
		if s.CodecType != "video" || s.Disposition.AttachedPic == 1 {
			continue
		}
		meta.Width, meta.Height = s.Width, s.Height
		streamDuration = s.Duration
		break
	}

	for _, candidate := range []string{raw.Format.Duration, streamDuration} {
		if candidate == "" || candidate == "N/A" {
			continue
		}
		d, err := strconv.ParseFloat(candidate, 64)
		if err != nil || d <= 0 {
			continue
		}
		meta.Duration = d
		return meta, nil
	}

	return meta, ErrNoDuration
}
