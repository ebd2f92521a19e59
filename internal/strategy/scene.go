package strategy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/maauso/thumbnailer/internal/process"
)

var (
	ptsTimeRe    = regexp.MustCompile(`pts_time:\s*(-?[\d.]+)`)
	sceneScoreRe = regexp.MustCompile(`lavfi\.scene_score=\s*([\d.]+)`)
)

// Scene is a detected scene change.
type Scene struct {
	// Time is relative to the start of the sampled window, in seconds.
	Time  float64
	Score float64
}

// SceneDetection samples a window of the video through the decoder's scene
// change filter and proposes the frames with the highest change scores.
// When no change is found it proposes the MultiTimestamp candidates instead.
type SceneDetection struct {
	opts     SceneOptions
	timeline Timeline
	output   OutputOptions
	runner   process.Runner
	spread   *MultiTimestamp
	logger   *slog.Logger
}

// NewSceneDetection creates the scene detection strategy.
func NewSceneDetection(opts Options, runner process.Runner) *SceneDetection {
	return &SceneDetection{
		opts:     opts.Scene,
		timeline: opts.Timeline,
		output:   opts.Output,
		runner:   runner,
		spread:   NewMultiTimestamp(opts),
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger and returns s.
func (s *SceneDetection) WithLogger(logger *slog.Logger) *SceneDetection {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Kind implements Strategy.
func (s *SceneDetection) Kind() Kind { return KindSceneDetection }

// Attempts implements Strategy.
func (s *SceneDetection) Attempts() int { return 2 }

// BuildArgs implements Strategy.
func (s *SceneDetection) BuildArgs(req ArgsRequest) []string {
	return singleFrameArgs(req)
}

// Window returns the sampled range for duration d: the intro skip and the
// window length, both shrunk to fit short videos.
func (s *SceneDetection) Window(d float64) (skip, length float64) {
	skip = s.opts.IntroSkip
	if skip < 0 || skip >= d {
		skip = 0
	}
	length = math.Min(s.opts.Window, d-skip)
	return skip, length
}

// Propose implements Strategy.
func (s *SceneDetection) Propose(ctx context.Context, in Input) ([]Candidate, error) {
	d := s.timeline.Duration(in.Meta)
	skip, length := s.Window(d)

	scenes, err := s.detect(ctx, in, skip, length)
	if err != nil {
		return nil, err
	}

	if len(scenes) == 0 {
		s.logger.Debug("no scene changes found, spreading candidates instead",
			slog.String("locator", in.Locator),
		)
		return s.spread.candidates(in), nil
	}

	scenes = TopScenes(scenes, s.opts.TopK)
	spec := s.output.Spec(in.Meta)
	out := make([]Candidate, 0, len(scenes))
	for _, sc := range scenes {
		out = append(out, Candidate{
			Seek:   s.timeline.Clamp(skip+sc.Time, d),
			Output: spec,
			Label:  LabelScene,
		})
	}
	return dedupe(out), nil
}

// detect runs the sampling pass. Only a spawn failure is returned as an
// error; a failed or killed pass yields whatever scenes were written before
// it stopped.
func (s *SceneDetection) detect(ctx context.Context, in Input, skip, length float64) ([]Scene, error) {
	if length <= 0 || in.Scratch == nil {
		return nil, nil
	}

	sideChannel := in.Scratch.NewPath("scene", "txt")
	defer in.Scratch.Discard(sideChannel)

	filter := fmt.Sprintf("select='gt(scene,%s)',metadata=print:file=%s",
		strconv.FormatFloat(s.opts.Threshold, 'f', -1, 64), escapeFilterValue(sideChannel))
	args := []string{
		"-ss", formatSeconds(skip),
		"-t", formatSeconds(length),
		"-i", in.Locator,
		"-an", "-sn",
		"-vf", filter,
		"-f", "null", "-",
	}

	out := s.runner.Run(ctx, args, s.opts.Timeout)
	if out.SpawnErr != nil {
		return nil, out.SpawnErr
	}
	if !out.OK() {
		s.logger.Debug("scene sampling pass failed",
			slog.String("locator", in.Locator),
			slog.Bool("timed_out", out.TimedOut),
			slog.Int("exit_code", out.ExitCode),
		)
	}

	f, err := os.Open(sideChannel) // #nosec G304 - path is generated
	if err != nil {
		return nil, nil
	}
	defer func() { _ = f.Close() }()

	return ParseScenes(f), nil
}

// ParseScenes reads the metadata filter's print output: a "pts_time:" line per
// selected frame followed by its "lavfi.scene_score=" line. Malformed or
// unpaired lines are skipped.
func ParseScenes(r io.Reader) []Scene {
	var scenes []Scene
	pending := math.NaN()

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if m := ptsTimeRe.FindStringSubmatch(line); m != nil {
			t, err := strconv.ParseFloat(m[1], 64)
			if err != nil || t < 0 {
				pending = math.NaN()
				continue
			}
			pending = t
			continue
		}
		if m := sceneScoreRe.FindStringSubmatch(line); m != nil && !math.IsNaN(pending) {
			score, err := strconv.ParseFloat(m[1], 64)
			if err == nil {
				scenes = append(scenes, Scene{Time: pending, Score: score})
			}
			pending = math.NaN()
		}
	}
	return scenes
}

// TopScenes returns the k highest scoring scenes, best first. Ties keep
// their chronological order.
func TopScenes(scenes []Scene, k int) []Scene {
	ranked := append([]Scene(nil), scenes...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// escapeFilterValue escapes a value embedded in a filtergraph option.
func escapeFilterValue(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`, `,`, `\,`)
	return r.Replace(v)
}
