// Package bootstrap provides dependency initialization for the thumbnail service.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/maauso/thumbnailer/internal/config"
	"github.com/maauso/thumbnailer/internal/extract"
	"github.com/maauso/thumbnailer/internal/fallback"
	"github.com/maauso/thumbnailer/internal/fetch"
	"github.com/maauso/thumbnailer/internal/janitor"
	"github.com/maauso/thumbnailer/internal/job"
	"github.com/maauso/thumbnailer/internal/media"
	"github.com/maauso/thumbnailer/internal/metrics"
	"github.com/maauso/thumbnailer/internal/process"
	"github.com/maauso/thumbnailer/internal/storage"
	"github.com/maauso/thumbnailer/internal/strategy"
	"github.com/maauso/thumbnailer/internal/validate"
)

// Dependencies holds all initialized dependencies for the server and CLI.
type Dependencies struct {
	Local        *storage.Local
	Prober       *media.Prober
	Orchestrator *extract.Orchestrator
	Service      *job.ThumbnailService

	closers []func(context.Context) error
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Initialize the temp root
	local, err := storage.NewLocal(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", local.TempDir()),
	)

	// Resolve the decoder binaries once
	ffmpeg, err := exec.LookPath(cfg.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("resolve decoder %q: %w", cfg.FFmpegPath, err)
	}
	ffprobe, err := exec.LookPath(cfg.FFprobePath)
	if err != nil {
		return nil, fmt.Errorf("resolve probe %q: %w", cfg.FFprobePath, err)
	}
	decoder := process.NewDecoderRunner(ffmpeg)
	probe := process.NewProbeRunner(ffprobe)

	prober := media.NewProber(probe,
		media.WithProbeTimeout(cfg.ProbeTimeout),
		media.WithFallbackDuration(cfg.DefaultDurationSec),
		media.WithProbeLogger(logger),
	)

	strategies, err := strategy.Build(cfg.Strategies, StrategyOptions(cfg), decoder)
	if err != nil {
		return nil, fmt.Errorf("build strategies: %w", err)
	}

	validator, err := NewValidator(cfg, decoder, local)
	if err != nil {
		return nil, err
	}

	downloader := fetch.NewDownloader(
		fetch.WithMaxBytes(cfg.DownloadMaxBytes),
		fetch.WithRateLimit(cfg.DownloadRatePerSec, int(max(cfg.DownloadRatePerSec, 1))),
		fetch.WithFileBaseURL(cfg.TelegramFileBaseURL),
		fetch.WithLogger(logger),
	)

	observer := metrics.NewPipelineObserver()
	chain := fallback.NewChain(validator, []fallback.Producer{
		fallback.NewPlatformThumbnail(downloader, cfg.ThumbMaxWidth, cfg.ThumbMaxHeight),
		fallback.NewFirstFrame(decoder, cfg.DecoderTimeout),
		fallback.NewPlaceholder(cfg.PlaceholderWidth, cfg.PlaceholderHeight),
	}, fallback.WithObserver(observer), fallback.WithLogger(logger))

	orchestrator := extract.New(decoder, local, strategies,
		extract.WithResolver(prober),
		extract.WithValidator(validator),
		extract.WithFallback(chain),
		extract.WithObserver(observer),
		extract.WithRetries(cfg.StrategyRetries),
		extract.WithMaxResults(cfg.MaxResults),
		extract.WithDecoderTimeout(cfg.DecoderTimeout),
		extract.WithLogger(logger),
		extract.WithJanitorOptions(janitor.WithObserver(observer)),
	)

	deps := &Dependencies{
		Local:        local,
		Prober:       prober,
		Orchestrator: orchestrator,
	}

	publisher, err := initPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	repo, err := deps.initRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	deps.Service = job.NewThumbnailService(repo, orchestrator, local, logger,
		job.WithPublisher(publisher),
		job.WithDownloader(downloader),
		job.WithValidator(validator),
		job.WithObserver(observer),
		job.WithCredentials(fetch.Credentials{BotToken: cfg.TelegramBotToken}),
		job.WithMaxConcurrent(cfg.MaxConcurrentRequests),
		job.WithMaxMediaBytes(cfg.MaxMediaBytes),
	)

	logger.Info("pipeline configured",
		slog.String("decoder", decoder.Binary()),
		slog.String("probe", probe.Binary()),
		slog.Any("strategies", orchestrator.Strategies()),
		slog.String("validation_level", cfg.ValidationLevel),
		slog.Any("fallbacks", chain.Producers()),
	)

	return deps, nil
}

// Close releases external connections.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	for _, c := range d.closers {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StrategyOptions maps the configuration onto strategy tuning.
func StrategyOptions(cfg *config.Config) strategy.Options {
	opts := strategy.DefaultOptions()
	opts.Timeline.Floor = cfg.PositionFloorSec
	opts.Timeline.TailMargin = cfg.TailMarginSec
	opts.Timeline.StartCap = cfg.StartCapSec
	opts.Timeline.DefaultDuration = cfg.DefaultDurationSec

	opts.Output.MaxWidth = cfg.ThumbMaxWidth
	opts.Output.MaxHeight = cfg.ThumbMaxHeight
	opts.Output.Quality = cfg.JPEGQuality
	opts.Output.Enhance = cfg.Enhance

	opts.Scene.Threshold = cfg.SceneThreshold
	opts.Scene.Window = cfg.SceneWindowSec
	opts.Scene.IntroSkip = cfg.SceneIntroSkipSec
	opts.Scene.TopK = cfg.SceneTopK
	return opts
}

// NewValidator builds the output validator at the configured level.
func NewValidator(cfg *config.Config, decoder process.Runner, alloc validate.PathAllocator) (*validate.Validator, error) {
	level, err := validate.ParseLevel(cfg.ValidationLevel)
	if err != nil {
		return nil, fmt.Errorf("validation level: %w", err)
	}
	return validate.New(
		validate.WithLevel(level),
		validate.WithMinBytes(cfg.MinOutputBytes),
		validate.WithRedecoder(decoder, alloc, cfg.DecoderTimeout),
	), nil
}

// initPublisher creates the object store backend selected by PUBLISH_BACKEND.
func initPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Publisher, error) {
	switch {
	case cfg.S3Enabled():
		p, err := storage.NewS3Publisher(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 publisher: %w", err)
		}
		logger.Info("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return p, nil
	case cfg.MinioEnabled():
		p, err := storage.NewMinioPublisher(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Secure:    cfg.MinioSecure,
		}, true)
		if err != nil {
			return nil, fmt.Errorf("create MinIO publisher: %w", err)
		}
		logger.Info("MinIO publishing configured",
			slog.String("endpoint", cfg.MinioEndpoint),
			slog.String("bucket", cfg.MinioBucket),
		)
		return p, nil
	default:
		return storage.NoopPublisher{}, nil
	}
}

// initRepository picks MongoDB when MONGODB_URI is set, memory otherwise.
func (d *Dependencies) initRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (job.Repository, error) {
	if !cfg.MongoEnabled() {
		logger.Info("in-memory job repository configured")
		return job.NewMemoryRepository(), nil
	}

	repo, err := job.NewMongoRepository(ctx, job.MongoConfig{
		URI:      cfg.MongoDBURI,
		Database: cfg.MongoDBName,
	})
	if err != nil {
		return nil, fmt.Errorf("create MongoDB repository: %w", err)
	}
	d.closers = append(d.closers, repo.Close)
	logger.Info("MongoDB job repository configured",
		slog.String("database", cfg.MongoDBName),
	)
	return repo, nil
}
