// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalid wraps struct validation failures.
	ErrInvalid = errors.New("config: invalid configuration")
	// ErrBinaryRequired is returned when FFMPEG_PATH or FFPROBE_PATH is empty.
	ErrBinaryRequired = errors.New("config: FFMPEG_PATH and FFPROBE_PATH are required")
	// ErrS3BucketRequired is returned when PUBLISH_BACKEND=s3 without S3_BUCKET and S3_REGION.
	ErrS3BucketRequired = errors.New("config: S3_BUCKET and S3_REGION are required for the s3 backend")
	// ErrMinioEndpointRequired is returned when PUBLISH_BACKEND=minio without MINIO_ENDPOINT.
	ErrMinioEndpointRequired = errors.New("config: MINIO_ENDPOINT is required for the minio backend")
	// ErrMinioBucketRequired is returned when PUBLISH_BACKEND=minio without MINIO_BUCKET.
	ErrMinioBucketRequired = errors.New("config: MINIO_BUCKET is required for the minio backend")
)

// Publish backends.
const (
	PublishNone  = "none"
	PublishS3    = "s3"
	PublishMinio = "minio"
)

// DotEnvFile is loaded before the environment when it exists.
const DotEnvFile = ".env"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/thumbnailer" json:"temp_dir" validate:"required"`

	// Decoder settings
	FFmpegPath         string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath        string        `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	DecoderTimeout     time.Duration `env:"DECODER_TIMEOUT, default=15s" json:"decoder_timeout" validate:"gt=0"`
	ProbeTimeout       time.Duration `env:"PROBE_TIMEOUT, default=5s" json:"probe_timeout" validate:"gt=0"`
	DefaultDurationSec float64       `env:"DEFAULT_DURATION_SEC, default=10" json:"default_duration_sec" validate:"gt=0"`

	// Pipeline settings
	Strategies      []string `env:"STRATEGIES, default=positional,multi_timestamp,embedded_cover" json:"strategies" validate:"min=1,dive,oneof=positional multi_timestamp embedded_cover scene_detection"`
	StrategyRetries int      `env:"STRATEGY_RETRIES, default=0" json:"strategy_retries" validate:"min=0,max=5"`
	MaxResults      int      `env:"MAX_RESULTS, default=5" json:"max_results" validate:"min=1"`
	MinOutputBytes  int64    `env:"MIN_OUTPUT_BYTES, default=512" json:"min_output_bytes" validate:"min=1"`
	ValidationLevel string   `env:"VALIDATION_LEVEL, default=basic" json:"validation_level" validate:"oneof=basic decode redecode"`

	// Output settings
	ThumbMaxWidth  int  `env:"THUMB_MAX_WIDTH, default=320" json:"thumb_max_width" validate:"min=16"`
	ThumbMaxHeight int  `env:"THUMB_MAX_HEIGHT, default=240" json:"thumb_max_height" validate:"min=16"`
	JPEGQuality    int  `env:"JPEG_QUALITY, default=3" json:"jpeg_quality" validate:"min=1,max=31"`
	Enhance        bool `env:"ENHANCE, default=false" json:"enhance"`

	// Timeline settings
	PositionFloorSec float64 `env:"POSITION_FLOOR_SEC, default=1" json:"position_floor_sec" validate:"min=0"`
	TailMarginSec    float64 `env:"TAIL_MARGIN_SEC, default=3" json:"tail_margin_sec" validate:"min=0"`
	StartCapSec      float64 `env:"START_CAP_SEC, default=3" json:"start_cap_sec" validate:"min=0"`

	// Scene detection settings
	SceneThreshold    float64 `env:"SCENE_THRESHOLD, default=0.3" json:"scene_threshold" validate:"gt=0,lt=1"`
	SceneWindowSec    float64 `env:"SCENE_WINDOW_SEC, default=30" json:"scene_window_sec" validate:"gt=0"`
	SceneIntroSkipSec float64 `env:"SCENE_INTRO_SKIP_SEC, default=5" json:"scene_intro_skip_sec" validate:"min=0"`
	SceneTopK         int     `env:"SCENE_TOP_K, default=3" json:"scene_top_k" validate:"min=1"`

	// Request settings
	MaxConcurrentRequests int   `env:"MAX_CONCURRENT_REQUESTS, default=4" json:"max_concurrent_requests" validate:"min=1"`
	MaxMediaBytes         int64 `env:"MAX_MEDIA_BYTES, default=1073741824" json:"max_media_bytes" validate:"min=0"`

	// Download settings
	DownloadTimeout     time.Duration `env:"DOWNLOAD_TIMEOUT, default=30s" json:"download_timeout" validate:"gt=0"`
	DownloadMaxBytes    int64         `env:"DOWNLOAD_MAX_BYTES, default=20971520" json:"download_max_bytes" validate:"min=1"`
	DownloadRatePerSec  float64       `env:"DOWNLOAD_RATE_PER_SEC, default=5" json:"download_rate_per_sec" validate:"min=0"`
	TelegramBotToken    string        `env:"TELEGRAM_BOT_TOKEN" json:"-"` // Masked in JSON
	TelegramFileBaseURL string        `env:"TELEGRAM_FILE_BASE_URL, default=https://api.telegram.org/file" json:"telegram_file_base_url" validate:"url"`

	// Publishing settings
	PublishBackend string `env:"PUBLISH_BACKEND, default=none" json:"publish_backend" validate:"oneof=none s3 minio"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Optional MinIO settings
	MinioEndpoint  string `env:"MINIO_ENDPOINT" json:"minio_endpoint,omitempty"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY" json:"-"` // Masked in JSON
	MinioSecretKey string `env:"MINIO_SECRET_KEY" json:"-"` // Masked in JSON
	MinioBucket    string `env:"MINIO_BUCKET" json:"minio_bucket,omitempty"`
	MinioSecure    bool   `env:"MINIO_SECURE, default=true" json:"minio_secure"`

	// Optional MongoDB settings
	MongoDBURI  string `env:"MONGODB_URI" json:"-"` // May carry credentials
	MongoDBName string `env:"MONGODB_DB_NAME, default=thumbnailer" json:"mongodb_db_name"`

	// Placeholder settings
	PlaceholderWidth  int `env:"PLACEHOLDER_WIDTH, default=320" json:"placeholder_width" validate:"min=16"`
	PlaceholderHeight int `env:"PLACEHOLDER_HEIGHT, default=180" json:"placeholder_height" validate:"min=16"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if the S3 backend is selected.
func (c *Config) S3Enabled() bool {
	return c.PublishBackend == PublishS3
}

// MinioEnabled returns true if the MinIO backend is selected.
func (c *Config) MinioEnabled() bool {
	return c.PublishBackend == PublishMinio
}

// MongoEnabled returns true if jobs are stored in MongoDB.
func (c *Config) MongoEnabled() bool {
	return c.MongoDBURI != ""
}

// Load reads configuration from environment variables using go-envconfig,
// after loading DotEnvFile when it exists. Variables already set in the
// environment win over the file.
func Load() (*Config, error) {
	return LoadContext(context.Background())
}

// LoadContext is Load with a caller-supplied context.
func LoadContext(ctx context.Context) (*Config, error) {
	if _, err := os.Stat(DotEnvFile); err == nil {
		if err := godotenv.Load(DotEnvFile); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", DotEnvFile, err)
		}
	}

	cfg := &Config{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and backend requirements.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.FFmpegPath) == "" || strings.TrimSpace(c.FFprobePath) == "" {
		return ErrBinaryRequired
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	switch c.PublishBackend {
	case PublishS3:
		if c.S3Bucket == "" || c.S3Region == "" {
			return ErrS3BucketRequired
		}
	case PublishMinio:
		if c.MinioEndpoint == "" {
			return ErrMinioEndpointRequired
		}
		if c.MinioBucket == "" {
			return ErrMinioBucketRequired
		}
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger writing to w.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, FFmpegPath: %s, FFprobePath: %s, DecoderTimeout: %s, Strategies: %s, StrategyRetries: %d, MaxResults: %d, ValidationLevel: %s, MaxConcurrentRequests: %d, PublishBackend: %s, S3Bucket: %s, MinioEndpoint: %s, MinioBucket: %s, TelegramBotToken: %s, MongoDBURI: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.FFmpegPath,
		c.FFprobePath,
		c.DecoderTimeout,
		strings.Join(c.Strategies, ","),
		c.StrategyRetries,
		c.MaxResults,
		c.ValidationLevel,
		c.MaxConcurrentRequests,
		c.PublishBackend,
		c.S3Bucket,
		c.MinioEndpoint,
		c.MinioBucket,
		mask(c.TelegramBotToken),
		mask(c.MongoDBURI),
		c.LogFormat,
		c.LogLevel,
	)
}

// mask hides a secret while still showing whether it is set.
func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
