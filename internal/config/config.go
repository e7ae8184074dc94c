// Package config resolves the RunConfig for one pipeline invocation.
//
// Values are layered: built-in defaults, then the persisted config file,
// then INBETWEEN_* environment variables, then explicit overrides supplied
// by the caller (usually command-line flags). The result is validated once
// and treated as read-only afterwards.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Feedback store backends.
const (
	FeedbackJSONL    = "jsonl"
	FeedbackSQLite   = "sqlite"
	FeedbackPostgres = "postgres"
)

// Inference backends.
const (
	BackendReplicate  = "replicate"
	BackendServerless = "serverless"
)

// RunConfig holds the resolved configuration for one generation invocation.
type RunConfig struct {
	API        APIConfig        `mapstructure:"api"`
	Generation GenerationConfig `mapstructure:"generation"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Preprocess PreprocessConfig `mapstructure:"preprocess"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Feedback   FeedbackConfig   `mapstructure:"feedback"`
	Output     OutputConfig     `mapstructure:"output"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

// APIConfig describes the remote inference service.
type APIConfig struct {
	Key            string        `mapstructure:"key" env:"INBETWEEN_API_KEY, overwrite" validate:"required" json:"-"` // Masked in JSON
	Backend        string        `mapstructure:"backend" env:"INBETWEEN_BACKEND, overwrite" validate:"oneof=replicate serverless"`
	Endpoint       string        `mapstructure:"endpoint" env:"INBETWEEN_ENDPOINT, overwrite" validate:"required,url"`
	ModelVersion   string        `mapstructure:"model_version" env:"INBETWEEN_MODEL_VERSION, overwrite" validate:"required_if=Backend replicate"`
	StyleStrength  float64       `mapstructure:"style_strength" env:"INBETWEEN_STYLE_STRENGTH, overwrite" validate:"gte=0,lte=1"`
	Prompt         string        `mapstructure:"prompt" env:"INBETWEEN_PROMPT, overwrite"`
	Seed           int64         `mapstructure:"seed" env:"INBETWEEN_SEED, overwrite"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" env:"INBETWEEN_REQUEST_TIMEOUT, overwrite" validate:"gt=0"`
}

// GenerationConfig controls a single generation run.
type GenerationConfig struct {
	FrameCount   int           `mapstructure:"frame_count" env:"INBETWEEN_FRAME_COUNT, overwrite" validate:"gte=1,lte=64"`
	PollInterval time.Duration `mapstructure:"poll_interval" env:"INBETWEEN_POLL_INTERVAL, overwrite" validate:"gt=0"`
	Timeout      time.Duration `mapstructure:"timeout" env:"INBETWEEN_TIMEOUT, overwrite" validate:"gt=0"`
}

// RetryConfig holds the per-phase retry budgets.
type RetryConfig struct {
	Submit      int           `mapstructure:"submit" env:"INBETWEEN_RETRY_SUBMIT, overwrite" validate:"gte=0,lte=20"`
	Poll        int           `mapstructure:"poll" env:"INBETWEEN_RETRY_POLL, overwrite" validate:"gte=0,lte=20"`
	Download    int           `mapstructure:"download" env:"INBETWEEN_RETRY_DOWNLOAD, overwrite" validate:"gte=0,lte=20"`
	BaseBackoff time.Duration `mapstructure:"base_backoff" env:"INBETWEEN_RETRY_BASE_BACKOFF, overwrite" validate:"gt=0"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff" env:"INBETWEEN_RETRY_MAX_BACKOFF, overwrite" validate:"gtefield=BaseBackoff"`
}

// PreprocessConfig controls keyframe normalization.
type PreprocessConfig struct {
	TargetResolution int     `mapstructure:"target_resolution" env:"INBETWEEN_TARGET_RESOLUTION, overwrite" validate:"gte=64,lte=4096"`
	PadSquare        bool    `mapstructure:"pad_square" env:"INBETWEEN_PAD_SQUARE, overwrite"`
	Cleanup          bool    `mapstructure:"cleanup" env:"INBETWEEN_CLEANUP, overwrite"`
	AspectTolerance  float64 `mapstructure:"aspect_tolerance" env:"INBETWEEN_ASPECT_TOLERANCE, overwrite" validate:"gte=0,lt=1"`
}

// ScoringConfig controls confidence scoring and classification.
type ScoringConfig struct {
	AutoAcceptThreshold float64        `mapstructure:"auto_accept_threshold" env:"INBETWEEN_AUTO_ACCEPT_THRESHOLD, overwrite" validate:"gte=0,lte=1"`
	Weights             ScoringWeights `mapstructure:"weights"`
}

// ScoringWeights are the relative weights of the scoring signals.
type ScoringWeights struct {
	Similarity  float64 `mapstructure:"similarity" env:"INBETWEEN_WEIGHT_SIMILARITY, overwrite" validate:"gte=0"`
	Smoothness  float64 `mapstructure:"smoothness" env:"INBETWEEN_WEIGHT_SMOOTHNESS, overwrite" validate:"gte=0"`
	Consistency float64 `mapstructure:"consistency" env:"INBETWEEN_WEIGHT_CONSISTENCY, overwrite" validate:"gte=0"`
}

// FeedbackConfig selects the feedback store.
type FeedbackConfig struct {
	Backend string `mapstructure:"backend" env:"INBETWEEN_FEEDBACK_BACKEND, overwrite" validate:"oneof=jsonl sqlite postgres"`
	Path    string `mapstructure:"path" env:"INBETWEEN_FEEDBACK_PATH, overwrite" validate:"required_unless=Backend postgres"`
	DSN     string `mapstructure:"dsn" env:"INBETWEEN_FEEDBACK_DSN, overwrite" validate:"required_if=Backend postgres" json:"-"`
}

// OutputConfig controls where generated frames are written.
type OutputConfig struct {
	Dir      string `mapstructure:"dir" env:"INBETWEEN_OUTPUT_DIR, overwrite" validate:"required"`
	S3Bucket string `mapstructure:"s3_bucket" env:"INBETWEEN_S3_BUCKET, overwrite"`
	S3Region string `mapstructure:"s3_region" env:"INBETWEEN_S3_REGION, overwrite" validate:"required_with=S3Bucket"`
	S3Prefix string `mapstructure:"s3_prefix" env:"INBETWEEN_S3_PREFIX, overwrite"`
	// S3Endpoint points at an S3-compatible service instead of AWS.
	S3Endpoint string `mapstructure:"s3_endpoint" env:"INBETWEEN_S3_ENDPOINT, overwrite" validate:"omitempty,url"`
}

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	// Textfile, when set, receives a Prometheus text exposition after each run.
	Textfile string `mapstructure:"textfile" env:"INBETWEEN_METRICS_TEXTFILE, overwrite"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Format string `mapstructure:"format" env:"INBETWEEN_LOG_FORMAT, overwrite" validate:"oneof=text json"`
	Level  string `mapstructure:"level" env:"INBETWEEN_LOG_LEVEL, overwrite" validate:"oneof=debug info warn warning error"`
}

// Defaults returns the built-in configuration layer.
func Defaults() RunConfig {
	return RunConfig{
		API: APIConfig{
			Backend:        BackendReplicate,
			Endpoint:       "https://api.replicate.com/v1",
			ModelVersion:   "0486ff07368e816ec3d5c69b9581e7a09b55817f567a0d74caad9395c9295c77",
			StyleStrength:  0.8,
			RequestTimeout: 30 * time.Second,
		},
		Generation: GenerationConfig{
			FrameCount:   4,
			PollInterval: 2 * time.Second,
			Timeout:      180 * time.Second,
		},
		Retry: RetryConfig{
			Submit:      3,
			Poll:        3,
			Download:    3,
			BaseBackoff: 1 * time.Second,
			MaxBackoff:  30 * time.Second,
		},
		Preprocess: PreprocessConfig{
			TargetResolution: 1024,
			PadSquare:        true,
			Cleanup:          true,
			AspectTolerance:  0.02,
		},
		Scoring: ScoringConfig{
			AutoAcceptThreshold: 0.85,
			Weights: ScoringWeights{
				Similarity:  0.4,
				Smoothness:  0.4,
				Consistency: 0.2,
			},
		},
		Feedback: FeedbackConfig{
			Backend: FeedbackJSONL,
			Path:    filepath.Join(appDir(), "feedback.jsonl"),
		},
		Output: OutputConfig{
			Dir: "inbetweens",
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// DefaultPath returns the default location of the persisted config file.
func DefaultPath() string {
	return filepath.Join(appDir(), "config.yaml")
}

// appDir returns the per-user directory for config and feedback data.
func appDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".gp-inbetween"
	}
	return filepath.Join(dir, "gp-inbetween")
}

// S3Enabled returns true if S3 publishing is configured.
func (c *RunConfig) S3Enabled() bool {
	return c.Output.S3Bucket != "" && c.Output.S3Region != ""
}

// NewLogger creates a structured logger writing to w.
// When Log.Format is "json", it outputs JSON logs for machine consumption.
// Otherwise, it outputs colored console logs.
func (c *RunConfig) NewLogger(w io.Writer) *slog.Logger {
	level := parseLogLevel(c.Log.Level)

	var handler slog.Handler
	if strings.ToLower(c.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    w != os.Stderr && w != os.Stdout,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with secrets masked.
func (c *RunConfig) String() string {
	return fmt.Sprintf(
		"RunConfig{Backend: %s, Endpoint: %s, FrameCount: %d, Threshold: %.2f, PollInterval: %s, Timeout: %s, OutputDir: %s, Feedback: %s, S3Bucket: %s, LogFormat: %s, LogLevel: %s}",
		c.API.Backend,
		c.API.Endpoint,
		c.Generation.FrameCount,
		c.Scoring.AutoAcceptThreshold,
		c.Generation.PollInterval,
		c.Generation.Timeout,
		c.Output.Dir,
		c.Feedback.Backend,
		c.Output.S3Bucket,
		c.Log.Format,
		c.Log.Level,
	)
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
