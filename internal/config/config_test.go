package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/gp-inbetween/internal/apperr"
)

// load runs Load against an isolated environment and a config path inside
// a temp dir, so the developer's real config never leaks into tests.
func load(t *testing.T, env map[string]string, opts ...LoadOption) (*RunConfig, error) {
	t.Helper()
	base := []LoadOption{
		WithLookuper(envconfig.MapLookuper(env)),
		WithFile(filepath.Join(t.TempDir(), "missing.yaml")),
	}
	return Load(context.Background(), append(base, opts...)...)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_RequiresAPIKey(t *testing.T) {
	_, err := load(t, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConfig)
	assert.Contains(t, err.Error(), "api.key")
}

func TestLoad_LocalOnlySkipsAPI(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithFile(filepath.Join(t.TempDir(), "none.yaml")),
		WithLookuper(envconfig.MapLookuper(map[string]string{"INBETWEEN_FEEDBACK_BACKEND": "sqlite"})),
		LocalOnly(),
	)
	require.NoError(t, err)
	assert.Empty(t, cfg.API.Key)
	assert.Equal(t, FeedbackSQLite, cfg.Feedback.Backend)

	_, err = Load(context.Background(),
		WithFile(filepath.Join(t.TempDir(), "none.yaml")),
		WithLookuper(envconfig.MapLookuper(map[string]string{"INBETWEEN_AUTO_ACCEPT_THRESHOLD": "2"})),
		LocalOnly(),
	)
	require.ErrorIs(t, err, apperr.ErrConfig)
	assert.Contains(t, err.Error(), "scoring.auto_accept_threshold")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t, map[string]string{"INBETWEEN_API_KEY": "k"})
	require.NoError(t, err)

	assert.Equal(t, "k", cfg.API.Key)
	assert.Equal(t, BackendReplicate, cfg.API.Backend)
	assert.Equal(t, 4, cfg.Generation.FrameCount)
	assert.Equal(t, 2*time.Second, cfg.Generation.PollInterval)
	assert.Equal(t, 180*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 3, cfg.Retry.Submit)
	assert.Equal(t, 1024, cfg.Preprocess.TargetResolution)
	assert.True(t, cfg.Preprocess.PadSquare)
	assert.InDelta(t, 0.85, cfg.Scoring.AutoAcceptThreshold, 1e-9)
	assert.Equal(t, FeedbackJSONL, cfg.Feedback.Backend)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Precedence(t *testing.T) {
	file := writeFile(t, "config.yaml", `
api:
  key: from-file
generation:
  frame_count: 6
  timeout: 90s
scoring:
  auto_accept_threshold: 0.7
log:
  level: debug
`)

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg, err := load(t, nil, WithFile(file))
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.API.Key)
		assert.Equal(t, 6, cfg.Generation.FrameCount)
		assert.Equal(t, 90*time.Second, cfg.Generation.Timeout)
		assert.InDelta(t, 0.7, cfg.Scoring.AutoAcceptThreshold, 1e-9)
		// Untouched keys keep their defaults.
		assert.Equal(t, 2*time.Second, cfg.Generation.PollInterval)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		cfg, err := load(t, map[string]string{
			"INBETWEEN_API_KEY":     "from-env",
			"INBETWEEN_FRAME_COUNT": "8",
		}, WithFile(file))
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.API.Key)
		assert.Equal(t, 8, cfg.Generation.FrameCount)
		assert.Equal(t, 90*time.Second, cfg.Generation.Timeout)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("overrides win", func(t *testing.T) {
		cfg, err := load(t, map[string]string{"INBETWEEN_FRAME_COUNT": "8"},
			WithFile(file),
			WithOverrides(func(c *RunConfig) { c.Generation.FrameCount = 2 }),
		)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Generation.FrameCount)
	})
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := load(t, map[string]string{"INBETWEEN_API_KEY": "k"},
		WithFile(filepath.Join(t.TempDir(), "nope", "config.yaml")))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Generation.FrameCount)
}

func TestLoad_MalformedFile(t *testing.T) {
	file := writeFile(t, "config.yaml", "api: [unclosed")

	_, err := load(t, map[string]string{"INBETWEEN_API_KEY": "k"}, WithFile(file))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConfig)
}

func TestLoad_InvalidEnvironmentValue(t *testing.T) {
	_, err := load(t, map[string]string{
		"INBETWEEN_API_KEY":     "k",
		"INBETWEEN_FRAME_COUNT": "many",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConfig)
}

func TestValidate(t *testing.T) {
	valid := func() RunConfig {
		c := Defaults()
		c.API.Key = "k"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*RunConfig)
		wantKey string
	}{
		{"threshold above one", func(c *RunConfig) { c.Scoring.AutoAcceptThreshold = 1.2 }, "scoring.auto_accept_threshold"},
		{"threshold below zero", func(c *RunConfig) { c.Scoring.AutoAcceptThreshold = -0.1 }, "scoring.auto_accept_threshold"},
		{"zero frames", func(c *RunConfig) { c.Generation.FrameCount = 0 }, "generation.frame_count"},
		{"unknown backend", func(c *RunConfig) { c.API.Backend = "local" }, "api.backend"},
		{"negative weight", func(c *RunConfig) { c.Scoring.Weights.Smoothness = -1 }, "scoring.weights.smoothness"},
		{"all weights zero", func(c *RunConfig) { c.Scoring.Weights = ScoringWeights{} }, "scoring.weights"},
		{"postgres without dsn", func(c *RunConfig) { c.Feedback.Backend = FeedbackPostgres }, "feedback.dsn"},
		{"bucket without region", func(c *RunConfig) { c.Output.S3Bucket = "b" }, "output.s3_region"},
		{"max backoff below base", func(c *RunConfig) { c.Retry.MaxBackoff = time.Millisecond }, "retry.max_backoff"},
		{"bad log format", func(c *RunConfig) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)

			err := c.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrConfig)
			assert.Contains(t, err.Error(), tt.wantKey)
		})
	}

	t.Run("defaults with key are valid", func(t *testing.T) {
		c := valid()
		assert.NoError(t, c.Validate())
	})
}

func TestWriteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gp-inbetween", "config.yaml")

	require.NoError(t, WriteTemplate(path))

	// The template round-trips through Load.
	cfg, err := load(t, map[string]string{"INBETWEEN_API_KEY": "k"}, WithFile(path))
	require.NoError(t, err)
	want := Defaults()
	want.API.Key = "k"
	assert.Equal(t, &want, cfg)

	t.Run("never overwrites", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("custom: true\n"), 0o644))

		err := WriteTemplate(path)
		require.ErrorIs(t, err, ErrTemplateExists)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "custom: true\n", string(data))
	})
}

func TestS3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "my-bucket", "us-east-1", true},
		{"only bucket", "my-bucket", "", false},
		{"only region", "", "us-east-1", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &RunConfig{Output: OutputConfig{S3Bucket: tt.bucket, S3Region: tt.region}}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestString_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.API.Key = "super-secret-key"
	cfg.Feedback.DSN = "postgres://user:hunter2@db/feedback"

	str := cfg.String()

	assert.NotContains(t, str, "super-secret-key")
	assert.NotContains(t, str, "hunter2")
	assert.Contains(t, str, "FrameCount: 4")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := &RunConfig{Log: LogConfig{Format: "json", Level: "info"}}

		cfg.NewLogger(&buf).Info("hello", slog.Int("frames", 4))

		assert.Contains(t, buf.String(), `"msg":"hello"`)
		assert.Contains(t, buf.String(), `"frames":4`)
	})

	t.Run("text format respects level", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := &RunConfig{Log: LogConfig{Format: "text", Level: "warn"}}
		logger := cfg.NewLogger(&buf)

		logger.Info("hidden")
		logger.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}
