// Package bootstrap builds the pipeline and its collaborators from a
// resolved RunConfig.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maauso/gp-inbetween/internal/apperr"
	"github.com/maauso/gp-inbetween/internal/config"
	"github.com/maauso/gp-inbetween/internal/feedback"
	"github.com/maauso/gp-inbetween/internal/inference"
	"github.com/maauso/gp-inbetween/internal/job"
	"github.com/maauso/gp-inbetween/internal/media"
	"github.com/maauso/gp-inbetween/internal/metrics"
	"github.com/maauso/gp-inbetween/internal/pipeline"
	"github.com/maauso/gp-inbetween/internal/preprocess"
	"github.com/maauso/gp-inbetween/internal/replicate"
	"github.com/maauso/gp-inbetween/internal/retry"
	"github.com/maauso/gp-inbetween/internal/scoring"
	"github.com/maauso/gp-inbetween/internal/serverless"
	"github.com/maauso/gp-inbetween/internal/storage"
)

// Dependencies holds everything a command needs to run the pipeline.
type Dependencies struct {
	Pipeline *pipeline.Pipeline
	Feedback feedback.Store
	Metrics  *metrics.Metrics
	Runs     *job.RunService
}

// Option configures NewDependencies.
type Option func(*options)

type options struct {
	backend        inference.Backend
	runtimeMetrics bool
}

// WithBackend replaces the backend selected by the config.
func WithBackend(b inference.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithRuntimeMetrics adds Go and process collectors to the registry.
func WithRuntimeMetrics() Option {
	return func(o *options) { o.runtimeMetrics = true }
}

// NewDependencies creates and initializes all dependencies for a run.
// Close releases them.
func NewDependencies(ctx context.Context, cfg *config.RunConfig, logger *slog.Logger, opts ...Option) (*Dependencies, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	backend := o.backend
	if backend == nil {
		var err error
		if backend, err = NewBackend(cfg, logger); err != nil {
			return nil, err
		}
	}

	m := metrics.New(o.runtimeMetrics)

	writer, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := feedback.Open(ctx, cfg.Feedback, logger)
	if err != nil {
		return nil, err
	}

	client := inference.NewClient(backend,
		inference.WithPollInterval(cfg.Generation.PollInterval),
		inference.WithTimeout(cfg.Generation.Timeout),
		inference.WithSubmitRetry(policy(cfg.Retry.Submit, cfg.Retry)),
		inference.WithPollRetry(policy(cfg.Retry.Poll, cfg.Retry)),
		inference.WithDownloadRetry(policy(cfg.Retry.Download, cfg.Retry)),
		inference.WithFrameExtractor(media.NewFFmpegExtractor("", logger)),
		inference.WithRetryHook(m.Retry),
		inference.WithLogger(logger),
	)

	p := pipeline.New(
		preprocess.New(preprocess.OptionsFrom(cfg.Preprocess), logger),
		client,
		scoring.NewFromConfig(cfg.Scoring, logger),
		writer,
		store,
		pipeline.WithFrameCount(cfg.Generation.FrameCount),
		pipeline.WithParams(inference.Params{
			ModelVersion:  cfg.API.ModelVersion,
			StyleStrength: cfg.API.StyleStrength,
			Prompt:        cfg.API.Prompt,
			Seed:          cfg.API.Seed,
		}),
		pipeline.WithBackendName(backend.Name()),
		pipeline.WithMetrics(m),
		pipeline.WithLogger(logger),
	)

	return &Dependencies{
		Pipeline: p,
		Feedback: store,
		Metrics:  m,
		Runs:     job.NewRunService(job.NewMemoryRepository(), logger),
	}, nil
}

// Close releases the feedback store.
func (d *Dependencies) Close() error {
	if d.Feedback == nil {
		return nil
	}
	return d.Feedback.Close()
}

// NewBackend creates the inference backend selected by cfg.API.Backend.
func NewBackend(cfg *config.RunConfig, logger *slog.Logger) (inference.Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := &http.Client{Timeout: cfg.API.RequestTimeout}

	switch cfg.API.Backend {
	case config.BackendReplicate:
		c, err := replicate.NewClient(cfg.API.Key,
			replicate.WithBaseURL(cfg.API.Endpoint),
			replicate.WithHTTPClient(httpClient),
			replicate.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("create Replicate client: %w", err)
		}
		return c, nil
	case config.BackendServerless:
		c, err := serverless.NewClient(cfg.API.Endpoint,
			serverless.WithToken(cfg.API.Key),
			serverless.WithResolution(cfg.Preprocess.TargetResolution),
			serverless.WithHTTPClient(httpClient),
			serverless.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("create serverless client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: api.backend %q is not supported", apperr.ErrConfig, cfg.API.Backend)
	}
}

// initStorage creates the output writer, publishing to S3 when configured.
func initStorage(ctx context.Context, cfg *config.RunConfig, logger *slog.Logger) (*storage.Writer, error) {
	local, err := storage.NewLocalStorage(cfg.Output.Dir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	if n, err := local.CleanupStale(ctx); err != nil {
		logger.Warn("stale staging cleanup failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("removed stale staging directories", slog.Int("count", n))
	}

	if !cfg.S3Enabled() {
		logger.Debug("local storage configured", slog.String("dir", local.Root()))
		return storage.NewWriter(local, storage.WithLogger(logger)), nil
	}

	uploader, err := storage.NewS3Uploader(ctx, storage.S3Config{
		Bucket:   cfg.Output.S3Bucket,
		Region:   cfg.Output.S3Region,
		Endpoint: cfg.Output.S3Endpoint,
		Timeout:  cfg.API.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 storage: %w", err)
	}
	logger.Info("S3 publishing configured",
		slog.String("bucket", cfg.Output.S3Bucket),
		slog.String("region", cfg.Output.S3Region),
	)
	return storage.NewWriter(local,
		storage.WithUploader(uploader, cfg.Output.S3Prefix),
		storage.WithLogger(logger),
	), nil
}

func policy(retries int, rc config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxRetries:     retries,
		InitialBackoff: rc.BaseBackoff,
		MaxBackoff:     rc.MaxBackoff,
		Multiplier:     2,
	}
}
