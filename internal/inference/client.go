package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/maauso/gp-inbetween/internal/apperr"
	"github.com/maauso/gp-inbetween/internal/job"
	"github.com/maauso/gp-inbetween/internal/retry"
)

// Retry phases reported to the retry hook.
const (
	PhaseSubmit   = "submit"
	PhasePoll     = "poll"
	PhaseDownload = "download"
)

// Client drives a Backend through submission, polling and retrieval.
// It holds no per-request state and is safe for concurrent use.
type Client struct {
	backend      Backend
	extractor    FrameExtractor
	logger       *slog.Logger
	pollInterval time.Duration
	timeout      time.Duration
	submitRetry  retry.Policy
	pollRetry    retry.Policy
	fetchRetry   retry.Policy
	onRetry      func(phase string)
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithPollInterval sets the wait between status checks.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// WithTimeout sets the overall deadline for one Generate call.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithSubmitRetry sets the retry policy for submission.
func WithSubmitRetry(p retry.Policy) ClientOption {
	return func(c *Client) {
		c.submitRetry = p
	}
}

// WithPollRetry sets the retry policy applied to each status check.
func WithPollRetry(p retry.Policy) ClientOption {
	return func(c *Client) {
		c.pollRetry = p
	}
}

// WithDownloadRetry sets the retry policy applied to each output download.
func WithDownloadRetry(p retry.Policy) ClientOption {
	return func(c *Client) {
		c.fetchRetry = p
	}
}

// WithFrameExtractor sets the extractor used for video outputs.
func WithFrameExtractor(e FrameExtractor) ClientOption {
	return func(c *Client) {
		c.extractor = e
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRetryHook registers fn to be called for every retry with its phase.
func WithRetryHook(fn func(phase string)) ClientOption {
	return func(c *Client) {
		c.onRetry = fn
	}
}

// NewClient creates a Client for backend.
func NewClient(backend Backend, opts ...ClientOption) *Client {
	c := &Client{
		backend:      backend,
		logger:       slog.Default(),
		pollInterval: 2 * time.Second,
		timeout:      180 * time.Second,
		submitRetry:  retry.DefaultPolicy(),
		pollRetry:    retry.DefaultPolicy(),
		fetchRetry:   retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate submits req, waits for the remote job and returns exactly
// req.FrameCount() frames ordered by ordinal. It never returns a partial
// sequence. Errors wrap one of apperr.ErrSubmission, ErrPolling,
// ErrRemoteGeneration, ErrTimedOut or ErrRetrieval.
func (c *Client) Generate(ctx context.Context, req Request) ([]Frame, error) {
	if req.pair == nil {
		return nil, fmt.Errorf("%w: empty request", apperr.ErrSubmission)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	log := c.logger.With(slog.String("backend", c.backend.Name()))

	jobID, err := c.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	log = log.With(slog.String("remote_job_id", jobID))
	log.Info("job submitted", slog.Int("frames", req.FrameCount()))

	gj := job.NewGenerationJob(jobID)
	outputs, err := c.await(ctx, gj, log)
	if err != nil {
		return nil, err
	}
	log.Info("job succeeded",
		slog.Int("outputs", len(outputs)),
		slog.Duration("elapsed", gj.Elapsed()),
	)

	frames, err := c.retrieve(ctx, outputs, req.FrameCount(), log)
	if err != nil {
		return nil, err
	}
	return frames, nil
}

func (c *Client) submit(ctx context.Context, req Request) (string, error) {
	jobID, err := retry.DoValue(ctx, c.submitRetry, func(ctx context.Context) (string, error) {
		return c.backend.Submit(ctx, req)
	}, c.notify(PhaseSubmit))
	if err != nil {
		if ctx.Err() != nil {
			return "", c.timedOut(err)
		}
		return "", fmt.Errorf("%w: %w", apperr.ErrSubmission, err)
	}
	if jobID == "" {
		return "", fmt.Errorf("%w: no job ID returned", apperr.ErrSubmission)
	}
	return jobID, nil
}

// await polls until the job reaches a terminal state.
func (c *Client) await(ctx context.Context, gj *job.GenerationJob, log *slog.Logger) ([]job.Output, error) {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = gj.TimeOut()
			return nil, c.timedOut(ctx.Err())
		case <-timer.C:
		}

		res, err := retry.DoValue(ctx, c.pollRetry, func(ctx context.Context) (PollResult, error) {
			return c.backend.Poll(ctx, gj.ID())
		}, c.notify(PhasePoll))
		if err != nil {
			if ctx.Err() != nil {
				_ = gj.TimeOut()
				return nil, c.timedOut(err)
			}
			return nil, fmt.Errorf("%w: job %s: %w", apperr.ErrPolling, gj.ID(), err)
		}

		if err := gj.Observe(res.Remote); err != nil {
			return nil, fmt.Errorf("%w: %w", apperr.ErrPolling, err)
		}
		log.Debug("job status", slog.String("status", string(res.Status)), slog.String("remote", res.Remote))

		switch res.Status {
		case StatusSucceeded:
			if err := gj.Succeed(res.Outputs); err != nil {
				return nil, fmt.Errorf("%w: %w", apperr.ErrPolling, err)
			}
			return gj.Outputs(), nil
		case StatusFailed, StatusCanceled:
			reason := res.Error
			if reason == "" {
				reason = "remote reported " + res.Remote
			}
			_ = gj.Fail(reason)
			return nil, fmt.Errorf("%w: job %s: %s", apperr.ErrRemoteGeneration, gj.ID(), reason)
		case StatusPending, StatusRunning:
		}

		timer.Reset(c.pollInterval)
	}
}

// retrieve downloads every output and returns n frames ordered by ordinal.
func (c *Client) retrieve(ctx context.Context, outputs []job.Output, n int, log *slog.Logger) ([]Frame, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: job succeeded without outputs", apperr.ErrRetrieval)
	}

	for _, o := range outputs {
		if o.Video {
			return c.retrieveVideo(ctx, o, n, log)
		}
	}

	if len(outputs) < n {
		return nil, fmt.Errorf("%w: expected %d frames, remote returned %d", apperr.ErrRetrieval, n, len(outputs))
	}

	ordered := append([]job.Output(nil), outputs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Ordinal < ordered[j].Ordinal
	})
	ordered = sample(ordered, n)

	frames := make([]Frame, 0, n)
	for i, o := range ordered {
		data, err := c.download(ctx, o.URL)
		if err != nil {
			return nil, err
		}
		frames = append(frames, Frame{Ordinal: i + 1, Data: data})
	}
	log.Debug("frames downloaded", slog.Int("frames", len(frames)))
	return frames, nil
}

func (c *Client) retrieveVideo(ctx context.Context, o job.Output, n int, log *slog.Logger) ([]Frame, error) {
	if c.extractor == nil {
		return nil, fmt.Errorf("%w: remote returned a video and no frame extractor is configured", apperr.ErrRetrieval)
	}

	video, err := c.download(ctx, o.URL)
	if err != nil {
		return nil, err
	}
	log.Debug("video downloaded", slog.Int("bytes", len(video)))

	images, err := c.extractor.ExtractFrames(ctx, video, n)
	if err != nil {
		if ctx.Err() != nil {
			return nil, c.timedOut(err)
		}
		return nil, fmt.Errorf("%w: extract frames: %w", apperr.ErrRetrieval, err)
	}
	if len(images) != n {
		return nil, fmt.Errorf("%w: expected %d frames, video yielded %d", apperr.ErrRetrieval, n, len(images))
	}

	frames := make([]Frame, n)
	for i, img := range images {
		frames[i] = Frame{Ordinal: i + 1, Data: img}
	}
	return frames, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	data, err := retry.DoValue(ctx, c.fetchRetry, func(ctx context.Context) ([]byte, error) {
		return c.backend.Download(ctx, url)
	}, c.notify(PhaseDownload))
	if err != nil {
		if ctx.Err() != nil {
			return nil, c.timedOut(err)
		}
		return nil, fmt.Errorf("%w: %s: %w", apperr.ErrRetrieval, url, err)
	}
	return data, nil
}

func (c *Client) notify(phase string) retry.Option {
	return retry.WithNotify(func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("retrying after transient failure",
			slog.String("phase", phase),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
		if c.onRetry != nil {
			c.onRetry(phase)
		}
	})
}

// timedOut reports the overall deadline or a caller cancellation.
func (c *Client) timedOut(cause error) error {
	if errors.Is(cause, context.Canceled) {
		return fmt.Errorf("%w: canceled: %w", apperr.ErrTimedOut, cause)
	}
	return fmt.Errorf("%w after %s: %w", apperr.ErrTimedOut, c.timeout, cause)
}

// sample picks n items spread evenly across items, keeping order.
func sample[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	step := float64(len(items)) / float64(n)
	out := make([]T, n)
	for i := range n {
		idx := min(int(float64(i)*step), len(items)-1)
		out[i] = items[idx]
	}
	return out
}
