package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/maauso/gp-inbetween/internal/apperr"
)

// ErrShuttingDown is returned by Submit once Shutdown has been called.
var ErrShuttingDown = errors.New("run service is shutting down")

// WorkFunc executes one pipeline run and returns its result.
type WorkFunc func(ctx context.Context, runID string) (*Result, error)

// RunService tracks pipeline runs started from serve mode.
type RunService struct {
	repo   Repository
	logger *slog.Logger

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

// NewRunService creates a new RunService.
func NewRunService(repo Repository, logger *slog.Logger) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunService{
		repo:   repo,
		logger: logger,
	}
}

// Create persists a new QUEUED run.
func (s *RunService) Create(ctx context.Context, character string, frameCount int) (*Run, error) {
	run := NewRun()
	run.Character = character
	run.FrameCount = frameCount

	s.logger.Info("creating run",
		slog.String("run_id", run.ID),
		slog.Int("frame_count", frameCount),
		slog.String("character", character),
	)

	if err := s.repo.Save(ctx, run); err != nil {
		s.logger.Error("failed to save run",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return run, nil
}

// Submit creates a run and executes work in the background. The work
// context is detached from ctx so the run outlives the request.
func (s *RunService) Submit(ctx context.Context, character string, frameCount int, work WorkFunc) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil, ErrShuttingDown
	}

	run, err := s.Create(ctx, character, frameCount)
	if err != nil {
		return nil, err
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.Execute(context.WithoutCancel(ctx), run.ID, work)
	}()

	return run, nil
}

// Shutdown stops accepting new runs and waits for submitted runs to
// finish. It returns ctx.Err() if ctx ends first.
func (s *RunService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all runs finished")
		return nil
	case <-ctx.Done():
		s.logger.Warn("shutdown deadline reached with runs in flight")
		return ctx.Err()
	}
}

// Execute runs work for an existing run and records the outcome.
func (s *RunService) Execute(ctx context.Context, runID string, work WorkFunc) {
	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		s.logger.Error("run vanished before execution",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := run.Start(); err != nil {
		s.logger.Error("cannot start run", slog.String("run_id", runID), slog.String("error", err.Error()))
		return
	}
	s.save(ctx, run)

	res, workErr := work(ctx, runID)
	if workErr != nil {
		kind := apperr.KindOf(workErr)
		s.logger.Error("run failed",
			slog.String("run_id", runID),
			slog.String("kind", string(kind)),
			slog.String("error", workErr.Error()),
		)
		_ = run.Fail(string(kind), workErr.Error())
	} else {
		s.logger.Info("run completed",
			slog.String("run_id", runID),
			slog.Int("frames", len(res.Frames)),
		)
		_ = run.Complete(res)
	}
	s.save(ctx, run)
}

// Get retrieves a run by ID.
func (s *RunService) Get(ctx context.Context, runID string) (*Run, error) {
	return s.repo.FindByID(ctx, runID)
}

// List returns all tracked runs.
func (s *RunService) List(ctx context.Context) ([]*Run, error) {
	return s.repo.List(ctx)
}

func (s *RunService) save(ctx context.Context, run *Run) {
	if err := s.repo.Save(ctx, run); err != nil {
		s.logger.Error("failed to save run",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
	}
}
