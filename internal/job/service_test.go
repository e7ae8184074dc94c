package job

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/gp-inbetween/internal/apperr"
)

func TestRunService_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		svc := NewRunService(NewMemoryRepository(), nil)
		run, err := svc.Create(ctx, "hero", 4)
		require.NoError(t, err)

		svc.Execute(ctx, run.ID, func(_ context.Context, runID string) (*Result, error) {
			assert.Equal(t, run.ID, runID)
			return &Result{OutputDir: "/out", Frames: make([]FrameResult, 4)}, nil
		})

		got, err := svc.Get(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)
		assert.Len(t, got.Result.Frames, 4)
		assert.Equal(t, "hero", got.Character)
	})

	t.Run("failure records kind", func(t *testing.T) {
		svc := NewRunService(NewMemoryRepository(), nil)
		run, err := svc.Create(ctx, "", 4)
		require.NoError(t, err)

		svc.Execute(ctx, run.ID, func(context.Context, string) (*Result, error) {
			return nil, fmt.Errorf("generate: %w", apperr.ErrTimedOut)
		})

		got, err := svc.Get(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, got.Status)
		assert.Equal(t, string(apperr.KindTimedOut), got.ErrorKind)
		assert.Contains(t, got.Error, "timed out")
		assert.Nil(t, got.Result)
	})
}

func TestRunService_Submit(t *testing.T) {
	svc := NewRunService(NewMemoryRepository(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	release := make(chan struct{})
	run, err := svc.Submit(ctx, "hero", 2, func(ctx context.Context, _ string) (*Result, error) {
		<-release
		// The work context survives cancellation of the request context.
		return &Result{}, ctx.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, run.Status)

	cancel()
	close(release)

	assert.Eventually(t, func() bool {
		got, err := svc.Get(context.Background(), run.ID)
		return err == nil && got.Status == StatusCompleted
	}, time.Second, 10*time.Millisecond)
}

func TestRunService_Shutdown(t *testing.T) {
	t.Run("waits for in-flight runs", func(t *testing.T) {
		svc := NewRunService(NewMemoryRepository(), nil)
		ctx := context.Background()

		started := make(chan struct{})
		release := make(chan struct{})
		run, err := svc.Submit(ctx, "hero", 2, func(context.Context, string) (*Result, error) {
			close(started)
			<-release
			return &Result{}, nil
		})
		require.NoError(t, err)
		<-started

		go func() {
			time.Sleep(20 * time.Millisecond)
			close(release)
		}()
		require.NoError(t, svc.Shutdown(ctx))

		got, err := svc.Get(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)

		_, err = svc.Submit(ctx, "hero", 2, func(context.Context, string) (*Result, error) {
			return &Result{}, nil
		})
		assert.ErrorIs(t, err, ErrShuttingDown)
	})

	t.Run("deadline", func(t *testing.T) {
		svc := NewRunService(NewMemoryRepository(), nil)
		release := make(chan struct{})
		defer close(release)

		_, err := svc.Submit(context.Background(), "", 2, func(context.Context, string) (*Result, error) {
			<-release
			return &Result{}, nil
		})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, svc.Shutdown(ctx), context.DeadlineExceeded)
	})

	t.Run("idle", func(t *testing.T) {
		svc := NewRunService(NewMemoryRepository(), nil)
		assert.NoError(t, svc.Shutdown(context.Background()))
	})
}

func TestRunService_Get_NotFound(t *testing.T) {
	svc := NewRunService(NewMemoryRepository(), nil)

	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
