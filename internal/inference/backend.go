// Package inference runs inbetween generation against a remote service.
//
// A Backend speaks one vendor protocol and performs single attempts. The
// Client owns the lifecycle: it submits, polls and downloads with per-phase
// retry budgets, enforces the overall deadline, and returns exactly the
// requested number of frames in ordinal order.
package inference

import (
	"context"

	"github.com/maauso/gp-inbetween/internal/job"
)

// Status represents the status of a remote generation job.
type Status string

// Common job statuses across backends.
const (
	StatusPending   Status = "PENDING"   // Job accepted but not yet running
	StatusRunning   Status = "RUNNING"   // Job is processing
	StatusSucceeded Status = "SUCCEEDED" // Job finished; outputs are available
	StatusFailed    Status = "FAILED"    // Job failed remotely
	StatusCanceled  Status = "CANCELED"  // Job was canceled remotely
)

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// PollResult contains the result of one status check.
type PollResult struct {
	Status  Status       // Normalized job status
	Remote  string       // Status string as reported by the backend
	Outputs []job.Output // Output references (when succeeded)
	Error   string       // Error message (when failed or canceled)
}

// Backend defines one remote inference protocol. Implementations make a
// single attempt per call and mark retryable failures with retry.Transient.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	// Submit sends the request and returns the remote job ID.
	Submit(ctx context.Context, req Request) (jobID string, err error)

	// Poll checks the status of a job.
	Poll(ctx context.Context, jobID string) (PollResult, error)

	// Download fetches the content at an output location.
	Download(ctx context.Context, url string) ([]byte, error)
}

// FrameExtractor turns a video output into still frames.
type FrameExtractor interface {
	// ExtractFrames returns n PNG frames sampled evenly from the video,
	// excluding its first and last frame.
	ExtractFrames(ctx context.Context, video []byte, n int) ([][]byte, error)
}

// Frame is one generated inbetween.
type Frame struct {
	// Ordinal is the 1-based position in the requested sequence.
	Ordinal int
	// Data is the encoded image as returned by the backend.
	Data []byte
}
