package job

import (
	"sync"
	"time"

	"github.com/maauso/gp-inbetween/internal/job/id"
)

// Status represents the current state of a Run.
type Status string

const (
	// StatusQueued indicates the run was accepted but has not started.
	StatusQueued Status = "QUEUED"
	// StatusRunning indicates the pipeline is executing.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates all frames were generated, scored and written.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the pipeline stopped with an error.
	StatusFailed Status = "FAILED"
)

// validTransitions defines which run status transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// FrameResult summarizes one written inbetween.
type FrameResult struct {
	Ordinal        int     `json:"ordinal"`
	Confidence     float64 `json:"confidence"`
	Classification string  `json:"classification"`
	Path           string  `json:"path"`
}

// Result is the outcome of a completed run.
type Result struct {
	RunID      string        `json:"run_id"`
	OutputDir  string        `json:"output_dir"`
	MotionType string        `json:"motion_type"`
	Threshold  float64       `json:"threshold"`
	Frames     []FrameResult `json:"frames"`
	// URLs lists published object URLs when S3 publishing is enabled.
	URLs []string `json:"urls,omitempty"`
}

// Run represents one pipeline invocation tracked in serve mode.
type Run struct {
	mu sync.RWMutex

	// ID is the unique identifier for this run.
	ID string
	// Status is the current run state.
	Status Status
	// Character is the optional character label.
	Character string
	// FrameCount is the requested number of inbetweens.
	FrameCount int
	// Result is set once the run completes.
	Result *Result
	// ErrorKind names the error category if the run failed.
	ErrorKind string
	// Error contains the error message if the run failed.
	Error string
	// CreatedAt is when the run was created.
	CreatedAt time.Time
	// UpdatedAt is when the run was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// NewRun creates a Run with a generated ID in QUEUED status.
func NewRun() *Run {
	return NewRunWithID(id.Generate())
}

// NewRunWithID creates a Run with the specified ID in QUEUED status.
func NewRunWithID(runID string) *Run {
	now := time.Now()
	return &Run{
		ID:        runID,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the run status.
// Returns ErrInvalidTransition if the transition is not allowed.
func (r *Run) TransitionTo(status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(status)
}

func (r *Run) transitionLocked(status Status) error {
	if !canTransition(r.Status, status) {
		return ErrInvalidTransition
	}

	r.Status = status
	r.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		r.StartedAt = r.UpdatedAt
	case StatusCompleted, StatusFailed:
		r.CompletedAt = r.UpdatedAt
	}
	return nil
}

// Start transitions the run from QUEUED to RUNNING.
func (r *Run) Start() error {
	return r.TransitionTo(StatusRunning)
}

// Complete records the result and transitions the run to COMPLETED.
func (r *Run) Complete(res *Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	r.Result = res
	return nil
}

// Fail records the error and transitions the run to FAILED.
func (r *Run) Fail(kind, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionLocked(StatusFailed); err != nil {
		return err
	}
	r.ErrorKind = kind
	r.Error = msg
	return nil
}

// GetStatus returns the current run status (thread-safe).
func (r *Run) GetStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// IsTerminal returns true if the run is in a terminal state.
func (r *Run) IsTerminal() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Clone creates a deep copy of the run for safe reads.
func (r *Run) Clone() *Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res *Result
	if r.Result != nil {
		cp := *r.Result
		cp.Frames = append([]FrameResult(nil), r.Result.Frames...)
		cp.URLs = append([]string(nil), r.Result.URLs...)
		res = &cp
	}

	return &Run{
		ID:          r.ID,
		Status:      r.Status,
		Character:   r.Character,
		FrameCount:  r.FrameCount,
		Result:      res,
		ErrorKind:   r.ErrorKind,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}
