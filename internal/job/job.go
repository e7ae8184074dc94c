// Package job models the lifecycle of remote generation work.
//
// GenerationJob tracks one remote inference job through the state machine
// Submitted → Polling → {Succeeded, Failed, TimedOut}. States are a sealed
// set of variants; every transition site switches over all of them, so a new
// state is a compile-visible change. Run tracks one end-to-end pipeline
// invocation in serve mode.
package job

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// Output references one remote result.
type Output struct {
	// Ordinal is the 1-based position in the requested sequence. Zero for a
	// video that holds the whole sequence.
	Ordinal int
	// URL is the download location.
	URL string
	// Video marks a video output from which frames must be extracted.
	Video bool
}

// State is one variant of the generation job state machine.
// The set of implementations is closed to this package.
type State interface {
	// Name returns a stable state name for logs and errors.
	Name() string
	// Terminal reports whether the state admits no further transitions.
	Terminal() bool

	sealed()
}

// Submitted is the state right after the remote accepted the job.
type Submitted struct {
	At time.Time
}

// Polling is the state while waiting for the remote to finish.
type Polling struct {
	// Polls counts completed status checks.
	Polls int
	// Remote is the last status string reported by the remote.
	Remote string
}

// Succeeded is the terminal state of a finished job.
type Succeeded struct {
	Outputs []Output
}

// Failed is the terminal state of a job the remote reported as failed or canceled.
type Failed struct {
	Reason string
}

// TimedOut is the terminal state of a job abandoned at the overall deadline.
type TimedOut struct {
	After time.Duration
}

func (Submitted) Name() string { return "submitted" }
func (Polling) Name() string   { return "polling" }
func (Succeeded) Name() string { return "succeeded" }
func (Failed) Name() string    { return "failed" }
func (TimedOut) Name() string  { return "timed_out" }

func (Submitted) Terminal() bool { return false }
func (Polling) Terminal() bool   { return false }
func (Succeeded) Terminal() bool { return true }
func (Failed) Terminal() bool    { return true }
func (TimedOut) Terminal() bool  { return true }

func (Submitted) sealed() {}
func (Polling) sealed()   {}
func (Succeeded) sealed() {}
func (Failed) sealed()    {}
func (TimedOut) sealed()  {}

// GenerationJob is one remote inference job. It is owned by a single caller
// and is not safe for concurrent use.
type GenerationJob struct {
	id        string
	state     State
	createdAt time.Time
	updatedAt time.Time
}

// NewGenerationJob creates a job in the Submitted state.
func NewGenerationJob(remoteID string) *GenerationJob {
	now := time.Now()
	return &GenerationJob{
		id:        remoteID,
		state:     Submitted{At: now},
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the remote job identifier.
func (j *GenerationJob) ID() string { return j.id }

// State returns the current state.
func (j *GenerationJob) State() State { return j.state }

// Elapsed returns the time since submission.
func (j *GenerationJob) Elapsed() time.Duration { return j.updatedAt.Sub(j.createdAt) }

// Outputs returns the output references once the job has succeeded.
func (j *GenerationJob) Outputs() []Output {
	if s, ok := j.state.(Succeeded); ok {
		return s.Outputs
	}
	return nil
}

// Observe records one status check. The first call moves the job from
// Submitted to Polling.
func (j *GenerationJob) Observe(remoteStatus string) error {
	polls := 1
	if p, ok := j.state.(Polling); ok {
		polls = p.Polls + 1
	}
	return j.transition(Polling{Polls: polls, Remote: remoteStatus})
}

// Succeed moves the job to Succeeded with the given outputs.
func (j *GenerationJob) Succeed(outputs []Output) error {
	return j.transition(Succeeded{Outputs: outputs})
}

// Fail moves the job to Failed.
func (j *GenerationJob) Fail(reason string) error {
	return j.transition(Failed{Reason: reason})
}

// TimeOut moves the job to TimedOut.
func (j *GenerationJob) TimeOut() error {
	return j.transition(TimedOut{After: time.Since(j.createdAt)})
}

// transition applies next if the current state allows it.
func (j *GenerationJob) transition(next State) error {
	if !allowed(j.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.state.Name(), next.Name())
	}
	j.state = next
	j.updatedAt = time.Now()
	return nil
}

// allowed reports whether from → to is a valid transition.
func allowed(from, to State) bool {
	switch from.(type) {
	case Submitted:
		switch to.(type) {
		case Polling, TimedOut:
			return true
		case Submitted, Succeeded, Failed:
			return false
		}
	case Polling:
		switch to.(type) {
		case Polling, Succeeded, Failed, TimedOut:
			return true
		case Submitted:
			return false
		}
	case Succeeded, Failed, TimedOut:
		return false
	}
	panic(fmt.Sprintf("job: unhandled state transition %T -> %T", from, to))
}
