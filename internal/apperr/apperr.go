// Package apperr defines the error kinds surfaced by the inbetween pipeline.
// Components wrap one of the sentinel errors below with fmt.Errorf("%w") so
// callers can classify failures with errors.Is.
package apperr

import "errors"

// Sentinel errors, one per surfaced kind.
var (
	// ErrConfig is returned for a missing or invalid configuration value.
	ErrConfig = errors.New("config error")
	// ErrInvalidImage is returned for undecodable or zero-area images.
	ErrInvalidImage = errors.New("invalid image")
	// ErrAspectMismatch is returned when keyframe aspect ratios differ beyond tolerance.
	ErrAspectMismatch = errors.New("aspect ratio mismatch")
	// ErrSubmission is returned when a job cannot be submitted.
	ErrSubmission = errors.New("submission failed")
	// ErrPolling is returned when the polling retry budget is exhausted.
	ErrPolling = errors.New("polling failed")
	// ErrRemoteGeneration is returned when the remote job reports failure.
	ErrRemoteGeneration = errors.New("remote generation failed")
	// ErrTimedOut is returned when the overall deadline is exceeded.
	ErrTimedOut = errors.New("timed out")
	// ErrRetrieval is returned when output frames cannot be downloaded.
	ErrRetrieval = errors.New("retrieval failed")
	// ErrFeedbackStore is returned when the feedback store is unreadable or unwritable.
	ErrFeedbackStore = errors.New("feedback store error")
)

// Kind names an error category for user-facing reports.
type Kind string

// Error kinds.
const (
	KindConfig           Kind = "ConfigError"
	KindInvalidImage     Kind = "InvalidImage"
	KindAspectMismatch   Kind = "AspectMismatch"
	KindSubmission       Kind = "SubmissionError"
	KindPolling          Kind = "PollingError"
	KindRemoteGeneration Kind = "RemoteGenerationError"
	KindTimedOut         Kind = "TimedOut"
	KindRetrieval        Kind = "RetrievalError"
	KindFeedbackStore    Kind = "FeedbackStoreError"
	KindUnknown          Kind = "Error"
)

var kinds = []struct {
	sentinel error
	kind     Kind
	exitCode int
}{
	{ErrConfig, KindConfig, 2},
	{ErrInvalidImage, KindInvalidImage, 3},
	{ErrAspectMismatch, KindAspectMismatch, 4},
	{ErrSubmission, KindSubmission, 5},
	{ErrPolling, KindPolling, 6},
	{ErrRemoteGeneration, KindRemoteGeneration, 7},
	{ErrTimedOut, KindTimedOut, 8},
	{ErrRetrieval, KindRetrieval, 9},
	{ErrFeedbackStore, KindFeedbackStore, 10},
}

// KindOf returns the kind of err, or KindUnknown if it wraps no sentinel.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindUnknown
}

// ExitCode maps err to a process exit status. Nil maps to 0 and
// unclassified errors map to 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.exitCode
		}
	}
	return 1
}
