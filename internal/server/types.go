// Package server exposes the pipeline over HTTP for serve mode, so a host
// add-on can drive generation and feedback over localhost.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/gp-inbetween/internal/job"
)

// CreateRunRequest is the HTTP request body for starting a run. Each
// keyframe is given either inline as base64 or as a local file path.
type CreateRunRequest struct {
	FrameABase64 string `json:"frame_a_base64" validate:"required_without=FrameAPath"`
	FrameBBase64 string `json:"frame_b_base64" validate:"required_without=FrameBPath"`
	FrameAPath   string `json:"frame_a_path" validate:"required_without=FrameABase64"`
	FrameBPath   string `json:"frame_b_path" validate:"required_without=FrameBBase64"`
	// Character is an optional label stored with feedback.
	Character string `json:"character" validate:"max=128"`
	// FrameCount overrides the configured number of inbetweens.
	FrameCount int   `json:"frame_count" validate:"omitempty,min=1,max=64"`
	Seed       int64 `json:"seed"`
	// MotionType replaces motion detection when set.
	MotionType string `json:"motion_type" validate:"omitempty,oneof=static subtle normal dynamic"`
}

// RunResponse describes a run.
type RunResponse struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	Character   string      `json:"character,omitempty"`
	FrameCount  int         `json:"frame_count,omitempty"`
	ErrorKind   string      `json:"error_kind,omitempty"`
	Error       string      `json:"error,omitempty"`
	Result      *job.Result `json:"result,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// FeedbackRequest records a review of frames of one run.
type FeedbackRequest struct {
	RunID string `json:"run_id" validate:"required"`
	// Ordinals selects frames; empty reviews every frame of the run.
	Ordinals    []int    `json:"ordinals" validate:"dive,min=1"`
	Disposition string   `json:"disposition" validate:"required,oneof=accepted rejected"`
	Issues      []string `json:"issues" validate:"dive,required,max=64"`
}

// FeedbackResponse reports how many records were appended.
type FeedbackResponse struct {
	Recorded int `json:"recorded"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

func toRunResponse(r *job.Run) RunResponse {
	resp := RunResponse{
		ID:         r.ID,
		Status:     string(r.Status),
		Character:  r.Character,
		FrameCount: r.FrameCount,
		ErrorKind:  r.ErrorKind,
		Error:      r.Error,
		Result:     r.Result,
		CreatedAt:  r.CreatedAt,
	}
	if !r.CompletedAt.IsZero() {
		t := r.CompletedAt
		resp.CompletedAt = &t
	}
	return resp
}
