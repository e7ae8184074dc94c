package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/gp-inbetween/internal/apperr"
	"github.com/maauso/gp-inbetween/internal/feedback"
	"github.com/maauso/gp-inbetween/internal/job"
	"github.com/maauso/gp-inbetween/internal/pipeline"
	"github.com/maauso/gp-inbetween/internal/preprocess"
	"github.com/maauso/gp-inbetween/internal/scoring"
)

// Generator runs the pipeline. *pipeline.Pipeline implements it.
type Generator interface {
	Generate(ctx context.Context, in pipeline.Input) (*job.Result, error)
}

var _ Generator = (*pipeline.Pipeline)(nil)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	generator          Generator
	runs               *job.RunService
	store              feedback.Store
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateRun only records the run and returns immediately
// without starting the pipeline.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(generator Generator, runs *job.RunService, store feedback.Store, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		generator:          generator,
		runs:               runs,
		store:              store,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true, // Default to enabled
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateRun handles POST /runs requests.
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if !h.decode(w, r, &req) {
		return
	}

	a, err := source(req.FrameABase64, req.FrameAPath, "frame_a")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_FRAME")
		return
	}
	b, err := source(req.FrameBBase64, req.FrameBPath, "frame_b")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_FRAME")
		return
	}

	work := func(ctx context.Context, runID string) (*job.Result, error) {
		return h.generator.Generate(ctx, pipeline.Input{
			RunID:      runID,
			A:          a,
			B:          b,
			Character:  req.Character,
			FrameCount: req.FrameCount,
			Seed:       req.Seed,
			MotionType: scoring.MotionType(req.MotionType),
		})
	}

	var run *job.Run
	if h.enableAsyncProcess {
		run, err = h.runs.Submit(r.Context(), req.Character, req.FrameCount, work)
	} else {
		run, err = h.runs.Create(r.Context(), req.Character, req.FrameCount)
	}
	if errors.Is(err, job.ErrShuttingDown) {
		writeError(w, http.StatusServiceUnavailable, err.Error(), "SHUTTING_DOWN")
		return
	}
	if err != nil {
		h.logger.Error("failed to create run", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create run", "RUN_CREATION_FAILED")
		return
	}

	writeJSON(w, http.StatusAccepted, toRunResponse(run.Clone()))
}

// GetRun handles GET /runs/{id} requests.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run ID is required", "MISSING_RUN_ID")
		return
	}

	run, err := h.runs.Get(r.Context(), runID)
	if err != nil {
		if errors.Is(err, job.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found", "RUN_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get run",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get run", "RUN_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toRunResponse(run))
}

// ListRuns handles GET /runs requests.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list runs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list runs", "RUN_FETCH_FAILED")
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toRunResponse(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

// RecordFeedback handles POST /feedback requests.
func (h *Handlers) RecordFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !h.decode(w, r, &req) {
		return
	}

	written, err := feedback.ApplyReview(r.Context(), h.store, feedback.Review{
		RunID:       req.RunID,
		Ordinals:    req.Ordinals,
		Disposition: feedback.Disposition(req.Disposition),
		Issues:      req.Issues,
	})
	switch {
	case errors.Is(err, feedback.ErrFrameNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "FRAME_NOT_FOUND")
		return
	case err != nil:
		h.logger.Error("failed to record feedback",
			slog.String("run_id", req.RunID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error(), string(apperr.KindOf(err)))
		return
	}

	h.logger.Info("feedback recorded",
		slog.String("run_id", req.RunID),
		slog.String("disposition", req.Disposition),
		slog.Int("frames", len(written)),
	)
	writeJSON(w, http.StatusCreated, FeedbackResponse{Recorded: len(written)})
}

// Stats handles GET /stats requests. The character and motion_type query
// parameters filter the aggregates.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	filter := feedback.Filter{
		Character:  r.URL.Query().Get("character"),
		MotionType: r.URL.Query().Get("motion_type"),
	}

	summary, err := feedback.Stats(r.Context(), h.store, filter)
	if err != nil {
		h.logger.Error("failed to compute stats", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error(), string(apperr.KindOf(err)))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// decode reads and validates a JSON body, writing the error response on
// failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// source loads a keyframe from inline base64 or a local path.
func source(b64, path, name string) (preprocess.Source, error) {
	if b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return preprocess.Source{}, fmt.Errorf("%s: invalid base64: %w", name, err)
		}
		return preprocess.Source{Name: name, Data: data}, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - serve mode is bound to localhost
	if err != nil {
		return preprocess.Source{}, fmt.Errorf("%s: %w", name, err)
	}
	return preprocess.Source{Name: path, Data: data}, nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
