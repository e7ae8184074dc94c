// Package replicate provides an inference backend for the Replicate
// predictions API.
package replicate

import "encoding/json"

// Replicate prediction statuses.
const (
	statusStarting   = "starting"
	statusProcessing = "processing"
	statusSucceeded  = "succeeded"
	statusFailed     = "failed"
	statusCanceled   = "canceled"
)

// Model input limits for ToonCrafter-style models.
const (
	maxDimension       = 512
	interpolateAbove   = 8
	defaultBaseURL     = "https://api.replicate.com/v1"
	maxDownloadBytes   = 256 << 20
	maxErrorBodyLength = 512
)

// predictionRequest represents the request body for POST /predictions.
type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

// predictionInput represents the model input of a prediction.
type predictionInput struct {
	Image1          string `json:"image_1"`
	Image2          string `json:"image_2"`
	Prompt          string `json:"prompt,omitempty"`
	MaxWidth        int    `json:"max_width"`
	MaxHeight       int    `json:"max_height"`
	Interpolate     bool   `json:"interpolate"`
	Loop            bool   `json:"loop"`
	ColorCorrection bool   `json:"color_correction"`
	Seed            *int64 `json:"seed,omitempty"`
}

// prediction represents a prediction as returned by the API.
type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}
