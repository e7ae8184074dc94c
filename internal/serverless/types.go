// Package serverless provides an inference backend for generic serverless
// GPU task queues speaking a small JSON protocol.
package serverless

// Remote task statuses. Some deployments report COMPLETE or ERROR instead
// of COMPLETED or FAILED.
const (
	statusPending   = "PENDING"
	statusRunning   = "RUNNING"
	statusCompleted = "COMPLETED"
	statusComplete  = "COMPLETE"
	statusFailed    = "FAILED"
	statusError     = "ERROR"
	statusCanceled  = "CANCELED"
)

const (
	pngDataURIPrefix   = "data:image/png;base64,"
	maxResponseBytes   = 256 << 20
	maxErrorBodyLength = 512
)

// taskRequest represents the request body for task submission.
type taskRequest struct {
	FrameA        string  `json:"frame_a"`
	FrameB        string  `json:"frame_b"`
	NumFrames     int     `json:"num_frames"`
	StyleStrength float64 `json:"style_strength"`
	Resolution    int     `json:"resolution"`
	Prompt        string  `json:"prompt,omitempty"`
	Seed          *int64  `json:"seed,omitempty"`
}

// taskResponse represents the response from task submission.
type taskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// statusResponse represents the response from the task status endpoint.
type statusResponse struct {
	TaskID  string       `json:"task_id"`
	Status  string       `json:"status"`
	Outputs []taskOutput `json:"outputs,omitempty"`
	// Frames carries inline base64 PNGs from deployments that return
	// results in the status body instead of as files.
	Frames []string `json:"frames,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// taskOutput represents a single output file of a task.
type taskOutput struct {
	Index *int   `json:"index,omitempty"`
	Name  string `json:"name,omitempty"`
	URL   string `json:"url,omitempty"`
	Type  string `json:"type,omitempty"`
}
