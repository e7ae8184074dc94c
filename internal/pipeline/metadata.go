package pipeline

import (
	"time"

	"github.com/maauso/gp-inbetween/internal/preprocess"
	"github.com/maauso/gp-inbetween/internal/scoring"
)

// Metadata is written as metadata.json next to the frames of a run.
type Metadata struct {
	RunID        string                 `json:"run_id"`
	CreatedAt    time.Time              `json:"created_at"`
	Backend      string                 `json:"backend,omitempty"`
	ModelVersion string                 `json:"model_version,omitempty"`
	Character    string                 `json:"character,omitempty"`
	MotionType   string                 `json:"motion_type"`
	FrameCount   int                    `json:"frame_count"`
	Threshold    float64                `json:"threshold"`
	OriginalSize Size                   `json:"original_size"`
	SourceA      string                 `json:"source_a,omitempty"`
	SourceB      string                 `json:"source_b,omitempty"`
	Padding      preprocess.PaddingInfo `json:"padding"`
	Frames       []FrameMetadata        `json:"frames"`
}

// Size is a width and height in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FrameMetadata describes one written frame.
type FrameMetadata struct {
	Ordinal        int             `json:"ordinal"`
	File           string          `json:"file"`
	Confidence     float64         `json:"confidence"`
	Classification string          `json:"classification"`
	Signals        scoring.Signals `json:"signals"`
}
