package inference

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/maauso/gp-inbetween/internal/apperr"
	"github.com/maauso/gp-inbetween/internal/preprocess"
)

// Params holds model-specific parameters.
type Params struct {
	ModelVersion  string
	StyleStrength float64
	Prompt        string
	// Seed makes generation reproducible. Zero lets the backend choose.
	Seed int64
}

// Request is the normalized unit submitted for generation. It is
// immutable once constructed.
type Request struct {
	pair   *preprocess.FramePair
	frames int
	params Params
}

// NewRequest validates and builds a Request.
func NewRequest(pair *preprocess.FramePair, frames int, params Params) (Request, error) {
	if pair == nil {
		return Request{}, errors.New("inference: frame pair is required")
	}
	if frames < 1 {
		return Request{}, fmt.Errorf("%w: frame count must be at least 1, got %d", apperr.ErrConfig, frames)
	}
	return Request{pair: pair, frames: frames, params: params}, nil
}

// FrameCount returns the number of inbetweens requested.
func (r Request) FrameCount() int { return r.frames }

// Params returns the model parameters.
func (r Request) Params() Params { return r.params }

// Width returns the normalized frame width.
func (r Request) Width() int { return r.pair.Width() }

// Height returns the normalized frame height.
func (r Request) Height() int { return r.pair.Height() }

// FrameA returns a copy of the PNG-encoded first keyframe.
func (r Request) FrameA() []byte { return append([]byte(nil), r.pair.A.PNG...) }

// FrameB returns a copy of the PNG-encoded second keyframe.
func (r Request) FrameB() []byte { return append([]byte(nil), r.pair.B.PNG...) }

// FrameABase64 returns the first keyframe as standard base64.
func (r Request) FrameABase64() string { return base64.StdEncoding.EncodeToString(r.pair.A.PNG) }

// FrameBBase64 returns the second keyframe as standard base64.
func (r Request) FrameBBase64() string { return base64.StdEncoding.EncodeToString(r.pair.B.PNG) }

// DataURI encodes PNG bytes as a data URI.
func DataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
