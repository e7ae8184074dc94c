package media

import (
	"errors"
	"fmt"
)

// ErrTooFewFrames is returned when a video holds fewer inner frames than requested.
var ErrTooFewFrames = errors.New("media: video has too few frames")

// selectInner drops the first and last frame, which reproduce the input
// keyframes, and samples n frames evenly from the rest.
func selectInner[T any](all []T, n int) ([]T, error) {
	if n < 1 {
		return nil, fmt.Errorf("media: frame count must be positive, got %d", n)
	}

	inner := all
	if len(all) > 2 {
		inner = all[1 : len(all)-1]
	}
	if len(inner) < n {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrTooFewFrames, len(inner), n)
	}
	if len(inner) == n {
		return inner, nil
	}

	step := float64(len(inner)) / float64(n)
	out := make([]T, n)
	for i := range n {
		out[i] = inner[min(int(float64(i)*step), len(inner)-1)]
	}
	return out, nil
}
