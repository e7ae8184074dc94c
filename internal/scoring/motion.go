package scoring

import (
	"errors"
	"fmt"
	"image"

	"github.com/maauso/gp-inbetween/internal/preprocess"
)

// MotionType buckets how far apart two keyframes are.
type MotionType string

// Motion types, from least to most movement.
const (
	MotionStatic  MotionType = "static"
	MotionSubtle  MotionType = "subtle"
	MotionNormal  MotionType = "normal"
	MotionDynamic MotionType = "dynamic"
)

// ErrUnknownMotionType is returned by ParseMotionType for unrecognized names.
var ErrUnknownMotionType = errors.New("scoring: unknown motion type")

// ParseMotionType returns the motion type named s.
func ParseMotionType(s string) (MotionType, error) {
	switch m := MotionType(s); m {
	case MotionStatic, MotionSubtle, MotionNormal, MotionDynamic:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q (want static, subtle, normal or dynamic)", ErrUnknownMotionType, s)
}

// maxDiffSamples bounds the pixels compared by PixelDifference.
const maxDiffSamples = 500

// DetectMotion classifies the movement between two keyframes.
func DetectMotion(a, b image.Image) MotionType {
	switch d := PixelDifference(a, b); {
	case d < 0.05:
		return MotionStatic
	case d < 0.15:
		return MotionSubtle
	case d < 0.3:
		return MotionNormal
	default:
		return MotionDynamic
	}
}

// PixelDifference returns the mean absolute RGBA difference of a and b in
// [0, 1] over an even sample of pixels where either image is opaque.
// Images of different sizes report 0.5.
func PixelDifference(a, b image.Image) float64 {
	na, nb := preprocess.ToNRGBA(a), preprocess.ToNRGBA(b)
	if na.Rect.Dx() != nb.Rect.Dx() || na.Rect.Dy() != nb.Rect.Dy() {
		return 0.5
	}

	total := na.Rect.Dx() * na.Rect.Dy()
	if total == 0 {
		return 0
	}
	step := max(total/min(total, maxDiffSamples), 1)

	w := na.Rect.Dx()
	var sum, samples int
	for i := 0; i < total; i += step {
		x, y := i%w, i/w
		oa, ob := na.PixOffset(x, y), nb.PixOffset(x, y)
		pa := na.Pix[oa : oa+4]
		pb := nb.Pix[ob : ob+4]
		if pa[3] <= 128 && pb[3] <= 128 {
			continue
		}
		for c := range 4 {
			sum += absDiff(pa[c], pb[c])
		}
		samples++
	}
	if samples == 0 {
		return 0
	}
	return float64(sum) / (float64(samples) * 4 * 255)
}

func absDiff(x, y uint8) int {
	if x > y {
		return int(x - y)
	}
	return int(y - x)
}
