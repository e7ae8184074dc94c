package scoring

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/gp-inbetween/internal/apperr"
	"github.com/maauso/gp-inbetween/internal/inference"
)

// disc draws a filled black disc centered at (cx, 64) on a white 128x128 sheet.
func disc(cx int) *image.NRGBA {
	img := solid(color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			dx, dy := x-cx, y-64
			if dx*dx+dy*dy <= 16*16 {
				img.SetNRGBA(x, y, color.NRGBA{A: 255})
			}
		}
	}
	return img
}

func solid(c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 128, 128))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func noise() *image.NRGBA {
	r := rand.New(rand.NewPCG(1, 2))
	img := image.NewNRGBA(image.Rect(0, 0, 128, 128))
	for i := 0; i < len(img.Pix); i += 4 {
		v := uint8(r.IntN(256))
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, uint8(r.IntN(256)), 255-v, 255
	}
	return img
}

func frame(t *testing.T, ordinal int, img image.Image) inference.Frame {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return inference.Frame{Ordinal: ordinal, Data: buf.Bytes()}
}

var defaultWeights = Weights{Similarity: 0.4, Smoothness: 0.4, Consistency: 0.2}

func TestScore_IdenticalSequenceIsFullyConfident(t *testing.T) {
	a := disc(64)
	frames := []inference.Frame{frame(t, 1, a), frame(t, 2, a), frame(t, 3, a)}

	scored, err := New(defaultWeights, 0.85, nil).Score(a, a, frames)
	require.NoError(t, err)
	require.Len(t, scored, 3)

	for _, sf := range scored {
		assert.InDelta(t, 1.0, sf.Confidence, 1e-9)
		assert.Equal(t, AutoAccepted, sf.Classification)
		assert.Equal(t, "png", sf.Format)
	}
}

func TestScore_CorruptFrameScoresLower(t *testing.T) {
	a, b := disc(40), disc(88)
	good := []inference.Frame{frame(t, 1, disc(52)), frame(t, 2, disc(64)), frame(t, 3, disc(76))}
	bad := []inference.Frame{frame(t, 1, disc(52)), frame(t, 2, noise()), frame(t, 3, disc(76))}

	s := New(defaultWeights, 0.85, nil)
	goodScored, err := s.Score(a, b, good)
	require.NoError(t, err)
	badScored, err := s.Score(a, b, bad)
	require.NoError(t, err)

	assert.Less(t, badScored[1].Confidence, goodScored[1].Confidence)
	assert.Less(t, badScored[1].Signals.Similarity, goodScored[1].Signals.Similarity)
	assert.Less(t, badScored[1].Signals.Consistency, goodScored[1].Signals.Consistency)

	// Neighbors of the corrupt frame lose smoothness too.
	assert.Less(t, badScored[0].Signals.Smoothness, goodScored[0].Signals.Smoothness)
}

func TestScore_Deterministic(t *testing.T) {
	a, b := disc(40), disc(88)
	frames := []inference.Frame{frame(t, 1, disc(55)), frame(t, 2, disc(73))}

	s := New(defaultWeights, 0.5, nil)
	first, err := s.Score(a, b, frames)
	require.NoError(t, err)
	second, err := s.Score(a, b, frames)
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].Confidence, second[i].Confidence)
		assert.Equal(t, first[i].Signals, second[i].Signals)
	}
}

func TestScore_ThresholdOnlyMovesClassification(t *testing.T) {
	a, b := disc(40), disc(88)
	frames := []inference.Frame{frame(t, 1, disc(52)), frame(t, 2, noise()), frame(t, 3, disc(76))}

	var baseline []ScoredFrame
	for _, threshold := range []float64{0, 0.3, 0.6, 0.85, 1} {
		scored, err := New(defaultWeights, threshold, nil).Score(a, b, frames)
		require.NoError(t, err)

		if baseline == nil {
			baseline = scored
		}
		for i, sf := range scored {
			assert.Equal(t, baseline[i].Confidence, sf.Confidence)
			assert.Equal(t, sf.Confidence >= threshold, sf.Classification == AutoAccepted,
				"threshold %.2f confidence %.4f", threshold, sf.Confidence)
		}
	}
}

func TestScore_OrdersByOrdinal(t *testing.T) {
	a := disc(64)
	frames := []inference.Frame{frame(t, 3, a), frame(t, 1, a), frame(t, 2, a)}

	scored, err := New(defaultWeights, 0.85, nil).Score(a, a, frames)
	require.NoError(t, err)

	for i, sf := range scored {
		assert.Equal(t, i+1, sf.Ordinal)
	}
}

func TestScore_InvalidFrame(t *testing.T) {
	a := disc(64)
	frames := []inference.Frame{frame(t, 1, a), {Ordinal: 2, Data: []byte("truncated")}}

	_, err := New(defaultWeights, 0.85, nil).Score(a, a, frames)
	require.ErrorIs(t, err, apperr.ErrInvalidImage)
	assert.Contains(t, err.Error(), "frame 2")
}

func TestScore_LowQualityStillScored(t *testing.T) {
	a, b := disc(40), disc(88)
	frames := []inference.Frame{frame(t, 1, noise()), frame(t, 2, solid(color.NRGBA{}))}

	scored, err := New(defaultWeights, 0.85, nil).Score(a, b, frames)
	require.NoError(t, err)
	for _, sf := range scored {
		assert.GreaterOrEqual(t, sf.Confidence, 0.0)
		assert.LessOrEqual(t, sf.Confidence, 1.0)
		assert.Equal(t, NeedsReview, sf.Classification)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, AutoAccepted, Classify(0.9, 0.85))
	assert.Equal(t, AutoAccepted, Classify(0.85, 0.85))
	assert.Equal(t, NeedsReview, Classify(0.84, 0.85))
	assert.Equal(t, AutoAccepted, Classify(0, 0))
	assert.Equal(t, NeedsReview, Classify(0.99, 1))
}

func TestWeights_CombineIsMonotonic(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	weights := []Weights{
		defaultWeights,
		{Similarity: 1},
		{Smoothness: 2, Consistency: 0.5},
		{},
	}

	for _, w := range weights {
		for range 500 {
			base := Signals{Similarity: r.Float64(), Smoothness: r.Float64(), Consistency: r.Float64()}
			delta := r.Float64() * 0.5

			for _, better := range []Signals{
				{Similarity: base.Similarity + delta, Smoothness: base.Smoothness, Consistency: base.Consistency},
				{Similarity: base.Similarity, Smoothness: base.Smoothness + delta, Consistency: base.Consistency},
				{Similarity: base.Similarity, Smoothness: base.Smoothness, Consistency: base.Consistency + delta},
			} {
				assert.GreaterOrEqual(t, w.Combine(better), w.Combine(base))
			}
		}
	}
}

func TestWeights_Combine(t *testing.T) {
	s := Signals{Similarity: 1, Smoothness: 0.5, Consistency: 0}

	assert.InDelta(t, 0.6, defaultWeights.Combine(s), 1e-9)
	assert.InDelta(t, 0.5, Weights{}.Combine(s), 1e-9)
	assert.InDelta(t, 1.0, Weights{Similarity: 1}.Combine(s), 1e-9)
	assert.InDelta(t, 1.0, Weights{Similarity: 1}.Combine(Signals{Similarity: 3}), 1e-9)
}

func TestConsistency_BlankFrame(t *testing.T) {
	anchor := extract(disc(64))
	blank := extract(solid(color.NRGBA{R: 255, G: 255, B: 255, A: 255}))

	assert.InDelta(t, 0.5, consistency(blank, anchor, anchor), 1e-9)
	assert.InDelta(t, 1.0, consistency(anchor, anchor, anchor), 1e-9)
}

func TestSSIM(t *testing.T) {
	a := extract(disc(64))
	assert.InDelta(t, 1.0, ssim(a, a), 1e-9)

	near := ssim(a, extract(disc(70)))
	far := ssim(a, extract(disc(100)))
	assert.Less(t, far, near)
	assert.Less(t, near, 1.0)
}

func TestDetectMotion(t *testing.T) {
	white := solid(color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	tests := []struct {
		name string
		b    image.Image
		want MotionType
	}{
		{"identical", white, MotionStatic},
		{"light gray", solid(color.NRGBA{R: 230, G: 230, B: 230, A: 255}), MotionSubtle},
		{"mid gray", solid(color.NRGBA{R: 200, G: 200, B: 200, A: 255}), MotionNormal},
		{"black", solid(color.NRGBA{A: 255}), MotionDynamic},
		{"different size", image.NewNRGBA(image.Rect(0, 0, 10, 10)), MotionDynamic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMotion(white, tt.b))
		})
	}

	transparent := solid(color.NRGBA{})
	assert.Equal(t, 0.0, PixelDifference(transparent, transparent))
	assert.InDelta(t, 0.75, PixelDifference(white, solid(color.NRGBA{A: 255})), 1e-9)
}

func TestParseMotionType(t *testing.T) {
	for _, name := range []string{"static", "subtle", "normal", "dynamic"} {
		m, err := ParseMotionType(name)
		require.NoError(t, err)
		assert.Equal(t, MotionType(name), m)
	}

	_, err := ParseMotionType("wild")
	assert.ErrorIs(t, err, ErrUnknownMotionType)
	_, err = ParseMotionType("")
	assert.ErrorIs(t, err, ErrUnknownMotionType)
}
