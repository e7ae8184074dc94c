// Package scoring assigns a confidence value to each generated inbetween
// and classifies it against the auto-accept threshold.
//
// Three signals feed the score, each in [0, 1]:
//   - similarity to the temporally nearest keyframe, relative to what a
//     linear blend between the keyframes would predict at that ordinal;
//   - smoothness against the immediate neighbors, with the keyframes as
//     virtual neighbors at ordinals 0 and N+1;
//   - consistency of drawn coverage and tone with the keyframes.
//
// The confidence is their weighted arithmetic mean.
package scoring

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"

	"github.com/maauso/gp-inbetween/internal/config"
	"github.com/maauso/gp-inbetween/internal/inference"
	"github.com/maauso/gp-inbetween/internal/preprocess"
)

// minExpected keeps expected similarities away from zero for keyframes
// that share almost no structure.
const minExpected = 0.05

// Classification is the review disposition derived from a confidence.
type Classification string

// Classifications.
const (
	AutoAccepted Classification = "auto_accepted"
	NeedsReview  Classification = "needs_review"
)

// Classify returns AutoAccepted iff confidence >= threshold.
func Classify(confidence, threshold float64) Classification {
	if confidence >= threshold {
		return AutoAccepted
	}
	return NeedsReview
}

// Weights are the relative, non-negative weights of the signals.
type Weights struct {
	Similarity  float64
	Smoothness  float64
	Consistency float64
}

// WeightsFrom converts configured weights.
func WeightsFrom(c config.ScoringWeights) Weights {
	return Weights{Similarity: c.Similarity, Smoothness: c.Smoothness, Consistency: c.Consistency}
}

// Signals are the per-frame inputs to the confidence.
type Signals struct {
	Similarity  float64 `json:"similarity"`
	Smoothness  float64 `json:"smoothness"`
	Consistency float64 `json:"consistency"`
}

// Combine returns the weighted mean of s in [0, 1]. It is non-decreasing in
// every signal. All-zero weights fall back to equal weights.
func (w Weights) Combine(s Signals) float64 {
	ws, wm, wc := math.Max(w.Similarity, 0), math.Max(w.Smoothness, 0), math.Max(w.Consistency, 0)
	total := ws + wm + wc
	if total == 0 {
		ws, wm, wc, total = 1, 1, 1, 3
	}
	return clamp01((ws*clamp01(s.Similarity) + wm*clamp01(s.Smoothness) + wc*clamp01(s.Consistency)) / total)
}

// ScoredFrame is a generated frame with its confidence and classification.
type ScoredFrame struct {
	Ordinal        int
	Format         string
	Image          *image.NRGBA
	Signals        Signals
	Confidence     float64
	Classification Classification
}

// Scorer scores generated sequences. It holds no mutable state.
type Scorer struct {
	weights   Weights
	threshold float64
	logger    *slog.Logger
}

// New creates a Scorer.
func New(weights Weights, threshold float64, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{weights: weights, threshold: threshold, logger: logger}
}

// NewFromConfig creates a Scorer from the scoring section of a RunConfig.
func NewFromConfig(c config.ScoringConfig, logger *slog.Logger) *Scorer {
	return New(WeightsFrom(c.Weights), c.AutoAcceptThreshold, logger)
}

// Threshold returns the auto-accept threshold.
func (s *Scorer) Threshold() float64 { return s.threshold }

// Score decodes and scores frames against the keyframes a and b. The result
// is ordered by ordinal. It fails only with apperr.ErrInvalidImage.
func (s *Scorer) Score(a, b image.Image, frames []inference.Frame) ([]ScoredFrame, error) {
	ordered := append([]inference.Frame(nil), frames...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Ordinal < ordered[j].Ordinal
	})

	scored := make([]ScoredFrame, len(ordered))
	feats := make([]features, len(ordered))
	for i, f := range ordered {
		img, format, err := preprocess.Decode(f.Data)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", f.Ordinal, err)
		}
		nrgba := preprocess.ToNRGBA(img)
		scored[i] = ScoredFrame{Ordinal: f.Ordinal, Format: format, Image: nrgba}
		feats[i] = extract(nrgba)
	}

	fa, fb := extract(a), extract(b)
	for i, sig := range signals(fa, fb, feats) {
		conf := s.weights.Combine(sig)
		scored[i].Signals = sig
		scored[i].Confidence = conf
		scored[i].Classification = Classify(conf, s.threshold)

		s.logger.Debug("frame scored",
			slog.Int("ordinal", scored[i].Ordinal),
			slog.Float64("similarity", sig.Similarity),
			slog.Float64("smoothness", sig.Smoothness),
			slog.Float64("consistency", sig.Consistency),
			slog.Float64("confidence", conf),
			slog.String("classification", string(scored[i].Classification)),
		)
	}
	return scored, nil
}

// signals computes per-frame signals for an ordered sequence between the
// keyframes a and b.
func signals(a, b features, frames []features) []Signals {
	n := len(frames)
	span := float64(n + 1)
	gap := 1 - ssim(a, b)
	step := math.Max(1-gap/span, minExpected)

	out := make([]Signals, n)
	for i, f := range frames {
		ord := i + 1
		dA, dB := ord, n+1-ord

		var near float64
		switch {
		case dA < dB:
			near = ssim(f, a)
		case dB < dA:
			near = ssim(f, b)
		default:
			near = math.Max(ssim(f, a), ssim(f, b))
		}
		expected := math.Max(1-gap*float64(min(dA, dB))/span, minExpected)

		prev, next := a, b
		if i > 0 {
			prev = frames[i-1]
		}
		if i < n-1 {
			next = frames[i+1]
		}
		worstStep := math.Min(ssim(prev, f), ssim(f, next))

		out[i] = Signals{
			Similarity:  clamp01(near / expected),
			Smoothness:  clamp01(worstStep / step),
			Consistency: consistency(f, a, b),
		}
	}
	return out
}

// consistency penalizes frames whose drawn coverage or tone falls well
// outside what the keyframes span.
func consistency(f, a, b features) float64 {
	score := 1.0

	// Near-blank output where the keyframes have content.
	if minInk := math.Min(a.ink, b.ink); minInk > 0.001 && f.ink < 0.1*minInk {
		score -= 0.5
	}

	if outside(f.brightness, a.brightness, b.brightness, 0.1) {
		score -= 0.3
	}
	if outside(f.saturation, a.saturation, b.saturation, 0.1) {
		score -= 0.2
	}
	return clamp01(score)
}

// outside reports whether v lies farther from the midpoint of lo and hi
// than their spread plus tolerance.
func outside(v, lo, hi, tolerance float64) bool {
	mid := (lo + hi) / 2
	return math.Abs(v-mid) > math.Abs(hi-lo)+tolerance
}
