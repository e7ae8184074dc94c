package feedback

import "sort"

// Calibration defaults.
const (
	// MinCalibrationSamples is the number of reviewed frames with a
	// confidence needed before a threshold is suggested.
	MinCalibrationSamples = 20
	// TargetPrecision is the share of auto-accepted frames that reviewers
	// must have accepted at the suggested threshold.
	TargetPrecision = 0.95
)

// Calibration is a suggested auto-accept threshold derived from reviews.
type Calibration struct {
	Reviewed int `json:"reviewed" yaml:"reviewed"`
	// Suggested is the lowest threshold at which the frames at or above it
	// were accepted at TargetPrecision. Absent with too little data or
	// when no threshold reaches the target.
	Suggested *float64 `json:"suggested_threshold,omitempty" yaml:"suggested_threshold,omitempty"`
	Precision *float64 `json:"precision,omitempty" yaml:"precision,omitempty"`
	Coverage  *float64 `json:"coverage,omitempty" yaml:"coverage,omitempty"`
}

// Calibrate suggests a threshold from records in append order.
func Calibrate(records []Record, filter Filter) Calibration {
	var matched []Record
	for _, r := range records {
		if filter.match(r) {
			matched = append(matched, r)
		}
	}
	return calibrate(latest(matched))
}

// calibrate works on current dispositions only.
func calibrate(current []Record) Calibration {
	type sample struct {
		confidence float64
		accepted   bool
	}

	var samples []sample
	for _, r := range current {
		// Auto-accepted records were never looked at by a reviewer.
		if r.Confidence == nil || r.Disposition == Unreviewed || r.AutoAccepted {
			continue
		}
		samples = append(samples, sample{confidence: *r.Confidence, accepted: r.Disposition == Accepted})
	}

	c := Calibration{Reviewed: len(samples)}
	if len(samples) < MinCalibrationSamples {
		return c
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].confidence > samples[j].confidence
	})

	var accepted int
	for i, s := range samples {
		if s.accepted {
			accepted++
		}
		// Only cut between distinct confidences.
		if i+1 < len(samples) && samples[i+1].confidence == s.confidence {
			continue
		}
		precision := float64(accepted) / float64(i+1)
		if precision >= TargetPrecision {
			threshold := s.confidence
			coverage := float64(i+1) / float64(len(samples))
			c.Suggested = &threshold
			c.Precision = &precision
			c.Coverage = &coverage
		}
	}
	return c
}
