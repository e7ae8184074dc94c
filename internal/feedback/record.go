// Package feedback persists accept and reject decisions for generated
// frames and aggregates them for reporting and threshold calibration.
//
// Stores are append-only. A second record for the same run and ordinal is a
// new append; the most recent one is the current disposition.
package feedback

import (
	"errors"
	"fmt"
	"time"
)

// Disposition is the review outcome of a frame.
type Disposition string

// Dispositions.
const (
	Accepted   Disposition = "accepted"
	Rejected   Disposition = "rejected"
	Unreviewed Disposition = "unreviewed"
)

// ParseDisposition parses a disposition name.
func ParseDisposition(s string) (Disposition, error) {
	switch d := Disposition(s); d {
	case Accepted, Rejected, Unreviewed:
		return d, nil
	default:
		return "", fmt.Errorf("feedback: unknown disposition %q", s)
	}
}

// Record is one durable feedback entry.
type Record struct {
	RunID        string      `json:"run_id"`
	Ordinal      int         `json:"ordinal"`
	Confidence   *float64    `json:"confidence,omitempty"`
	Disposition  Disposition `json:"disposition"`
	AutoAccepted bool        `json:"auto_accepted,omitempty"`
	Character    string      `json:"character,omitempty"`
	MotionType   string      `json:"motion_type,omitempty"`
	Issues       []string    `json:"issues,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// Confidence returns a pointer to v for use in Record literals.
func Confidence(v float64) *float64 { return &v }

var (
	errRunIDRequired  = errors.New("feedback: run id is required")
	errInvalidOrdinal = errors.New("feedback: ordinal must be at least 1")
)

// Validate checks the record before it is written.
func (r Record) Validate() error {
	if r.RunID == "" {
		return errRunIDRequired
	}
	if r.Ordinal < 1 {
		return fmt.Errorf("%w, got %d", errInvalidOrdinal, r.Ordinal)
	}
	if _, err := ParseDisposition(string(r.Disposition)); err != nil {
		return err
	}
	if c := r.Confidence; c != nil && (*c < 0 || *c > 1) {
		return fmt.Errorf("feedback: confidence %.4f outside [0, 1]", *c)
	}
	return nil
}

type key struct {
	run     string
	ordinal int
}

func (r Record) key() key { return key{run: r.RunID, ordinal: r.Ordinal} }

// Latest returns the most recent record for (runID, ordinal) from records
// in append order.
func Latest(records []Record, runID string, ordinal int) (Record, bool) {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].RunID == runID && records[i].Ordinal == ordinal {
			return records[i], true
		}
	}
	return Record{}, false
}
