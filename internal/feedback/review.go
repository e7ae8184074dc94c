package feedback

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrFrameNotFound is returned when a review names a frame that has no
// record yet.
var ErrFrameNotFound = errors.New("feedback: frame not found")

// Review is a reviewer's decision on frames of one run.
type Review struct {
	RunID string
	// Ordinals selects frames; empty means every frame of the run.
	Ordinals    []int
	Disposition Disposition
	Issues      []string
}

// ApplyReview appends one record per reviewed frame, carrying over the
// confidence, character and motion type of the frame's latest record.
func ApplyReview(ctx context.Context, s Store, rv Review) ([]Record, error) {
	if rv.Disposition != Accepted && rv.Disposition != Rejected {
		return nil, fmt.Errorf("feedback: review disposition must be accepted or rejected, got %q", rv.Disposition)
	}

	history, err := s.Records(ctx)
	if err != nil {
		return nil, err
	}

	current := map[int]Record{}
	for _, r := range history {
		if r.RunID == rv.RunID {
			current[r.Ordinal] = r
		}
	}
	if len(current) == 0 {
		return nil, fmt.Errorf("%w: run %q", ErrFrameNotFound, rv.RunID)
	}

	ordinals := rv.Ordinals
	if len(ordinals) == 0 {
		for o := range current {
			ordinals = append(ordinals, o)
		}
		sort.Ints(ordinals)
	}

	records := make([]Record, 0, len(ordinals))
	for _, o := range ordinals {
		prev, ok := current[o]
		if !ok {
			return nil, fmt.Errorf("%w: run %q frame %d", ErrFrameNotFound, rv.RunID, o)
		}
		records = append(records, Record{
			RunID:       rv.RunID,
			Ordinal:     o,
			Confidence:  prev.Confidence,
			Disposition: rv.Disposition,
			Character:   prev.Character,
			MotionType:  prev.MotionType,
			Issues:      rv.Issues,
		})
	}

	if err := s.Append(ctx, records...); err != nil {
		return nil, err
	}
	return records, nil
}
