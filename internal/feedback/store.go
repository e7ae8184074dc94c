package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/gp-inbetween/internal/apperr"
	"github.com/maauso/gp-inbetween/internal/config"
)

// Store is an append-only feedback log.
type Store interface {
	// Append writes records atomically with respect to other appends.
	// Zero timestamps are set to the current time.
	Append(ctx context.Context, records ...Record) error

	// Records returns the full history in append order.
	Records(ctx context.Context) ([]Record, error)

	// Close releases the store.
	Close() error
}

// Open returns the store selected by cfg.
func Open(ctx context.Context, cfg config.FeedbackConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case config.FeedbackJSONL, "":
		return NewJSONLStore(cfg.Path, logger), nil
	case config.FeedbackSQLite:
		return NewSQLiteStore(ctx, cfg.Path, logger)
	case config.FeedbackPostgres:
		return NewPostgresStore(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("%w: feedback.backend %q is not supported", apperr.ErrConfig, cfg.Backend)
	}
}

// Stats reads the store and aggregates the records matching filter.
func Stats(ctx context.Context, s Store, filter Filter) (Summary, error) {
	records, err := s.Records(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Compute(records, filter), nil
}

// prepare validates records and stamps missing timestamps.
func prepare(records []Record) ([]Record, error) {
	now := time.Now().UTC()
	out := make([]Record, len(records))
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", apperr.ErrFeedbackStore, err)
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = now
		}
		r.Timestamp = r.Timestamp.UTC()
		out[i] = r
	}
	return out, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", apperr.ErrFeedbackStore, op, err)
}
