package feedback

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS inbetween_feedback (
	id             BIGSERIAL PRIMARY KEY,
	run_id         TEXT        NOT NULL,
	ordinal        INTEGER     NOT NULL,
	confidence     DOUBLE PRECISION,
	disposition    TEXT        NOT NULL,
	auto_accepted  BOOLEAN     NOT NULL DEFAULT FALSE,
	character_name TEXT        NOT NULL DEFAULT '',
	motion_type    TEXT        NOT NULL DEFAULT '',
	issues         TEXT[]      NOT NULL DEFAULT '{}',
	recorded_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_inbetween_feedback_run ON inbetween_feedback(run_id, ordinal);
`

// PostgresStore keeps feedback in a shared PostgreSQL database.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, storeErr("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storeErr("ping", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, storeErr("initialize schema", err)
	}

	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Append inserts all records in one transaction.
func (s *PostgresStore) Append(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	prepared, err := prepare(records)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, r := range prepared {
		batch.Queue(`
			INSERT INTO inbetween_feedback
			(run_id, ordinal, confidence, disposition, auto_accepted, character_name, motion_type, issues, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			r.RunID, r.Ordinal, r.Confidence, string(r.Disposition), r.AutoAccepted,
			r.Character, r.MotionType, nonNil(r.Issues), r.Timestamp,
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storeErr("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return storeErr("insert", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit", err)
	}

	s.logger.Debug("feedback appended", slog.Int("records", len(prepared)))
	return nil
}

// Records returns every row in insertion order.
func (s *PostgresStore) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, ordinal, confidence, disposition, auto_accepted, character_name, motion_type, issues, recorded_at
		FROM inbetween_feedback ORDER BY id`)
	if err != nil {
		return nil, storeErr("query", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			r           Record
			disposition string
		)
		if err := rows.Scan(&r.RunID, &r.Ordinal, &r.Confidence, &disposition, &r.AutoAccepted,
			&r.Character, &r.MotionType, &r.Issues, &r.Timestamp); err != nil {
			return nil, storeErr("scan", err)
		}
		r.Disposition = Disposition(disposition)
		if len(r.Issues) == 0 {
			r.Issues = nil
		}
		r.Timestamp = r.Timestamp.UTC()
		if err := r.Validate(); err != nil {
			return nil, storeErr("row", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate", err)
	}
	return records, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
