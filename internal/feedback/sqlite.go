package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS feedback (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT    NOT NULL,
	ordinal        INTEGER NOT NULL,
	confidence     REAL,
	disposition    TEXT    NOT NULL,
	auto_accepted  BOOLEAN NOT NULL DEFAULT 0,
	character_name TEXT    NOT NULL DEFAULT '',
	motion_type    TEXT    NOT NULL DEFAULT '',
	issues         TEXT    NOT NULL DEFAULT '[]',
	recorded_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_run ON feedback(run_id, ordinal);
`

// SQLiteStore keeps feedback in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, storeErr("create directory", err)
	}

	// WAL with a busy timeout lets several processes share the file;
	// immediate transactions take the write lock up front.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, storeErr("open database", err)
	}

	// Single writer for SQLite to avoid SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, storeErr("initialize schema", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Append inserts all records in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	prepared, err := prepare(records)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO feedback
		(run_id, ordinal, confidence, disposition, auto_accepted, character_name, motion_type, issues, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return storeErr("prepare insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range prepared {
		issues, err := json.Marshal(nonNil(r.Issues))
		if err != nil {
			return storeErr("encode issues", err)
		}
		if _, err := stmt.ExecContext(ctx,
			r.RunID, r.Ordinal, nullFloat(r.Confidence), string(r.Disposition), r.AutoAccepted,
			r.Character, r.MotionType, string(issues), r.Timestamp.UnixNano(),
		); err != nil {
			return storeErr("insert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	s.logger.Debug("feedback appended", slog.Int("records", len(prepared)))
	return nil
}

// Records returns every row in insertion order.
func (s *SQLiteStore) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, ordinal, confidence, disposition, auto_accepted, character_name, motion_type, issues, recorded_at
		FROM feedback ORDER BY id
	`)
	if err != nil {
		return nil, storeErr("query", err)
	}
	defer func() { _ = rows.Close() }()

	records := []Record{}
	for rows.Next() {
		var (
			r          Record
			confidence sql.NullFloat64
			issues     string
			recordedAt int64
		)
		if err := rows.Scan(&r.RunID, &r.Ordinal, &confidence, &r.Disposition, &r.AutoAccepted,
			&r.Character, &r.MotionType, &issues, &recordedAt); err != nil {
			return nil, storeErr("scan", err)
		}
		if confidence.Valid {
			r.Confidence = Confidence(confidence.Float64)
		}
		if err := json.Unmarshal([]byte(issues), &r.Issues); err != nil {
			return nil, storeErr("decode issues", err)
		}
		if len(r.Issues) == 0 {
			r.Issues = nil
		}
		r.Timestamp = time.Unix(0, recordedAt).UTC()
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

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
