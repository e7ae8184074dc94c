package feedback

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// maxLineBytes bounds a single JSONL record.
const maxLineBytes = 1 << 20

// JSONLStore keeps one JSON object per line in a local file.
type JSONLStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

var _ Store = (*JSONLStore)(nil)

// NewJSONLStore creates a store backed by the file at path. The file and
// its directory are created on first append.
func NewJSONLStore(path string, logger *slog.Logger) *JSONLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONLStore{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *JSONLStore) Path() string { return s.path }

// Append encodes all records and writes them with a single O_APPEND write.
func (s *JSONLStore) Append(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return storeErr("append", err)
	}

	prepared, err := prepare(records)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range prepared {
		if err := enc.Encode(r); err != nil {
			return storeErr("encode record", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return storeErr("create directory", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return storeErr("open", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return storeErr("write", err)
	}
	if err := f.Close(); err != nil {
		return storeErr("close", err)
	}

	s.logger.Debug("feedback appended", slog.String("path", s.path), slog.Int("records", len(prepared)))
	return nil
}

// Records reads the whole file. A missing file is an empty store; a line
// that does not decode is reported, never skipped.
func (s *JSONLStore) Records(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr("read", err)
	}

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, storeErr("open", err)
	}
	defer func() { _ = f.Close() }()

	records := []Record{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, storeErr(fmt.Sprintf("%s line %d", s.path, line), err)
		}
		if err := r.Validate(); err != nil {
			return nil, storeErr(fmt.Sprintf("%s line %d", s.path, line), err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, storeErr("read", err)
	}
	return records, nil
}

// Close implements Store.
func (s *JSONLStore) Close() error { return nil }
