package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// stagingPrefix marks directories that are not yet committed.
const stagingPrefix = ".staging-"

var (
	// ErrAlreadyCommitted is returned when a staged set is used after
	// Commit or Rollback.
	ErrAlreadyCommitted = errors.New("storage: staging already finished")

	// ErrDestinationExists is returned when the run directory is taken.
	ErrDestinationExists = errors.New("storage: destination already exists")

	// ErrInvalidName is returned for file names that would leave the
	// staging directory.
	ErrInvalidName = errors.New("storage: invalid file name")
)

// LocalStorage owns an output root. Each run gets root/<run id>.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates the root directory if needed.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "gp-inbetween")
	}

	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	return &LocalStorage{root: root}, nil
}

// Root returns the output root.
func (s *LocalStorage) Root() string {
	return s.root
}

// Stage opens a staging directory for runID.
func (s *LocalStorage) Stage(ctx context.Context, runID string) (*Staging, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if err := checkName(runID); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(s.root, stagingPrefix+runID+"-*")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	return &Staging{dir: dir, dest: filepath.Join(s.root, runID)}, nil
}

// CleanupStale removes staging directories left by interrupted runs and
// returns how many were removed. It keeps going past individual failures
// and returns the first one.
func (s *LocalStorage) CleanupStale(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("read output directory: %w", err)
	}

	var (
		removed  int
		firstErr error
	)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, fmt.Errorf("context cancelled: %w", err)
		}
		if !e.IsDir() || !strings.HasPrefix(e.Name(), stagingPrefix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove %s: %w", e.Name(), err)
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

// Staging collects files for one run until Commit or Rollback.
type Staging struct {
	dir   string
	dest  string
	names []string
	done  bool
}

// Dir returns the staging directory.
func (st *Staging) Dir() string { return st.dir }

// Dest returns the directory the set is committed to.
func (st *Staging) Dest() string { return st.dest }

// WriteFile writes one file into the staging directory.
func (st *Staging) WriteFile(name string, data []byte) error {
	if st.done {
		return ErrAlreadyCommitted
	}
	if err := checkName(name); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(st.dir, name), data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	st.names = append(st.names, name)
	return nil
}

// Files returns the staged file names in sorted order.
func (st *Staging) Files() []string {
	names := append([]string(nil), st.names...)
	sort.Strings(names)
	return names
}

// Commit renames the staging directory to its destination. The
// destination must not exist.
func (st *Staging) Commit(ctx context.Context) (string, error) {
	if st.done {
		return "", ErrAlreadyCommitted
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	if _, err := os.Stat(st.dest); err == nil {
		return "", fmt.Errorf("%w: %s", ErrDestinationExists, st.dest)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat destination: %w", err)
	}

	if err := os.Rename(st.dir, st.dest); err != nil {
		return "", fmt.Errorf("commit output: %w", err)
	}
	st.done = true
	return st.dest, nil
}

// Rollback removes the staging directory. It is a no-op after Commit.
func (st *Staging) Rollback() error {
	if st.done {
		return nil
	}
	st.done = true
	if err := os.RemoveAll(st.dir); err != nil {
		return fmt.Errorf("remove staging directory: %w", err)
	}
	return nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
