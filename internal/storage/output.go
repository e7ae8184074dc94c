package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
)

// MetadataFile is the name of the run description written with the frames.
const MetadataFile = "metadata.json"

// FrameName returns the file name of the frame at ordinal.
func FrameName(ordinal int) string {
	return fmt.Sprintf("inbetween_%04d.png", ordinal)
}

// Frame is one encoded output frame.
type Frame struct {
	Ordinal int
	PNG     []byte
}

// OutputSet is everything a run writes.
type OutputSet struct {
	RunID    string
	Frames   []Frame
	Metadata any
}

// Published describes a committed output set.
type Published struct {
	Dir string
	// Paths maps frame ordinals to their committed file paths.
	Paths map[int]string
	// URLs holds object URLs by file name when S3 publishing is enabled
	// and succeeded.
	URLs map[string]string
}

// Writer commits output sets locally and, when an Uploader is set,
// publishes the committed files.
type Writer struct {
	local    *LocalStorage
	uploader Uploader
	prefix   string
	logger   *slog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithUploader publishes committed sets under prefix/<run id>/.
func WithUploader(u Uploader, prefix string) WriterOption {
	return func(w *Writer) {
		w.uploader = u
		w.prefix = prefix
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWriter creates a Writer over local.
func NewWriter(local *LocalStorage, opts ...WriterOption) *Writer {
	w := &Writer{local: local, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write stages every frame and the metadata, then commits them together.
// On any error nothing is left in the output root. Upload failures after
// the commit are logged and leave URLs empty.
func (w *Writer) Write(ctx context.Context, set OutputSet) (_ *Published, err error) {
	st, err := w.local.Stage(ctx, set.RunID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rbErr := st.Rollback(); rbErr != nil {
				w.logger.Warn("rollback failed", slog.String("dir", st.Dir()), slog.String("error", rbErr.Error()))
			}
		}
	}()

	for _, f := range set.Frames {
		if err := st.WriteFile(FrameName(f.Ordinal), f.PNG); err != nil {
			return nil, err
		}
	}

	meta, err := json.MarshalIndent(set.Metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	if err := st.WriteFile(MetadataFile, meta); err != nil {
		return nil, err
	}

	dir, err := st.Commit(ctx)
	if err != nil {
		return nil, err
	}

	pub := &Published{Dir: dir, Paths: make(map[int]string, len(set.Frames))}
	for _, f := range set.Frames {
		pub.Paths[f.Ordinal] = filepath.Join(dir, FrameName(f.Ordinal))
	}
	w.logger.Info("output committed", slog.String("dir", dir), slog.Int("frames", len(set.Frames)))

	if w.uploader != nil {
		urls, upErr := w.upload(ctx, set, meta)
		if upErr != nil {
			w.logger.Warn("publishing to S3 failed", slog.String("run_id", set.RunID), slog.String("error", upErr.Error()))
		} else {
			pub.URLs = urls
		}
	}
	return pub, nil
}

func (w *Writer) upload(ctx context.Context, set OutputSet, meta []byte) (map[string]string, error) {
	urls := make(map[string]string, len(set.Frames)+1)
	put := func(name string, data []byte, contentType string) error {
		url, err := w.uploader.Upload(ctx, path.Join(w.prefix, set.RunID, name), bytes.NewReader(data), contentType)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		urls[name] = url
		return nil
	}

	for _, f := range set.Frames {
		if err := put(FrameName(f.Ordinal), f.PNG, "image/png"); err != nil {
			return nil, err
		}
	}
	if err := put(MetadataFile, meta, "application/json"); err != nil {
		return nil, err
	}
	return urls, nil
}
