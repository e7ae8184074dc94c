// Package media extracts still frames from video outputs using the ffmpeg CLI.
package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// maxFrames caps how many frames are read back from one video.
const maxFrames = 100

// FFmpegExtractor implements inference.FrameExtractor using the ffmpeg CLI.
type FFmpegExtractor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	logger     *slog.Logger
}

// NewFFmpegExtractor creates a new FFmpegExtractor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegExtractor(ffmpegPath string, logger *slog.Logger) *FFmpegExtractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegExtractor{ffmpegPath: ffmpegPath, logger: logger}
}

// ExtractFrames decodes every frame of video to PNG and returns n of them,
// sampled evenly with the first and last frame excluded.
func (e *FFmpegExtractor) ExtractFrames(ctx context.Context, video []byte, n int) ([][]byte, error) {
	dir, err := os.MkdirTemp("", "inbetween-frames-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	videoPath := filepath.Join(dir, "output.mp4")
	if err := os.WriteFile(videoPath, video, 0600); err != nil {
		return nil, fmt.Errorf("write video: %w", err)
	}

	args := []string{
		"-y",
		"-i", videoPath,
		"-vsync", "0", // One image per decoded frame, no duplication
		filepath.Join(dir, "frame_%04d.png"),
	}
	if err := e.runFFmpeg(ctx, args); err != nil {
		return nil, err
	}

	paths, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	sort.Strings(paths)
	if len(paths) > maxFrames {
		paths = paths[:maxFrames]
	}

	selected, err := selectInner(paths, n)
	if err != nil {
		return nil, err
	}

	frames := make([][]byte, 0, len(selected))
	for _, p := range selected {
		data, err := os.ReadFile(p) // #nosec G304 - path comes from our own temp dir
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		frames = append(frames, data)
	}

	e.logger.Debug("frames extracted",
		slog.Int("decoded", len(paths)),
		slog.Int("selected", len(frames)),
	)
	return frames, nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (e *FFmpegExtractor) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
