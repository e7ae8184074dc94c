// Package pipeline runs one inbetween generation end to end: preprocess
// the keyframes, generate remotely, score, restore to the source size,
// commit the output set and record initial feedback.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/gp-inbetween/internal/apperr"
	"github.com/maauso/gp-inbetween/internal/feedback"
	"github.com/maauso/gp-inbetween/internal/inference"
	"github.com/maauso/gp-inbetween/internal/job"
	"github.com/maauso/gp-inbetween/internal/job/id"
	"github.com/maauso/gp-inbetween/internal/metrics"
	"github.com/maauso/gp-inbetween/internal/preprocess"
	"github.com/maauso/gp-inbetween/internal/scoring"
	"github.com/maauso/gp-inbetween/internal/storage"
)

// Generator produces inbetween frames for a request. *inference.Client
// implements it.
type Generator interface {
	Generate(ctx context.Context, req inference.Request) ([]inference.Frame, error)
}

var _ Generator = (*inference.Client)(nil)

// Input describes one run.
type Input struct {
	// RunID is generated when empty.
	RunID     string
	A, B      preprocess.Source
	Character string
	// FrameCount overrides the configured count when positive.
	FrameCount int
	// Seed overrides the configured model seed when non-zero.
	Seed int64
	// MotionType skips motion detection when set.
	MotionType scoring.MotionType
}

// Pipeline holds the components of a run. It is safe for concurrent use
// when its components are.
type Pipeline struct {
	pre        *preprocess.Preprocessor
	gen        Generator
	scorer     *scoring.Scorer
	writer     *storage.Writer
	store      feedback.Store
	metrics    *metrics.Metrics
	frameCount int
	params     inference.Params
	backend    string
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFrameCount sets the default number of inbetweens.
func WithFrameCount(n int) Option {
	return func(p *Pipeline) { p.frameCount = n }
}

// WithParams sets the default model parameters.
func WithParams(params inference.Params) Option {
	return func(p *Pipeline) { p.params = params }
}

// WithBackendName records the backend in run metadata.
func WithBackendName(name string) Option {
	return func(p *Pipeline) { p.backend = name }
}

// WithMetrics records run and frame metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Pipeline.
func New(pre *preprocess.Preprocessor, gen Generator, scorer *scoring.Scorer, writer *storage.Writer, store feedback.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		pre:        pre,
		gen:        gen,
		scorer:     scorer,
		writer:     writer,
		store:      store,
		frameCount: 4,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate executes one run. Validation failures return before any remote
// call. Output files are committed all together or not at all.
func (p *Pipeline) Generate(ctx context.Context, in Input) (res *job.Result, err error) {
	start := time.Now()
	runID := in.RunID
	if runID == "" {
		runID = id.Generate()
	}
	log := p.logger.With(slog.String("run_id", runID))

	defer func() {
		outcome := metrics.OutcomeSucceeded
		if err != nil {
			outcome = string(apperr.KindOf(err))
			log.Error("run failed",
				slog.String("kind", outcome),
				slog.String("error", err.Error()),
				slog.Duration("elapsed", time.Since(start)),
			)
		}
		p.metrics.RunFinished(outcome, time.Since(start))
	}()

	n := p.frameCount
	if in.FrameCount > 0 {
		n = in.FrameCount
	}
	params := p.params
	if in.Seed != 0 {
		params.Seed = in.Seed
	}

	pair, err := p.pre.Prepare(in.A, in.B)
	if err != nil {
		return nil, err
	}
	req, err := inference.NewRequest(pair, n, params)
	if err != nil {
		return nil, err
	}

	log.Info("generating inbetweens",
		slog.Int("frames", n),
		slog.Int("width", pair.Width()),
		slog.Int("height", pair.Height()),
		slog.String("character", in.Character),
	)

	frames, err := p.gen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	scored, err := p.scorer.Score(pair.A.Image, pair.B.Image, frames)
	if err != nil {
		return nil, err
	}
	motion := in.MotionType
	if motion == "" {
		motion = scoring.DetectMotion(pair.A.Image, pair.B.Image)
	}

	set := storage.OutputSet{RunID: runID, Frames: make([]storage.Frame, len(scored))}
	meta := Metadata{
		RunID:        runID,
		CreatedAt:    start.UTC(),
		Backend:      p.backend,
		ModelVersion: params.ModelVersion,
		Character:    in.Character,
		MotionType:   string(motion),
		FrameCount:   n,
		Threshold:    p.scorer.Threshold(),
		OriginalSize: Size{Width: pair.Padding.OriginalWidth, Height: pair.Padding.OriginalHeight},
		SourceA:      in.A.Name,
		SourceB:      in.B.Name,
		Padding:      pair.Padding,
		Frames:       make([]FrameMetadata, len(scored)),
	}
	for i, sf := range scored {
		data, err := preprocess.EncodePNG(pair.Padding.Restore(sf.Image))
		if err != nil {
			return nil, fmt.Errorf("encode frame %d: %w", sf.Ordinal, err)
		}
		set.Frames[i] = storage.Frame{Ordinal: sf.Ordinal, PNG: data}
		meta.Frames[i] = FrameMetadata{
			Ordinal:        sf.Ordinal,
			File:           storage.FrameName(sf.Ordinal),
			Confidence:     sf.Confidence,
			Classification: string(sf.Classification),
			Signals:        sf.Signals,
		}
	}
	set.Metadata = meta

	pub, err := p.writer.Write(ctx, set)
	if err != nil {
		return nil, err
	}

	records := make([]feedback.Record, len(scored))
	for i, sf := range scored {
		records[i] = initialRecord(runID, in.Character, motion, sf)
	}
	if err := p.store.Append(ctx, records...); err != nil {
		return nil, fmt.Errorf("record feedback for %s: %w", pub.Dir, err)
	}

	res = &job.Result{
		RunID:      runID,
		OutputDir:  pub.Dir,
		MotionType: string(motion),
		Threshold:  p.scorer.Threshold(),
		Frames:     make([]job.FrameResult, len(scored)),
	}
	var accepted int
	for i, sf := range scored {
		res.Frames[i] = job.FrameResult{
			Ordinal:        sf.Ordinal,
			Confidence:     sf.Confidence,
			Classification: string(sf.Classification),
			Path:           pub.Paths[sf.Ordinal],
		}
		if sf.Classification == scoring.AutoAccepted {
			accepted++
		}
		p.metrics.FrameScored(string(sf.Classification), sf.Confidence)
	}
	for _, f := range set.Frames {
		if url, ok := pub.URLs[storage.FrameName(f.Ordinal)]; ok {
			res.URLs = append(res.URLs, url)
		}
	}

	log.Info("run completed",
		slog.String("output_dir", pub.Dir),
		slog.String("motion_type", string(motion)),
		slog.Int("auto_accepted", accepted),
		slog.Int("needs_review", len(scored)-accepted),
		slog.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// initialRecord is the feedback written when a frame is produced:
// auto-accepted frames are accepted, the rest await review.
func initialRecord(runID, character string, motion scoring.MotionType, sf scoring.ScoredFrame) feedback.Record {
	r := feedback.Record{
		RunID:       runID,
		Ordinal:     sf.Ordinal,
		Confidence:  feedback.Confidence(sf.Confidence),
		Disposition: feedback.Unreviewed,
		Character:   character,
		MotionType:  string(motion),
	}
	if sf.Classification == scoring.AutoAccepted {
		r.Disposition = feedback.Accepted
		r.AutoAccepted = true
	}
	return r
}
