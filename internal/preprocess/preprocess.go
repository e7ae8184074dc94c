// Package preprocess normalizes a pair of keyframes into the canonical form
// submitted for inbetween generation: identical dimensions, 8-bit NRGBA,
// optionally padded to a transparent square canvas and cleaned of noise.
package preprocess

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"

	"golang.org/x/image/draw"

	"github.com/maauso/gp-inbetween/internal/apperr"
	"github.com/maauso/gp-inbetween/internal/config"
)

// ColorFormat is the channel layout of every normalized frame.
const ColorFormat = "nrgba8"

// Options controls normalization.
type Options struct {
	// TargetResolution is the length of the long side after resizing.
	TargetResolution int
	// PadSquare centers the resized frame on a transparent square canvas.
	PadSquare bool
	// Cleanup removes isolated pixels and binarizes alpha.
	Cleanup bool
	// AspectTolerance is the maximum relative difference between the two
	// aspect ratios.
	AspectTolerance float64
}

// OptionsFrom builds Options from the preprocess section of a RunConfig.
func OptionsFrom(c config.PreprocessConfig) Options {
	return Options{
		TargetResolution: c.TargetResolution,
		PadSquare:        c.PadSquare,
		Cleanup:          c.Cleanup,
		AspectTolerance:  c.AspectTolerance,
	}
}

// Source is one undecoded input image.
type Source struct {
	// Name identifies the source, usually a file path.
	Name string
	Data []byte
}

// Frame is one normalized keyframe.
type Frame struct {
	Source string
	// Format is the decoded input format (png, jpeg, ...).
	Format string
	Image  *image.NRGBA
	// PNG is the deterministic PNG encoding of Image.
	PNG []byte
}

// FramePair holds two normalized keyframes sharing dimensions and color format.
type FramePair struct {
	A       Frame
	B       Frame
	Padding PaddingInfo
}

// Width returns the normalized frame width.
func (p *FramePair) Width() int { return p.A.Image.Rect.Dx() }

// Height returns the normalized frame height.
func (p *FramePair) Height() int { return p.A.Image.Rect.Dy() }

// ColorFormat returns the channel layout shared by both frames.
func (p *FramePair) ColorFormat() string { return ColorFormat }

// Preprocessor normalizes keyframe pairs. It holds no mutable state and is
// safe for concurrent use.
type Preprocessor struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Preprocessor.
func New(opts Options, logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{opts: opts, logger: logger}
}

// LoadFiles reads and normalizes the keyframes at pathA and pathB.
func (p *Preprocessor) LoadFiles(pathA, pathB string) (*FramePair, error) {
	a, err := os.ReadFile(pathA)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", apperr.ErrInvalidImage, pathA, err)
	}
	b, err := os.ReadFile(pathB)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", apperr.ErrInvalidImage, pathB, err)
	}
	return p.Prepare(Source{Name: pathA, Data: a}, Source{Name: pathB, Data: b})
}

// Prepare decodes, validates and normalizes two keyframes.
func (p *Preprocessor) Prepare(a, b Source) (*FramePair, error) {
	imgA, fmtA, err := Decode(a.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", a.Name, err)
	}
	imgB, fmtB, err := Decode(b.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", b.Name, err)
	}

	normA, normB, padding, err := p.normalize(imgA, imgB)
	if err != nil {
		return nil, err
	}

	pngA, err := EncodePNG(normA)
	if err != nil {
		return nil, err
	}
	pngB, err := EncodePNG(normB)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("keyframes normalized",
		slog.String("a", a.Name),
		slog.String("b", b.Name),
		slog.Int("width", normA.Rect.Dx()),
		slog.Int("height", normA.Rect.Dy()),
		slog.Bool("padded", p.opts.PadSquare),
	)

	return &FramePair{
		A:       Frame{Source: a.Name, Format: fmtA, Image: normA, PNG: pngA},
		B:       Frame{Source: b.Name, Format: fmtB, Image: normB, PNG: pngB},
		Padding: padding,
	}, nil
}

// normalize applies the aspect check, resize, padding and cleanup to both
// images using geometry derived from a.
func (p *Preprocessor) normalize(a, b image.Image) (*image.NRGBA, *image.NRGBA, PaddingInfo, error) {
	ba, bb := a.Bounds(), b.Bounds()
	if ba.Empty() || bb.Empty() {
		return nil, nil, PaddingInfo{}, fmt.Errorf("%w: zero-area image", apperr.ErrInvalidImage)
	}

	if err := checkAspect(ba.Dx(), ba.Dy(), bb.Dx(), bb.Dy(), p.opts.AspectTolerance); err != nil {
		return nil, nil, PaddingInfo{}, err
	}

	padding := Geometry(ba.Dx(), ba.Dy(), p.opts.TargetResolution, p.opts.PadSquare)

	out := make([]*image.NRGBA, 2)
	for i, img := range []image.Image{a, b} {
		n := p.place(img, padding)
		if p.opts.Cleanup {
			n = Cleanup(n)
		}
		out[i] = n
	}
	return out[0], out[1], padding, nil
}

// place resizes img to the scaled size and draws it onto the canvas.
func (p *Preprocessor) place(img image.Image, g PaddingInfo) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, g.CanvasWidth, g.CanvasHeight))
	dst := image.Rect(g.XOffset, g.YOffset, g.XOffset+g.ScaledWidth, g.YOffset+g.ScaledHeight)

	src := img.Bounds()
	if src.Dx() == g.ScaledWidth && src.Dy() == g.ScaledHeight {
		draw.Draw(canvas, dst, img, src.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(canvas, dst, img, src, draw.Src, nil)
	}
	return canvas
}

// checkAspect rejects aspect ratios whose relative difference exceeds tol.
func checkAspect(wa, ha, wb, hb int, tol float64) error {
	ra := float64(wa) / float64(ha)
	rb := float64(wb) / float64(hb)
	diff := math.Abs(ra-rb) / math.Max(ra, rb)
	if diff > tol {
		return fmt.Errorf("%w: %dx%d (%.3f) vs %dx%d (%.3f)",
			apperr.ErrAspectMismatch, wa, ha, ra, wb, hb, rb)
	}
	return nil
}
