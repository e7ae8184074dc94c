package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/gp-inbetween/internal/apperr"
)

var testOpts = Options{
	TargetResolution: 256,
	PadSquare:        true,
	Cleanup:          true,
	AspectTolerance:  0.02,
}

// sketch returns a w×h transparent image with an opaque stroke block.
func sketch(w, h int, offset int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := h / 4; y < h/2; y++ {
		for x := w/4 + offset; x < w/2+offset && x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 20, G: 20, B: 20, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func source(t *testing.T, name string, img image.Image) Source {
	return Source{Name: name, Data: encodePNG(t, img)}
}

func TestPrepare_Deterministic(t *testing.T) {
	p := New(testOpts, nil)
	a := source(t, "a.png", sketch(300, 200, 0))
	b := source(t, "b.png", sketch(300, 200, 40))

	first, err := p.Prepare(a, b)
	require.NoError(t, err)
	second, err := p.Prepare(a, b)
	require.NoError(t, err)

	assert.Equal(t, first.A.PNG, second.A.PNG)
	assert.Equal(t, first.B.PNG, second.B.PNG)
	assert.Equal(t, first.Padding, second.Padding)
}

func TestPrepare_IdenticalDimensions(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		wantWidth  int
		wantHeight int
	}{
		{"padded square", testOpts, 256, 256},
		{"unpadded", Options{TargetResolution: 256, AspectTolerance: 0.02}, 256, 171},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.opts, nil)
			// B differs slightly in size but is within tolerance.
			pair, err := p.Prepare(
				source(t, "a.png", sketch(300, 200, 0)),
				source(t, "b.png", sketch(303, 201, 0)),
			)
			require.NoError(t, err)

			assert.Equal(t, tt.wantWidth, pair.Width())
			assert.Equal(t, tt.wantHeight, pair.Height())
			assert.Equal(t, pair.A.Image.Rect, pair.B.Image.Rect)
			assert.Equal(t, ColorFormat, pair.ColorFormat())
		})
	}
}

func TestPrepare_AspectMismatch(t *testing.T) {
	p := New(testOpts, nil)

	pair, err := p.Prepare(
		source(t, "a.png", sketch(512, 512, 0)),
		source(t, "b.png", sketch(512, 384, 0)),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrAspectMismatch)
	assert.Nil(t, pair)
}

func TestPrepare_InvalidImage(t *testing.T) {
	p := New(testOpts, nil)
	good := source(t, "a.png", sketch(64, 64, 0))

	t.Run("undecodable", func(t *testing.T) {
		_, err := p.Prepare(good, Source{Name: "b.png", Data: []byte("not an image")})
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrInvalidImage)
		assert.Contains(t, err.Error(), "b.png")
	})

	t.Run("zero area", func(t *testing.T) {
		_, _, _, err := p.normalize(sketch(64, 64, 0), image.NewNRGBA(image.Rect(0, 0, 0, 64)))
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrInvalidImage)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := p.LoadFiles(filepath.Join(t.TempDir(), "a.png"), filepath.Join(t.TempDir(), "b.png"))
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrInvalidImage)
	})
}

func TestPrepare_MixedFormats(t *testing.T) {
	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, sketch(128, 128, 10), nil))

	p := New(testOpts, nil)
	pair, err := p.Prepare(
		source(t, "a.png", sketch(128, 128, 0)),
		Source{Name: "b.jpg", Data: jpg.Bytes()},
	)
	require.NoError(t, err)

	assert.Equal(t, "png", pair.A.Format)
	assert.Equal(t, "jpeg", pair.B.Format)
	assert.Equal(t, pair.A.Image.Rect, pair.B.Image.Rect)
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.png")
	pathB := filepath.Join(dir, "b.png")
	require.NoError(t, os.WriteFile(pathA, encodePNG(t, sketch(100, 100, 0)), 0o644))
	require.NoError(t, os.WriteFile(pathB, encodePNG(t, sketch(100, 100, 20)), 0o644))

	pair, err := New(testOpts, nil).LoadFiles(pathA, pathB)
	require.NoError(t, err)

	assert.Equal(t, pathA, pair.A.Source)
	assert.Equal(t, pathB, pair.B.Source)
	assert.Equal(t, 100, pair.Padding.OriginalWidth)
}

func TestGeometry(t *testing.T) {
	g := Geometry(800, 400, 512, true)

	assert.Equal(t, 512, g.ScaledWidth)
	assert.Equal(t, 256, g.ScaledHeight)
	assert.Equal(t, 0, g.XOffset)
	assert.Equal(t, 128, g.YOffset)
	assert.Equal(t, 512, g.CanvasWidth)
	assert.Equal(t, 512, g.CanvasHeight)

	g = Geometry(800, 400, 512, false)
	assert.Equal(t, 0, g.YOffset)
	assert.Equal(t, 256, g.CanvasHeight)
}

func TestRestore(t *testing.T) {
	g := Geometry(800, 400, 512, true)

	t.Run("canvas size", func(t *testing.T) {
		restored := g.Restore(image.NewNRGBA(image.Rect(0, 0, 512, 512)))
		assert.Equal(t, 800, restored.Rect.Dx())
		assert.Equal(t, 400, restored.Rect.Dy())
	})

	t.Run("different output resolution", func(t *testing.T) {
		restored := g.Restore(image.NewNRGBA(image.Rect(0, 0, 320, 320)))
		assert.Equal(t, 800, restored.Rect.Dx())
		assert.Equal(t, 400, restored.Rect.Dy())
	})

	t.Run("padding is cropped", func(t *testing.T) {
		// Opaque content only inside the scaled region.
		canvas := image.NewNRGBA(image.Rect(0, 0, 512, 512))
		for y := g.YOffset; y < g.YOffset+g.ScaledHeight; y++ {
			for x := 0; x < 512; x++ {
				canvas.SetNRGBA(x, y, color.NRGBA{A: 255})
			}
		}

		restored := g.Restore(canvas)
		assert.Greater(t, restored.NRGBAAt(400, 0).A, uint8(250))
		assert.Greater(t, restored.NRGBAAt(400, 399).A, uint8(250))
	})
}

func TestCleanup(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	// Isolated speck.
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, A: 255})
	// Solid 3x3 block with partial alpha.
	for y := 5; y < 8; y++ {
		for x := 5; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{G: 200, A: 200})
		}
	}
	// Faint pixel below the alpha cutoff.
	img.SetNRGBA(9, 0, color.NRGBA{B: 255, A: 100})

	out := Cleanup(img)

	assert.Equal(t, color.NRGBA{}, out.NRGBAAt(1, 1))
	assert.Equal(t, color.NRGBA{G: 200, A: 255}, out.NRGBAAt(6, 6))
	assert.Equal(t, color.NRGBA{G: 200, A: 255}, out.NRGBAAt(5, 5))
	assert.Equal(t, color.NRGBA{}, out.NRGBAAt(9, 0))
	// Input is untouched.
	assert.Equal(t, uint8(255), img.NRGBAAt(1, 1).A)
}

func TestDecode(t *testing.T) {
	img, format, err := Decode(encodePNG(t, sketch(8, 8, 0)))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, _, err = Decode(nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidImage)
}
