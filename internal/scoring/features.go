package scoring

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

const (
	thumbSize  = 64
	windowSize = 8

	// SSIM stabilizers for luma in [0, 1].
	ssimC1 = 0.01 * 0.01
	ssimC2 = 0.03 * 0.03

	// inkLuma is the luma below which a pixel counts as drawn content.
	inkLuma = 0.9
)

// features is the comparable summary of one image. All images are reduced
// to the same thumbnail grid, so frames of different sizes compare cleanly.
type features struct {
	luma       []float64 // thumbSize*thumbSize, composited on white
	brightness float64
	saturation float64
	ink        float64 // fraction of pixels with drawn content
}

// extract scales img to the thumbnail grid and composites it on white paper.
func extract(img image.Image) features {
	thumb := image.NewNRGBA(image.Rect(0, 0, thumbSize, thumbSize))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), img, img.Bounds(), draw.Src, nil)

	f := features{luma: make([]float64, thumbSize*thumbSize)}
	var inked int
	for i := range f.luma {
		p := thumb.Pix[i*4 : i*4+4]
		alpha := float64(p[3]) / 255
		r := onWhite(p[0], alpha)
		g := onWhite(p[1], alpha)
		b := onWhite(p[2], alpha)

		l := 0.299*r + 0.587*g + 0.114*b
		f.luma[i] = l
		f.brightness += l

		hi := math.Max(r, math.Max(g, b))
		lo := math.Min(r, math.Min(g, b))
		if hi > 0 {
			f.saturation += (hi - lo) / hi
		}
		if l < inkLuma {
			inked++
		}
	}

	n := float64(len(f.luma))
	f.brightness /= n
	f.saturation /= n
	f.ink = float64(inked) / n
	return f
}

func onWhite(c uint8, alpha float64) float64 {
	return float64(c)/255*alpha + (1 - alpha)
}

// ssim returns the mean structural similarity of two thumbnails over
// non-overlapping windows, clamped to [0, 1].
func ssim(a, b features) float64 {
	var total float64
	var windows int
	for wy := 0; wy < thumbSize; wy += windowSize {
		for wx := 0; wx < thumbSize; wx += windowSize {
			total += windowSSIM(a.luma, b.luma, wx, wy)
			windows++
		}
	}
	return clamp01(total / float64(windows))
}

func windowSSIM(x, y []float64, wx, wy int) float64 {
	const n = windowSize * windowSize

	var mx, my float64
	for j := wy; j < wy+windowSize; j++ {
		for i := wx; i < wx+windowSize; i++ {
			mx += x[j*thumbSize+i]
			my += y[j*thumbSize+i]
		}
	}
	mx /= n
	my /= n

	var vx, vy, cov float64
	for j := wy; j < wy+windowSize; j++ {
		for i := wx; i < wx+windowSize; i++ {
			dx := x[j*thumbSize+i] - mx
			dy := y[j*thumbSize+i] - my
			vx += dx * dx
			vy += dy * dy
			cov += dx * dy
		}
	}
	vx /= n - 1
	vy /= n - 1
	cov /= n - 1

	return ((2*mx*my + ssimC1) * (2*cov + ssimC2)) /
		((mx*mx + my*my + ssimC1) * (vx + vy + ssimC2))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
