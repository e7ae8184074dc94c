package preprocess

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// PaddingInfo records how a source keyframe was mapped onto the normalized
// canvas, so generated frames can be mapped back.
type PaddingInfo struct {
	OriginalWidth  int     `json:"original_width"`
	OriginalHeight int     `json:"original_height"`
	ScaledWidth    int     `json:"scaled_width"`
	ScaledHeight   int     `json:"scaled_height"`
	XOffset        int     `json:"x_offset"`
	YOffset        int     `json:"y_offset"`
	CanvasWidth    int     `json:"canvas_width"`
	CanvasHeight   int     `json:"canvas_height"`
	Scale          float64 `json:"scale"`
}

// Geometry computes the placement of a w×h source: the long side is scaled
// to target and, when square is set, the result is centered on a
// target×target canvas.
func Geometry(w, h, target int, square bool) PaddingInfo {
	scale := float64(target) / float64(max(w, h))
	sw := max(1, int(math.Round(float64(w)*scale)))
	sh := max(1, int(math.Round(float64(h)*scale)))

	g := PaddingInfo{
		OriginalWidth:  w,
		OriginalHeight: h,
		ScaledWidth:    sw,
		ScaledHeight:   sh,
		CanvasWidth:    sw,
		CanvasHeight:   sh,
		Scale:          scale,
	}
	if square {
		g.CanvasWidth, g.CanvasHeight = target, target
		g.XOffset = (target - sw) / 2
		g.YOffset = (target - sh) / 2
	}
	return g
}

// Restore crops the padding from a generated frame and resizes it to the
// original keyframe size. Frames returned at a different resolution than the
// canvas are cropped proportionally.
func (g PaddingInfo) Restore(img image.Image) *image.NRGBA {
	b := img.Bounds()
	fx := float64(b.Dx()) / float64(g.CanvasWidth)
	fy := float64(b.Dy()) / float64(g.CanvasHeight)

	crop := image.Rect(
		b.Min.X+int(math.Round(float64(g.XOffset)*fx)),
		b.Min.Y+int(math.Round(float64(g.YOffset)*fy)),
		b.Min.X+int(math.Round(float64(g.XOffset+g.ScaledWidth)*fx)),
		b.Min.Y+int(math.Round(float64(g.YOffset+g.ScaledHeight)*fy)),
	).Intersect(b)

	dst := image.NewNRGBA(image.Rect(0, 0, g.OriginalWidth, g.OriginalHeight))
	if crop.Empty() {
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, crop, draw.Src, nil)
	return dst
}

// Cleanup returns a copy of img with isolated pixels removed and alpha
// binarized. An opaque pixel (alpha >= 128) with fewer than two opaque
// neighbours is cleared.
func Cleanup(img *image.NRGBA) *image.NRGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))

	opaque := func(x, y int) bool {
		return img.Pix[img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)+3] >= 128
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !opaque(x, y) {
				continue
			}
			neighbours := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := x+dx, y+dy
					if nx >= 0 && nx < w && ny >= 0 && ny < h && opaque(nx, ny) {
						neighbours++
					}
				}
			}
			if neighbours < 2 {
				continue
			}
			si := img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)
			di := out.PixOffset(x, y)
			copy(out.Pix[di:di+3], img.Pix[si:si+3])
			out.Pix[di+3] = 255
		}
	}
	return out
}
