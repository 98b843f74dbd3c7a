package geometry

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// DefaultUpscale is the output scale applied to the visible crop.
const DefaultUpscale = 1.5

// Rect is a source rectangle in native frame pixels.
type Rect struct {
	X, Y float64
	W, H float64
}

// Aspect returns W/H, 0 for an empty rectangle.
func (r Rect) Aspect() float64 {
	if r.H == 0 {
		return 0
	}
	return r.W / r.H
}

// CropRect computes the region of a w×h frame that a sw×sh viewport shows
// at zoom z, so the saved photo matches the preview.
//
// Cover fit: the longer native dimension is cropped to the viewport aspect.
// Digital zoom: both sides are divided by z and the rectangle re-centred.
// The result is clamped to [0,w]×[0,h].
//
// A missing viewport (0) uses the frame's own aspect; z < 1 is treated as 1.
func CropRect(w, h, sw, sh int, z float64) Rect {
	if w <= 0 || h <= 0 {
		return Rect{}
	}
	if sw <= 0 || sh <= 0 {
		sw, sh = w, h
	}
	if z < 1 || math.IsNaN(z) {
		z = 1
	}

	fw, fh := float64(w), float64(h)
	viewAspect := float64(sw) / float64(sh)

	cropW, cropH := fw, fh
	if fw/fh > viewAspect {
		// Frame wider than viewport: crop the sides.
		cropW = fh * viewAspect
	} else {
		// Frame taller than viewport: crop top and bottom.
		cropH = fw / viewAspect
	}

	cropW /= z
	cropH /= z

	x := clamp((fw-cropW)/2, 0, fw-cropW)
	y := clamp((fh-cropH)/2, 0, fh-cropH)
	return Rect{X: x, Y: y, W: cropW, H: cropH}
}

// OutputSize returns the destination raster size for r at the given
// upscale factor (<= 0 means DefaultUpscale). Never smaller than 1×1.
func OutputSize(r Rect, upscale float64) (int, int) {
	if upscale <= 0 {
		upscale = DefaultUpscale
	}
	w := int(math.Round(r.W * upscale))
	h := int(math.Round(r.H * upscale))
	return max(w, 1), max(h, 1)
}

// Render draws the r region of src into a new raster of OutputSize(r, upscale)
// using bilinear interpolation.
func Render(src image.Image, r Rect, upscale float64) *image.RGBA {
	w, h := OutputSize(r, upscale)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	b := src.Bounds()
	sr := image.Rect(
		int(math.Floor(r.X)), int(math.Floor(r.Y)),
		int(math.Ceil(r.X+r.W)), int(math.Ceil(r.Y+r.H)),
	).Add(b.Min).Intersect(b)
	if sr.Empty() {
		return dst
	}

	draw.BiLinear.Scale(dst, dst.Bounds(), src, sr, draw.Src, nil)
	return dst
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}
