package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// face is the built-in bitmap font; glyphs are scaled to the requested
// pixel size.
var face = basicfont.Face7x13

// textWidth returns the width in pixels of s rendered at size.
func textWidth(s string, size float64) float64 {
	adv := font.MeasureString(face, s)
	return float64(adv.Ceil()) * size / float64(face.Height)
}

// drawText renders s with its baseline at (x, y), glyph height size,
// composited over dst. Drawing is clipped to dst's bounds.
func drawText(dst *image.RGBA, s string, x, y, size float64, c color.Color) {
	if s == "" || size <= 0 {
		return
	}
	w := font.MeasureString(face, s).Ceil()
	h := face.Height
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(s)

	scale := size / float64(h)
	sw := int(math.Round(float64(w) * scale))
	sh := int(math.Round(float64(h) * scale))
	if sw <= 0 || sh <= 0 {
		return
	}
	scaled := image.NewAlpha(image.Rect(0, 0, sw, sh))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), mask, mask.Bounds(), xdraw.Src, nil)

	top := y - float64(face.Ascent)*scale
	r := image.Rect(0, 0, sw, sh).Add(image.Pt(int(math.Round(x)), int(math.Round(top))))
	clip := r.Intersect(dst.Bounds())
	if clip.Empty() {
		return
	}
	mp := clip.Min.Sub(r.Min)
	draw.DrawMask(dst, clip, image.NewUniform(c), image.Point{}, scaled, mp, draw.Over)
}
