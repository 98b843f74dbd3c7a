package filter

import (
	"image"
	"math"

	"github.com/cjeanneret/SurveyCam/internal/debug"
)

// DefaultSharpenAmount is the unsharp blend amount.
const DefaultSharpenAmount = 0.15

// Pipeline applies, in order: named filter, exposure multiplier, white
// balance tint, then optional sharpening. Stages 1-3 work in float per
// pixel and the result is rounded once; every channel ends in [0,255].
type Pipeline struct {
	Filter        string
	Exposure      float64 // EV applied in software; 0 when hardware took it
	WhiteBalance  int     // Kelvin, 0 = auto
	Sharpen       bool
	SharpenAmount float64 // <= 0 means DefaultSharpenAmount
}

// IsIdentity reports whether Apply leaves every pixel unchanged.
func (p Pipeline) IsIdentity() bool {
	_, _, _, wb := WhiteBalanceGains(p.WhiteBalance)
	return (p.Filter == Normal || p.Filter == "") && p.Exposure == 0 && !wb && !p.sharpens()
}

func (p Pipeline) sharpens() bool {
	return p.Sharpen && !AddsContrast(p.Filter)
}

// Pixel runs the per-pixel stages on one triple.
func (p Pipeline) Pixel(r, g, b uint8) (uint8, uint8, uint8) {
	k := p.exposureFactor()
	wr, wg, wb, _ := WhiteBalanceGains(p.WhiteBalance)
	return p.pixel(float64(r), float64(g), float64(b), k, wr, wg, wb)
}

func (p Pipeline) exposureFactor() float64 {
	k := ExposureMultiplier(p.Exposure)
	if k < 0 {
		k = 0
	}
	return k
}

func (p Pipeline) pixel(r, g, b, k, wr, wg, wb float64) (uint8, uint8, uint8) {
	r, g, b = Transform(p.Filter, r, g, b)
	r, g, b = clamp255(r*k), clamp255(g*k), clamp255(b*k)
	r, g, b = clamp255(r*wr), clamp255(g*wg), clamp255(b*wb)
	return toByte(r), toByte(g), toByte(b)
}

// Apply runs the pipeline on img in place. Alpha is left untouched.
func (p Pipeline) Apply(img *image.RGBA) {
	if p.IsIdentity() {
		return
	}
	debug.Verbose("Filter: %s exposure=%.2f wb=%dK sharpen=%v", p.Filter, p.Exposure, p.WhiteBalance, p.sharpens())

	k := p.exposureFactor()
	wr, wg, wb, _ := WhiteBalanceGains(p.WhiteBalance)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i+3 < len(row); i += 4 {
			row[i], row[i+1], row[i+2] = p.pixel(float64(row[i]), float64(row[i+1]), float64(row[i+2]), k, wr, wg, wb)
		}
	}

	if p.sharpens() {
		amount := p.SharpenAmount
		if amount <= 0 {
			amount = DefaultSharpenAmount
		}
		Sharpen(img, amount)
	}
}

// Sharpen blends img with its high-pass response
//
//	 0 -1  0
//	-1  5 -1
//	 0 -1  0
//
// by amount (0 = unchanged, 1 = fully sharpened). Edge pixels reuse their
// nearest neighbour.
func Sharpen(img *image.RGBA, amount float64) {
	if amount <= 0 {
		return
	}
	if amount > 1 {
		amount = 1
	}
	b := img.Bounds()
	src := make([]uint8, len(img.Pix))
	copy(src, img.Pix)

	at := func(x, y, c int) float64 {
		x = min(max(x, b.Min.X), b.Max.X-1)
		y = min(max(y, b.Min.Y), b.Max.Y-1)
		return float64(src[img.PixOffset(x, y)+c])
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			off := img.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				orig := float64(src[off+c])
				hp := 5*orig - at(x, y-1, c) - at(x-1, y, c) - at(x+1, y, c) - at(x, y+1, c)
				img.Pix[off+c] = toByte(clamp255(orig*(1-amount) + clamp255(hp)*amount))
			}
		}
	}
}

func toByte(v float64) uint8 {
	return uint8(math.Round(clamp255(v)))
}
