// Package hdr merges a bracketed exposure series into one frame.
package hdr

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"time"

	"github.com/cjeanneret/SurveyCam/internal/debug"
	"github.com/cjeanneret/SurveyCam/internal/hw/camera"
)

// Luminance thresholds of the blend (0..255).
const (
	ShadowThreshold    = 60
	HighlightThreshold = 195
)

// Options configures an HDR capture.
type Options struct {
	Under  float64 // EV of the under-exposed frame
	Normal float64
	Over   float64

	// Exposure settle delays. Empirical values from handset cameras.
	FirstSettle time.Duration
	Settle      time.Duration

	Boost float64 // tone-map brightness boost
}

// DefaultOptions returns the ±1.5 EV bracket with 400/250ms settle delays.
func DefaultOptions() Options {
	return Options{
		Under:       -1.5,
		Normal:      0,
		Over:        1.5,
		FirstSettle: 400 * time.Millisecond,
		Settle:      250 * time.Millisecond,
		Boost:       1.1,
	}
}

// Luminance returns the Rec. 601 luma of a pixel.
func Luminance(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

// Blend merges three exposures by the luminance of the normal frame.
// Shadows (L < 60) lean toward the over-exposed sample, highlights (L > 195)
// toward the under-exposed one; mid-tones keep the normal sample.
func Blend(under, normal, over *image.RGBA) (*image.RGBA, error) {
	b := normal.Bounds()
	if under.Bounds().Size() != b.Size() || over.Bounds().Size() != b.Size() {
		return nil, fmt.Errorf("hdr: frame sizes differ (%v, %v, %v)",
			under.Bounds().Size(), b.Size(), over.Bounds().Size())
	}

	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := normal.PixOffset(b.Min.X+x, b.Min.Y+y)
			u := under.PixOffset(under.Rect.Min.X+x, under.Rect.Min.Y+y)
			o := over.PixOffset(over.Rect.Min.X+x, over.Rect.Min.Y+y)
			d := out.PixOffset(x, y)

			np := normal.Pix[n : n+4 : n+4]
			l := Luminance(float64(np[0]), float64(np[1]), float64(np[2]))

			switch {
			case l < ShadowThreshold:
				wt := l / ShadowThreshold
				for c := 0; c < 3; c++ {
					out.Pix[d+c] = lerp(over.Pix[o+c], np[c], wt)
				}
			case l > HighlightThreshold:
				wt := (l - HighlightThreshold) / ShadowThreshold
				for c := 0; c < 3; c++ {
					out.Pix[d+c] = lerp(np[c], under.Pix[u+c], wt)
				}
			default:
				copy(out.Pix[d:d+3], np[:3])
			}
			out.Pix[d+3] = np[3]
		}
	}
	return out, nil
}

// ToneMap compresses luminance in place with the Reinhard operator
// L' = L/(1+L/255), rescaling RGB by L'/L and then by boost.
func ToneMap(img *image.RGBA, boost float64) {
	if boost <= 0 {
		boost = 1
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			r, g, bl := float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
			l := Luminance(r, g, bl)
			if l == 0 {
				continue
			}
			scale := (l / (1 + l/255)) / l * boost
			img.Pix[i] = clampByte(r * scale)
			img.Pix[i+1] = clampByte(g * scale)
			img.Pix[i+2] = clampByte(bl * scale)
		}
	}
}

// Merge blends the series and tone-maps the result.
func Merge(under, normal, over *image.RGBA, boost float64) (*image.RGBA, error) {
	out, err := Blend(under, normal, over)
	if err != nil {
		return nil, err
	}
	ToneMap(out, boost)
	return out, nil
}

// Capture grabs an exposure series from src and merges it. The source's
// exposure compensation is restored on every path; a failed restore is
// logged and does not discard the merge. Without an exposure capability it
// returns camera.ErrUnsupported and grabs nothing.
func Capture(ctx context.Context, src camera.FrameSource, opts Options) (*image.RGBA, error) {
	caps := src.Capabilities()
	if caps.ExposureCompensation == nil {
		return nil, fmt.Errorf("hdr: exposure compensation: %w", camera.ErrUnsupported)
	}

	original := src.Settings().ExposureCompensation
	defer func() {
		restore := original
		if rerr := src.Apply(context.WithoutCancel(ctx), camera.Constraints{ExposureCompensation: &restore}); rerr != nil {
			debug.Warn("HDR: restoring exposure %.2f failed: %v", original, rerr)
		}
	}()

	debug.Section("HDR capture")
	evs := []float64{opts.Under, opts.Normal, opts.Over}
	frames := make([]*image.RGBA, len(evs))
	for i, ev := range evs {
		v := caps.ExposureCompensation.Clamp(ev)
		if err := src.Apply(ctx, camera.Constraints{ExposureCompensation: &v}); err != nil {
			return nil, fmt.Errorf("hdr: set exposure %.2f: %w", v, err)
		}

		settle := opts.Settle
		if i == 0 {
			settle = opts.FirstSettle
		}
		if err := sleep(ctx, settle); err != nil {
			return nil, err
		}

		img, err := src.Frame(ctx)
		if err != nil {
			return nil, fmt.Errorf("hdr: frame at %.2f EV: %w", v, err)
		}
		frames[i] = toRGBA(img)
		debug.Step(i+1, fmt.Sprintf("frame at %.2f EV", v))
	}

	return Merge(frames[0], frames[1], frames[2], opts.Boost)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

func lerp(a, b uint8, t float64) uint8 {
	return clampByte(float64(a) + (float64(b)-float64(a))*t)
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
