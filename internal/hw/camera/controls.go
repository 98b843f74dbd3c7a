package camera

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/cjeanneret/SurveyCam/internal/debug"
)

// ApplyZoom drives hardware zoom when the source supports it and returns the
// residual factor that must still be applied digitally (always >= 1).
// Sources without zoom return z unchanged; a failed constraint call falls
// back to a fully digital zoom.
func ApplyZoom(ctx context.Context, src FrameSource, z float64) float64 {
	if z < 1 {
		z = 1
	}
	caps := src.Capabilities()
	if caps.Zoom == nil {
		return z
	}

	hw := caps.Zoom.Clamp(z)
	if err := src.Apply(ctx, Constraints{Zoom: &hw}); err != nil {
		debug.Warn("Camera: hardware zoom %.2f failed, using digital zoom: %v", hw, err)
		return z
	}
	debug.Trace("Camera: hardware zoom %.2f applied", hw)

	residual := z / hw
	if residual < 1 {
		residual = 1
	}
	return residual
}

// ApplyExposure sets hardware exposure compensation, clamped to the
// source's range. It reports whether the hardware took the value.
func ApplyExposure(ctx context.Context, src FrameSource, ev float64) bool {
	caps := src.Capabilities()
	if caps.ExposureCompensation == nil {
		return false
	}
	v := caps.ExposureCompensation.Clamp(ev)
	if err := src.Apply(ctx, Constraints{ExposureCompensation: &v}); err != nil {
		debug.Warn("Camera: exposure compensation %.2f failed: %v", v, err)
		return false
	}
	debug.Trace("Camera: exposure compensation %.2f applied", v)
	return true
}

// SetTorch switches the torch. Missing torch capability is reported as
// supported=false with a nil error.
func SetTorch(ctx context.Context, src FrameSource, on bool) (supported bool, err error) {
	if !src.Capabilities().Torch {
		return false, nil
	}
	if err := src.Apply(ctx, Constraints{Torch: &on}); err != nil {
		if errors.Is(err, ErrUnsupported) {
			return false, nil
		}
		return true, fmt.Errorf("set torch: %w", err)
	}
	return true, nil
}

// ApplyFocus focuses on the normalized point (x, y), clamped to 0..1. It
// tries a continuous-focus point of interest, then a manual distance derived
// from the point, then a single-shot autofocus, and returns the mode that
// took. A source without focus control returns ErrUnsupported.
func ApplyFocus(ctx context.Context, src FrameSource, x, y float64) (string, error) {
	caps := src.Capabilities().Focus
	if caps == nil || len(caps.Modes) == 0 {
		return "", fmt.Errorf("focus: %w", ErrUnsupported)
	}
	p := Point{X: clamp01(x), Y: clamp01(y)}

	var err error
	if caps.Supports(FocusContinuous) {
		err = src.Apply(ctx, Constraints{FocusMode: String(FocusContinuous), FocusPoint: &p})
		if err == nil {
			debug.Trace("Camera: focus point %.2f,%.2f", p.X, p.Y)
			return FocusContinuous, nil
		}
		debug.Verbose("Camera: focus point rejected, trying manual focus: %v", err)
	}
	if caps.Supports(FocusManual) {
		d := FocusDistance(p, caps.Distance)
		err = src.Apply(ctx, Constraints{FocusMode: String(FocusManual), FocusDistance: &d})
		if err == nil {
			debug.Trace("Camera: manual focus distance %.3f", d)
			return FocusManual, nil
		}
	}
	if caps.Supports(FocusSingleShot) {
		err = src.Apply(ctx, Constraints{FocusMode: String(FocusSingleShot)})
		if err == nil {
			debug.Trace("Camera: single-shot autofocus")
			return FocusSingleShot, nil
		}
	}
	if err == nil {
		err = ErrUnsupported
	}
	return "", fmt.Errorf("focus: %w", err)
}

// FocusDistance maps a tap to a manual focus distance: the frame centre
// focuses at the far end of r, points 0.7 or more from the centre at the
// near end. A nil range is taken as 0..1.
func FocusDistance(p Point, r *Range) float64 {
	lo, hi := 0.0, 1.0
	if r != nil {
		lo, hi = r.Min, r.Max
	}
	n := math.Min(math.Hypot(p.X-0.5, p.Y-0.5)/0.7, 1)
	return hi - n*(hi-lo)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return math.Max(0, math.Min(1, v))
}
