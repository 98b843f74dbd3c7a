// Package filter implements the capture color pipeline: named filters,
// exposure, white balance and sharpening.
package filter

import (
	"errors"
	"fmt"
)

// Filter names.
const (
	Normal  = "normal"
	BW      = "bw"
	Sepia   = "sepia"
	Vintage = "vintage"
	Vivid   = "vivid"
)

// ErrUnknown is returned for a filter name outside the table.
var ErrUnknown = errors.New("unknown filter")

var names = []string{Normal, BW, Sepia, Vintage, Vivid}

// css holds the preview compositing filter of each name. Transform is the
// per-pixel equivalent applied to captured frames.
var css = map[string]string{
	Normal:  "none",
	BW:      "grayscale(1)",
	Sepia:   "sepia(1)",
	Vintage: "sepia(0.6) contrast(1.1) saturate(0.9)",
	Vivid:   "contrast(1.2) saturate(1.4)",
}

// Names lists the known filters in display order.
func Names() []string {
	return append([]string(nil), names...)
}

// Validate returns ErrUnknown when name is not a known filter.
func Validate(name string) error {
	if _, ok := css[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return nil
}

// CSS returns the preview filter string for name ("none" when unknown).
func CSS(name string) string {
	if s, ok := css[name]; ok {
		return s
	}
	return "none"
}

// AddsContrast reports whether the filter already boosts local contrast,
// in which case sharpening is skipped.
func AddsContrast(name string) bool {
	return name == Vivid || name == Vintage
}

// Transform applies the named filter to one pixel. Channels are clamped
// to 255 from above; no coefficient is negative so the result stays >= 0.
//
//	bw:      luminance 0.299 R + 0.587 G + 0.114 B on all channels
//	sepia:   fixed 3×3 color matrix
//	vintage: R×1.1, G×1.05, B×0.9
//	vivid:   all ×1.2
func Transform(name string, r, g, b float64) (float64, float64, float64) {
	switch name {
	case BW:
		y := 0.299*r + 0.587*g + 0.114*b
		return y, y, y
	case Sepia:
		return clamp255(r*0.393 + g*0.769 + b*0.189),
			clamp255(r*0.349 + g*0.686 + b*0.168),
			clamp255(r*0.272 + g*0.534 + b*0.131)
	case Vintage:
		return clamp255(r * 1.1), clamp255(g * 1.05), clamp255(b * 0.9)
	case Vivid:
		return clamp255(r * 1.2), clamp255(g * 1.2), clamp255(b * 1.2)
	default:
		return r, g, b
	}
}

// ExposureMultiplier converts an EV setting into the software brightness
// factor 1 + ev×0.18.
func ExposureMultiplier(ev float64) float64 {
	return 1 + ev*0.18
}

func clamp255(v float64) float64 {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return v
}
