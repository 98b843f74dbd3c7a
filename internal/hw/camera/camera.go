package camera

import (
	"context"
	"errors"
	"image"

	// Decoders for file and snapshot sources.
	_ "image/jpeg"
	_ "image/png"
)

var (
	// ErrNotReady is returned when a frame source has no usable pixel
	// dimensions after the readiness gate.
	ErrNotReady = errors.New("frame source not ready")

	// ErrUnsupported is returned when a hardware control (zoom, exposure
	// compensation, torch, focus) is absent from the source's capabilities.
	ErrUnsupported = errors.New("capability not supported")
)

// ReadyState mirrors the buffered-data states a live video element reports.
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

// Range describes a numeric hardware control.
type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step,omitempty"`
}

// Clamp limits v to [Min, Max].
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Focus modes.
const (
	FocusContinuous = "continuous"
	FocusManual     = "manual"
	FocusSingleShot = "single-shot"
)

// FocusCaps describes the focus control of a source.
type FocusCaps struct {
	Modes    []string `json:"modes"`
	Distance *Range   `json:"distance,omitempty"` // manual focus distance
}

// Supports reports whether mode is one of the focus modes.
func (f *FocusCaps) Supports(mode string) bool {
	if f == nil {
		return false
	}
	for _, m := range f.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// Point is a position in normalized frame coordinates, 0..1 on both axes.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Capabilities is the capability descriptor of a frame source.
// A nil range means the control is not supported.
type Capabilities struct {
	Zoom                 *Range     `json:"zoom,omitempty"`
	ExposureCompensation *Range     `json:"exposure_compensation,omitempty"`
	Torch                bool       `json:"torch"`
	Focus                *FocusCaps `json:"focus,omitempty"`
}

// Constraints requests hardware control changes. Nil fields are left untouched.
type Constraints struct {
	Zoom                 *float64
	ExposureCompensation *float64
	Torch                *bool
	FocusMode            *string
	FocusPoint           *Point
	FocusDistance        *float64
}

// IsZero reports whether c requests no change at all.
func (c Constraints) IsZero() bool {
	return c == Constraints{}
}

// TrackSettings reports the currently applied hardware control values.
type TrackSettings struct {
	Zoom                 float64 `json:"zoom"`
	ExposureCompensation float64 `json:"exposure_compensation"`
	Torch                bool    `json:"torch"`
	FocusMode            string  `json:"focus_mode,omitempty"`
	FocusPoint           *Point  `json:"focus_point,omitempty"`
	FocusDistance        float64 `json:"focus_distance,omitempty"`
}

// FrameSource is the high-level interface used by the capture pipeline.
// It represents a live frame producer regardless of where frames come from
// (synthetic pattern, a still file refreshed by another process, an IP
// camera snapshot endpoint, etc.).
type FrameSource interface {
	// Size returns the current native frame dimensions, zero when unknown.
	Size() (w, h int)

	// ReadyState reports how much frame data is buffered.
	ReadyState() ReadyState

	// Ready returns a channel that is closed when the source signals
	// readiness. It may fire before Size is non-zero on quirky sources.
	Ready() <-chan struct{}

	// Frame returns the current frame.
	Frame(ctx context.Context) (image.Image, error)

	// Capabilities returns the hardware control descriptor.
	Capabilities() Capabilities

	// Settings returns the currently applied control values.
	Settings() TrackSettings

	// Apply changes hardware controls. Requesting a control that is absent
	// from Capabilities returns ErrUnsupported.
	Apply(ctx context.Context, c Constraints) error
}

// Float returns a pointer to v, for building Constraints.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v, for building Constraints.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v, for building Constraints.
func String(v string) *string { return &v }
