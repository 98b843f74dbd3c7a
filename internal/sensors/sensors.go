// Package sensors holds the geolocation/orientation snapshot stamped on
// each photo, and the compass heading smoother.
package sensors

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// Reading is the latest sensor snapshot. Nil fields are unavailable.
type Reading struct {
	Latitude  *float64 `json:"lat"`
	Longitude *float64 `json:"lon"`
	Altitude  *float64 `json:"alt"`      // meters
	Heading   *float64 `json:"heading"`  // degrees, 0 = north, clockwise
	Accuracy  *float64 `json:"accuracy"` // meters
}

// HasFix reports whether both coordinates are known.
func (r Reading) HasFix() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// HeadingOrZero returns the heading, 0 (north) when unknown.
func (r Reading) HeadingOrZero() float64 {
	if r.Heading == nil {
		return 0
	}
	return *r.Heading
}

// Validate checks coordinate ranges.
func (r Reading) Validate() error {
	check := func(name string, v *float64, lo, hi float64) error {
		if v == nil {
			return nil
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return fmt.Errorf("%s must be finite", name)
		}
		if *v < lo || *v > hi {
			return fmt.Errorf("%s must be between %g and %g, got %g", name, lo, hi, *v)
		}
		return nil
	}
	if (r.Latitude == nil) != (r.Longitude == nil) {
		return errors.New("lat and lon must be given together")
	}
	if err := check("lat", r.Latitude, -90, 90); err != nil {
		return err
	}
	if err := check("lon", r.Longitude, -180, 180); err != nil {
		return err
	}
	if err := check("alt", r.Altitude, -1000, 100000); err != nil {
		return err
	}
	if err := check("heading", r.Heading, 0, 360); err != nil {
		return err
	}
	return check("accuracy", r.Accuracy, 0, math.MaxFloat64)
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Normalize wraps degrees into [0, 360).
func Normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

var cardinals = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Cardinal returns the 8-point compass direction of a heading.
func Cardinal(heading float64) string {
	return cardinals[int(math.Round(Normalize(heading)/45))%8]
}

// DefaultSmoothing is the per-sample weight of a new heading.
const DefaultSmoothing = 0.15

// HeadingSmoother low-pass filters compass samples, taking the short way
// around the 0/360 seam. Safe for concurrent use.
type HeadingSmoother struct {
	mu     sync.Mutex
	factor float64
	value  float64
	primed bool
}

// NewHeadingSmoother returns a smoother; factor <= 0 uses DefaultSmoothing.
func NewHeadingSmoother(factor float64) *HeadingSmoother {
	if factor <= 0 || factor > 1 {
		factor = DefaultSmoothing
	}
	return &HeadingSmoother{factor: factor}
}

// Update feeds a raw heading and returns the smoothed one. The first
// sample is taken as is.
func (s *HeadingSmoother) Update(heading float64) float64 {
	heading = Normalize(heading)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.primed {
		s.value, s.primed = heading, true
		return s.value
	}

	diff := heading - s.value
	for diff < -180 {
		diff += 360
	}
	for diff > 180 {
		diff -= 360
	}
	s.value = Normalize(s.value + diff*s.factor)
	return s.value
}

// Value returns the current smoothed heading.
func (s *HeadingSmoother) Value() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// HeadingFromAlpha converts a device-orientation alpha angle
// (counter-clockwise) into a compass heading.
func HeadingFromAlpha(alpha float64) float64 {
	return Normalize(360 - alpha)
}
