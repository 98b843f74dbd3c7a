package geocode

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/SurveyCam/internal/config"
	"github.com/cjeanneret/SurveyCam/internal/debug"
)

// Lookup throttling.
const (
	MinLookupInterval = time.Minute
	SameAreaInterval  = 5 * time.Minute
)

// Target holds the capture settings whose location is filled in.
type Target interface {
	Settings() config.CaptureSettings
	SetAutoLocation(label string, replaceable func(current string) bool) bool
}

// AutoLocator fills the custom location from position updates while the
// user has not typed one: the location is replaced only when it is empty,
// the installation default, or a label this locator set earlier.
type AutoLocator struct {
	rev        Reverser
	target     Target
	defaultLoc string

	mu        sync.Mutex
	lastAt    time.Time
	lastKey   string // position rounded to two decimals
	lastLabel string
	now       func() time.Time
}

// NewAutoLocator creates a locator writing into target. defaultLocation is
// the placeholder location that may be overwritten.
func NewAutoLocator(rev Reverser, target Target, defaultLocation string) *AutoLocator {
	return &AutoLocator{rev: rev, target: target, defaultLoc: defaultLocation, now: time.Now}
}

func (a *AutoLocator) replaceable(current, previous string) bool {
	cur := strings.TrimSpace(current)
	return cur == "" || cur == a.defaultLoc || (previous != "" && cur == previous)
}

// Update looks up (lat, lon) and stores the label as the location. Lookups
// are at most one per MinLookupInterval, and one per SameAreaInterval for
// the same area. It reports the label and whether the settings changed.
func (a *AutoLocator) Update(ctx context.Context, lat, lon float64) (string, bool) {
	a.mu.Lock()
	previous := a.lastLabel
	if !a.replaceable(a.target.Settings().Location, previous) {
		a.mu.Unlock()
		return "", false
	}
	now := a.now()
	key := fmt.Sprintf("%.2f,%.2f", lat, lon)
	if !a.lastAt.IsZero() {
		since := now.Sub(a.lastAt)
		if since < MinLookupInterval || (key == a.lastKey && since < SameAreaInterval) {
			a.mu.Unlock()
			return "", false
		}
	}
	a.lastAt, a.lastKey = now, key
	a.mu.Unlock()

	label, err := a.rev.Reverse(ctx, lat, lon)
	if err != nil {
		if ctx.Err() == nil {
			debug.Warn("Geocode: %v", err)
		}
		return "", false
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return "", false
	}

	changed := a.target.SetAutoLocation(label, func(current string) bool {
		return a.replaceable(current, previous)
	})
	if changed {
		a.mu.Lock()
		a.lastLabel = label
		a.mu.Unlock()
	}
	return label, changed
}
