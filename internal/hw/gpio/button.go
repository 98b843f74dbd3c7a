package gpio

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/SurveyCam/internal/debug"
)

// DefaultButtonPoll is the sampling period of WatchButton.
const DefaultButtonPoll = 20 * time.Millisecond

// WatchButton polls an active-low push button on pin (pull-up, pressed
// pulls to ground) and calls onPress once per press. A press must read Low
// on two consecutive samples to count, and the button must be released
// before the next press is reported. Blocks until ctx is done.
func WatchButton(ctx context.Context, drv Driver, pin int, poll time.Duration, onPress func()) error {
	if err := drv.SetupPin(pin, Input); err != nil {
		return fmt.Errorf("button pin %d: %w", pin, err)
	}
	if poll <= 0 {
		poll = DefaultButtonPoll
	}

	debug.Verbose("GPIO: watching shutter button on pin %d", pin)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	lowCount := 0
	latched := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		level, err := drv.ReadPin(pin)
		if err != nil {
			return fmt.Errorf("button pin %d: %w", pin, err)
		}
		if level == High {
			lowCount = 0
			latched = false
			continue
		}
		lowCount++
		if lowCount >= 2 && !latched {
			latched = true
			debug.Live("GPIO: shutter button pressed (pin %d)", pin)
			onPress()
		}
	}
}
