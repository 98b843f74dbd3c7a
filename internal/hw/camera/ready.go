package camera

import (
	"context"
	"time"

	"github.com/cjeanneret/SurveyCam/internal/debug"
)

const (
	DefaultReadyTimeout = 2500 * time.Millisecond
	DefaultReadyPoll    = 100 * time.Millisecond
)

// IsReady reports whether src has non-zero pixel dimensions or already
// buffers enough data to draw a frame.
func IsReady(src FrameSource) bool {
	if src == nil {
		return false
	}
	if w, h := src.Size(); w > 0 && h > 0 {
		return true
	}
	return src.ReadyState() >= HaveCurrentData
}

// WaitReady blocks until src is ready, the timeout elapses or ctx is done.
// Readiness events are the primary signal and a poll ticker covers sources
// that never fire one. When the timer expires a final check is made, which
// recovers from an event that landed just after the deadline.
func WaitReady(ctx context.Context, src FrameSource, timeout, poll time.Duration) bool {
	if src == nil {
		return false
	}
	if IsReady(src) {
		return true
	}
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	if poll <= 0 {
		poll = DefaultReadyPoll
	}

	debug.Verbose("Camera: waiting for frame source (timeout %v)", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	readyCh := src.Ready()
	for {
		select {
		case <-readyCh:
			if IsReady(src) {
				return true
			}
			// Event fired without dimensions; keep polling.
			readyCh = nil
		case <-ticker.C:
			if IsReady(src) {
				return true
			}
		case <-timer.C:
			ok := IsReady(src)
			if !ok {
				debug.Warn("Camera: frame source not ready after %v", timeout)
			}
			return ok
		case <-ctx.Done():
			return IsReady(src)
		}
	}
}
