// Package capture runs the capture pipeline and owns the single
// capture-in-flight gate shared by shutter, burst and self-timer.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/SurveyCam/internal/config"
	"github.com/cjeanneret/SurveyCam/internal/debug"
	"github.com/cjeanneret/SurveyCam/internal/events"
	"github.com/cjeanneret/SurveyCam/internal/hw/camera"
	"github.com/cjeanneret/SurveyCam/internal/logic/filter"
	"github.com/cjeanneret/SurveyCam/internal/metrics"
	"github.com/cjeanneret/SurveyCam/internal/sensors"
	"github.com/cjeanneret/SurveyCam/internal/storage"
)

// DefaultBurstCount is the burst shot ceiling.
const DefaultBurstCount = 10

// DefaultBurstInterval is the delay between burst shots.
const DefaultBurstInterval = 300 * time.Millisecond

// Sink persists an encoded photo. *gallery.Gallery implements it.
type Sink interface {
	Add(p storage.Photo, image []byte) (storage.Photo, error)
}

// Options configures a Coordinator.
type Options struct {
	BurstCount    int
	BurstInterval time.Duration

	// LastID is the newest stored photo id; new ids are issued above it.
	LastID int64
}

// BurstResult summarizes a burst.
type BurstResult struct {
	Session   string          `json:"session"`
	Photos    []storage.Photo `json:"photos"`
	Cancelled bool            `json:"cancelled"`
}

// Coordinator serializes captures against one frame source. A capture
// requested while another one is in flight is dropped, not queued.
type Coordinator struct {
	src  camera.FrameSource
	pipe *Pipeline
	sink Sink
	bus  *events.Bus
	opts Options

	busy atomic.Bool

	mu          sync.Mutex
	settings    config.CaptureSettings
	reading     sensors.Reading
	cancelBurst context.CancelFunc
	cancelTimer context.CancelFunc
	lastID      int64

	now func() time.Time
}

// NewCoordinator creates a coordinator with the given initial settings.
// bus may be nil.
func NewCoordinator(src camera.FrameSource, pipe *Pipeline, sink Sink, bus *events.Bus, settings config.CaptureSettings, opts Options) *Coordinator {
	if opts.BurstCount <= 0 {
		opts.BurstCount = DefaultBurstCount
	}
	if opts.BurstInterval <= 0 {
		opts.BurstInterval = DefaultBurstInterval
	}
	return &Coordinator{
		src:      src,
		pipe:     pipe,
		sink:     sink,
		bus:      bus,
		opts:     opts,
		settings: settings,
		lastID:   opts.LastID,
		now:      time.Now,
	}
}

// Busy reports whether a capture or burst is in flight.
func (c *Coordinator) Busy() bool {
	return c.busy.Load()
}

// Source returns the frame source.
func (c *Coordinator) Source() camera.FrameSource {
	return c.src
}

// Settings returns a copy of the current settings.
func (c *Coordinator) Settings() config.CaptureSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// SetSettings validates and replaces the settings. source tags the
// SettingsChanged event ("api", "config").
func (c *Coordinator) SetSettings(s config.CaptureSettings, source string) error {
	if s.Filter == "" {
		s.Filter = filter.Normal
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if err := filter.Validate(s.Filter); err != nil {
		return err
	}
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()

	debug.PrintStruct("Settings", s)
	c.bus.Publish(events.SettingsChanged{Source: source})
	return nil
}

// SetAutoLocation stores label as the custom location when replaceable
// accepts the current one. It reports whether the settings changed.
func (c *Coordinator) SetAutoLocation(label string, replaceable func(current string) bool) bool {
	c.mu.Lock()
	if label == "" || label == c.settings.Location || !replaceable(c.settings.Location) {
		c.mu.Unlock()
		return false
	}
	c.settings.Location = label
	c.mu.Unlock()

	debug.Info("Location set to %q from position", label)
	c.bus.Publish(events.SettingsChanged{Source: "geocode"})
	return true
}

// Reading returns the last sensor reading.
func (c *Coordinator) Reading() sensors.Reading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reading
}

// SetReading validates and stores the latest sensor reading.
func (c *Coordinator) SetReading(r sensors.Reading) error {
	if err := r.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.reading = r
	c.mu.Unlock()
	return nil
}

// Torch switches the source's torch. supported is false when the source
// has no torch.
func (c *Coordinator) Torch(ctx context.Context, on bool) (supported bool, err error) {
	supported, err = camera.SetTorch(ctx, c.src, on)
	if err == nil && supported {
		debug.Live("Torch %v", on)
	}
	return supported, err
}

// Focus focuses the source on the normalized frame point (x, y) and
// returns the focus mode used. supported is false when the source has no
// focus control.
func (c *Coordinator) Focus(ctx context.Context, x, y float64) (mode string, supported bool, err error) {
	mode, err = camera.ApplyFocus(ctx, c.src, x, y)
	if errors.Is(err, camera.ErrUnsupported) {
		return "", false, nil
	}
	if err != nil {
		return "", true, err
	}
	debug.Live("Focus %s at %.2f,%.2f", mode, x, y)
	return mode, true, nil
}

// nextID returns a millisecond timestamp, bumped to stay strictly
// increasing when two captures land in the same millisecond.
func (c *Coordinator) nextID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.now().UnixMilli()
	if id <= c.lastID {
		id = c.lastID + 1
	}
	c.lastID = id
	return id
}

// Capture takes one photo. When another capture is in flight it returns
// (nil, nil) without doing anything.
func (c *Coordinator) Capture(ctx context.Context) (*storage.Photo, error) {
	if !c.busy.CompareAndSwap(false, true) {
		debug.Live("Capture already in progress, ignored")
		metrics.ObserveCapture(metrics.ResultBusy, 0)
		return nil, nil
	}
	defer c.busy.Store(false)
	return c.shoot(ctx, "")
}

// shoot runs the pipeline and persists the result. The caller holds the
// gate.
func (c *Coordinator) shoot(ctx context.Context, session string) (*storage.Photo, error) {
	start := time.Now()
	c.mu.Lock()
	req := Request{Settings: c.settings, Reading: c.reading}
	c.mu.Unlock()
	req.ID = c.nextID()

	res, err := c.pipe.Run(ctx, c.src, req)
	if err != nil {
		return nil, c.fail(err, session, start)
	}
	p, err := c.sink.Add(res.Photo, res.Image)
	if err != nil {
		return nil, c.fail(err, session, start)
	}

	metrics.ObserveCapture(metrics.ResultOK, time.Since(start))
	debug.Shot(p.ID, p.Filter)
	c.bus.Publish(events.PhotoCaptured{
		ID:        p.ID,
		Filter:    p.Filter,
		Size:      p.Size,
		HDR:       res.HDR,
		Session:   session,
		Timestamp: p.Timestamp.Format(time.RFC3339),
	})
	return &p, nil
}

func (c *Coordinator) fail(err error, session string, start time.Time) error {
	result, reason := Classify(err)
	metrics.ObserveCapture(result, time.Since(start))
	debug.Error(fmt.Errorf("capture failed (%s): %w", reason, err))
	c.bus.Publish(events.CaptureFailed{
		Reason:    reason,
		Error:     err.Error(),
		Session:   session,
		Timestamp: c.now().Format(time.RFC3339),
	})
	return err
}

// Classify maps a capture error to its metrics result and user-facing
// reason.
func Classify(err error) (result, reason string) {
	switch {
	case errors.Is(err, camera.ErrNotReady):
		return metrics.ResultNotReady, "not-ready"
	case errors.Is(err, ErrEncode):
		return metrics.ResultEncode, "encode"
	case errors.Is(err, storage.ErrQuotaExceeded):
		return metrics.ResultQuota, "quota"
	}
	var se *storage.Error
	if errors.As(err, &se) {
		return metrics.ResultStorage, "storage"
	}
	return metrics.ResultOther, "other"
}

// Burst takes up to n photos (the configured ceiling when n <= 0 or above
// it) with the burst interval between shots. It holds the capture gate
// for its whole run; when the gate is taken it returns (nil, nil). The
// burst stops early on the first failed shot, on CancelBurst or when ctx
// is done.
func (c *Coordinator) Burst(ctx context.Context, n int) (*BurstResult, error) {
	if n <= 0 || n > c.opts.BurstCount {
		n = c.opts.BurstCount
	}
	if !c.busy.CompareAndSwap(false, true) {
		debug.Live("Burst requested while capturing, ignored")
		metrics.ObserveCapture(metrics.ResultBusy, 0)
		return nil, nil
	}
	defer c.busy.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelBurst = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancelBurst = nil
		c.mu.Unlock()
		cancel()
	}()

	res := &BurstResult{Session: uuid.NewString()}
	debug.Live("Burst %s: %d shots every %v", res.Session, n, c.opts.BurstInterval)

	var err error
	for shot := 1; shot <= n; shot++ {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		var p *storage.Photo
		p, err = c.shoot(ctx, res.Session)
		if err != nil {
			if ctx.Err() != nil {
				res.Cancelled, err = true, nil
			}
			break
		}
		res.Photos = append(res.Photos, *p)
		metrics.IncBurstShot()
		debug.Burst(res.Session, shot, n)
		c.bus.Publish(events.BurstProgress{Session: res.Session, Shot: shot, Total: n})

		if shot < n && !sleep(ctx, c.opts.BurstInterval) {
			res.Cancelled = true
			break
		}
	}

	c.bus.Publish(events.BurstProgress{
		Session:   res.Session,
		Shot:      len(res.Photos),
		Total:     n,
		Done:      true,
		Cancelled: res.Cancelled,
	})
	debug.Info("Burst %s: %d/%d photos", res.Session, len(res.Photos), n)
	return res, err
}

// CancelBurst stops a running burst after its current shot. It reports
// whether a burst was running.
func (c *Coordinator) CancelBurst() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelBurst == nil {
		return false
	}
	c.cancelBurst()
	return true
}

// Timer counts down delay in whole seconds, publishing a CountdownTick per
// second, then captures. It returns (nil, nil) when cancelled or when a
// capture is already in flight at the end of the countdown.
func (c *Coordinator) Timer(ctx context.Context, delay time.Duration) (*storage.Photo, error) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.cancelTimer != nil {
		c.mu.Unlock()
		cancel()
		debug.Live("Timer already running, ignored")
		return nil, nil
	}
	c.cancelTimer = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancelTimer = nil
		c.mu.Unlock()
		cancel()
	}()

	remaining := int((delay + time.Second - 1) / time.Second)
	for ; remaining > 0; remaining-- {
		c.bus.Publish(events.CountdownTick{Remaining: remaining})
		debug.Live("Timer: %d", remaining)
		if !sleep(ctx, time.Second) {
			debug.Live("Timer cancelled")
			return nil, nil
		}
	}
	c.bus.Publish(events.CountdownTick{Remaining: 0})
	return c.Capture(ctx)
}

// CancelTimer aborts a running countdown. It reports whether one was
// running.
func (c *Coordinator) CancelTimer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelTimer == nil {
		return false
	}
	c.cancelTimer()
	return true
}

// sleep waits d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
