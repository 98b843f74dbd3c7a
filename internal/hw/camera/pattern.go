package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/cjeanneret/SurveyCam/internal/debug"
)

// PatternConfig configures a synthetic frame source.
type PatternConfig struct {
	Width  int
	Height int

	// Base is the scene content. When nil a colour gradient is generated.
	Base image.Image

	Zoom                 *Range
	ExposureCompensation *Range
	Torch                bool
	Focus                *FocusCaps

	// Warmup delays readiness, mimicking a stream that needs time to start.
	Warmup time.Duration
}

// PatternSource is a FrameSource rendering a fixed scene. Exposure
// compensation scales brightness by 2^EV and hardware zoom crops the centre,
// so the HDR and zoom paths behave as with a real sensor. Used for
// development without a camera and in tests.
type PatternSource struct {
	mu       sync.Mutex
	cfg      PatternConfig
	scene    *image.RGBA
	settings TrackSettings
	ready    chan struct{}
	once     sync.Once
	isReady  bool
	frames   int
}

// NewPatternSource creates a synthetic source.
func NewPatternSource(cfg PatternConfig) *PatternSource {
	if cfg.Base != nil {
		b := cfg.Base.Bounds()
		cfg.Width, cfg.Height = b.Dx(), b.Dy()
	}
	if cfg.Width <= 0 {
		cfg.Width = 1920
	}
	if cfg.Height <= 0 {
		cfg.Height = 1080
	}

	p := &PatternSource{
		cfg:      cfg,
		scene:    buildScene(cfg),
		settings: TrackSettings{Zoom: 1},
		ready:    make(chan struct{}),
	}
	if cfg.Warmup <= 0 {
		p.markReady()
	} else {
		time.AfterFunc(cfg.Warmup, p.markReady)
	}
	return p
}

func buildScene(cfg PatternConfig) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	if cfg.Base != nil {
		draw.Draw(img, img.Bounds(), cfg.Base, cfg.Base.Bounds().Min, draw.Src)
		return img
	}
	for y := 0; y < cfg.Height; y++ {
		for x := 0; x < cfg.Width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / max(cfg.Width-1, 1)),
				G: uint8(y * 255 / max(cfg.Height-1, 1)),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

func (p *PatternSource) markReady() {
	p.once.Do(func() {
		p.mu.Lock()
		p.isReady = true
		p.mu.Unlock()
		close(p.ready)
		debug.Verbose("Camera: pattern source ready (%dx%d)", p.cfg.Width, p.cfg.Height)
	})
}

func (p *PatternSource) Size() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isReady {
		return 0, 0
	}
	return p.cfg.Width, p.cfg.Height
}

func (p *PatternSource) ReadyState() ReadyState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isReady {
		return HaveEnoughData
	}
	return HaveNothing
}

func (p *PatternSource) Ready() <-chan struct{} { return p.ready }

func (p *PatternSource) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isReady {
		return nil, ErrNotReady
	}
	p.frames++

	frame := image.NewRGBA(p.scene.Bounds())
	if z := p.settings.Zoom; z > 1 {
		b := p.scene.Bounds()
		cw, ch := int(float64(b.Dx())/z), int(float64(b.Dy())/z)
		sr := image.Rect(0, 0, cw, ch).Add(image.Pt((b.Dx()-cw)/2, (b.Dy()-ch)/2))
		xdraw.BiLinear.Scale(frame, frame.Bounds(), p.scene, sr, xdraw.Src, nil)
	} else {
		copy(frame.Pix, p.scene.Pix)
	}

	if ev := p.settings.ExposureCompensation; ev != 0 {
		gain := math.Pow(2, ev)
		for i := 0; i < len(frame.Pix); i += 4 {
			for c := 0; c < 3; c++ {
				frame.Pix[i+c] = uint8(math.Min(255, math.Round(float64(frame.Pix[i+c])*gain)))
			}
		}
	}
	return frame, nil
}

// Frames returns how many frames have been grabbed.
func (p *PatternSource) Frames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

func (p *PatternSource) Capabilities() Capabilities {
	return Capabilities{
		Zoom:                 p.cfg.Zoom,
		ExposureCompensation: p.cfg.ExposureCompensation,
		Torch:                p.cfg.Torch,
		Focus:                p.cfg.Focus,
	}
}

func (p *PatternSource) Settings() TrackSettings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

func (p *PatternSource) Apply(_ context.Context, c Constraints) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c.Zoom != nil {
		if p.cfg.Zoom == nil {
			return fmt.Errorf("zoom: %w", ErrUnsupported)
		}
		p.settings.Zoom = p.cfg.Zoom.Clamp(*c.Zoom)
	}
	if c.ExposureCompensation != nil {
		if p.cfg.ExposureCompensation == nil {
			return fmt.Errorf("exposure compensation: %w", ErrUnsupported)
		}
		p.settings.ExposureCompensation = p.cfg.ExposureCompensation.Clamp(*c.ExposureCompensation)
	}
	if c.Torch != nil {
		if !p.cfg.Torch {
			return fmt.Errorf("torch: %w", ErrUnsupported)
		}
		p.settings.Torch = *c.Torch
	}
	if c.FocusMode != nil {
		if !p.cfg.Focus.Supports(*c.FocusMode) {
			return fmt.Errorf("focus mode %q: %w", *c.FocusMode, ErrUnsupported)
		}
		p.settings.FocusMode = *c.FocusMode
		p.settings.FocusPoint = nil
	}
	if c.FocusPoint != nil {
		if p.settings.FocusMode != FocusContinuous {
			return fmt.Errorf("focus point outside continuous mode: %w", ErrUnsupported)
		}
		pt := *c.FocusPoint
		p.settings.FocusPoint = &pt
	}
	if c.FocusDistance != nil {
		if p.cfg.Focus == nil || p.cfg.Focus.Distance == nil {
			return fmt.Errorf("focus distance: %w", ErrUnsupported)
		}
		p.settings.FocusDistance = p.cfg.Focus.Distance.Clamp(*c.FocusDistance)
	}
	return nil
}
