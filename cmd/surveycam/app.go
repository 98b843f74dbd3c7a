package main

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/cjeanneret/SurveyCam/internal/config"
	"github.com/cjeanneret/SurveyCam/internal/debug"
	"github.com/cjeanneret/SurveyCam/internal/events"
	"github.com/cjeanneret/SurveyCam/internal/gallery"
	"github.com/cjeanneret/SurveyCam/internal/geocode"
	"github.com/cjeanneret/SurveyCam/internal/hw/camera"
	"github.com/cjeanneret/SurveyCam/internal/hw/gpio"
	"github.com/cjeanneret/SurveyCam/internal/logic/capture"
	"github.com/cjeanneret/SurveyCam/internal/logic/overlay"
	"github.com/cjeanneret/SurveyCam/internal/storage"
)

// app holds the wired components of one process.
type app struct {
	cfg     *config.Config
	bus     *events.Bus
	store   storage.Store
	gallery *gallery.Gallery
	gpio    gpio.Driver // nil unless a torch or button pin is configured

	coord   *capture.Coordinator // nil for gallery-only commands
	locator *geocode.AutoLocator // nil unless geocode.enabled
}

// newApp opens the photo store and, when withCamera is set, the frame
// source and capture coordinator.
func newApp(ctx context.Context, cfg *config.Config, withCamera bool) (*app, error) {
	a := &app{cfg: cfg, bus: events.New()}

	debug.Step(1, "Opening photo store")
	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.store = store
	debug.PrintStruct("Storage config", cfg.Storage)

	a.gallery, err = gallery.New(store, a.bus)
	if err != nil {
		a.Close()
		return nil, err
	}
	if !withCamera {
		return a, nil
	}

	if cfg.Camera.TorchPin > 0 || cfg.Camera.ButtonPin > 0 {
		debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
		debug.Step(2, "Initializing GPIO driver")
		a.gpio, err = gpio.NewDriver(cfg.Defaults.MockGPIO)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init GPIO failed: %w", err)
		}
	}

	debug.Step(3, "Initializing camera")
	src, err := newSource(ctx, cfg, a.gpio)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init camera failed: %w", err)
	}
	debug.Value("Camera type", cfg.Camera.Type)

	copts := capture.Options{BurstCount: cfg.Pipeline.BurstCount, BurstInterval: cfg.BurstInterval()}
	if last, ok := a.gallery.Last(); ok {
		copts.LastID = last.ID
	}
	a.coord = capture.NewCoordinator(
		src,
		capture.NewPipeline(cfg, loadLogo(ctx, cfg)),
		a.gallery,
		a.bus,
		cfg.Settings,
		copts,
	)
	if cfg.Geocode.Enabled {
		a.locator = geocode.NewAutoLocator(geocode.NewClient(cfg), a.coord, config.DefaultSettings().Location)
		debug.Value("Geocode", cfg.Geocode.URL)
	}
	return a, nil
}

// Close releases the store and the GPIO driver.
func (a *app) Close() error {
	var errs []error
	if a.gpio != nil {
		if err := a.gpio.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing GPIO driver failed: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store failed: %w", err))
		}
	}
	return errors.Join(errs...)
}

// newSource selects a frame source implementation based on configuration.
// settings.facing_mode picks the user_path/user_url alternative when one is
// configured. A configured torch pin adds an LED torch to sources without one.
func newSource(ctx context.Context, cfg *config.Config, drv gpio.Driver) (camera.FrameSource, error) {
	front := cfg.Settings.FacingMode == "user"
	var src camera.FrameSource
	switch cfg.Camera.Type {
	case "pattern":
		pc := camera.PatternConfig{
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			Warmup: cfg.Warmup(),
		}
		if cfg.Camera.ZoomMax > 1 {
			pc.Zoom = &camera.Range{Min: 1, Max: cfg.Camera.ZoomMax, Step: 0.1}
		}
		if cfg.Camera.ExposureControl {
			pc.ExposureCompensation = &camera.Range{Min: -2, Max: 2, Step: 1.0 / 3}
		}
		if front {
			debug.Info("Camera: pattern source has a single facing, ignoring facing_mode user")
		}
		src = camera.NewPatternSource(pc)
	case "file":
		src = camera.NewFileSource(facing(front, cfg.Camera.Path, cfg.Camera.UserPath))
	case "snapshot":
		src = camera.NewSnapshotSource(ctx, facing(front, cfg.Camera.URL, cfg.Camera.UserURL), cfg.SnapshotTimeout())
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}

	if cfg.Camera.TorchPin > 0 && !src.Capabilities().Torch {
		if drv == nil {
			return nil, errors.New("torch pin configured without a GPIO driver")
		}
		torch, err := camera.NewGPIOTorch(src, drv, cfg.Camera.TorchPin)
		if err != nil {
			return nil, err
		}
		debug.Value("Torch pin", cfg.Camera.TorchPin)
		return torch, nil
	}
	return src, nil
}

func facing(front bool, rear, user string) string {
	if !front {
		return rear
	}
	if user == "" {
		debug.Warn("Camera: facing_mode user without a front camera configured, using %s", rear)
		return rear
	}
	debug.Value("Camera facing", "user")
	return user
}

// loadLogo loads the watermark logo. A missing or slow logo only disables
// the watermark.
func loadLogo(ctx context.Context, cfg *config.Config) image.Image {
	if cfg.Pipeline.LogoPath == "" {
		return nil
	}
	logo, err := overlay.LoadLogo(ctx, cfg.Pipeline.LogoPath, cfg.LogoTimeout())
	if err != nil {
		debug.Warn("Watermark logo unavailable: %v", err)
		return nil
	}
	return logo
}
