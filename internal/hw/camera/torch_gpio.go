package camera

import (
	"context"
	"fmt"
	"sync"

	"github.com/cjeanneret/SurveyCam/internal/hw/gpio"
)

// GPIOTorch adds a torch capability to any FrameSource by driving an LED
// on a GPIO output pin. Every other call is forwarded to the wrapped source.
type GPIOTorch struct {
	FrameSource
	drv gpio.Driver
	pin int

	mu sync.Mutex
	on bool
}

// NewGPIOTorch configures pin as an output, switched off.
func NewGPIOTorch(src FrameSource, drv gpio.Driver, pin int) (*GPIOTorch, error) {
	if err := drv.SetupPin(pin, gpio.Output); err != nil {
		return nil, fmt.Errorf("torch pin %d: %w", pin, err)
	}
	if err := drv.WritePin(pin, gpio.Low); err != nil {
		return nil, fmt.Errorf("torch pin %d: %w", pin, err)
	}
	return &GPIOTorch{FrameSource: src, drv: drv, pin: pin}, nil
}

func (t *GPIOTorch) Capabilities() Capabilities {
	caps := t.FrameSource.Capabilities()
	caps.Torch = true
	return caps
}

func (t *GPIOTorch) Settings() TrackSettings {
	s := t.FrameSource.Settings()
	t.mu.Lock()
	s.Torch = t.on
	t.mu.Unlock()
	return s
}

func (t *GPIOTorch) Apply(ctx context.Context, c Constraints) error {
	if c.Torch != nil {
		level := gpio.Low
		if *c.Torch {
			level = gpio.High
		}
		t.mu.Lock()
		err := t.drv.WritePin(t.pin, level)
		if err == nil {
			t.on = *c.Torch
		}
		t.mu.Unlock()
		if err != nil {
			return fmt.Errorf("torch: %w", err)
		}
		c.Torch = nil
	}
	if c.IsZero() {
		return nil
	}
	return t.FrameSource.Apply(ctx, c)
}
