package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/SurveyCam/internal/debug"
	"github.com/cjeanneret/SurveyCam/internal/events"
	"github.com/cjeanneret/SurveyCam/internal/gallery"
	"github.com/cjeanneret/SurveyCam/internal/storage"
)

const maxTimer = 60 * time.Second

func newCaptureCmd(opts *rootOptions) *cobra.Command {
	var (
		burst    int
		timer    time.Duration
		comment  string
		sensorsF sensorFlags
		settings settingsFlags
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Take a photo (or a burst / timed photo) and store it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if burst < 0 {
				return fmt.Errorf("burst must be >= 0, got %d", burst)
			}
			if timer < 0 || timer > maxTimer {
				return fmt.Errorf("timer must be between 0 and %v, got %v", maxTimer, timer)
			}
			if burst > 0 && timer > 0 {
				return errors.New("--burst and --timer are mutually exclusive")
			}
			reading, err := sensorsF.reading(cmd.Flags())
			if err != nil {
				return err
			}

			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.coord.SetSettings(settings.apply(cmd.Flags(), a.coord.Settings()), "cli"); err != nil {
				return err
			}
			if err := a.coord.SetReading(reading); err != nil {
				return err
			}
			if a.locator != nil && reading.Latitude != nil && reading.Longitude != nil {
				a.locator.Update(ctx, *reading.Latitude, *reading.Longitude)
			}

			out := &lockedWriter{w: cmd.OutOrStdout()}
			photos, err := runCapture(ctx, a, out, burst, timer)
			if err != nil {
				return err
			}
			if comment != "" {
				for i, p := range photos {
					if photos[i], err = a.gallery.SetComment(p.ID, comment); err != nil {
						return err
					}
				}
			}
			for _, p := range photos {
				fmt.Fprintf(out, "%d\t%s\t%d bytes\n", p.ID, gallery.Filename(p), p.Size)
			}
			if level := a.gallery.CheckUsage(); level != "" {
				fmt.Fprintf(out, "storage %s\n", level)
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.IntVar(&burst, "burst", 0, "take up to N photos in a burst (capped by pipeline.burst_count)")
	fs.DurationVar(&timer, "timer", 0, "count down before the shot (e.g. 3s, 10s)")
	fs.StringVar(&comment, "comment", "", "comment stored with the photo")
	sensorsF.register(fs)
	settings.register(fs)
	return cmd
}

// runCapture performs one single, burst or timed capture and returns the
// stored photos.
func runCapture(ctx context.Context, a *app, out io.Writer, burst int, timer time.Duration) ([]storage.Photo, error) {
	switch {
	case burst > 0:
		unsub := a.bus.Subscribe(func(e events.BurstProgress) {
			if !e.Done {
				fmt.Fprintf(out, "burst %d/%d\n", e.Shot, e.Total)
			}
		})
		defer unsub()

		res, err := a.coord.Burst(ctx, burst)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, errors.New("capture already in progress")
		}
		debug.Info("Burst %s: %d photos (cancelled=%v)", res.Session, len(res.Photos), res.Cancelled)
		return res.Photos, nil

	case timer > 0:
		unsub := a.bus.Subscribe(func(e events.CountdownTick) {
			if e.Remaining > 0 {
				fmt.Fprintf(out, "%d...\n", e.Remaining)
			}
		})
		defer unsub()

		p, err := a.coord.Timer(ctx, timer)
		if err != nil {
			return nil, err
		}
		if p == nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, errors.New("timer cancelled")
		}
		return []storage.Photo{*p}, nil

	default:
		p, err := a.coord.Capture(ctx)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, errors.New("capture already in progress")
		}
		return []storage.Photo{*p}, nil
	}
}

// lockedWriter serializes writes from bus handlers and the command.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
