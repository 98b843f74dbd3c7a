package hdr

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"

	"github.com/cjeanneret/SurveyCam/internal/hw/camera"
)

func solid(w, h int, r, g, b uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = r, g, b, 255
	}
	return img
}

func TestLuminance(t *testing.T) {
	if got := Luminance(127, 127, 127); math.Abs(got-127) > 1e-9 {
		t.Errorf("Luminance(gray 127) = %v, want 127", got)
	}
	if got := Luminance(255, 0, 0); math.Abs(got-76.245) > 1e-9 {
		t.Errorf("Luminance(red) = %v, want 76.245", got)
	}
}

func TestBlend_MidGrayKeepsNormal(t *testing.T) {
	under := solid(8, 8, 20, 20, 20)
	normal := solid(8, 8, 127, 127, 127)
	over := solid(8, 8, 250, 250, 250)

	out, err := Blend(under, normal, over)
	if err != nil {
		t.Fatalf("Blend: %v", err)
	}
	for i := range out.Pix {
		if out.Pix[i] != normal.Pix[i] {
			t.Fatalf("byte %d = %d, want %d", i, out.Pix[i], normal.Pix[i])
		}
	}
}

func TestBlend_Regions(t *testing.T) {
	under := solid(1, 1, 10, 20, 30)
	over := solid(1, 1, 200, 210, 220)

	tests := []struct {
		name   string
		normal uint8
		want   uint8 // red channel
	}{
		// L = 0: fully the over sample.
		{"black", 0, 200},
		// L = 30: halfway between over (200) and normal (30).
		{"shadow", 30, 115},
		// L = 60: threshold, normal unchanged.
		{"threshold low", 60, 60},
		// L = 195: threshold, normal unchanged.
		{"threshold high", 195, 195},
		// L = 235: two thirds of the way from normal (235) to under (10).
		{"highlight", 235, 85},
		// L = 255: fully the under sample.
		{"white", 255, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normal := solid(1, 1, tt.normal, tt.normal, tt.normal)
			out, err := Blend(under, normal, over)
			if err != nil {
				t.Fatal(err)
			}
			if got := out.Pix[0]; got != tt.want {
				t.Errorf("red = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBlend_SizeMismatch(t *testing.T) {
	_, err := Blend(solid(4, 4, 0, 0, 0), solid(4, 4, 0, 0, 0), solid(2, 2, 0, 0, 0))
	if err == nil {
		t.Error("expected error for mismatched sizes")
	}
}

func TestToneMap(t *testing.T) {
	img := solid(2, 1, 127, 127, 127)
	img.Pix[4], img.Pix[5], img.Pix[6] = 0, 0, 0
	ToneMap(img, 1.1)

	want := uint8(math.Round(127 / (1 + 127.0/255) * 1.1))
	if img.Pix[0] != want {
		t.Errorf("tone-mapped gray = %d, want %d", img.Pix[0], want)
	}
	if img.Pix[4] != 0 {
		t.Errorf("black should stay black, got %d", img.Pix[4])
	}
	if img.Pix[3] != 255 {
		t.Errorf("alpha changed to %d", img.Pix[3])
	}
}

func TestCapture_Unsupported(t *testing.T) {
	src := camera.NewPatternSource(camera.PatternConfig{Width: 8, Height: 8})
	_, err := Capture(context.Background(), src, Options{})
	if !errors.Is(err, camera.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
	if src.Frames() != 0 {
		t.Errorf("frames grabbed = %d, want 0", src.Frames())
	}
}

func newExposureSource() *camera.PatternSource {
	return camera.NewPatternSource(camera.PatternConfig{
		Base:                 solid(8, 8, 127, 127, 127),
		ExposureCompensation: &camera.Range{Min: -2, Max: 2, Step: 0.5},
	})
}

func TestCapture_RestoresExposure(t *testing.T) {
	src := newExposureSource()
	if err := src.Apply(context.Background(), camera.Constraints{ExposureCompensation: camera.Float(0.5)}); err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions()
	opts.FirstSettle, opts.Settle = 0, 0
	out, err := Capture(context.Background(), src, opts)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if out.Bounds().Dx() != 8 {
		t.Errorf("output width = %d, want 8", out.Bounds().Dx())
	}
	if src.Frames() != 3 {
		t.Errorf("frames grabbed = %d, want 3", src.Frames())
	}
	if ev := src.Settings().ExposureCompensation; ev != 0.5 {
		t.Errorf("exposure after capture = %v, want restored 0.5", ev)
	}
}

// failingSource fails the nth frame grab.
type failingSource struct {
	*camera.PatternSource
	failAt int
	calls  int
}

func (f *failingSource) Frame(ctx context.Context) (image.Image, error) {
	f.calls++
	if f.calls == f.failAt {
		return nil, errors.New("sensor glitch")
	}
	return f.PatternSource.Frame(ctx)
}

func TestCapture_RestoresExposureOnFailure(t *testing.T) {
	src := &failingSource{PatternSource: newExposureSource(), failAt: 2}
	opts := DefaultOptions()
	opts.FirstSettle, opts.Settle = 0, 0

	if _, err := Capture(context.Background(), src, opts); err == nil {
		t.Fatal("expected error from failing frame")
	}
	if ev := src.Settings().ExposureCompensation; ev != 0 {
		t.Errorf("exposure after failure = %v, want restored 0", ev)
	}
}

// stuckSource accepts the exposure series but rejects the restore.
type stuckSource struct {
	*camera.PatternSource
	applies int
}

func (s *stuckSource) Apply(ctx context.Context, c camera.Constraints) error {
	s.applies++
	if s.applies > 3 {
		return errors.New("track ended")
	}
	return s.PatternSource.Apply(ctx, c)
}

func TestCapture_KeepsMergeWhenRestoreFails(t *testing.T) {
	src := &stuckSource{PatternSource: newExposureSource()}
	opts := DefaultOptions()
	opts.FirstSettle, opts.Settle = 0, 0

	out, err := Capture(context.Background(), src, opts)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if out == nil || out.Bounds().Dx() != 8 {
		t.Fatal("merged frame missing or wrong size")
	}
	if src.applies != 4 {
		t.Errorf("apply calls = %d, want 3 exposures and 1 restore", src.applies)
	}
}

func TestCapture_Cancelled(t *testing.T) {
	src := newExposureSource()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Capture(ctx, src, DefaultOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if ev := src.Settings().ExposureCompensation; ev != 0 {
		t.Errorf("exposure after cancel = %v, want 0", ev)
	}
}
