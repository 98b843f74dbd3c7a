package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"testing"
	"time"

	"github.com/cjeanneret/SurveyCam/internal/config"
	"github.com/cjeanneret/SurveyCam/internal/hw/camera"
	"github.com/cjeanneret/SurveyCam/internal/logic/geometry"
	"github.com/cjeanneret/SurveyCam/internal/logic/hdr"
	"github.com/cjeanneret/SurveyCam/internal/sensors"
)

const epsilon = 1e-6

func grayFrame(w, h int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
	}
	return img
}

func testPipeline() *Pipeline {
	return &Pipeline{
		Upscale:      1.5,
		HDR:          hdr.Options{Under: -1.5, Over: 1.5, Boost: 1.1},
		ReadyTimeout: 50 * time.Millisecond,
		ReadyPoll:    5 * time.Millisecond,
		now:          func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) },
	}
}

// plainSettings disables every overlay so output pixels only depend on the
// color pipeline.
func plainSettings() config.CaptureSettings {
	s := config.DefaultSettings()
	s.ShowData = false
	s.ShowCompass = false
	s.Watermark = false
	return s
}

func TestRunCropMatchesViewport(t *testing.T) {
	src := camera.NewPatternSource(camera.PatternConfig{Width: 1920, Height: 1080})
	s := plainSettings()
	s.ViewportWidth, s.ViewportHeight = 390, 844
	s.Zoom = 2

	res, err := testPipeline().Run(testContext(t), src, Request{ID: 1, Settings: s})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantW := 1080.0 * 390 / 844 / 2
	if math.Abs(res.Crop.W-wantW) > epsilon || math.Abs(res.Crop.H-540) > epsilon {
		t.Errorf("crop = %.3fx%.3f, want %.3fx540", res.Crop.W, res.Crop.H, wantW)
	}
	if math.Abs(res.Crop.X-(1920-wantW)/2) > epsilon || math.Abs(res.Crop.Y-270) > epsilon {
		t.Errorf("crop origin = %.3f,%.3f", res.Crop.X, res.Crop.Y)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(res.Image))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	w, h := geometry.OutputSize(res.Crop, 1.5)
	if cfg.Width != w || cfg.Height != h {
		t.Errorf("output %dx%d, want %dx%d", cfg.Width, cfg.Height, w, h)
	}
}

func TestRunRecord(t *testing.T) {
	src := camera.NewPatternSource(camera.PatternConfig{Width: 320, Height: 240})
	s := config.DefaultSettings()
	s.Filter = ""
	s.ProjectName = "Bridge"
	s.Location = "Pier 4"
	r := sensors.Reading{
		Latitude:  sensors.Float(24.7),
		Longitude: sensors.Float(46.6),
		Heading:   sensors.Float(90),
	}

	res, err := testPipeline().Run(testContext(t), src, Request{ID: 77, Settings: s, Reading: r})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	p := res.Photo
	if p.ID != 77 || p.MIME != MIMEJPEG || p.Filter != "normal" || p.Size != len(res.Image) {
		t.Errorf("photo = %+v", p)
	}
	if p.ProjectName != "Bridge" || p.Location != "Pier 4" || p.Comment != "" {
		t.Errorf("settings not stamped: %+v", p)
	}
	if p.Lat == nil || *p.Lat != 24.7 || p.Heading == nil || *p.Heading != 90 || p.Alt != nil {
		t.Errorf("reading not stamped: %+v", p)
	}
	if !p.Timestamp.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", p.Timestamp)
	}
}

func TestRunNotReady(t *testing.T) {
	src := camera.NewPatternSource(camera.PatternConfig{Width: 64, Height: 64, Warmup: time.Hour})
	_, err := testPipeline().Run(testContext(t), src, Request{ID: 1, Settings: plainSettings()})
	if !errors.Is(err, camera.ErrNotReady) {
		t.Fatalf("Run error = %v, want ErrNotReady", err)
	}
	if src.Frames() != 0 {
		t.Errorf("frames grabbed before readiness: %d", src.Frames())
	}
}

// blankSource reports buffered data but has no frame dimensions yet.
type blankSource struct {
	*camera.PatternSource
}

func (blankSource) Size() (int, int) { return 0, 0 }

func (blankSource) ReadyState() camera.ReadyState { return camera.HaveEnoughData }

func (blankSource) Frame(context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rectangle{}), nil
}

func TestRunEmptyFrame(t *testing.T) {
	src := blankSource{camera.NewPatternSource(camera.PatternConfig{Width: 64, Height: 64})}
	res, err := testPipeline().Run(testContext(t), src, Request{ID: 1, Settings: plainSettings()})
	if !errors.Is(err, camera.ErrNotReady) {
		t.Fatalf("Run error = %v, want ErrNotReady", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
}

func TestRunCancelledBeforeReady(t *testing.T) {
	src := camera.NewPatternSource(camera.PatternConfig{Width: 64, Height: 64, Warmup: time.Hour})
	ctx, cancel := context.WithCancel(testContext(t))
	cancel()
	_, err := testPipeline().Run(ctx, src, Request{ID: 1, Settings: plainSettings()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}

func TestRunEncodeFailure(t *testing.T) {
	src := camera.NewPatternSource(camera.PatternConfig{Width: 64, Height: 64})
	p := testPipeline()
	p.encode = func(*image.RGBA, int) ([]byte, error) { return nil, errors.New("out of memory") }

	_, err := p.Run(testContext(t), src, Request{ID: 1, Settings: plainSettings()})
	if !errors.Is(err, ErrEncode) {
		t.Errorf("Run error = %v, want ErrEncode", err)
	}
}

func TestRunSoftwareExposure(t *testing.T) {
	// No exposure capability: +1 EV is applied as a 1.18 multiplier.
	src := camera.NewPatternSource(camera.PatternConfig{Base: grayFrame(64, 64, 100)})
	s := plainSettings()
	s.ExposureValue = 1

	res, err := testPipeline().Run(testContext(t), src, Request{ID: 1, Settings: s})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(res.Image))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := img.Bounds()
	c := color.RGBAModel.Convert(img.At(b.Dx()/2, b.Dy()/2)).(color.RGBA)
	if math.Abs(float64(c.G)-118) > 3 {
		t.Errorf("center green = %d, want ~118", c.G)
	}
}

func TestRunHardwareExposure(t *testing.T) {
	// The source doubles the frame for +1 EV and the color pipeline still
	// applies its 1.18 multiplier: 100 * 2 * 1.18.
	src := camera.NewPatternSource(camera.PatternConfig{
		Base:                 grayFrame(64, 64, 100),
		ExposureCompensation: &camera.Range{Min: -2, Max: 2},
	})
	s := plainSettings()
	s.ExposureValue = 1

	res, err := testPipeline().Run(testContext(t), src, Request{ID: 1, Settings: s})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if src.Settings().ExposureCompensation != 1 {
		t.Errorf("hardware EV = %v, want 1", src.Settings().ExposureCompensation)
	}
	img, _ := jpeg.Decode(bytes.NewReader(res.Image))
	c := color.RGBAModel.Convert(img.At(10, 10)).(color.RGBA)
	if math.Abs(float64(c.G)-236) > 3 {
		t.Errorf("green = %d, want ~236", c.G)
	}
}

func TestRunHDRFallback(t *testing.T) {
	src := camera.NewPatternSource(camera.PatternConfig{Width: 64, Height: 64})
	s := plainSettings()
	s.HDR = true

	res, err := testPipeline().Run(testContext(t), src, Request{ID: 1, Settings: s})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.HDR {
		t.Error("HDR reported without exposure capability")
	}
	if src.Frames() != 1 {
		t.Errorf("frames = %d, want 1", src.Frames())
	}
}

func TestRunHDR(t *testing.T) {
	src := camera.NewPatternSource(camera.PatternConfig{
		Width:                64,
		Height:               64,
		ExposureCompensation: &camera.Range{Min: -2, Max: 2},
	})
	s := plainSettings()
	s.HDR = true
	s.ExposureValue = 0.5

	res, err := testPipeline().Run(testContext(t), src, Request{ID: 1, Settings: s})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.HDR {
		t.Error("HDR merge not used")
	}
	if src.Frames() != 3 {
		t.Errorf("frames = %d, want 3", src.Frames())
	}
	if got := src.Settings().ExposureCompensation; got != 0.5 {
		t.Errorf("exposure after HDR = %v, want restored 0.5", got)
	}
}

func TestQuality(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0, 92},
		{0.5, 92},
		{0.92, 92},
		{0.95, 95},
		{1, 100},
		{1.5, 100},
		{math.NaN(), 92},
	}
	for _, tt := range tests {
		if got := Quality(tt.in); got != tt.want {
			t.Errorf("Quality(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
