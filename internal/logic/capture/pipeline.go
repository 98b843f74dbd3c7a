package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"time"

	"github.com/cjeanneret/SurveyCam/internal/config"
	"github.com/cjeanneret/SurveyCam/internal/debug"
	"github.com/cjeanneret/SurveyCam/internal/hw/camera"
	"github.com/cjeanneret/SurveyCam/internal/logic/filter"
	"github.com/cjeanneret/SurveyCam/internal/logic/geometry"
	"github.com/cjeanneret/SurveyCam/internal/logic/hdr"
	"github.com/cjeanneret/SurveyCam/internal/logic/overlay"
	"github.com/cjeanneret/SurveyCam/internal/metrics"
	"github.com/cjeanneret/SurveyCam/internal/sensors"
	"github.com/cjeanneret/SurveyCam/internal/storage"
)

// ErrEncode is returned when the processed raster cannot be compressed.
var ErrEncode = errors.New("image encode failed")

// MinJPEGQuality keeps overlay text legible.
const MinJPEGQuality = 0.92

// MIMEJPEG is the MIME type of every captured photo.
const MIMEJPEG = "image/jpeg"

// Pipeline turns one frame of a source into an encoded photo.
type Pipeline struct {
	Upscale       float64
	SharpenAmount float64
	HDR           hdr.Options // Under/Over are offsets from the requested EV
	ReadyTimeout  time.Duration
	ReadyPoll     time.Duration
	Logo          image.Image // watermark logo, optional

	now    func() time.Time
	encode func(*image.RGBA, int) ([]byte, error)
}

// NewPipeline builds a pipeline from the pipeline and camera sections of cfg.
func NewPipeline(cfg *config.Config, logo image.Image) *Pipeline {
	opts := hdr.DefaultOptions()
	opts.FirstSettle = cfg.HDRFirstSettle()
	opts.Settle = cfg.HDRSettle()
	opts.Boost = cfg.Pipeline.HDRBoost
	return &Pipeline{
		Upscale:       cfg.Pipeline.Upscale,
		SharpenAmount: cfg.Pipeline.SharpenAmount,
		HDR:           opts,
		ReadyTimeout:  cfg.ReadyTimeout(),
		ReadyPoll:     cfg.ReadyPoll(),
		Logo:          logo,
	}
}

// Request is one shutter press.
type Request struct {
	ID       int64
	Settings config.CaptureSettings
	Reading  sensors.Reading
}

// Result is an encoded photo ready to be persisted.
type Result struct {
	Photo storage.Photo
	Image []byte
	Crop  geometry.Rect
	HDR   bool // true when the merged exposure series was used
}

// Run executes readiness gate, hardware constraints, frame grab (HDR or
// single), crop/upscale, color pipeline, overlays and JPEG encode.
//
// Not-ready and encode failures abort; unsupported controls and HDR
// failures degrade to software equivalents or a single exposure.
func (p *Pipeline) Run(ctx context.Context, src camera.FrameSource, req Request) (*Result, error) {
	s := req.Settings
	debug.Section(fmt.Sprintf("Capture %d", req.ID))

	debug.Step(1, "readiness gate")
	if !camera.WaitReady(ctx, src, p.ReadyTimeout, p.ReadyPoll) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, camera.ErrNotReady
	}

	debug.Step(2, "hardware constraints")
	digitalZoom := camera.ApplyZoom(ctx, src, s.Zoom)
	// The color pipeline's EV multiplier is applied on top of any
	// hardware compensation.
	camera.ApplyExposure(ctx, src, s.ExposureValue)

	debug.Step(3, "frame grab")
	frame, usedHDR, err := p.grab(ctx, src, s)
	if err != nil {
		return nil, err
	}
	b := frame.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: %dx%d frame", camera.ErrNotReady, b.Dx(), b.Dy())
	}

	debug.Step(4, "crop and upscale")
	rect := geometry.CropRect(b.Dx(), b.Dy(), s.ViewportWidth, s.ViewportHeight, digitalZoom)
	out := geometry.Render(frame, rect, p.Upscale)
	debug.Verbose("Capture: crop %.1f,%.1f %.1fx%.1f (digital zoom %.2f) -> %dx%d",
		rect.X, rect.Y, rect.W, rect.H, digitalZoom, out.Bounds().Dx(), out.Bounds().Dy())

	debug.Step(5, "color pipeline")
	filterName := s.Filter
	if filterName == "" {
		filterName = filter.Normal
	}
	filter.Pipeline{
		Filter:        filterName,
		Exposure:      s.ExposureValue,
		WhiteBalance:  s.WhiteBalance,
		Sharpen:       s.Sharpen,
		SharpenAmount: p.SharpenAmount,
	}.Apply(out)

	debug.Step(6, "overlays")
	now := p.clock()
	overlay.Compose(out, overlay.Options{
		ShowData:    s.ShowData,
		ShowCompass: s.ShowCompass,
		Watermark:   s.Watermark,
		Logo:        p.Logo,
	}, overlay.Info{
		ProjectName: s.ProjectName,
		Location:    s.Location,
		Time:        now,
		Reading:     req.Reading,
		Units:       s.Units,
	})

	debug.Step(7, "encode")
	quality := Quality(s.JPEGQuality)
	enc := p.encode
	if enc == nil {
		enc = encodeJPEG
	}
	data, err := enc(out, quality)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrEncode)
	}

	r := req.Reading
	return &Result{
		Photo: storage.Photo{
			ID:          req.ID,
			Timestamp:   now,
			Lat:         r.Latitude,
			Lon:         r.Longitude,
			Alt:         r.Altitude,
			Heading:     r.Heading,
			Accuracy:    r.Accuracy,
			ProjectName: s.ProjectName,
			Location:    s.Location,
			MIME:        MIMEJPEG,
			Filter:      filterName,
			Size:        len(data),
		},
		Image: data,
		Crop:  rect,
		HDR:   usedHDR,
	}, nil
}

// grab returns the HDR merge when requested and possible, otherwise one
// frame.
func (p *Pipeline) grab(ctx context.Context, src camera.FrameSource, s config.CaptureSettings) (image.Image, bool, error) {
	if s.HDR {
		opts := p.HDR
		opts.Normal = s.ExposureValue
		opts.Under = s.ExposureValue + p.HDR.Under
		opts.Over = s.ExposureValue + p.HDR.Over
		merged, err := hdr.Capture(ctx, src, opts)
		if err == nil {
			return merged, true, nil
		}
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		metrics.IncHDRFallback()
		if errors.Is(err, camera.ErrUnsupported) {
			debug.Live("Capture: HDR unsupported by source, single exposure")
		} else {
			debug.Warn("Capture: HDR failed, single exposure: %v", err)
		}
	}

	frame, err := src.Frame(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("grab frame: %w", err)
	}
	return frame, false, nil
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Quality maps a 0..1 quality setting to a JPEG quality with the
// legibility floor applied.
func Quality(q float64) int {
	if q < MinJPEGQuality || math.IsNaN(q) {
		q = MinJPEGQuality
	}
	if q > 1 {
		q = 1
	}
	return int(math.Round(q * 100))
}

func encodeJPEG(img *image.RGBA, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
