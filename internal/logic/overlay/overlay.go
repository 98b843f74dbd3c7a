// Package overlay composites the data panel, compass dial and watermark
// over a processed frame.
package overlay

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/cjeanneret/SurveyCam/internal/debug"
)

// Brand is the watermark text.
const Brand = "LENS LIGHT"

var (
	panelFill   = color.NRGBA{R: 15, G: 23, B: 42, A: 209}    // rgba(15,23,42,0.82)
	panelStroke = color.NRGBA{R: 255, G: 255, B: 255, A: 38}  // rgba(255,255,255,0.15)
	panelText   = color.NRGBA{R: 255, G: 255, B: 255, A: 235}
	compassFill = color.NRGBA{R: 15, G: 23, B: 42, A: 184}    // rgba(15,23,42,0.72)
	compassRing = color.NRGBA{R: 255, G: 255, B: 255, A: 217} // rgba(255,255,255,0.85)
	needleColor = color.NRGBA{R: 239, G: 68, B: 68, A: 242}   // rgba(239,68,68,0.95)
	brandColor  = color.NRGBA{R: 255, G: 255, B: 255, A: 242}
)

const (
	panelRadius  = 14.0
	strokeWidth  = 2.0
	compassWidth = 3.0
)

// Options toggles each layer independently.
type Options struct {
	ShowData    bool
	ShowCompass bool
	Watermark   bool
	Logo        image.Image // optional; text-only watermark when nil
}

// Compose draws the enabled layers over img in fixed order: data panel,
// compass, watermark.
func Compose(img *image.RGBA, opts Options, info Info) {
	if opts.ShowData {
		DataPanel(img, info)
	}
	if opts.ShowCompass {
		Compass(img, info.Reading.HeadingOrZero())
	}
	if opts.Watermark {
		Watermark(img, opts.Logo)
	}
}

// PanelLayout is the geometry of the data panel for a w-wide, h-high frame.
type PanelLayout struct {
	FontSize   float64
	Padding    float64
	LineHeight float64
	X, Y, W, H float64
}

// LayoutPanel anchors the panel bottom-right: font max(w/40, 16), panel
// 46% of the width and 6.5 lines high.
func LayoutPanel(w, h int) PanelLayout {
	fs := math.Max(float64(w)/40, 16)
	l := PanelLayout{
		FontSize:   fs,
		Padding:    fs * 1.2,
		LineHeight: fs * 1.4,
		W:          float64(w) * 0.46,
	}
	l.H = l.LineHeight * 6.5
	l.X = float64(w) - l.W - l.Padding
	l.Y = float64(h) - l.H - l.Padding
	return l
}

// DataPanel draws the translucent rounded panel and its text lines.
func DataPanel(img *image.RGBA, info Info) {
	b := img.Bounds()
	l := LayoutPanel(b.Dx(), b.Dy())
	x, y := l.X+float64(b.Min.X), l.Y+float64(b.Min.Y)

	box := image.Rect(int(math.Floor(x))-2, int(math.Floor(y))-2, int(math.Ceil(x+l.W))+2, int(math.Ceil(y+l.H))+2)

	fill := newPath(img, box)
	fill.roundRect(x, y, l.W, l.H, panelRadius, false)
	fill.fill(img, panelFill)

	// Outline: outer edge minus inner edge.
	half := strokeWidth / 2
	stroke := newPath(img, box)
	stroke.roundRect(x-half, y-half, l.W+strokeWidth, l.H+strokeWidth, panelRadius+half, false)
	stroke.roundRect(x+half, y+half, l.W-strokeWidth, l.H-strokeWidth, panelRadius-half, true)
	stroke.fill(img, panelStroke)

	clip := img.SubImage(image.Rect(int(x), int(y), int(x+l.W), int(y+l.H))).(*image.RGBA)
	ty := y + l.Padding + l.FontSize
	for _, line := range Lines(info) {
		drawText(clip, line, x+l.Padding, ty, l.FontSize, panelText)
		ty += l.LineHeight
	}
	debug.Trace("Overlay: data panel at (%.0f,%.0f) %.0fx%.0f", x, y, l.W, l.H)
}

// CompassLayout returns the dial centre and radius: size = min(w,h)/8,
// centre at 1.8 size from the top-left corner, radius 0.65 size.
func CompassLayout(w, h int) (cx, cy, r float64) {
	size := math.Min(float64(w), float64(h)) / 8
	return size * 1.8, size * 1.8, size * 0.65
}

// Compass draws the dial with a needle rotated by heading (degrees,
// clockwise from north).
func Compass(img *image.RGBA, heading float64) {
	b := img.Bounds()
	cx, cy, r := CompassLayout(b.Dx(), b.Dy())
	cx += float64(b.Min.X)
	cy += float64(b.Min.Y)
	box := boxAround(cx, cy, r+compassWidth)

	dial := newPath(img, box)
	dial.circle(cx, cy, r, false)
	dial.fill(img, compassFill)

	ring := newPath(img, box)
	ring.circle(cx, cy, r+compassWidth/2, false)
	ring.circle(cx, cy, r-compassWidth/2, true)
	ring.fill(img, compassRing)

	tip := rotate(point{0, -r * 0.75}, heading)
	left := rotate(point{-r * 0.12, 0}, heading)
	right := rotate(point{r * 0.12, 0}, heading)
	needle := newPath(img, box)
	needle.polygon(
		point{cx + tip.x, cy + tip.y},
		point{cx + left.x, cy + left.y},
		point{cx + right.x, cy + right.y},
	)
	needle.fill(img, needleColor)
}

// Watermark draws the logo (when available) and the brand text near the
// frame origin.
func Watermark(img *image.RGBA, logo image.Image) {
	b := img.Bounds()
	w := float64(b.Dx())
	fs := math.Max(16, w*0.018)
	padding := fs * 1.2
	ox, oy := float64(b.Min.X), float64(b.Min.Y)

	if logo != nil && !logo.Bounds().Empty() {
		size := math.Max(50, w*0.08)
		dr := image.Rect(0, 0, int(size), int(size)).Add(image.Pt(int(ox+padding), int(oy+padding)))
		xdraw.CatmullRom.Scale(img, dr, logo, logo.Bounds(), xdraw.Over, nil)
		drawText(img, Brand, ox+padding+size+fs*0.7, oy+padding+size/2+fs*0.35, fs*1.2, brandColor)
		return
	}
	drawText(img, Brand, ox+padding, oy+padding+fs*1.2, fs*1.2, brandColor)
}

// LoadLogo decodes the watermark logo at path, giving up after timeout.
// A failed or slow load only drops the logo from the watermark.
func LoadLogo(ctx context.Context, path string, timeout time.Duration) (image.Image, error) {
	if path == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	type result struct {
		img image.Image
		err error
	}
	done := make(chan result, 1)
	go func() {
		f, err := os.Open(path)
		if err != nil {
			done <- result{err: err}
			return
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		done <- result{img: img, err: err}
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("load logo: %w", res.err)
		}
		return res.img, nil
	case <-t.C:
		return nil, fmt.Errorf("load logo: timed out after %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
