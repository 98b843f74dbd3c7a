package overlay

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/SurveyCam/internal/sensors"
)

func gray(w, h int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
	}
	return img
}

func sameImage(a, b *image.RGBA) bool {
	return bytes.Equal(a.Pix, b.Pix)
}

func TestFormatAltitude(t *testing.T) {
	tests := []struct {
		alt   *float64
		units string
		want  string
	}{
		{sensors.Float(612.4), "metric", "612 m"},
		{sensors.Float(612.4), "imperial", "2009 ft"},
		{nil, "metric", "-- m"},
		{nil, "imperial", "-- ft"},
		{sensors.Float(math.NaN()), "metric", "-- m"},
		{sensors.Float(0), "metric", "0 m"},
	}
	for _, tt := range tests {
		if got := FormatAltitude(tt.alt, tt.units); got != tt.want {
			t.Errorf("FormatAltitude(%v, %s) = %q, want %q", tt.alt, tt.units, got, tt.want)
		}
	}
}

func TestFormatCoords(t *testing.T) {
	r := sensors.Reading{Latitude: sensors.Float(24.7136), Longitude: sensors.Float(46.6753)}
	if got := FormatCoords(r); got != "GPS: 24.713600, 46.675300" {
		t.Errorf("FormatCoords = %q", got)
	}
	if got := FormatCoords(sensors.Reading{}); got != "GPS: --" {
		t.Errorf("FormatCoords(empty) = %q", got)
	}
}

func TestFormatHeading(t *testing.T) {
	if got := FormatHeading(sensors.Float(359.6)); got != "Heading: 0°" {
		t.Errorf("FormatHeading(359.6) = %q", got)
	}
	if got := FormatHeading(sensors.Float(87.2)); got != "Heading: 87°" {
		t.Errorf("FormatHeading(87.2) = %q", got)
	}
	if got := FormatHeading(nil); got != "Heading: --" {
		t.Errorf("FormatHeading(nil) = %q", got)
	}
}

func TestLines(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 5, 7, 0, time.UTC)
	full := Lines(Info{
		ProjectName: "North Ridge",
		Location:    "Riyadh Province",
		Time:        ts,
		Reading:     sensors.Reading{Altitude: sensors.Float(10), Heading: sensors.Float(90)},
		Units:       "metric",
	})
	want := []string{
		"Project: North Ridge",
		"Time: 14/03/2026, 09:05:07",
		"GPS: --",
		"Alt: 10 m",
		"Heading: 90°",
		"Loc: Riyadh Province",
	}
	if strings.Join(full, "|") != strings.Join(want, "|") {
		t.Errorf("Lines =\n%q\nwant\n%q", full, want)
	}

	// Empty project and location are dropped.
	short := Lines(Info{Time: ts})
	if len(short) != 4 {
		t.Errorf("Lines without project/location = %d lines, want 4: %q", len(short), short)
	}
	if strings.HasPrefix(short[0], "Project") {
		t.Errorf("first line = %q, project should be skipped", short[0])
	}
}

func TestLayoutPanel(t *testing.T) {
	l := LayoutPanel(1600, 1200)
	if l.FontSize != 40 || l.Padding != 48 || math.Abs(l.LineHeight-56) > 1e-9 {
		t.Errorf("layout = %+v", l)
	}
	if math.Abs(l.W-736) > 1e-9 || math.Abs(l.H-364) > 1e-9 {
		t.Errorf("panel = %vx%v, want 736x364", l.W, l.H)
	}
	if math.Abs(l.X+l.W+l.Padding-1600) > 1e-9 || math.Abs(l.Y+l.H+l.Padding-1200) > 1e-9 {
		t.Errorf("panel not anchored bottom-right: %+v", l)
	}

	// Small frames keep the 16px floor.
	if small := LayoutPanel(320, 240); small.FontSize != 16 {
		t.Errorf("small font = %v, want 16", small.FontSize)
	}
}

func TestCompassLayout(t *testing.T) {
	cx, cy, r := CompassLayout(1600, 800)
	if math.Abs(cx-180) > 1e-9 || math.Abs(cy-180) > 1e-9 || math.Abs(r-65) > 1e-9 {
		t.Errorf("CompassLayout = (%v, %v, %v), want (180, 180, 65)", cx, cy, r)
	}
}

func TestCompose_AllOffLeavesImage(t *testing.T) {
	img := gray(400, 300, 128)
	before := gray(400, 300, 128)
	Compose(img, Options{}, Info{Time: time.Now()})
	if !sameImage(img, before) {
		t.Error("Compose with every layer off modified the image")
	}
}

func TestDataPanel_DarkensPanelOnly(t *testing.T) {
	img := gray(800, 600, 200)
	DataPanel(img, Info{Time: time.Now(), ProjectName: "P"})

	l := LayoutPanel(800, 600)
	// Just inside the bottom-right corner, clear of text.
	in := img.RGBAAt(int(l.X+l.W)-20, int(l.Y+l.H)-5)
	if in.R >= 100 {
		t.Errorf("panel pixel = %+v, want darkened", in)
	}
	if out := img.RGBAAt(10, 10); out.R != 200 {
		t.Errorf("pixel outside panel = %+v, want untouched", out)
	}
}

func TestDataPanel_DrawsText(t *testing.T) {
	img := gray(800, 600, 0)
	DataPanel(img, Info{Time: time.Now()})
	l := LayoutPanel(800, 600)

	bright := 0
	for y := int(l.Y); y < int(l.Y+l.H); y++ {
		for x := int(l.X); x < int(l.X+l.W); x++ {
			if img.RGBAAt(x, y).R > 150 {
				bright++
			}
		}
	}
	if bright < 50 {
		t.Errorf("only %d bright pixels in the panel, expected text", bright)
	}
}

func TestCompass_NeedleFollowsHeading(t *testing.T) {
	needleAt := func(heading float64) color.RGBA {
		img := gray(800, 800, 0)
		Compass(img, heading)
		cx, cy, r := CompassLayout(800, 800)
		// Point halfway along the needle for a north heading.
		return img.RGBAAt(int(cx), int(cy-r*0.4))
	}
	north := needleAt(0)
	if north.R < 150 || north.G > 100 {
		t.Errorf("needle pixel at heading 0 = %+v, want red", north)
	}
	south := needleAt(180)
	if south.R > 100 {
		t.Errorf("same pixel at heading 180 = %+v, want dial fill", south)
	}
}

func TestCompass_DialPainted(t *testing.T) {
	img := gray(800, 800, 255)
	Compass(img, 45)
	cx, cy, r := CompassLayout(800, 800)
	// Lower half of the dial, away from the needle.
	c := img.RGBAAt(int(cx), int(cy+r*0.5))
	if c.R > 120 {
		t.Errorf("dial pixel = %+v, want dark fill", c)
	}
	if c := img.RGBAAt(int(cx+r+20), int(cy)); c.R != 255 {
		t.Errorf("pixel outside dial = %+v, want untouched", c)
	}
}

func TestWatermark_TextOnlyWithoutLogo(t *testing.T) {
	img := gray(1000, 600, 0)
	Watermark(img, nil)

	bright := 0
	for y := 0; y < 80; y++ {
		for x := 0; x < 300; x++ {
			if img.RGBAAt(x, y).R > 150 {
				bright++
			}
		}
	}
	if bright == 0 {
		t.Error("watermark text not drawn")
	}
}

func TestWatermark_WithLogo(t *testing.T) {
	logo := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for i := 0; i < len(logo.Pix); i += 4 {
		logo.Pix[i], logo.Pix[i+3] = 255, 255
	}
	img := gray(1000, 600, 0)
	Watermark(img, logo)

	// Logo square: padding 21.6, size 80.
	c := img.RGBAAt(60, 60)
	if c.R < 250 || c.G != 0 {
		t.Errorf("logo pixel = %+v, want red", c)
	}
}

func TestDrawText_ClipsAtEdges(t *testing.T) {
	img := gray(50, 20, 0)
	// Partly outside on every side; must not panic.
	drawText(img, "OVERFLOWING TEXT", -10, 5, 30, color.White)
	drawText(img, "X", 45, 25, 30, color.White)
	drawText(img, "", 0, 0, 10, color.White)
}

func TestLoadLogo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logo.png")
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 12, 12))); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	img, err := LoadLogo(context.Background(), path, time.Second)
	if err != nil {
		t.Fatalf("LoadLogo: %v", err)
	}
	if img.Bounds().Dx() != 12 {
		t.Errorf("logo width = %d, want 12", img.Bounds().Dx())
	}

	if _, err := LoadLogo(context.Background(), filepath.Join(dir, "missing.png"), time.Second); err == nil {
		t.Error("expected error for missing logo")
	}

	if img, err := LoadLogo(context.Background(), "", time.Second); img != nil || err != nil {
		t.Errorf("empty path = (%v, %v), want (nil, nil)", img, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := LoadLogo(ctx, path, time.Second); err == nil {
		t.Error("expected error for cancelled context")
	}
}
