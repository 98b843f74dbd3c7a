package geometry

import (
	"image"
	"image/color"
	"math"
	"testing"
)

const epsilon = 0.01 // tolerance for float comparisons (pixels)

func TestCropRect_PortraitViewportZoom2(t *testing.T) {
	r := CropRect(1920, 1080, 390, 844, 2)

	wantW := 1080.0 * (390.0 / 844.0) / 2
	if math.Abs(r.W-wantW) > epsilon {
		t.Errorf("width = %.3f, want %.3f", r.W, wantW)
	}
	if math.Abs(r.H-540) > epsilon {
		t.Errorf("height = %.3f, want 540", r.H)
	}
	if math.Abs(r.W-249.5) > 0.1 {
		t.Errorf("width = %.3f, want ≈249.5", r.W)
	}
	// Centred.
	if math.Abs(r.X+r.W/2-960) > epsilon || math.Abs(r.Y+r.H/2-540) > epsilon {
		t.Errorf("rect %+v not centred on (960,540)", r)
	}
}

func TestCropRect_AspectAndContainment(t *testing.T) {
	frames := [][2]int{{1920, 1080}, {1080, 1920}, {640, 480}, {4000, 3000}, {100, 100}}
	viewports := [][2]int{{390, 844}, {844, 390}, {1920, 1080}, {1, 1}, {300, 100}}
	zooms := []float64{1, 1.5, 2, 2.5, 3}

	for _, f := range frames {
		for _, v := range viewports {
			for _, z := range zooms {
				r := CropRect(f[0], f[1], v[0], v[1], z)
				wantAspect := float64(v[0]) / float64(v[1])
				if math.Abs(r.Aspect()-wantAspect) > 1e-9 {
					t.Errorf("frame %v view %v z=%v: aspect %.6f, want %.6f", f, v, z, r.Aspect(), wantAspect)
				}
				if r.X < 0 || r.Y < 0 || r.X+r.W > float64(f[0])+1e-9 || r.Y+r.H > float64(f[1])+1e-9 {
					t.Errorf("frame %v view %v z=%v: rect %+v escapes frame", f, v, z, r)
				}
			}
		}
	}
}

func TestCropRect_Defaults(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		sw, sh     int
		z          float64
		want       Rect
	}{
		{"no viewport uses frame", 1920, 1080, 0, 0, 1, Rect{0, 0, 1920, 1080}},
		{"zoom below one", 1920, 1080, 0, 0, 0.5, Rect{0, 0, 1920, 1080}},
		{"same aspect zoom 2", 1000, 500, 200, 100, 2, Rect{250, 125, 500, 250}},
		{"empty frame", 0, 0, 390, 844, 2, Rect{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CropRect(tt.w, tt.h, tt.sw, tt.sh, tt.z)
			if math.Abs(got.X-tt.want.X) > epsilon || math.Abs(got.Y-tt.want.Y) > epsilon ||
				math.Abs(got.W-tt.want.W) > epsilon || math.Abs(got.H-tt.want.H) > epsilon {
				t.Errorf("CropRect = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOutputSize(t *testing.T) {
	tests := []struct {
		r       Rect
		upscale float64
		w, h    int
	}{
		{Rect{W: 100, H: 200}, 1.5, 150, 300},
		{Rect{W: 100, H: 200}, 0, 150, 300},
		{Rect{W: 100, H: 200}, 1, 100, 200},
		{Rect{W: 0.1, H: 0.1}, 1, 1, 1},
	}
	for _, tt := range tests {
		w, h := OutputSize(tt.r, tt.upscale)
		if w != tt.w || h != tt.h {
			t.Errorf("OutputSize(%+v, %v) = %dx%d, want %dx%d", tt.r, tt.upscale, w, h, tt.w, tt.h)
		}
	}
}

func TestRender_SizeAndContent(t *testing.T) {
	// Left half red, right half blue.
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= 100 {
				c = color.RGBA{B: 255, A: 255}
			}
			src.SetRGBA(x, y, c)
		}
	}

	// Crop the red half only.
	out := Render(src, Rect{X: 0, Y: 0, W: 100, H: 100}, 2)
	if b := out.Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Fatalf("output = %v, want 200x200", b)
	}
	c := out.RGBAAt(100, 100)
	if c.R < 250 || c.B > 5 {
		t.Errorf("centre pixel = %+v, want red", c)
	}
}

func TestRender_OffsetBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 110, 110))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	out := Render(src, Rect{X: 25, Y: 25, W: 50, H: 50}, 1)
	if c := out.RGBAAt(25, 25); c.R != 200 {
		t.Errorf("pixel = %+v, want 200", c)
	}
}
