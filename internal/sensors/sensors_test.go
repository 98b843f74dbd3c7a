package sensors

import (
	"math"
	"sync"
	"testing"
)

const epsilon = 1e-9

func TestCardinal(t *testing.T) {
	tests := []struct {
		heading float64
		want    string
	}{
		{0, "N"}, {22, "N"}, {23, "NE"}, {90, "E"}, {135, "SE"},
		{180, "S"}, {225, "SW"}, {270, "W"}, {315, "NW"}, {350, "N"}, {-90, "W"},
	}
	for _, tt := range tests {
		if got := Cardinal(tt.heading); got != tt.want {
			t.Errorf("Cardinal(%v) = %q, want %q", tt.heading, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0}, {360, 0}, {-10, 350}, {725, 5},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); math.Abs(got-tt.want) > epsilon {
			t.Errorf("Normalize(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHeadingSmoother_FirstSampleVerbatim(t *testing.T) {
	s := NewHeadingSmoother(0)
	if got := s.Update(123); got != 123 {
		t.Errorf("first Update = %v, want 123", got)
	}
}

func TestHeadingSmoother_Step(t *testing.T) {
	s := NewHeadingSmoother(DefaultSmoothing)
	s.Update(100)
	if got := s.Update(200); math.Abs(got-115) > epsilon {
		t.Errorf("Update = %v, want 115", got)
	}
}

func TestHeadingSmoother_CrossesSeamTheShortWay(t *testing.T) {
	s := NewHeadingSmoother(DefaultSmoothing)
	s.Update(350)
	// 350 -> 10 is +20 through north, not -340.
	got := s.Update(10)
	if math.Abs(got-353) > epsilon {
		t.Errorf("Update = %v, want 353", got)
	}

	s = NewHeadingSmoother(0.5)
	s.Update(10)
	if got := s.Update(350); math.Abs(got-0) > epsilon {
		t.Errorf("Update = %v, want 0", got)
	}
}

func TestHeadingSmoother_Converges(t *testing.T) {
	s := NewHeadingSmoother(DefaultSmoothing)
	s.Update(0)
	var got float64
	for i := 0; i < 200; i++ {
		got = s.Update(90)
	}
	if math.Abs(got-90) > 1e-6 {
		t.Errorf("after 200 samples = %v, want ≈90", got)
	}
}

func TestHeadingSmoother_Concurrent(t *testing.T) {
	s := NewHeadingSmoother(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(h float64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Update(h)
			}
		}(float64(i * 40))
	}
	wg.Wait()
	if v := s.Value(); v < 0 || v >= 360 {
		t.Errorf("Value = %v outside [0,360)", v)
	}
}

func TestHeadingFromAlpha(t *testing.T) {
	if got := HeadingFromAlpha(90); got != 270 {
		t.Errorf("HeadingFromAlpha(90) = %v, want 270", got)
	}
	if got := HeadingFromAlpha(0); got != 0 {
		t.Errorf("HeadingFromAlpha(0) = %v, want 0", got)
	}
}

func TestReading_Validate(t *testing.T) {
	tests := []struct {
		name    string
		r       Reading
		wantErr bool
	}{
		{"empty", Reading{}, false},
		{"full", Reading{Latitude: Float(24.7), Longitude: Float(46.7), Altitude: Float(612), Heading: Float(90), Accuracy: Float(5)}, false},
		{"lat only", Reading{Latitude: Float(10)}, true},
		{"lat out of range", Reading{Latitude: Float(91), Longitude: Float(0)}, true},
		{"lon out of range", Reading{Latitude: Float(0), Longitude: Float(-181)}, true},
		{"heading 400", Reading{Heading: Float(400)}, true},
		{"negative accuracy", Reading{Accuracy: Float(-1)}, true},
		{"NaN alt", Reading{Altitude: Float(math.NaN())}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestReading_HasFix(t *testing.T) {
	if (Reading{}).HasFix() {
		t.Error("empty reading has no fix")
	}
	if !(Reading{Latitude: Float(0), Longitude: Float(0)}).HasFix() {
		t.Error("0,0 is a valid fix")
	}
}
