package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cjeanneret/SurveyCam/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Geocode.URL = srv.URL + "/reverse"
	cfg.Geocode.Language = "ar"
	return NewClient(cfg), &hits
}

func TestReverse(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/reverse" || q.Get("format") != "jsonv2" || q.Get("zoom") != "12" || q.Get("accept-language") != "ar" {
			t.Errorf("request = %s", r.URL)
		}
		if q.Get("lat") != "24.7136" || q.Get("lon") != "46.6753" {
			t.Errorf("position = %s,%s", q.Get("lat"), q.Get("lon"))
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		fmt.Fprint(w, `{"display_name":"long name","address":{"city":"Riyadh","state":"Riyadh Province","country":"Saudi Arabia"}}`)
	})

	label, err := c.Reverse(testContext(t), 24.7136, 46.6753)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if label != "Riyadh, Riyadh Province, Saudi Arabia" {
		t.Errorf("label = %q", label)
	}

	// Same position to three decimals is served from the cache.
	if label, err := c.Reverse(testContext(t), 24.71361, 46.67529); err != nil || label != "Riyadh, Riyadh Province, Saudi Arabia" {
		t.Errorf("cached Reverse = %q, %v", label, err)
	}
	if hits.Load() != 1 {
		t.Errorf("requests = %d, want 1", hits.Load())
	}
}

func TestReverse_CacheExpires(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"address":{"town":"Ushayqir"}}`)
	})
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Reverse(testContext(t), 25.3, 45.2)
	now = now.Add(59 * time.Minute)
	c.Reverse(testContext(t), 25.3, 45.2)
	if hits.Load() != 1 {
		t.Fatalf("requests within ttl = %d, want 1", hits.Load())
	}
	now = now.Add(2 * time.Minute)
	c.Reverse(testContext(t), 25.3, 45.2)
	if hits.Load() != 2 {
		t.Errorf("requests after ttl = %d, want 2", hits.Load())
	}
}

func TestReverse_CacheBounded(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"address":{"village":"X"}}`)
	})
	for i := 0; i < maxCacheEntries+10; i++ {
		if _, err := c.Reverse(testContext(t), float64(i), 0); err != nil {
			t.Fatalf("Reverse %d: %v", i, err)
		}
	}
	if len(c.cache) != maxCacheEntries || len(c.order) != maxCacheEntries {
		t.Errorf("cache = %d entries (%d ordered), want %d", len(c.cache), len(c.order), maxCacheEntries)
	}
	if _, ok := c.cache["0.000,0.000"]; ok {
		t.Error("oldest entry not evicted")
	}
}

func TestReverse_Errors(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lat") == "1" {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `not json`)
	})
	if _, err := c.Reverse(testContext(t), 1, 1); err == nil {
		t.Error("expected error for 429")
	}
	if _, err := c.Reverse(testContext(t), 2, 2); err == nil {
		t.Error("expected error for bad body")
	}
	// Failures are not cached.
	c.Reverse(testContext(t), 1, 1)
	if hits.Load() != 3 {
		t.Errorf("requests = %d, want 3", hits.Load())
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name     string
		addr     *Address
		fallback string
		want     string
	}{
		{"full", &Address{City: "Jeddah", State: "Makkah Region", Country: "Saudi Arabia"}, "", "Jeddah, Makkah Region, Saudi Arabia"},
		{"town and county", &Address{Town: "Alba", County: "Cuneo", Country: "Italia"}, "", "Alba, Cuneo, Italia"},
		{"region equals city", &Address{City: "Berlin", State: "Berlin", Country: "Deutschland"}, "", "Berlin, Deutschland"},
		{"country equals region", &Address{Suburb: "Ville", Region: "Monaco", Country: "Monaco"}, "", "Ville, Monaco"},
		{"empty address", &Address{}, " Somewhere ", "Somewhere"},
		{"no address", nil, "Open sea", "Open sea"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Label(tt.addr, tt.fallback); got != tt.want {
				t.Errorf("Label = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------- AutoLocator ----------

type fakeReverser struct {
	mu    sync.Mutex
	label string
	err   error
	calls int
}

func (f *fakeReverser) Reverse(context.Context, float64, float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.label, f.err
}

type settingsTarget struct {
	mu sync.Mutex
	s  config.CaptureSettings
}

func (s *settingsTarget) Settings() config.CaptureSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s
}

func (s *settingsTarget) SetAutoLocation(label string, replaceable func(string) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if label == s.s.Location || !replaceable(s.s.Location) {
		return false
	}
	s.s.Location = label
	return true
}

func (s *settingsTarget) setLocation(loc string) {
	s.mu.Lock()
	s.s.Location = loc
	s.mu.Unlock()
}

func newAutoLocator(rev Reverser, location string) (*AutoLocator, *settingsTarget, *time.Time) {
	target := &settingsTarget{s: config.DefaultSettings()}
	target.s.Location = location
	a := NewAutoLocator(rev, target, "Riyadh Province")
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	return a, target, &now
}

func TestAutoLocator_FillsPlaceholder(t *testing.T) {
	for _, loc := range []string{"", "  ", "Riyadh Province"} {
		rev := &fakeReverser{label: "Diriyah, Riyadh Province, Saudi Arabia"}
		a, target, _ := newAutoLocator(rev, loc)
		label, changed := a.Update(testContext(t), 24.73, 46.57)
		if !changed || label != rev.label || target.Settings().Location != rev.label {
			t.Errorf("location %q: Update = %q, %v; settings %q", loc, label, changed, target.Settings().Location)
		}
	}
}

func TestAutoLocator_KeepsUserLocation(t *testing.T) {
	rev := &fakeReverser{label: "Diriyah"}
	a, target, _ := newAutoLocator(rev, "Bridge pier 4")
	if _, changed := a.Update(testContext(t), 24.73, 46.57); changed {
		t.Error("user location replaced")
	}
	if rev.calls != 0 {
		t.Errorf("lookups = %d, want none", rev.calls)
	}
	if target.Settings().Location != "Bridge pier 4" {
		t.Errorf("location = %q", target.Settings().Location)
	}
}

func TestAutoLocator_Throttle(t *testing.T) {
	rev := &fakeReverser{label: "Diriyah"}
	a, target, now := newAutoLocator(rev, "")

	a.Update(testContext(t), 24.73, 46.57)
	*now = now.Add(30 * time.Second)
	a.Update(testContext(t), 25.90, 45.10)
	if rev.calls != 1 {
		t.Fatalf("lookups within a minute = %d, want 1", rev.calls)
	}

	// A later label replaces the earlier automatic one.
	rev.label = "Buraydah"
	*now = now.Add(time.Minute)
	if label, changed := a.Update(testContext(t), 26.33, 43.97); !changed || label != "Buraydah" {
		t.Errorf("Update = %q, %v", label, changed)
	}
	if target.Settings().Location != "Buraydah" {
		t.Errorf("location = %q", target.Settings().Location)
	}

	// Same area is not looked up again for five minutes.
	*now = now.Add(2 * time.Minute)
	a.Update(testContext(t), 26.331, 43.972)
	if rev.calls != 2 {
		t.Errorf("same-area lookups = %d, want 2", rev.calls)
	}
	*now = now.Add(4 * time.Minute)
	a.Update(testContext(t), 26.331, 43.972)
	if rev.calls != 3 {
		t.Errorf("lookups after five minutes = %d, want 3", rev.calls)
	}

	// Once the user types a location it is left alone.
	target.setLocation("Camp B")
	*now = now.Add(time.Hour)
	if _, changed := a.Update(testContext(t), 20, 40); changed || target.Settings().Location != "Camp B" {
		t.Errorf("user location overwritten: %q", target.Settings().Location)
	}
}

func TestAutoLocator_LookupFailure(t *testing.T) {
	rev := &fakeReverser{err: errors.New("offline")}
	a, target, _ := newAutoLocator(rev, "")
	if _, changed := a.Update(testContext(t), 24.73, 46.57); changed {
		t.Error("failed lookup changed settings")
	}
	if target.Settings().Location != "" {
		t.Errorf("location = %q", target.Settings().Location)
	}

	rev.err, rev.label = nil, ""
	a.lastAt = time.Time{}
	if _, changed := a.Update(testContext(t), 24.73, 46.57); changed {
		t.Error("empty label changed settings")
	}
}
