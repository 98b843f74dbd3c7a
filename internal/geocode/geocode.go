// Package geocode names a GPS position with a short place label
// ("City, Region, Country") through a Nominatim reverse lookup.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/SurveyCam/internal/config"
	"github.com/cjeanneret/SurveyCam/internal/debug"
)

const (
	maxCacheEntries = 50
	maxResponse     = 1 << 20
	userAgent       = "SurveyCam/1.0"
)

// Reverser turns a position into a place label.
type Reverser interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

type cacheEntry struct {
	label string
	at    time.Time
}

// Client is a caching Nominatim reverse-geocoding client. Labels are cached
// per position rounded to three decimals (about 100 m).
type Client struct {
	url      string
	language string
	ttl      time.Duration
	http     *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
	order []string // insertion order, oldest first
	now   func() time.Time
}

// NewClient builds a client from the geocode section of cfg.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		url:      cfg.Geocode.URL,
		language: cfg.Geocode.Language,
		ttl:      cfg.GeocodeCacheTTL(),
		http:     &http.Client{Timeout: cfg.GeocodeTimeout()},
		cache:    make(map[string]cacheEntry),
		now:      time.Now,
	}
}

// Address is the address part of a reverse lookup.
type Address struct {
	City    string `json:"city"`
	Town    string `json:"town"`
	Village string `json:"village"`
	Suburb  string `json:"suburb"`
	State   string `json:"state"`
	Region  string `json:"region"`
	County  string `json:"county"`
	Country string `json:"country"`
}

type reverseResponse struct {
	DisplayName string   `json:"display_name"`
	Address     *Address `json:"address"`
}

// Reverse returns the place label of (lat, lon). An empty label with a nil
// error means the service knows no name for the position.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	key := fmt.Sprintf("%.3f,%.3f", lat, lon)
	if label, ok := c.cached(key); ok {
		debug.Trace("Geocode: cache hit %s", key)
		return label, nil
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("zoom", "12")
	q.Set("addressdetails", "1")
	q.Set("accept-language", c.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("geocode %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocode %s: status %d", key, resp.StatusCode)
	}

	var r reverseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponse)).Decode(&r); err != nil {
		return "", fmt.Errorf("geocode %s: decode: %w", key, err)
	}
	label := Label(r.Address, r.DisplayName)
	c.store(key, label)
	debug.Verbose("Geocode: %s -> %q", key, label)
	return label, nil
}

func (c *Client) cached(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	if !ok || c.now().Sub(e.at) >= c.ttl {
		return "", false
	}
	return e.label, true
}

func (c *Client) store(key, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cache[key]; !ok {
		c.order = append(c.order, key)
	}
	c.cache[key] = cacheEntry{label: label, at: c.now()}
	for len(c.order) > maxCacheEntries {
		delete(c.cache, c.order[0])
		c.order = c.order[1:]
	}
}

// Label joins locality, region and country, skipping a part equal to the
// one before it. fallback is used when the address yields nothing.
func Label(a *Address, fallback string) string {
	if a == nil {
		return strings.TrimSpace(fallback)
	}
	city := firstNonEmpty(a.City, a.Town, a.Village, a.Suburb)
	region := firstNonEmpty(a.State, a.Region, a.County)

	var parts []string
	if city != "" {
		parts = append(parts, city)
	}
	if region != "" && region != city {
		parts = append(parts, region)
	}
	if a.Country != "" && a.Country != region {
		parts = append(parts, a.Country)
	}
	if len(parts) == 0 {
		return strings.TrimSpace(fallback)
	}
	return strings.Join(parts, ", ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
