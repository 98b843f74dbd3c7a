package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// CameraConfig selects and configures the frame source.
// Type is one of "pattern", "file" or "snapshot".
type CameraConfig struct {
	Type              string  `yaml:"type" toml:"type"`
	Path              string  `yaml:"path" toml:"path"`                               // file source: JPEG/PNG refreshed by a grabber
	URL               string  `yaml:"url" toml:"url"`                                 // snapshot source: IP camera still endpoint
	UserPath          string  `yaml:"user_path" toml:"user_path"`                     // file source used when facing_mode is "user"
	UserURL           string  `yaml:"user_url" toml:"user_url"`                       // snapshot source used when facing_mode is "user"
	SnapshotTimeoutMs int     `yaml:"snapshot_timeout_ms" toml:"snapshot_timeout_ms"` // HTTP timeout per snapshot
	Width             int     `yaml:"width" toml:"width"`                             // pattern source size
	Height            int     `yaml:"height" toml:"height"`
	WarmupMs          int     `yaml:"warmup_ms" toml:"warmup_ms"`                       // pattern source start-up delay
	ZoomMax           float64 `yaml:"zoom_max" toml:"zoom_max"`                         // pattern hardware zoom; <= 1 = none
	ExposureControl   bool    `yaml:"exposure_control" toml:"exposure_control"`         // pattern exposure compensation (-2..2 EV)
	TorchPin          int     `yaml:"torch_pin" toml:"torch_pin"`                       // GPIO pin (BCM) driving a torch LED. 0 = none
	ButtonPin         int     `yaml:"button_pin" toml:"button_pin"`                     // GPIO pin (BCM) of a shutter button. 0 = none
	ReadyTimeoutMs    int     `yaml:"ready_timeout_ms" toml:"ready_timeout_ms"`         // readiness gate bound
	ReadyPollMs       int     `yaml:"ready_poll_ms" toml:"ready_poll_ms"`               // readiness poll period
}

// CaptureSettings is the user-facing capture configuration. It is read-only
// to the pipeline: every capture works on a snapshot of it.
type CaptureSettings struct {
	FacingMode     string  `yaml:"facing_mode" toml:"facing_mode" json:"facing_mode"` // "environment" or "user"
	Zoom           float64 `yaml:"zoom" toml:"zoom" json:"zoom"`
	Filter         string  `yaml:"filter" toml:"filter" json:"filter"`
	ExposureValue  float64 `yaml:"exposure_value" toml:"exposure_value" json:"exposure_value"` // EV, -2..2
	WhiteBalance   int     `yaml:"white_balance" toml:"white_balance" json:"white_balance"`    // Kelvin, 0 = auto
	HDR            bool    `yaml:"hdr" toml:"hdr" json:"hdr"`
	Watermark      bool    `yaml:"watermark" toml:"watermark" json:"watermark"`
	JPEGQuality    float64 `yaml:"jpeg_quality" toml:"jpeg_quality" json:"jpeg_quality"` // 0..1
	ShowData       bool    `yaml:"show_data" toml:"show_data" json:"show_data"`
	ShowCompass    bool    `yaml:"show_compass" toml:"show_compass" json:"show_compass"`
	ProjectName    string  `yaml:"project_name" toml:"project_name" json:"project_name"`
	Location       string  `yaml:"location" toml:"location" json:"location"`
	Units          string  `yaml:"units" toml:"units" json:"units"` // "metric" or "imperial"
	ViewportWidth  int     `yaml:"viewport_width" toml:"viewport_width" json:"viewport_width"`
	ViewportHeight int     `yaml:"viewport_height" toml:"viewport_height" json:"viewport_height"`
	Sharpen        bool    `yaml:"sharpen" toml:"sharpen" json:"sharpen"`
}

// PipelineConfig holds the empirical constants of the capture pipeline.
type PipelineConfig struct {
	Upscale          float64 `yaml:"upscale" toml:"upscale"`                       // output scale of the visible crop
	SharpenAmount    float64 `yaml:"sharpen_amount" toml:"sharpen_amount"`         // unsharp blend amount
	HDRFirstSettleMs int     `yaml:"hdr_first_settle_ms" toml:"hdr_first_settle_ms"` // exposure settle before the first HDR frame
	HDRSettleMs      int     `yaml:"hdr_settle_ms" toml:"hdr_settle_ms"`           // exposure settle before later HDR frames
	HDRBoost         float64 `yaml:"hdr_boost" toml:"hdr_boost"`                   // tone-map brightness boost
	BurstCount       int     `yaml:"burst_count" toml:"burst_count"`               // shot ceiling
	BurstIntervalMs  int     `yaml:"burst_interval_ms" toml:"burst_interval_ms"`   // delay between burst shots
	LogoPath         string  `yaml:"logo_path" toml:"logo_path"`                   // watermark logo (PNG/JPEG), optional
	LogoTimeoutMs    int     `yaml:"logo_timeout_ms" toml:"logo_timeout_ms"`
}

// StorageConfig selects the photo store.
type StorageConfig struct {
	Backend    string `yaml:"backend" toml:"backend"` // "bolt" or "pebble"
	Path       string `yaml:"path" toml:"path"`
	QuotaBytes int64  `yaml:"quota_bytes" toml:"quota_bytes"` // 0 = unlimited
}

// GeocodeConfig configures automatic naming of the custom location from
// the GPS position (Nominatim reverse geocoding).
type GeocodeConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	URL         string `yaml:"url" toml:"url"`
	Language    string `yaml:"language" toml:"language"`
	TimeoutMs   int    `yaml:"timeout_ms" toml:"timeout_ms"`
	CacheTTLMin int    `yaml:"cache_ttl_min" toml:"cache_ttl_min"`
}

// WebConfig configures the HTTP server.
type WebConfig struct {
	Listen string `yaml:"listen" toml:"listen"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level" toml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio" toml:"mock_gpio"`     // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig    `yaml:"camera" toml:"camera"`
	Settings CaptureSettings `yaml:"settings" toml:"settings"`
	Pipeline PipelineConfig  `yaml:"pipeline" toml:"pipeline"`
	Storage  StorageConfig   `yaml:"storage" toml:"storage"`
	Geocode  GeocodeConfig   `yaml:"geocode" toml:"geocode"`
	Web      WebConfig       `yaml:"web" toml:"web"`
	Defaults DefaultsConfig  `yaml:"defaults" toml:"defaults"`
}

// DefaultSettings returns the settings of a fresh installation.
func DefaultSettings() CaptureSettings {
	return CaptureSettings{
		FacingMode:  "environment",
		Zoom:        1,
		Filter:      "normal",
		JPEGQuality: 1,
		ShowData:    true,
		ShowCompass: true,
		Location:    "Riyadh Province",
		Units:       "metric",
	}
}

// Default returns a complete configuration with every default applied.
func Default() *Config {
	cfg := &Config{Settings: DefaultSettings()}
	cfg.applyDefaults()
	return cfg
}

// ValidateConfigPath checks that path names a .yaml or .toml file directly
// inside a directory called "configs", with no traversal component.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	switch filepath.Ext(clean) {
	case ".yaml", ".toml":
	default:
		return fmt.Errorf("config path %q must end in .yaml or .toml", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML or TOML file (chosen by extension) and returns the
// configuration with defaults applied.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Config{Settings: DefaultSettings()}
	switch filepath.Ext(path) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Camera.Type == "" {
		c.Camera.Type = "pattern"
	}
	if c.Camera.Width <= 0 {
		c.Camera.Width = 1920
	}
	if c.Camera.Height <= 0 {
		c.Camera.Height = 1080
	}
	if c.Camera.SnapshotTimeoutMs <= 0 {
		c.Camera.SnapshotTimeoutMs = 5000
	}
	if c.Camera.ReadyTimeoutMs <= 0 {
		c.Camera.ReadyTimeoutMs = 2500 // bounded wait for frame dimensions
	}
	if c.Camera.ReadyPollMs <= 0 {
		c.Camera.ReadyPollMs = 100
	}

	c.Settings.applyDefaults()

	if c.Pipeline.Upscale <= 0 {
		c.Pipeline.Upscale = 1.5
	}
	if c.Pipeline.SharpenAmount <= 0 {
		c.Pipeline.SharpenAmount = 0.15
	}
	if c.Pipeline.HDRFirstSettleMs <= 0 {
		c.Pipeline.HDRFirstSettleMs = 400
	}
	if c.Pipeline.HDRSettleMs <= 0 {
		c.Pipeline.HDRSettleMs = 250
	}
	if c.Pipeline.HDRBoost <= 0 {
		c.Pipeline.HDRBoost = 1.1
	}
	if c.Pipeline.BurstCount <= 0 {
		c.Pipeline.BurstCount = 10
	}
	if c.Pipeline.BurstIntervalMs <= 0 {
		c.Pipeline.BurstIntervalMs = 300
	}
	if c.Pipeline.LogoTimeoutMs <= 0 {
		c.Pipeline.LogoTimeoutMs = 800
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "bolt"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "surveycam.db"
	}
	if c.Geocode.URL == "" {
		c.Geocode.URL = "https://nominatim.openstreetmap.org/reverse"
	}
	if c.Geocode.Language == "" {
		c.Geocode.Language = "en"
	}
	if c.Geocode.TimeoutMs <= 0 {
		c.Geocode.TimeoutMs = 10000
	}
	if c.Geocode.CacheTTLMin <= 0 {
		c.Geocode.CacheTTLMin = 60
	}
	if c.Web.Listen == "" {
		c.Web.Listen = ":8080"
	}
}

func (s *CaptureSettings) applyDefaults() {
	if s.FacingMode == "" {
		s.FacingMode = "environment"
	}
	if s.Zoom == 0 {
		s.Zoom = 1
	}
	if s.Filter == "" {
		s.Filter = "normal"
	}
	if s.JPEGQuality == 0 {
		s.JPEGQuality = 1
	}
	if s.Units == "" {
		s.Units = "metric"
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Camera.Type {
	case "pattern":
	case "file":
		if c.Camera.Path == "" {
			return errors.New("camera.path is required for the file source")
		}
	case "snapshot":
		if c.Camera.URL == "" {
			return errors.New("camera.url is required for the snapshot source")
		}
	default:
		return fmt.Errorf("unknown camera.type %q", c.Camera.Type)
	}
	if c.Camera.TorchPin < 0 || c.Camera.ButtonPin < 0 {
		return errors.New("camera pins must be >= 0")
	}
	if c.Camera.TorchPin != 0 && c.Camera.TorchPin == c.Camera.ButtonPin {
		return fmt.Errorf("torch_pin and button_pin must differ, both %d", c.Camera.TorchPin)
	}

	if err := c.Settings.Validate(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	for _, f := range []struct {
		name string
		v    float64
	}{
		{"camera.zoom_max", c.Camera.ZoomMax},
		{"pipeline.upscale", c.Pipeline.Upscale},
		{"pipeline.sharpen_amount", c.Pipeline.SharpenAmount},
		{"pipeline.hdr_boost", c.Pipeline.HDRBoost},
	} {
		if err := finite(f.name, f.v); err != nil {
			return err
		}
	}

	if c.Pipeline.SharpenAmount > 1 {
		return fmt.Errorf("pipeline.sharpen_amount must be <= 1, got %.2f", c.Pipeline.SharpenAmount)
	}
	if c.Pipeline.BurstCount > 10 {
		return fmt.Errorf("pipeline.burst_count must be <= 10, got %d", c.Pipeline.BurstCount)
	}

	switch c.Storage.Backend {
	case "bolt", "pebble":
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Storage.QuotaBytes < 0 {
		return errors.New("storage.quota_bytes must be >= 0")
	}
	if c.Geocode.Enabled && !strings.HasPrefix(c.Geocode.URL, "http://") && !strings.HasPrefix(c.Geocode.URL, "https://") {
		return fmt.Errorf("geocode.url must be an http(s) URL, got %q", c.Geocode.URL)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// Validate checks the numeric and enumerated fields. Filter names are
// checked by the capture pipeline, which owns the filter table.
func (s CaptureSettings) Validate() error {
	switch s.FacingMode {
	case "environment", "user":
	default:
		return fmt.Errorf("facing_mode must be environment or user, got %q", s.FacingMode)
	}
	// NaN passes every range comparison below.
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"zoom", s.Zoom},
		{"exposure_value", s.ExposureValue},
		{"jpeg_quality", s.JPEGQuality},
	} {
		if err := finite(f.name, f.v); err != nil {
			return err
		}
	}
	if s.Zoom < 1 || s.Zoom > 3 {
		return fmt.Errorf("zoom must be between 1 and 3, got %.2f", s.Zoom)
	}
	if s.ExposureValue < -2 || s.ExposureValue > 2 {
		return fmt.Errorf("exposure_value must be between -2 and 2, got %.2f", s.ExposureValue)
	}
	if s.WhiteBalance != 0 && (s.WhiteBalance < 1000 || s.WhiteBalance > 40000) {
		return fmt.Errorf("white_balance must be 0 or between 1000 and 40000 K, got %d", s.WhiteBalance)
	}
	if s.JPEGQuality < 0 || s.JPEGQuality > 1 {
		return fmt.Errorf("jpeg_quality must be between 0 and 1, got %.2f", s.JPEGQuality)
	}
	switch s.Units {
	case "metric", "imperial":
	default:
		return fmt.Errorf("units must be metric or imperial, got %q", s.Units)
	}
	if s.ViewportWidth < 0 || s.ViewportHeight < 0 {
		return errors.New("viewport dimensions must be >= 0")
	}
	return nil
}

func finite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be a finite number, got %v", name, v)
	}
	return nil
}

// ReadyTimeout returns the readiness gate bound.
func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Camera.ReadyTimeoutMs) * time.Millisecond
}

// ReadyPoll returns the readiness poll period.
func (c *Config) ReadyPoll() time.Duration {
	return time.Duration(c.Camera.ReadyPollMs) * time.Millisecond
}

// Warmup returns the pattern source start-up delay.
func (c *Config) Warmup() time.Duration {
	return time.Duration(c.Camera.WarmupMs) * time.Millisecond
}

// SnapshotTimeout returns the HTTP timeout for snapshot sources.
func (c *Config) SnapshotTimeout() time.Duration {
	return time.Duration(c.Camera.SnapshotTimeoutMs) * time.Millisecond
}

// HDRFirstSettle returns the exposure settle delay before the first HDR frame.
func (c *Config) HDRFirstSettle() time.Duration {
	return time.Duration(c.Pipeline.HDRFirstSettleMs) * time.Millisecond
}

// HDRSettle returns the exposure settle delay before later HDR frames.
func (c *Config) HDRSettle() time.Duration {
	return time.Duration(c.Pipeline.HDRSettleMs) * time.Millisecond
}

// BurstInterval returns the delay between two burst shots.
func (c *Config) BurstInterval() time.Duration {
	return time.Duration(c.Pipeline.BurstIntervalMs) * time.Millisecond
}

// GeocodeTimeout returns the HTTP timeout of one reverse lookup.
func (c *Config) GeocodeTimeout() time.Duration {
	return time.Duration(c.Geocode.TimeoutMs) * time.Millisecond
}

// GeocodeCacheTTL returns how long a looked-up label is reused.
func (c *Config) GeocodeCacheTTL() time.Duration {
	return time.Duration(c.Geocode.CacheTTLMin) * time.Minute
}

// LogoTimeout returns how long the watermark logo may take to load.
func (c *Config) LogoTimeout() time.Duration {
	return time.Duration(c.Pipeline.LogoTimeoutMs) * time.Millisecond
}
