package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/cjeanneret/SurveyCam/internal/config"
	"github.com/cjeanneret/SurveyCam/internal/sensors"
)

// portFlag implements pflag.Value for --port: 0 = use config, bare --port
// → 8080, --port 8980 → 8980.
type portFlag struct {
	val         int
	defaultPort int
}

var _ pflag.Value = (*portFlag)(nil)

func (p *portFlag) String() string {
	return strconv.Itoa(p.val)
}

func (p *portFlag) Set(s string) error {
	if s == "" {
		p.val = p.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	p.val = v
	return nil
}

func (p *portFlag) Type() string { return "port" }

// listen returns the listen address, falling back to fallback when the
// flag was not given.
func (p *portFlag) listen(fallback string) string {
	if p.val == 0 {
		return fallback
	}
	return fmt.Sprintf(":%d", p.val)
}

// sensorFlags carries a position/orientation given on the command line.
// Only flags explicitly set are applied.
type sensorFlags struct {
	lat, lon, alt, heading, accuracy float64
}

func (s *sensorFlags) register(fs *pflag.FlagSet) {
	fs.Float64Var(&s.lat, "lat", 0, "latitude in decimal degrees")
	fs.Float64Var(&s.lon, "lon", 0, "longitude in decimal degrees")
	fs.Float64Var(&s.alt, "alt", 0, "altitude in metres")
	fs.Float64Var(&s.heading, "heading", 0, "compass heading in degrees (0 = north)")
	fs.Float64Var(&s.accuracy, "accuracy", 0, "horizontal accuracy in metres")
}

// reading builds a validated reading from the flags set in fs.
func (s *sensorFlags) reading(fs *pflag.FlagSet) (sensors.Reading, error) {
	var r sensors.Reading
	set := func(name string, v float64) *float64 {
		if fs.Changed(name) {
			return sensors.Float(v)
		}
		return nil
	}
	r.Latitude = set("lat", s.lat)
	r.Longitude = set("lon", s.lon)
	r.Altitude = set("alt", s.alt)
	r.Heading = set("heading", s.heading)
	r.Accuracy = set("accuracy", s.accuracy)
	if err := r.Validate(); err != nil {
		return sensors.Reading{}, fmt.Errorf("invalid sensor flags: %w", err)
	}
	return r, nil
}

// settingsFlags overrides capture settings for one command invocation.
type settingsFlags struct {
	filter   string
	ev       float64
	zoom     float64
	hdr      bool
	project  string
	location string
	wb       int
}

func (s *settingsFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&s.filter, "filter", "", "color filter (normal, bw, sepia, vintage, vivid)")
	fs.Float64Var(&s.ev, "ev", 0, "exposure compensation in EV (-2..2)")
	fs.Float64Var(&s.zoom, "zoom", 1, "zoom factor (1..3)")
	fs.BoolVar(&s.hdr, "hdr", false, "merge a three-exposure bracket")
	fs.StringVar(&s.project, "project", "", "project name stamped on the photo")
	fs.StringVar(&s.location, "location", "", "location name stamped on the photo")
	fs.IntVar(&s.wb, "white-balance", 0, "white balance in Kelvin (0 = auto)")
}

// apply returns base with every explicitly set flag applied.
func (s *settingsFlags) apply(fs *pflag.FlagSet, base config.CaptureSettings) config.CaptureSettings {
	if fs.Changed("filter") {
		base.Filter = s.filter
	}
	if fs.Changed("ev") {
		base.ExposureValue = s.ev
	}
	if fs.Changed("zoom") {
		base.Zoom = s.zoom
	}
	if fs.Changed("hdr") {
		base.HDR = s.hdr
	}
	if fs.Changed("project") {
		base.ProjectName = s.project
	}
	if fs.Changed("location") {
		base.Location = s.location
	}
	if fs.Changed("white-balance") {
		base.WhiteBalance = s.wb
	}
	return base
}
