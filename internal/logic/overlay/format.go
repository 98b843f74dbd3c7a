package overlay

import (
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/SurveyCam/internal/sensors"
)

// FeetPerMeter converts altitudes for imperial units.
const FeetPerMeter = 3.28084

// TimeLayout is the day-first 24h stamp printed on the data panel.
const TimeLayout = "02/01/2006, 15:04:05"

// Info is everything the data panel prints.
type Info struct {
	ProjectName string
	Location    string
	Time        time.Time
	Reading     sensors.Reading
	Units       string // "metric" or "imperial"
}

// FormatAltitude renders an altitude in the requested units, with a
// placeholder when unknown.
func FormatAltitude(alt *float64, units string) string {
	imperial := units == "imperial"
	if alt == nil || math.IsNaN(*alt) || math.IsInf(*alt, 0) {
		if imperial {
			return "-- ft"
		}
		return "-- m"
	}
	if imperial {
		return fmt.Sprintf("%d ft", int(math.Round(*alt*FeetPerMeter)))
	}
	return fmt.Sprintf("%d m", int(math.Round(*alt)))
}

// FormatCoords renders the GPS line.
func FormatCoords(r sensors.Reading) string {
	if !r.HasFix() {
		return "GPS: --"
	}
	return fmt.Sprintf("GPS: %.6f, %.6f", *r.Latitude, *r.Longitude)
}

// FormatHeading renders the heading line in whole degrees.
func FormatHeading(h *float64) string {
	if h == nil {
		return "Heading: --"
	}
	return fmt.Sprintf("Heading: %d°", int(math.Round(*h))%360)
}

// Lines returns the non-empty data panel lines, top to bottom.
func Lines(info Info) []string {
	var lines []string
	if info.ProjectName != "" {
		lines = append(lines, "Project: "+info.ProjectName)
	}
	lines = append(lines,
		"Time: "+info.Time.Format(TimeLayout),
		FormatCoords(info.Reading),
		"Alt: "+FormatAltitude(info.Reading.Altitude, info.Units),
		FormatHeading(info.Reading.Heading),
	)
	if info.Location != "" {
		lines = append(lines, "Loc: "+info.Location)
	}
	return lines
}
