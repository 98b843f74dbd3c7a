package gallery

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cjeanneret/SurveyCam/internal/storage"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

var csvHeaders = []string{
	"ID",
	"Filename",
	"Date",
	"Time",
	"Latitude",
	"Longitude",
	"Altitude (m)",
	"Heading (°)",
	"Accuracy (m)",
	"Project Name",
	"Location",
	"Comment",
	"Filter",
	"MIME",
}

var spaces = regexp.MustCompile(`\s+`)

// Filename returns the download name of a photo:
// <project>_Survey_<UTC ISO timestamp with ':' and '.' replaced>.<ext>.
func Filename(p storage.Photo) string {
	iso := p.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	iso = strings.NewReplacer(":", "-", ".", "-").Replace(iso)
	prefix := ""
	if p.ProjectName != "" {
		prefix = spaces.ReplaceAllString(p.ProjectName, "_") + "_"
	}
	ext := ".jpg"
	if p.MIME == "image/png" {
		ext = ".png"
	}
	return prefix + "Survey_" + iso + ext
}

// ExportFilename names a metadata export made at now.
func ExportFilename(format string, now time.Time) string {
	ts := now.UTC().Format("2006-01-02T15-04-05")
	return fmt.Sprintf("photos_metadata_%s.%s", ts, format)
}

// ContentType returns the MIME type of an export format.
func ContentType(format string) string {
	if format == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Export writes photos in the given format.
func Export(w io.Writer, format string, photos []storage.Photo) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, photos)
	case FormatJSON:
		return WriteJSON(w, photos)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// WriteCSV writes a spreadsheet-friendly CSV: UTF-8 BOM, every field
// quoted, one photo per line.
func WriteCSV(w io.Writer, photos []storage.Photo) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("\uFEFF")
	bw.WriteString(strings.Join(csvHeaders, ","))
	for _, p := range photos {
		ts := p.Timestamp
		row := []string{
			strconv.FormatInt(p.ID, 10),
			Filename(p),
			ts.Format("2006-01-02"),
			ts.Format("15:04:05"),
			fixed(p.Lat, 6),
			fixed(p.Lon, 6),
			fixed(p.Alt, 1),
			fixed(p.Heading, 0),
			fixed(p.Accuracy, 1),
			p.ProjectName,
			p.Location,
			p.Comment,
			p.Filter,
			p.MIME,
		}
		for i, v := range row {
			row[i] = quote(v)
		}
		bw.WriteString("\n")
		bw.WriteString(strings.Join(row, ","))
	}
	bw.WriteString("\n")
	return bw.Flush()
}

func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

func fixed(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

type exportGPS struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  *float64 `json:"altitude"`
	Accuracy  *float64 `json:"accuracy"`
	Heading   *float64 `json:"heading"`
}

type exportLocation struct {
	Name        string `json:"name"`
	ProjectName string `json:"projectName"`
}

type exportMetadata struct {
	GPS      exportGPS      `json:"gps"`
	Location exportLocation `json:"location"`
}

type exportPhoto struct {
	ID        int64          `json:"id"`
	Filename  string         `json:"filename"`
	Timestamp int64          `json:"timestamp"`
	Date      string         `json:"date"`
	Metadata  exportMetadata `json:"metadata"`
	Comment   string         `json:"comment"`
	Filter    string         `json:"filter"`
	MIME      string         `json:"mime"`
	Size      int            `json:"size"`
}

// WriteJSON writes an indented JSON array grouping GPS and location data.
func WriteJSON(w io.Writer, photos []storage.Photo) error {
	out := make([]exportPhoto, 0, len(photos))
	for _, p := range photos {
		out = append(out, exportPhoto{
			ID:        p.ID,
			Filename:  Filename(p),
			Timestamp: p.Timestamp.UnixMilli(),
			Date:      p.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			Metadata: exportMetadata{
				GPS: exportGPS{
					Latitude:  p.Lat,
					Longitude: p.Lon,
					Altitude:  p.Alt,
					Accuracy:  p.Accuracy,
					Heading:   p.Heading,
				},
				Location: exportLocation{
					Name:        p.Location,
					ProjectName: p.ProjectName,
				},
			},
			Comment: p.Comment,
			Filter:  p.Filter,
			MIME:    p.MIME,
			Size:    p.Size,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
