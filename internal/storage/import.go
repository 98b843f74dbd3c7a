package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cjeanneret/SurveyCam/internal/debug"
)

// legacyPhoto is one entry of the JSON array the first releases kept in
// browser local storage, with the image inlined as a data URL.
type legacyPhoto struct {
	ID          int64    `json:"id"`
	Timestamp   string   `json:"timestamp"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	Alt         *float64 `json:"alt"`
	Heading     *float64 `json:"heading"`
	ProjectName string   `json:"projectName"`
	Location    string   `json:"location"`
	Comment     string   `json:"comment"`
	Filter      string   `json:"filter"`
	DataURL     string   `json:"dataURL"`
}

// ImportResult counts the outcome of Import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Import migrates a legacy JSON export into s. Entries without an id or
// image, with an undecodable image, or already present are skipped. A
// storage failure other than a duplicate stops the import.
func Import(ctx context.Context, s Store, r io.Reader) (ImportResult, error) {
	var res ImportResult
	var entries []legacyPhoto
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return res, fmt.Errorf("decode legacy photos: %w", err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if e.ID <= 0 || e.DataURL == "" {
			res.Skipped++
			continue
		}
		mime, data, err := DecodeDataURL(e.DataURL)
		if err != nil {
			debug.Warn("Storage: legacy photo %d skipped: %v", e.ID, err)
			res.Skipped++
			continue
		}

		p := Photo{
			ID:          e.ID,
			Timestamp:   legacyTime(e.Timestamp, e.ID),
			Lat:         e.Lat,
			Lon:         e.Lon,
			Alt:         e.Alt,
			Heading:     e.Heading,
			ProjectName: e.ProjectName,
			Location:    e.Location,
			Comment:     e.Comment,
			MIME:        mime,
			Filter:      e.Filter,
		}
		if p.Filter == "" {
			p.Filter = "normal"
		}
		if err := s.Save(p, data); err != nil {
			if errors.Is(err, ErrExists) {
				res.Skipped++
				continue
			}
			return res, err
		}
		res.Imported++
	}
	debug.Info("Storage: imported %d legacy photos (%d skipped)", res.Imported, res.Skipped)
	return res, nil
}

// DecodeDataURL splits a base64 "data:<mime>;base64,<payload>" URL.
func DecodeDataURL(u string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(u, "data:")
	if !ok {
		return "", nil, errors.New("not a data URL")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URL has no payload")
	}
	mime, ok = strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, errors.New("data URL is not base64 encoded")
	}
	if mime == "" {
		mime = "image/jpeg"
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL: %w", err)
	}
	if len(data) == 0 {
		return "", nil, errors.New("data URL is empty")
	}
	return mime, data, nil
}

// legacyTime parses the stored ISO timestamp, falling back to the
// millisecond ID it was derived from.
func legacyTime(ts string, id int64) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t.UTC()
	}
	return time.UnixMilli(id).UTC()
}
