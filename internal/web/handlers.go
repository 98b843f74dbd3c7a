package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/cjeanneret/SurveyCam/internal/debug"
	"github.com/cjeanneret/SurveyCam/internal/gallery"
	"github.com/cjeanneret/SurveyCam/internal/geocode"
	"github.com/cjeanneret/SurveyCam/internal/hw/camera"
	"github.com/cjeanneret/SurveyCam/internal/logic/capture"
	"github.com/cjeanneret/SurveyCam/internal/logic/filter"
	"github.com/cjeanneret/SurveyCam/internal/sensors"
	"github.com/cjeanneret/SurveyCam/internal/storage"
)

const (
	maxBodyBytes    = 1 << 20
	maxImportBytes  = 64 << 20
	maxCommentLen   = 2000
	maxTimerSeconds = 60
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Coordinator *capture.Coordinator
	Gallery     *gallery.Gallery
	Broadcaster *StatusBroadcaster
	Heading     *sensors.HeadingSmoother
	Locator     *geocode.AutoLocator // nil disables automatic location names

	// baseCtx bounds background bursts and timers.
	baseCtx context.Context
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(coord *capture.Coordinator, g *gallery.Gallery, broadcaster *StatusBroadcaster) *Handlers {
	return &Handlers{
		Coordinator: coord,
		Gallery:     g,
		Broadcaster: broadcaster,
		Heading:     sensors.NewHeadingSmoother(sensors.DefaultSmoothing),
		baseCtx:     context.Background(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a size-limited JSON body into v. An empty body leaves v
// untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, limit int64, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return false
	}
	http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
	return false
}

// writeError maps pipeline and storage errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, camera.ErrNotReady):
		status = http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrQuotaExceeded):
		status = http.StatusInsufficientStorage
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	}
	_, reason := capture.Classify(err)
	writeJSON(w, status, map[string]string{"error": err.Error(), "reason": reason})
}

func inProgress(w http.ResponseWriter) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "in_progress"})
}

func photoID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid photo id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// ---------- capture ----------

// HandleCapture handles POST /capture: one synchronous shot. A capture
// already in flight answers 202 {"status":"in_progress"}.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if h.Coordinator.Busy() {
		inProgress(w)
		return
	}
	p, err := h.Coordinator.Capture(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if p == nil {
		inProgress(w)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type burstRequest struct {
	Count int `json:"count"`
}

// HandleBurst handles POST /burst and runs the burst in the background.
func (h *Handlers) HandleBurst(w http.ResponseWriter, r *http.Request) {
	var req burstRequest
	if !decodeJSON(w, r, &req, maxBodyBytes, true) {
		return
	}
	if req.Count < 0 {
		http.Error(w, "count must be >= 0", http.StatusBadRequest)
		return
	}
	if h.Coordinator.Busy() {
		inProgress(w)
		return
	}

	go func() {
		res, err := h.Coordinator.Burst(h.baseCtx, req.Count)
		switch {
		case err != nil:
			h.Broadcaster.Broadcast("error", "Burst failed: "+err.Error())
		case res == nil:
			h.Broadcaster.Broadcast("warn", "Capture already in progress, burst ignored")
		default:
			h.Broadcaster.Broadcast("info", fmt.Sprintf("Burst complete: %d photos", len(res.Photos)))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started", "count": req.Count})
}

// HandleCancelBurst handles DELETE /burst.
func (h *Handlers) HandleCancelBurst(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": h.Coordinator.CancelBurst()})
}

type timerRequest struct {
	Seconds int `json:"seconds"`
}

// HandleTimer handles POST /timer: a background countdown then a capture.
func (h *Handlers) HandleTimer(w http.ResponseWriter, r *http.Request) {
	var req timerRequest
	if !decodeJSON(w, r, &req, maxBodyBytes, false) {
		return
	}
	if req.Seconds < 0 || req.Seconds > maxTimerSeconds {
		http.Error(w, fmt.Sprintf("seconds must be between 0 and %d", maxTimerSeconds), http.StatusBadRequest)
		return
	}

	go func() {
		p, err := h.Coordinator.Timer(h.baseCtx, time.Duration(req.Seconds)*time.Second)
		if err != nil {
			h.Broadcaster.Broadcast("error", "Timer capture failed: "+err.Error())
		} else if p != nil {
			h.Broadcaster.Broadcast("info", fmt.Sprintf("Timer capture: photo %d", p.ID))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started", "seconds": req.Seconds})
}

// HandleCancelTimer handles DELETE /timer.
func (h *Handlers) HandleCancelTimer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": h.Coordinator.CancelTimer()})
}

type torchRequest struct {
	On bool `json:"on"`
}

// HandleTorch handles POST /torch.
func (h *Handlers) HandleTorch(w http.ResponseWriter, r *http.Request) {
	var req torchRequest
	if !decodeJSON(w, r, &req, maxBodyBytes, false) {
		return
	}
	supported, err := h.Coordinator.Torch(r.Context(), req.On)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"supported": supported, "on": supported && req.On})
}

type focusRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// HandleFocus handles POST /focus: tap-to-focus at a point in normalized
// frame coordinates.
func (h *Handlers) HandleFocus(w http.ResponseWriter, r *http.Request) {
	var req focusRequest
	if !decodeJSON(w, r, &req, maxBodyBytes, false) {
		return
	}
	if req.X < 0 || req.X > 1 || req.Y < 0 || req.Y > 1 {
		http.Error(w, "x and y must be between 0 and 1", http.StatusBadRequest)
		return
	}
	mode, supported, err := h.Coordinator.Focus(r.Context(), req.X, req.Y)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"supported": supported, "mode": mode})
}

// HandleCamera handles GET /camera: readiness and capability descriptor.
func (h *Handlers) HandleCamera(w http.ResponseWriter, r *http.Request) {
	src := h.Coordinator.Source()
	width, height := src.Size()
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":        camera.IsReady(src),
		"width":        width,
		"height":       height,
		"capabilities": src.Capabilities(),
		"settings":     src.Settings(),
		"busy":         h.Coordinator.Busy(),
	})
}

// ---------- sensors & settings ----------

type sensorUpdate struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Alt      *float64 `json:"alt"`
	Accuracy *float64 `json:"accuracy"`
	Heading  *float64 `json:"heading"`
	Alpha    *float64 `json:"alpha"` // device orientation, counter-clockwise
}

// HandleSensors handles PUT /sensors. Position and orientation update
// independently; absent fields keep their last value. Headings are
// smoothed.
func (h *Handlers) HandleSensors(w http.ResponseWriter, r *http.Request) {
	var u sensorUpdate
	if !decodeJSON(w, r, &u, maxBodyBytes, false) {
		return
	}

	reading := h.Coordinator.Reading()
	if u.Lat != nil || u.Lon != nil {
		reading.Latitude, reading.Longitude = u.Lat, u.Lon
		reading.Altitude, reading.Accuracy = u.Alt, u.Accuracy
	}
	raw := u.Heading
	if raw == nil && u.Alpha != nil {
		raw = sensors.Float(sensors.HeadingFromAlpha(*u.Alpha))
	}
	if raw != nil {
		if err := (sensors.Reading{Heading: raw}).Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		reading.Heading = sensors.Float(h.Heading.Update(*raw))
	}

	if err := h.Coordinator.SetReading(reading); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.Locator != nil && u.Lat != nil && u.Lon != nil {
		go h.Locator.Update(h.baseCtx, *u.Lat, *u.Lon)
	}
	resp := map[string]any{"reading": reading}
	if reading.Heading != nil {
		resp["cardinal"] = sensors.Cardinal(*reading.Heading)
	}
	writeJSON(w, http.StatusOK, resp)
}

type settingsResponse struct {
	Settings any             `json:"settings"`
	Filters  []string        `json:"filters"`
	Preview  settingsPreview `json:"preview"`
}

type settingsPreview struct {
	Filter       string `json:"filter"`
	WhiteBalance string `json:"white_balance"`
	Temperature  string `json:"temperature"`
}

func (h *Handlers) settingsResponse() settingsResponse {
	s := h.Coordinator.Settings()
	return settingsResponse{
		Settings: s,
		Filters:  filter.Names(),
		Preview: settingsPreview{
			Filter:       filter.CSS(s.Filter),
			WhiteBalance: filter.WhiteBalanceCSS(s.WhiteBalance),
			Temperature:  filter.TemperatureName(s.WhiteBalance),
		},
	}
}

// HandleGetSettings handles GET /settings.
func (h *Handlers) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settingsResponse())
}

// HandlePutSettings handles PUT /settings. Fields absent from the body
// keep their current value.
func (h *Handlers) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	s := h.Coordinator.Settings()
	if !decodeJSON(w, r, &s, maxBodyBytes, false) {
		return
	}
	if err := h.Coordinator.SetSettings(s, "api"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.settingsResponse())
}

// ---------- gallery ----------

// HandleListPhotos handles GET /photos.
func (h *Handlers) HandleListPhotos(w http.ResponseWriter, r *http.Request) {
	photos := h.Gallery.Photos()
	if photos == nil {
		photos = []storage.Photo{}
	}
	writeJSON(w, http.StatusOK, photos)
}

// HandleGetPhoto handles GET /photos/{id}.
func (h *Handlers) HandleGetPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := photoID(w, r)
	if !ok {
		return
	}
	p, found := h.Gallery.Get(id)
	if !found {
		http.Error(w, "photo not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandlePhotoImage handles GET /photos/{id}/image. ?download=1 serves it
// as an attachment.
func (h *Handlers) HandlePhotoImage(w http.ResponseWriter, r *http.Request) {
	id, ok := photoID(w, r)
	if !ok {
		return
	}
	p, found := h.Gallery.Get(id)
	if !found {
		http.Error(w, "photo not found", http.StatusNotFound)
		return
	}
	data, err := h.Gallery.Image(id)
	if err != nil {
		writeError(w, err)
		return
	}
	disposition := "inline"
	if r.URL.Query().Get("download") != "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", p.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, gallery.Filename(p)))
	w.Write(data)
}

type commentRequest struct {
	Comment *string `json:"comment"`
}

// HandleUpdatePhoto handles PATCH /photos/{id}; only the comment is
// mutable.
func (h *Handlers) HandleUpdatePhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := photoID(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if !decodeJSON(w, r, &req, maxBodyBytes, false) {
		return
	}
	if req.Comment == nil {
		http.Error(w, "comment is required", http.StatusBadRequest)
		return
	}
	if len(*req.Comment) > maxCommentLen {
		http.Error(w, fmt.Sprintf("comment longer than %d bytes", maxCommentLen), http.StatusBadRequest)
		return
	}
	p, err := h.Gallery.SetComment(id, *req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleDeletePhoto handles DELETE /photos/{id}.
func (h *Handlers) HandleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := photoID(w, r)
	if !ok {
		return
	}
	if _, err := h.Gallery.Remove(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
	All bool    `json:"all"`
}

// HandleDeletePhotos handles POST /photos/delete: a list of IDs removed in
// one transaction, or every photo with {"all": true}.
func (h *Handlers) HandleDeletePhotos(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if !decodeJSON(w, r, &req, maxBodyBytes, false) {
		return
	}
	if req.All {
		n := h.Gallery.Len()
		if err := h.Gallery.Clear(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
		return
	}
	if len(req.IDs) == 0 {
		http.Error(w, "ids is required", http.StatusBadRequest)
		return
	}
	n, err := h.Gallery.Remove(req.IDs...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// HandleExport handles GET /photos/export?format=csv|json[&ids=1,2].
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = gallery.FormatCSV
	}
	if format != gallery.FormatCSV && format != gallery.FormatJSON {
		http.Error(w, "format must be csv or json", http.StatusBadRequest)
		return
	}

	photos := h.Gallery.Photos()
	if raw := q.Get("ids"); raw != "" {
		var ids []int64
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				http.Error(w, "invalid ids", http.StatusBadRequest)
				return
			}
			ids = append(ids, id)
		}
		photos = h.Gallery.Select(ids)
	}

	w.Header().Set("Content-Type", gallery.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", gallery.ExportFilename(format, time.Now())))
	if err := gallery.Export(w, format, photos); err != nil {
		debug.Error(fmt.Errorf("export: %w", err))
	}
}

// HandleImport handles POST /photos/import (legacy JSON with data URLs).
func (h *Handlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	res, err := h.Gallery.Import(r.Context(), r.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		var se *storage.Error
		if !errors.As(err, &se) && res.Imported == 0 && res.Skipped == 0 {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleStorage handles GET /storage.
func (h *Handlers) HandleStorage(w http.ResponseWriter, r *http.Request) {
	u, err := h.Gallery.Usage()
	if err != nil {
		writeError(w, err)
		return
	}
	level := gallery.Level(u)
	if level == "" {
		level = "ok"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"photos":  u.Photos,
		"bytes":   u.Bytes,
		"quota":   u.Quota,
		"percent": u.Percent(),
		"level":   level,
	})
}

// ---------- status stream ----------

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Data)
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
