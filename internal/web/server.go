package web

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cjeanneret/SurveyCam/internal/gallery"
	"github.com/cjeanneret/SurveyCam/internal/geocode"
	"github.com/cjeanneret/SurveyCam/internal/logic/capture"
	"github.com/cjeanneret/SurveyCam/internal/metrics"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, broadcaster *StatusBroadcaster, coord *capture.Coordinator, g *gallery.Gallery) *Server {
	return &Server{
		addr:     addr,
		handlers: NewHandlers(coord, g, broadcaster),
	}
}

// SetLocator enables automatic location names from PUT /sensors positions.
func (s *Server) SetLocator(l *geocode.AutoLocator) {
	s.handlers.Locator = l
}

// Router returns an http.Handler with all routes registered.
func (s *Server) Router() http.Handler {
	h := s.handlers
	r := mux.NewRouter()

	r.HandleFunc("/capture", h.HandleCapture).Methods("POST")
	r.HandleFunc("/burst", h.HandleBurst).Methods("POST")
	r.HandleFunc("/burst", h.HandleCancelBurst).Methods("DELETE")
	r.HandleFunc("/timer", h.HandleTimer).Methods("POST")
	r.HandleFunc("/timer", h.HandleCancelTimer).Methods("DELETE")
	r.HandleFunc("/torch", h.HandleTorch).Methods("POST")
	r.HandleFunc("/focus", h.HandleFocus).Methods("POST")
	r.HandleFunc("/camera", h.HandleCamera).Methods("GET")
	r.HandleFunc("/sensors", h.HandleSensors).Methods("PUT")
	r.HandleFunc("/settings", h.HandleGetSettings).Methods("GET")
	r.HandleFunc("/settings", h.HandlePutSettings).Methods("PUT")

	// Static paths before {id} so "export" is not parsed as an id.
	r.HandleFunc("/photos", h.HandleListPhotos).Methods("GET")
	r.HandleFunc("/photos/export", h.HandleExport).Methods("GET")
	r.HandleFunc("/photos/delete", h.HandleDeletePhotos).Methods("POST")
	r.HandleFunc("/photos/import", h.HandleImport).Methods("POST")
	r.HandleFunc("/photos/{id:[0-9]+}", h.HandleGetPhoto).Methods("GET")
	r.HandleFunc("/photos/{id:[0-9]+}", h.HandleUpdatePhoto).Methods("PATCH")
	r.HandleFunc("/photos/{id:[0-9]+}", h.HandleDeletePhoto).Methods("DELETE")
	r.HandleFunc("/photos/{id:[0-9]+}/image", h.HandlePhotoImage).Methods("GET")

	r.HandleFunc("/storage", h.HandleStorage).Methods("GET")
	r.HandleFunc("/status/stream", h.HandleStatusStream).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
// Background bursts and timers started over HTTP are bound to ctx.
func (s *Server) Run(ctx context.Context) error {
	s.handlers.baseCtx = ctx
	srv := &http.Server{Addr: s.addr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
