package camera

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/SurveyCam/internal/debug"
)

// SnapshotSource pulls frames from an HTTP endpoint returning a single
// JPEG or PNG image per request, as most IP cameras expose.
type SnapshotSource struct {
	url    string
	client *http.Client

	mu    sync.Mutex
	w, h  int
	ready chan struct{}
	once  sync.Once
}

// NewSnapshotSource creates a snapshot source. Readiness is established by
// a background probe; Frame works regardless.
func NewSnapshotSource(ctx context.Context, url string, timeout time.Duration) *SnapshotSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &SnapshotSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
		ready:  make(chan struct{}),
	}
	go func() {
		if _, err := s.Frame(ctx); err != nil {
			debug.Warn("Camera: snapshot probe %s failed: %v", url, err)
		}
	}()
	return s
}

func (s *SnapshotSource) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w, s.h
}

func (s *SnapshotSource) ReadyState() ReadyState {
	if w, h := s.Size(); w > 0 && h > 0 {
		return HaveEnoughData
	}
	return HaveNothing
}

func (s *SnapshotSource) Ready() <-chan struct{} { return s.ready }

func (s *SnapshotSource) Frame(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("snapshot: unexpected status %s", resp.Status)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("snapshot decode: %w", err)
	}
	b := img.Bounds()
	s.mu.Lock()
	s.w, s.h = b.Dx(), b.Dy()
	s.mu.Unlock()
	s.once.Do(func() { close(s.ready) })
	return img, nil
}

func (s *SnapshotSource) Capabilities() Capabilities { return Capabilities{} }

func (s *SnapshotSource) Settings() TrackSettings { return TrackSettings{Zoom: 1} }

func (s *SnapshotSource) Apply(_ context.Context, c Constraints) error {
	if !c.IsZero() {
		return ErrUnsupported
	}
	return nil
}
