package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/cjeanneret/SurveyCam/internal/debug"
)

// FileSource serves frames from a still image on disk, re-read on every
// Frame call. It fits rigs where an external grabber (e.g. a webcam daemon)
// keeps overwriting a JPEG. It has no hardware controls.
type FileSource struct {
	path string

	mu    sync.Mutex
	w, h  int
	ready chan struct{}
	once  sync.Once
}

// NewFileSource probes path for its dimensions. A missing or unreadable
// file is not an error: the source simply stays not ready until the file
// appears.
func NewFileSource(path string) *FileSource {
	f := &FileSource{path: path, ready: make(chan struct{})}
	f.probe()
	return f
}

// Path returns the watched file.
func (f *FileSource) Path() string { return f.path }

func (f *FileSource) probe() bool {
	fh, err := os.Open(f.path)
	if err != nil {
		debug.Trace("Camera: file source %s: %v", f.path, err)
		return false
	}
	defer fh.Close()

	cfg, _, err := image.DecodeConfig(fh)
	if err != nil {
		debug.Trace("Camera: file source %s: %v", f.path, err)
		return false
	}
	f.mu.Lock()
	f.w, f.h = cfg.Width, cfg.Height
	f.mu.Unlock()
	f.once.Do(func() { close(f.ready) })
	return true
}

func (f *FileSource) Size() (int, int) {
	f.mu.Lock()
	w, h := f.w, f.h
	f.mu.Unlock()
	if w == 0 || h == 0 {
		if f.probe() {
			return f.Size()
		}
	}
	return w, h
}

func (f *FileSource) ReadyState() ReadyState {
	if w, h := f.Size(); w > 0 && h > 0 {
		return HaveEnoughData
	}
	return HaveNothing
}

func (f *FileSource) Ready() <-chan struct{} { return f.ready }

func (f *FileSource) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer fh.Close()

	img, _, err := image.Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", f.path, err)
	}
	b := img.Bounds()
	f.mu.Lock()
	f.w, f.h = b.Dx(), b.Dy()
	f.mu.Unlock()
	f.once.Do(func() { close(f.ready) })
	return img, nil
}

func (f *FileSource) Capabilities() Capabilities { return Capabilities{} }

func (f *FileSource) Settings() TrackSettings { return TrackSettings{Zoom: 1} }

func (f *FileSource) Apply(_ context.Context, c Constraints) error {
	if !c.IsZero() {
		return ErrUnsupported
	}
	return nil
}
