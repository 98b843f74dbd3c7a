// Package gallery keeps the in-memory photo list in step with the store.
package gallery

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"

	"github.com/cjeanneret/SurveyCam/internal/debug"
	"github.com/cjeanneret/SurveyCam/internal/events"
	"github.com/cjeanneret/SurveyCam/internal/metrics"
	"github.com/cjeanneret/SurveyCam/internal/storage"
)

// Usage warning thresholds, in percent of the quota.
const (
	WarnPercent     = 75.0
	CriticalPercent = 90.0
)

// Gallery is the metadata list of stored photos, newest first. The list
// only changes after the matching store call succeeded.
type Gallery struct {
	store storage.Store
	bus   *events.Bus

	mu     sync.RWMutex
	photos []storage.Photo
}

// New loads the photo list from store. bus may be nil.
func New(store storage.Store, bus *events.Bus) (*Gallery, error) {
	photos, err := store.List()
	if err != nil {
		return nil, err
	}
	g := &Gallery{store: store, bus: bus, photos: photos}
	debug.Info("Gallery: %d photos loaded", len(photos))
	g.refreshUsage()
	return g, nil
}

// Add persists p and its image, then inserts it into the list.
func (g *Gallery) Add(p storage.Photo, image []byte) (storage.Photo, error) {
	if err := g.store.Save(p, image); err != nil {
		return storage.Photo{}, err
	}
	p.Size = len(image)

	g.mu.Lock()
	i, _ := slices.BinarySearchFunc(g.photos, p.ID, func(e storage.Photo, id int64) int {
		// Descending order.
		switch {
		case e.ID > id:
			return -1
		case e.ID < id:
			return 1
		}
		return 0
	})
	g.photos = slices.Insert(g.photos, i, p)
	g.mu.Unlock()

	g.CheckUsage()
	return p, nil
}

// Remove deletes the listed photos in one store transaction and returns
// how many were removed.
func (g *Gallery) Remove(ids ...int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var (
		n   int
		err error
	)
	if len(ids) == 1 {
		if err = g.store.Delete(ids[0]); err == nil {
			n = 1
		}
	} else {
		n, err = g.store.DeleteMany(ids)
	}
	if err != nil {
		return 0, err
	}

	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	g.mu.Lock()
	g.photos = slices.DeleteFunc(g.photos, func(p storage.Photo) bool { return drop[p.ID] })
	g.mu.Unlock()

	debug.Info("Gallery: %d photos deleted", n)
	g.bus.Publish(events.PhotosDeleted{IDs: ids})
	g.refreshUsage()
	return n, nil
}

// Clear removes every photo.
func (g *Gallery) Clear() error {
	if err := g.store.Clear(); err != nil {
		return err
	}
	g.mu.Lock()
	g.photos = nil
	g.mu.Unlock()

	debug.Info("Gallery: cleared")
	g.bus.Publish(events.PhotosDeleted{All: true})
	g.refreshUsage()
	return nil
}

// SetComment persists a new comment for id.
func (g *Gallery) SetComment(id int64, comment string) (storage.Photo, error) {
	p, err := g.store.UpdateComment(id, comment)
	if err != nil {
		return storage.Photo{}, err
	}
	g.mu.Lock()
	if i := g.index(id); i >= 0 {
		g.photos[i] = p
	}
	g.mu.Unlock()

	g.bus.Publish(events.CommentUpdated{ID: id, Comment: comment})
	return p, nil
}

// Photos returns a copy of the list, newest first.
func (g *Gallery) Photos() []storage.Photo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.photos)
}

// Len returns the number of photos.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.photos)
}

// Get returns the metadata of id.
func (g *Gallery) Get(id int64) (storage.Photo, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if i := g.index(id); i >= 0 {
		return g.photos[i], true
	}
	return storage.Photo{}, false
}

// Select returns the listed photos in gallery order. Unknown IDs are
// ignored.
func (g *Gallery) Select(ids []int64) []storage.Photo {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []storage.Photo
	for _, p := range g.photos {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

// Last returns the newest photo.
func (g *Gallery) Last() (storage.Photo, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.photos) == 0 {
		return storage.Photo{}, false
	}
	return g.photos[0], true
}

// Image returns the stored image of id.
func (g *Gallery) Image(id int64) ([]byte, error) {
	if _, ok := g.Get(id); !ok {
		return nil, &storage.Error{Kind: storage.KindNotFound, Op: "image", ID: id, Err: storage.ErrNotFound}
	}
	return g.store.Image(id)
}

// Usage reports the store usage.
func (g *Gallery) Usage() (storage.Usage, error) {
	return g.store.Usage()
}

// Level classifies usage against the warning thresholds: "" when below,
// "warning" above 75 % and "critical" above 90 %.
func Level(u storage.Usage) string {
	p := u.Percent()
	switch {
	case p > CriticalPercent:
		return "critical"
	case p > WarnPercent:
		return "warning"
	}
	return ""
}

// CheckUsage refreshes the usage metrics and publishes a StorageWarning
// when usage is above a threshold. It returns the warning level.
func (g *Gallery) CheckUsage() string {
	u, err := g.refreshUsage()
	if err != nil {
		return ""
	}
	level := Level(u)
	if level != "" {
		debug.Warn("Gallery: storage %s (%.0f%% of %d bytes)", level, u.Percent(), u.Quota)
		g.bus.Publish(events.StorageWarning{Level: level, Percent: u.Percent(), Bytes: u.Bytes, Quota: u.Quota})
	}
	return level
}

func (g *Gallery) refreshUsage() (storage.Usage, error) {
	u, err := g.store.Usage()
	if err != nil {
		debug.Warn("Gallery: storage usage unavailable: %v", err)
		return u, err
	}
	metrics.SetStoreUsage(u.Photos, u.Bytes)
	return u, nil
}

func (g *Gallery) index(id int64) int {
	return slices.IndexFunc(g.photos, func(p storage.Photo) bool { return p.ID == id })
}

// Import migrates a legacy JSON export into the store and reloads the
// list.
func (g *Gallery) Import(ctx context.Context, r io.Reader) (storage.ImportResult, error) {
	res, err := storage.Import(ctx, g.store, r)
	if res.Imported > 0 {
		if rerr := g.reload(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		g.CheckUsage()
	}
	return res, err
}

func (g *Gallery) reload() error {
	photos, err := g.store.List()
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.photos = photos
	g.mu.Unlock()
	return nil
}

// IsNotFound reports whether err is a missing-photo error.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
