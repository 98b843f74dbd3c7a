package storage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/cjeanneret/SurveyCam/internal/debug"
)

var (
	metaPrefix  = []byte("meta:")
	imagePrefix = []byte("image:")
)

// PebbleStore keeps metadata under "meta:<id>" and images under
// "image:<id>", both written by one batch commit.
type PebbleStore struct {
	db     *pebble.DB
	mu     sync.Mutex // serializes read-modify-write operations
	quota  quota
	photos atomic.Int64

	beforeImagePut func() error
}

// NewPebbleStore opens (or creates) the pebble directory at path.
func NewPebbleStore(path string, quotaBytes int64) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, wrapErr("open", 0, fmt.Errorf("failed to open pebble database: %w", err))
	}
	s := &PebbleStore{db: db}
	s.quota.limit = quotaBytes
	if err := s.scan(); err != nil {
		db.Close()
		return nil, wrapErr("open", 0, err)
	}
	debug.Verbose("Storage: pebble %s opened (%d photos, %d bytes)", path, s.photos.Load(), s.quota.used.Load())
	return s, nil
}

func prefixed(prefix []byte, id int64) []byte {
	return append(append([]byte(nil), prefix...), photoKey(id)...)
}

func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	end[len(end)-1]++
	return end
}

func (s *PebbleStore) newIter(prefix []byte) (*pebble.Iterator, error) {
	return s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
}

func (s *PebbleStore) scan() error {
	var n, bytes int64
	for _, prefix := range [][]byte{metaPrefix, imagePrefix} {
		iter, err := s.newIter(prefix)
		if err != nil {
			return fmt.Errorf("failed to create iterator: %w", err)
		}
		for iter.First(); iter.Valid(); iter.Next() {
			if prefix[0] == metaPrefix[0] {
				n++
			}
			bytes += int64(len(iter.Value()))
		}
		err = iter.Error()
		iter.Close()
		if err != nil {
			return fmt.Errorf("iterator error: %w", err)
		}
	}
	s.photos.Store(n)
	s.quota.used.Store(bytes)
	return nil
}

// get copies the value at key; pebble only guarantees it until closer.Close.
func (s *PebbleStore) get(key []byte) ([]byte, error) {
	data, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), data...), nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) Save(p Photo, image []byte) error {
	if err := validatePhoto(p, image); err != nil {
		return wrapErr("save", p.ID, err)
	}
	p.Size = len(image)
	data, err := encodeMeta(p)
	if err != nil {
		return wrapErr("save", p.ID, err)
	}

	n := int64(len(data) + len(image))
	if !s.quota.reserve(n) {
		return wrapErr("save", p.ID, ErrQuotaExceeded)
	}
	if err := s.save(p.ID, data, image); err != nil {
		s.quota.release(n)
		return wrapErr("save", p.ID, err)
	}
	s.photos.Add(1)
	debug.Saved(p.ID, len(image))
	return nil
}

func (s *PebbleStore) save(id int64, data, image []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metaKey := prefixed(metaPrefix, id)
	if _, err := s.get(metaKey); err == nil {
		return ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(metaKey, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}
	if s.beforeImagePut != nil {
		if err := s.beforeImagePut(); err != nil {
			return err
		}
	}
	if err := batch.Set(prefixed(imagePrefix, id), image, pebble.Sync); err != nil {
		return fmt.Errorf("failed to set image: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (s *PebbleStore) Get(id int64) (Photo, error) {
	data, err := s.get(prefixed(metaPrefix, id))
	if err != nil {
		return Photo{}, wrapErr("get", id, err)
	}
	p, err := decodeMeta(data)
	return p, wrapErr("get", id, err)
}

func (s *PebbleStore) Image(id int64) ([]byte, error) {
	data, err := s.get(prefixed(imagePrefix, id))
	if err != nil {
		return nil, wrapErr("image", id, err)
	}
	return data, nil
}

func (s *PebbleStore) List() ([]Photo, error) {
	iter, err := s.newIter(metaPrefix)
	if err != nil {
		return nil, wrapErr("list", 0, fmt.Errorf("failed to create iterator: %w", err))
	}
	defer iter.Close()

	var photos []Photo
	for iter.Last(); iter.Valid(); iter.Prev() {
		p, err := decodeMeta(iter.Value())
		if err != nil {
			return nil, wrapErr("list", keyID(iter.Key()[len(metaPrefix):]), err)
		}
		photos = append(photos, p)
	}
	if err := iter.Error(); err != nil {
		return nil, wrapErr("list", 0, fmt.Errorf("iterator error: %w", err))
	}
	return photos, nil
}

func (s *PebbleStore) UpdateComment(id int64, comment string) (Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := prefixed(metaPrefix, id)
	old, err := s.get(key)
	if err != nil {
		return Photo{}, wrapErr("comment", id, err)
	}
	p, err := decodeMeta(old)
	if err != nil {
		return Photo{}, wrapErr("comment", id, err)
	}
	p.Comment = comment
	data, err := encodeMeta(p)
	if err != nil {
		return Photo{}, wrapErr("comment", id, err)
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return Photo{}, wrapErr("comment", id, err)
	}
	s.quota.used.Add(int64(len(data) - len(old)))
	return p, nil
}

func (s *PebbleStore) Delete(id int64) error {
	n, err := s.deleteKeys("delete", []int64{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return wrapErr("delete", id, ErrNotFound)
	}
	return nil
}

func (s *PebbleStore) DeleteMany(ids []int64) (int, error) {
	return s.deleteKeys("delete-many", ids)
}

func (s *PebbleStore) deleteKeys(op string, ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	var removed, freed int64
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		metaKey := prefixed(metaPrefix, id)
		imageKey := prefixed(imagePrefix, id)
		m, err := s.get(metaKey)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, wrapErr(op, id, err)
		}
		img, err := s.get(imageKey)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return 0, wrapErr(op, id, err)
		}
		if err := batch.Delete(metaKey, pebble.Sync); err != nil {
			return 0, wrapErr(op, id, err)
		}
		if err := batch.Delete(imageKey, pebble.Sync); err != nil {
			return 0, wrapErr(op, id, err)
		}
		removed++
		freed += int64(len(m) + len(img))
	}
	if removed == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, wrapErr(op, 0, fmt.Errorf("failed to commit batch: %w", err))
	}
	s.photos.Add(-removed)
	s.quota.release(freed)
	return int(removed), nil
}

func (s *PebbleStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, prefix := range [][]byte{metaPrefix, imagePrefix} {
		if err := batch.DeleteRange(prefix, upperBound(prefix), pebble.Sync); err != nil {
			return wrapErr("clear", 0, err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return wrapErr("clear", 0, fmt.Errorf("failed to commit batch: %w", err))
	}
	s.photos.Store(0)
	s.quota.used.Store(0)
	return nil
}

func (s *PebbleStore) Usage() (Usage, error) {
	return Usage{
		Photos: int(s.photos.Load()),
		Bytes:  s.quota.used.Load(),
		Quota:  s.quota.limit,
	}, nil
}
