package storage

import (
	"fmt"
	"sync/atomic"

	bolt "go.etcd.io/bbolt"

	"github.com/cjeanneret/SurveyCam/internal/debug"
)

const (
	metaBucket  = "meta"
	imageBucket = "images"
)

// BoltStore keeps metadata and image payloads in two buckets of a single
// bbolt file. Both buckets are updated in the same transaction.
type BoltStore struct {
	db     *bolt.DB
	quota  quota
	photos atomic.Int64

	// beforeImagePut runs between the metadata and the image write.
	beforeImagePut func() error
}

// NewBoltStore opens (or creates) the bbolt file at path. quotaBytes <= 0
// disables the quota.
func NewBoltStore(path string, quotaBytes int64) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{})
	if err != nil {
		return nil, wrapErr("open", 0, fmt.Errorf("failed to open bbolt database: %w", err))
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(metaBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(imageBucket)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, wrapErr("open", 0, fmt.Errorf("failed to create buckets: %w", err))
	}

	s := &BoltStore{db: db}
	s.quota.limit = quotaBytes
	if err := s.scan(); err != nil {
		db.Close()
		return nil, wrapErr("open", 0, err)
	}
	debug.Verbose("Storage: bbolt %s opened (%d photos, %d bytes)", path, s.photos.Load(), s.quota.used.Load())
	return s, nil
}

func (s *BoltStore) scan() error {
	return s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		images := tx.Bucket([]byte(imageBucket))
		var n, bytes int64
		err := meta.ForEach(func(k, v []byte) error {
			n++
			bytes += int64(len(v) + len(images.Get(k)))
			return nil
		})
		s.photos.Store(n)
		s.quota.used.Store(bytes)
		return err
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Save(p Photo, image []byte) error {
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

	key := photoKey(p.ID)
	err = s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		if meta.Get(key) != nil {
			return ErrExists
		}
		if err := meta.Put(key, data); err != nil {
			return fmt.Errorf("failed to update meta bucket: %w", err)
		}
		if s.beforeImagePut != nil {
			if err := s.beforeImagePut(); err != nil {
				return err
			}
		}
		if err := tx.Bucket([]byte(imageBucket)).Put(key, image); err != nil {
			return fmt.Errorf("failed to update image bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		s.quota.release(n)
		return wrapErr("save", p.ID, err)
	}
	s.photos.Add(1)
	debug.Saved(p.ID, len(image))
	return nil
}

func (s *BoltStore) Get(id int64) (Photo, error) {
	var p Photo
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(metaBucket)).Get(photoKey(id))
		if data == nil {
			return ErrNotFound
		}
		var err error
		p, err = decodeMeta(data)
		return err
	})
	return p, wrapErr("get", id, err)
}

func (s *BoltStore) Image(id int64) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(imageBucket)).Get(photoKey(id))
		if data == nil {
			return ErrNotFound
		}
		// Bolt memory is only valid inside the transaction.
		out = append([]byte(nil), data...)
		return nil
	})
	return out, wrapErr("image", id, err)
}

func (s *BoltStore) List() ([]Photo, error) {
	var photos []Photo
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(metaBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			p, err := decodeMeta(v)
			if err != nil {
				return fmt.Errorf("photo %d: %w", keyID(k), err)
			}
			photos = append(photos, p)
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("list", 0, err)
	}
	return photos, nil
}

func (s *BoltStore) UpdateComment(id int64, comment string) (Photo, error) {
	var (
		p     Photo
		delta int
	)
	key := photoKey(id)
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		old := meta.Get(key)
		if old == nil {
			return ErrNotFound
		}
		var err error
		if p, err = decodeMeta(old); err != nil {
			return err
		}
		p.Comment = comment
		data, err := encodeMeta(p)
		if err != nil {
			return err
		}
		delta = len(data) - len(old)
		return meta.Put(key, data)
	})
	if err != nil {
		return Photo{}, wrapErr("comment", id, err)
	}
	s.quota.used.Add(int64(delta))
	return p, nil
}

func (s *BoltStore) Delete(id int64) error {
	n, err := s.deleteKeys("delete", []int64{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return wrapErr("delete", id, ErrNotFound)
	}
	return nil
}

func (s *BoltStore) DeleteMany(ids []int64) (int, error) {
	return s.deleteKeys("delete-many", ids)
}

func (s *BoltStore) deleteKeys(op string, ids []int64) (int, error) {
	var removed, freed int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		images := tx.Bucket([]byte(imageBucket))
		for _, id := range ids {
			key := photoKey(id)
			m := meta.Get(key)
			if m == nil {
				continue
			}
			size := int64(len(m) + len(images.Get(key)))
			if err := meta.Delete(key); err != nil {
				return fmt.Errorf("photo %d: %w", id, err)
			}
			if err := images.Delete(key); err != nil {
				return fmt.Errorf("photo %d: %w", id, err)
			}
			removed++
			freed += size
		}
		return nil
	})
	if err != nil {
		return 0, wrapErr(op, 0, err)
	}
	s.photos.Add(-removed)
	s.quota.release(freed)
	return int(removed), nil
}

func (s *BoltStore) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{metaBucket, imageBucket} {
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return err
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapErr("clear", 0, err)
	}
	s.photos.Store(0)
	s.quota.used.Store(0)
	return nil
}

func (s *BoltStore) Usage() (Usage, error) {
	return Usage{
		Photos: int(s.photos.Load()),
		Bytes:  s.quota.used.Load(),
		Quota:  s.quota.limit,
	}, nil
}
