package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cjeanneret/SurveyCam/internal/config"
)

const (
	BackendBolt   = "bolt"
	BackendPebble = "pebble"
)

// Photo is the persisted metadata of a captured photo. The image payload is
// stored next to it under the same key.
type Photo struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Lat         *float64  `json:"lat"`
	Lon         *float64  `json:"lon"`
	Alt         *float64  `json:"alt"`
	Heading     *float64  `json:"heading"`
	Accuracy    *float64  `json:"accuracy,omitempty"`
	ProjectName string    `json:"projectName"`
	Location    string    `json:"location"`
	Comment     string    `json:"comment"`
	MIME        string    `json:"mime"`
	Filter      string    `json:"filter"`
	Size        int       `json:"size"`
}

// Usage summarizes the space taken by the store.
type Usage struct {
	Photos int   `json:"photos"`
	Bytes  int64 `json:"bytes"`
	Quota  int64 `json:"quota"` // 0 = unlimited
}

// Percent returns Bytes as a percentage of Quota, 0 when unlimited.
func (u Usage) Percent() float64 {
	if u.Quota <= 0 {
		return 0
	}
	return float64(u.Bytes) / float64(u.Quota) * 100
}

// Store persists photos. Save, Delete and DeleteMany are atomic: metadata
// and image payload are written or removed together.
type Store interface {
	Save(p Photo, image []byte) error
	Get(id int64) (Photo, error)
	Image(id int64) ([]byte, error)
	// List returns metadata only, newest first.
	List() ([]Photo, error)
	UpdateComment(id int64, comment string) (Photo, error)
	Delete(id int64) error
	// DeleteMany removes every listed photo in one transaction. Unknown
	// IDs are skipped; the number of removed photos is returned.
	DeleteMany(ids []int64) (int, error)
	Clear() error
	Usage() (Usage, error)
	Close() error
}

// Open opens the store selected by cfg.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case BackendBolt, "":
		return NewBoltStore(cfg.Path, cfg.QuotaBytes)
	case BackendPebble:
		return NewPebbleStore(cfg.Path, cfg.QuotaBytes)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func photoKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

func keyID(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key))
}

func encodeMeta(p Photo) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return data, nil
}

func decodeMeta(data []byte) (Photo, error) {
	var p Photo
	if err := json.Unmarshal(data, &p); err != nil {
		return Photo{}, fmt.Errorf("decode metadata: %w", err)
	}
	return p, nil
}

func validatePhoto(p Photo, image []byte) error {
	if p.ID <= 0 {
		return fmt.Errorf("invalid photo id %d", p.ID)
	}
	if len(image) == 0 {
		return fmt.Errorf("photo %d has no image data", p.ID)
	}
	return nil
}
