package storage

import (
	"errors"
	"fmt"
	"sync/atomic"
	"syscall"

	"github.com/cockroachdb/pebble"
)

// Kind classifies storage failures so callers can show a targeted message.
type Kind int

const (
	KindOther Kind = iota
	KindQuota
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindQuota:
		return "quota"
	case KindNotFound:
		return "not-found"
	default:
		return "other"
	}
}

var (
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrNotFound      = errors.New("photo not found")
	ErrExists        = errors.New("photo already exists")
)

// Error is returned by every Store operation.
type Error struct {
	Kind Kind
	Op   string
	ID   int64
	Err  error
}

func (e *Error) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("storage %s %d: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels regardless of the underlying cause.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrQuotaExceeded:
		return e.Kind == KindQuota
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return false
}

// KindOf returns the Kind of err, KindOther when err is not a storage error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindOther
}

func wrapErr(op string, id int64, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	kind := KindOther
	switch {
	case errors.Is(err, ErrQuotaExceeded), errors.Is(err, syscall.ENOSPC):
		kind = KindQuota
	case errors.Is(err, ErrNotFound), errors.Is(err, pebble.ErrNotFound):
		kind = KindNotFound
	}
	return &Error{Kind: kind, Op: op, ID: id, Err: err}
}

// quota tracks the bytes held by a store against an optional limit.
type quota struct {
	limit int64
	used  atomic.Int64
}

func (q *quota) reserve(n int64) bool {
	for {
		cur := q.used.Load()
		if q.limit > 0 && cur+n > q.limit {
			return false
		}
		if q.used.CompareAndSwap(cur, cur+n) {
			return true
		}
	}
}

func (q *quota) release(n int64) {
	q.used.Add(-n)
}
