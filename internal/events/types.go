package events

// Event type constants for kelindar/event.
const (
	TypePhotoCaptured uint32 = iota + 1
	TypeCaptureFailed
	TypeBurstProgress
	TypeCountdownTick
	TypePhotosDeleted
	TypeCommentUpdated
	TypeStorageWarning
	TypeSettingsChanged
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// PhotoCaptured is published once a photo is persisted.
type PhotoCaptured struct {
	ID        int64  `json:"id"`
	Filter    string `json:"filter"`
	Size      int    `json:"size"`
	HDR       bool   `json:"hdr"`
	Session   string `json:"session,omitempty"` // burst session, empty for single shots
	Timestamp string `json:"timestamp"`
}

func (e PhotoCaptured) Type() uint32 { return TypePhotoCaptured }

// CaptureFailed is published when a capture aborts.
type CaptureFailed struct {
	Reason    string `json:"reason"` // not-ready, encode, quota, storage, other
	Error     string `json:"error"`
	Session   string `json:"session,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (e CaptureFailed) Type() uint32 { return TypeCaptureFailed }

// BurstProgress reports each burst shot and the end of the burst.
type BurstProgress struct {
	Session   string `json:"session"`
	Shot      int    `json:"shot"`
	Total     int    `json:"total"`
	Done      bool   `json:"done"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

func (e BurstProgress) Type() uint32 { return TypeBurstProgress }

// CountdownTick is published every second of a self-timer.
type CountdownTick struct {
	Remaining int `json:"remaining"`
}

func (e CountdownTick) Type() uint32 { return TypeCountdownTick }

// PhotosDeleted lists photos removed from the gallery.
type PhotosDeleted struct {
	IDs []int64 `json:"ids"`
	All bool    `json:"all,omitempty"`
}

func (e PhotosDeleted) Type() uint32 { return TypePhotosDeleted }

// CommentUpdated is published after a comment edit is persisted.
type CommentUpdated struct {
	ID      int64  `json:"id"`
	Comment string `json:"comment"`
}

func (e CommentUpdated) Type() uint32 { return TypeCommentUpdated }

// StorageWarning is published when usage crosses a warning threshold.
type StorageWarning struct {
	Level   string  `json:"level"` // "warning" or "critical"
	Percent float64 `json:"percent"`
	Bytes   int64   `json:"bytes"`
	Quota   int64   `json:"quota"`
}

func (e StorageWarning) Type() uint32 { return TypeStorageWarning }

// SettingsChanged is published when capture settings are replaced.
type SettingsChanged struct {
	Source string `json:"source"` // "api" or "config"
}

func (e SettingsChanged) Type() uint32 { return TypeSettingsChanged }

// Name returns the SSE event name of e.
func Name(e Event) string {
	switch e.(type) {
	case PhotoCaptured:
		return "photo-captured"
	case CaptureFailed:
		return "capture-failed"
	case BurstProgress:
		return "burst-progress"
	case CountdownTick:
		return "countdown"
	case PhotosDeleted:
		return "photos-deleted"
	case CommentUpdated:
		return "comment-updated"
	case StorageWarning:
		return "storage-warning"
	case SettingsChanged:
		return "settings-changed"
	default:
		return "event"
	}
}
