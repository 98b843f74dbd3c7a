package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. Handlers run asynchronously.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers. A nil bus drops it.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case PhotoCaptured:
		event.Publish(b.dispatcher, e)
	case CaptureFailed:
		event.Publish(b.dispatcher, e)
	case BurstProgress:
		event.Publish(b.dispatcher, e)
	case CountdownTick:
		event.Publish(b.dispatcher, e)
	case PhotosDeleted:
		event.Publish(b.dispatcher, e)
	case CommentUpdated:
		event.Publish(b.dispatcher, e)
	case StorageWarning:
		event.Publish(b.dispatcher, e)
	case SettingsChanged:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a handler; its parameter type selects the events it
// receives. Unknown handler types get a no-op unsubscribe.
// Usage: unsub := bus.Subscribe(func(e PhotoCaptured) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(PhotoCaptured):
		return event.Subscribe(b.dispatcher, h)
	case func(CaptureFailed):
		return event.Subscribe(b.dispatcher, h)
	case func(BurstProgress):
		return event.Subscribe(b.dispatcher, h)
	case func(CountdownTick):
		return event.Subscribe(b.dispatcher, h)
	case func(PhotosDeleted):
		return event.Subscribe(b.dispatcher, h)
	case func(CommentUpdated):
		return event.Subscribe(b.dispatcher, h)
	case func(StorageWarning):
		return event.Subscribe(b.dispatcher, h)
	case func(SettingsChanged):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel forwards events of type T to ch, dropping them when
// ch is full.
func SubscribeToChannel[T Event](b *Bus, ch chan<- Event) func() {
	return event.Subscribe(b.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeAll forwards every event type to ch. The returned function
// removes all subscriptions.
func (b *Bus) SubscribeAll(ch chan<- Event) func() {
	unsubs := []func(){
		SubscribeToChannel[PhotoCaptured](b, ch),
		SubscribeToChannel[CaptureFailed](b, ch),
		SubscribeToChannel[BurstProgress](b, ch),
		SubscribeToChannel[CountdownTick](b, ch),
		SubscribeToChannel[PhotosDeleted](b, ch),
		SubscribeToChannel[CommentUpdated](b, ch),
		SubscribeToChannel[StorageWarning](b, ch),
		SubscribeToChannel[SettingsChanged](b, ch),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
