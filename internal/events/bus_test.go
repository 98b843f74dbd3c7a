package events

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan PhotoCaptured, 1)

	unsub := bus.Subscribe(func(e PhotoCaptured) {
		received <- e
	})
	defer unsub()

	bus.Publish(PhotoCaptured{ID: 1700000000000, Filter: "sepia", Size: 2048})

	select {
	case got := <-received:
		if got.ID != 1700000000000 || got.Filter != "sepia" {
			t.Errorf("received %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_TypeRouting(t *testing.T) {
	bus := New()
	ticks := make(chan CountdownTick, 4)
	deleted := make(chan PhotosDeleted, 4)
	defer bus.Subscribe(func(e CountdownTick) { ticks <- e })()
	defer bus.Subscribe(func(e PhotosDeleted) { deleted <- e })()

	bus.Publish(CountdownTick{Remaining: 3})

	select {
	case got := <-ticks:
		if got.Remaining != 3 {
			t.Errorf("Remaining = %d", got.Remaining)
		}
	case <-time.After(time.Second):
		t.Fatal("tick not delivered")
	}
	select {
	case e := <-deleted:
		t.Errorf("PhotosDeleted handler got %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan CommentUpdated, 1)
	unsub := bus.Subscribe(func(e CommentUpdated) { received <- e })
	unsub()

	bus.Publish(CommentUpdated{ID: 1, Comment: "x"})
	select {
	case e := <-received:
		t.Errorf("received after unsubscribe: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestBus_NilPublish(t *testing.T) {
	var bus *Bus
	bus.Publish(CountdownTick{Remaining: 1})
}

func TestSubscribeAll(t *testing.T) {
	bus := New()
	ch := make(chan Event, 8)
	unsub := bus.SubscribeAll(ch)
	defer unsub()

	bus.Publish(BurstProgress{Session: "s", Shot: 1, Total: 3})
	bus.Publish(StorageWarning{Level: "warning", Percent: 80})

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case e := <-ch:
			seen[Name(e)] = true
		case <-time.After(time.Second):
			t.Fatalf("only saw %v", seen)
		}
	}
	if !seen["burst-progress"] || !seen["storage-warning"] {
		t.Errorf("seen = %v", seen)
	}
}
