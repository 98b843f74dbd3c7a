package web

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cjeanneret/SurveyCam/internal/events"
)

func recv(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
	return Message{}
}

func decodeStatus(t *testing.T, msg Message) StatusEvent {
	t.Helper()
	if msg.Event != "status" {
		t.Fatalf("event = %q, want status", msg.Event)
	}
	var evt StatusEvent
	if err := json.Unmarshal([]byte(msg.Data), &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return evt
}

func TestBroadcaster_StatusToEverySubscriber(t *testing.T) {
	b := NewStatusBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Broadcast("warn", "storage 80% full")

	for _, ch := range []<-chan Message{ch1, ch2} {
		evt := decodeStatus(t, recv(t, ch))
		if evt.Msg != "storage 80% full" || evt.Level != "warn" || evt.Time == "" {
			t.Errorf("evt = %+v", evt)
		}
	}
}

func TestBroadcaster_BroadcastMsgIsInfo(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.BroadcastMsg("burst complete")
	if evt := decodeStatus(t, recv(t, ch)); evt.Level != "info" || evt.Msg != "burst complete" {
		t.Errorf("evt = %+v", evt)
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
	// No subscribers left; must not panic.
	b.Broadcast("info", "after unsub")
}

func TestBroadcaster_SlowClientDropsMessages(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < cap(ch)+10; i++ {
		b.Publish(events.BurstProgress{Shot: i})
	}

	count := 0
	for len(ch) > 0 {
		<-ch
		count++
	}
	if count != 64 {
		t.Errorf("buffered %d messages, want 64", count)
	}
}

func TestBroadcastWriter(t *testing.T) {
	cases := []struct {
		name      string
		line      string
		wantMsg   string
		wantLevel string
	}{
		{"trimmed", "  Capture 17: saved  \n", "Capture 17: saved", "info"},
		{"warn", "[SurveyCam] 10:00:00 [WARN] storage warning", "[SurveyCam] 10:00:00 [WARN] storage warning", "warn"},
		{"error", "[SurveyCam] 10:00:00 [ERROR] encode failed", "[SurveyCam] 10:00:00 [ERROR] encode failed", "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewStatusBroadcaster()
			ch, unsub := b.Subscribe()
			defer unsub()

			n, err := BroadcastWriter(b).Write([]byte(tc.line))
			if err != nil || n != len(tc.line) {
				t.Fatalf("Write = %d, %v", n, err)
			}
			evt := decodeStatus(t, recv(t, ch))
			if evt.Msg != tc.wantMsg || evt.Level != tc.wantLevel {
				t.Errorf("evt = %+v, want %q/%q", evt, tc.wantMsg, tc.wantLevel)
			}
		})
	}
}

func TestBroadcastWriter_BlankLineIgnored(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	BroadcastWriter(b).Write([]byte("   \n"))

	select {
	case msg := <-ch:
		t.Errorf("unexpected message %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_Publish(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish(events.PhotoCaptured{ID: 42, Filter: "bw"})

	msg := recv(t, ch)
	if msg.Event != "photo-captured" {
		t.Errorf("event = %q", msg.Event)
	}
	var e events.PhotoCaptured
	if err := json.Unmarshal([]byte(msg.Data), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.ID != 42 || e.Filter != "bw" {
		t.Errorf("payload = %+v", e)
	}
}

func TestBroadcaster_Forward(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	bus := events.New()
	stop := b.Forward(bus)

	bus.Publish(events.CountdownTick{Remaining: 2})
	if msg := recv(t, ch); msg.Event != "countdown" || msg.Data != `{"remaining":2}` {
		t.Errorf("msg = %+v", msg)
	}

	stop()
	stop() // idempotent
	bus.Publish(events.CountdownTick{Remaining: 1})
	select {
	case msg := <-ch:
		t.Errorf("event forwarded after stop: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
