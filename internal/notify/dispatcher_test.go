package notify

import (
	"context"
	"testing"
	"time"
)

func TestDispatcherDeliversToSink(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	defer d.Close()

	d.Emit(context.Background(), Event{Type: TypeLoginSucceeded, UserID: "u1"})

	select {
	case got := <-sink.Events():
		if got.Type != TypeLoginSucceeded || got.UserID != "u1" {
			t.Fatalf("unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NewChannelSink(1))
	if d != nil {
		t.Fatal("disabled dispatcher should be nil")
	}

	// Nil dispatcher must be safe to use.
	d.Emit(context.Background(), Event{Type: TypeSignOut})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher should report zero drops")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	blocked := make(chan struct{})
	sink := sinkFunc(func(ctx context.Context, e Event) {
		<-blocked
	})

	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// First event occupies the worker, second fills the buffer, the
	// rest must be dropped without blocking.
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{Type: TypeSessionRejected})
	}

	if d.Dropped() == 0 {
		t.Fatal("expected drops with a full buffer")
	}

	close(blocked)
	d.Close()
}

func TestDispatcherCloseDrainsQueue(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Event{Type: TypeUserRegistered})
	}
	d.Close()

	for i := 0; i < 3; i++ {
		select {
		case <-sink.Events():
		case <-time.After(time.Second):
			t.Fatalf("event %d lost on close", i)
		}
	}
}

type sinkFunc func(ctx context.Context, event Event)

func (f sinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }
