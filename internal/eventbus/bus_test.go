package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPublishDispatchesToHandlers(t *testing.T) {
	bus := NewWithConfig(context.Background(), 2, 10)

	var mu sync.Mutex
	var got []string
	var wg sync.WaitGroup
	wg.Add(2)
	bus.Subscribe(EventTypeNotify, func(ctx context.Context, e Event) {
		defer wg.Done()
		mu.Lock()
		got = append(got, e.ID)
		mu.Unlock()
	})

	if !bus.Publish(Event{Type: EventTypeNotify, ID: "a"}) {
		t.Fatal("Publish a returned false")
	}
	if !bus.Publish(Event{Type: EventTypeNotify, ID: "b", Payload: 42}) {
		t.Fatal("Publish b returned false")
	}
	wg.Wait()
	bus.Close(context.Background())

	if len(got) != 2 {
		t.Errorf("handled %v, want 2 events", got)
	}
}

func TestPublishWithoutHandlers(t *testing.T) {
	bus := New(context.Background())
	defer bus.Close(context.Background())

	if bus.Publish(Event{Type: "unknown"}) {
		t.Error("Publish without handlers should report a drop")
	}
}

func TestPublishQueueFull(t *testing.T) {
	bus := NewWithConfig(context.Background(), 1, 1)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.Subscribe(EventTypeNotify, func(ctx context.Context, e Event) {
		started <- struct{}{}
		<-release
	})

	if !bus.Publish(Event{Type: EventTypeNotify, ID: "busy"}) {
		t.Fatal("first Publish dropped")
	}
	<-started
	if !bus.Publish(Event{Type: EventTypeNotify, ID: "queued"}) {
		t.Fatal("second Publish dropped")
	}
	if bus.Publish(Event{Type: EventTypeNotify, ID: "dropped"}) {
		t.Error("third Publish should be dropped on a full queue")
	}

	close(release)
	bus.Close(context.Background())
}

func TestPublishAfterClose(t *testing.T) {
	bus := New(context.Background())
	bus.Subscribe(EventTypeNotify, func(ctx context.Context, e Event) {})
	bus.Close(context.Background())
	bus.Close(context.Background())

	if bus.Publish(Event{Type: EventTypeNotify}) {
		t.Error("Publish after Close should report a drop")
	}
}

func TestHandlerPanicDoesNotKillWorker(t *testing.T) {
	bus := NewWithConfig(context.Background(), 1, 4)
	done := make(chan string, 1)
	bus.Subscribe(EventTypeNotify, func(ctx context.Context, e Event) {
		if e.ID == "boom" {
			panic("boom")
		}
		done <- e.ID
	})

	bus.Publish(Event{Type: EventTypeNotify, ID: "boom"})
	bus.Publish(Event{Type: EventTypeNotify, ID: "ok"})

	select {
	case id := <-done:
		if id != "ok" {
			t.Errorf("got %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	bus.Close(context.Background())
}
