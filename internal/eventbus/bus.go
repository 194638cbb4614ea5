package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeNotify carries a notification request accepted by the API.
	EventTypeNotify EventType = "notify"
)

// Default configuration
const (
	DefaultWorkerCount = 4
	DefaultQueueSize   = 100
)

// Event represents an event in the system
type Event struct {
	Type    EventType
	ID      string
	Payload any
}

// Handler is a function that handles events. ctx is the bus context.
type Handler func(ctx context.Context, event Event)

// work represents a unit of work for the worker pool
type work struct {
	event   Event
	handler Handler
}

// Bus provides event routing with a bounded worker pool
type Bus struct {
	ctx context.Context

	mu       sync.RWMutex
	handlers map[EventType][]Handler

	// Worker pool
	workQueue chan work
	wg        sync.WaitGroup

	// Shutdown signaling - closing this channel signals publishers to stop
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a new event bus with default settings
func New(ctx context.Context) *Bus {
	return NewWithConfig(ctx, DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a new event bus with custom worker count and queue size.
// Handlers receive ctx.
func NewWithConfig(ctx context.Context, workerCount, queueSize int) *Bus {
	b := &Bus{
		ctx:       ctx,
		handlers:  make(map[EventType][]Handler),
		workQueue: make(chan work, queueSize),
		closing:   make(chan struct{}),
	}

	// Start worker pool
	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus worker pool started")
	return b
}

// worker processes events from the work queue
func (b *Bus) worker(id int) {
	defer b.wg.Done()

	for w := range b.workQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("event_type", string(w.event.Type)).
						Str("event_id", w.event.ID).
						Int("worker", id).
						Msg("Event handler panicked")
				}
			}()
			w.handler(b.ctx, w.event)
		}()
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish queues an event for all subscribed handlers and reports whether
// every handler got it. Non-blocking: if the work queue is full or the bus
// is closing, the event is dropped. An event nobody subscribes to is dropped.
func (b *Bus) Publish(event Event) bool {
	// Held for the whole send so Close cannot close the queue underneath.
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlers := b.handlers[event.Type]
	if len(handlers) == 0 {
		log.Warn().Str("event_type", string(event.Type)).Msg("No handlers for event, dropping")
		return false
	}

	queued := true
	for _, handler := range handlers {
		select {
		case <-b.closing:
			log.Warn().Str("event_type", string(event.Type)).Msg("Event bus closing, dropping event")
			return false
		default:
		}

		select {
		case b.workQueue <- work{event: event, handler: handler}:
		default:
			log.Warn().
				Str("event_type", string(event.Type)).
				Str("event_id", event.ID).
				Msg("Event bus queue full, dropping event")
			queued = false
		}
	}
	return queued
}

// Close shuts down the worker pool gracefully.
// First signals publishers to stop, then closes the work queue and waits for workers.
func (b *Bus) Close(ctx context.Context) {
	first := false
	b.closeOnce.Do(func() {
		close(b.closing)
		first = true
	})
	if !first {
		return
	}

	b.mu.Lock()
	close(b.workQueue)
	b.mu.Unlock()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}
