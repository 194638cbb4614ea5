// Package settle holds the fixed waits inserted after actions the protocol
// never acknowledges as complete.
package settle

import (
	"context"
	"time"
)

// Kind names a settle interval.
type Kind string

const (
	// QueuePopulate follows AddURIToQueue, which returns before the queue is filled.
	QueuePopulate Kind = "queue_populate"
	// Seek precedes each seek issued while restoring content.
	Seek Kind = "seek"
)

// Default settle intervals.
const (
	DefaultQueuePopulate = 300 * time.Millisecond
	DefaultSeek          = 500 * time.Millisecond
)

// Settler waits for the interval of a kind.
type Settler interface {
	Settle(ctx context.Context, kind Kind) error
}

// Fixed waits a constant duration per kind. Unknown kinds do not wait.
type Fixed struct {
	delays map[Kind]time.Duration
}

// NewFixed creates a settler with the default intervals, replaced by any
// positive override.
func NewFixed(overrides map[Kind]time.Duration) *Fixed {
	delays := map[Kind]time.Duration{
		QueuePopulate: DefaultQueuePopulate,
		Seek:          DefaultSeek,
	}
	for k, d := range overrides {
		if d > 0 {
			delays[k] = d
		}
	}
	return &Fixed{delays: delays}
}

// None returns a settler that never waits.
func None() *Fixed {
	return &Fixed{delays: map[Kind]time.Duration{}}
}

// Delay returns the interval configured for kind.
func (f *Fixed) Delay(kind Kind) time.Duration {
	return f.delays[kind]
}

// Settle blocks for the interval of kind or until ctx is done.
func (f *Fixed) Settle(ctx context.Context, kind Kind) error {
	return Sleep(ctx, f.delays[kind])
}

// Sleep waits d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
