package notify

import (
	"errors"
	"fmt"
	"sync"
)

// ErrGroupBusy is returned when a divert is already in flight for a group.
var ErrGroupBusy = errors.New("group is busy with another notification")

// Leases grants exclusive use of a group, keyed by coordinator UUID, for the
// duration of a divert and its restore.
type Leases struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLeases creates an empty lease table.
func NewLeases() *Leases {
	return &Leases{held: make(map[string]struct{})}
}

// Acquire takes the lease for key or fails with ErrGroupBusy. The returned
// release func is safe to call more than once.
func (l *Leases) Acquire(key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, fmt.Errorf("%w: %s", ErrGroupBusy, key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is leased.
func (l *Leases) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}
