package realtime

import (
	"errors"
	"sync"
	"time"
)

// ErrConnectPending is returned when a connection attempt for the same
// service is already in flight. Callers treat it as a no-op, not a failure.
var ErrConnectPending = errors.New("connection attempt already pending")

// Throttle deduplicates and debounces connection attempts per logical
// service. At most one attempt per service may be pending at a time, and
// attempts closer together than the debounce window are delayed.
type Throttle struct {
	mu       sync.Mutex
	debounce time.Duration
	pending  map[string]bool
	last     map[string]time.Time

	now func() time.Time
}

// NewThrottle creates a throttle with the given debounce window
func NewThrottle(debounce time.Duration) *Throttle {
	return &Throttle{
		debounce: debounce,
		pending:  make(map[string]bool),
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Acquire reserves a connection slot for the service. It returns how long
// the caller should wait before dialing, or ErrConnectPending when an
// attempt for the service is already pending. Every successful Acquire must
// be paired with a Release.
func (t *Throttle) Acquire(service string) (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending[service] {
		return 0, ErrConnectPending
	}
	t.pending[service] = true

	if last, ok := t.last[service]; ok {
		if wait := t.debounce - t.now().Sub(last); wait > 0 {
			return wait, nil
		}
	}
	return 0, nil
}

// Release marks the pending attempt for the service as finished and stamps
// the debounce clock
func (t *Throttle) Release(service string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, service)
	t.last[service] = t.now()
}

// Pending reports whether an attempt for the service is in flight
func (t *Throttle) Pending(service string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending[service]
}
