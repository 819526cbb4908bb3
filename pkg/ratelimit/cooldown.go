package ratelimit

import (
	"sync"
	"time"
)

// CooldownTracker tracks a per-user cooldown window after an exhausted
// attempt budget. It is process-local, best-effort state: losing it on
// restart just lets previously-cooling-down users retry immediately. The
// persisted attempt counter remains the real security boundary.
type CooldownTracker struct {
	duration time.Duration
	now      func() time.Time
	mu       sync.Mutex
	started  map[string]time.Time
}

// CooldownTrackerOption defines configuration options
type CooldownTrackerOption func(*CooldownTracker)

// WithClock overrides the tracker clock, for deterministic tests
func WithClock(now func() time.Time) CooldownTrackerOption {
	return func(t *CooldownTracker) {
		t.now = now
	}
}

// NewCooldownTracker creates a tracker with the given cooldown duration
func NewCooldownTracker(duration time.Duration, opts ...CooldownTrackerOption) *CooldownTracker {
	t := &CooldownTracker{
		duration: duration,
		now:      time.Now,
		started:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordCooldown starts (or restarts) the cooldown window for a user
func (t *CooldownTracker) RecordCooldown(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started[userID] = t.now()
}

// InCooldown reports whether the user is still inside the cooldown window.
// Expired entries are evicted lazily on check.
func (t *CooldownTracker) InCooldown(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	started, ok := t.started[userID]
	if !ok {
		return false
	}
	if t.now().Sub(started) >= t.duration {
		delete(t.started, userID)
		return false
	}
	return true
}

// Remaining returns how long the user still has to wait, zero when the
// cooldown has elapsed or never started
func (t *CooldownTracker) Remaining(userID string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	started, ok := t.started[userID]
	if !ok {
		return 0
	}
	remaining := t.duration - t.now().Sub(started)
	if remaining < 0 {
		delete(t.started, userID)
		return 0
	}
	return remaining
}

// Reset clears the cooldown for a user
func (t *CooldownTracker) Reset(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.started, userID)
}

// Len returns the number of tracked users, expired entries included
func (t *CooldownTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.started)
}

// StartCleanup launches a goroutine that periodically evicts expired
// entries so the map does not grow unbounded on a busy instance. The
// goroutine exits when stop is closed.
func (t *CooldownTracker) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.evictExpired()
			case <-stop:
				return
			}
		}
	}()
}

func (t *CooldownTracker) evictExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for userID, started := range t.started {
		if now.Sub(started) >= t.duration {
			delete(t.started, userID)
		}
	}
}
