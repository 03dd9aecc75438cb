package auth

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutWindow    = 15 * time.Minute
	DefaultLockoutDuration  = 15 * time.Minute
)

// Tracker gates authentication attempts per identity. Identities are keyed by
// normalized email rather than source IP, so rotating addresses does not
// bypass the lockout. The accepted cost is that a known victim email can be
// locked out on purpose; deployments that care should layer IP limiting in
// front.
//
// Implementations must serialize RecordFailure and IsLocked for the same
// identity, and must treat an expired lock as absent without any cleanup pass.
type Tracker interface {
	// IsLocked reports whether the identity is currently locked and until
	// when. It never mutates tracker state.
	IsLocked(ctx context.Context, identity string) (bool, time.Time, error)

	// RecordFailure appends a failed attempt. When the count of failures
	// within the trailing window reaches the threshold it sets the lock and
	// returns its expiry; otherwise it returns nil.
	RecordFailure(ctx context.Context, identity string) (*time.Time, error)

	// Clear drops the failure history and any lock, called after a
	// successful authentication.
	Clear(ctx context.Context, identity string) error
}

// MemoryTracker is the in-process Tracker used by single-instance
// deployments. Failure timestamps are pruned on access, so no background
// sweep is needed.
type MemoryTracker struct {
	mu            sync.Mutex
	threshold     int
	window        time.Duration
	lockDuration  time.Duration
	failures      map[string][]time.Time
	lockedUntil   map[string]time.Time
	maxIdentities int
	now           func() time.Time
}

func NewMemoryTracker(threshold int, window, lockDuration time.Duration) *MemoryTracker {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if window <= 0 {
		window = DefaultLockoutWindow
	}
	if lockDuration <= 0 {
		lockDuration = DefaultLockoutDuration
	}

	return &MemoryTracker{
		threshold:     threshold,
		window:        window,
		lockDuration:  lockDuration,
		failures:      make(map[string][]time.Time),
		lockedUntil:   make(map[string]time.Time),
		maxIdentities: 5000,
		now:           time.Now,
	}
}

func (t *MemoryTracker) IsLocked(ctx context.Context, identity string) (bool, time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	until, ok := t.lockedUntil[identity]
	if !ok || !t.now().UTC().Before(until) {
		return false, time.Time{}, nil
	}
	return true, until, nil
}

func (t *MemoryTracker) RecordFailure(ctx context.Context, identity string) (*time.Time, error) {
	now := t.now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()

	if until, ok := t.lockedUntil[identity]; ok && now.Before(until) {
		return &until, nil
	}

	threshold := now.Add(-t.window)
	hits := t.failures[identity]
	recent := make([]time.Time, 0, len(hits)+1)
	for _, hit := range hits {
		if hit.After(threshold) {
			recent = append(recent, hit)
		}
	}
	recent = append(recent, now)

	if len(recent) >= t.threshold {
		until := now.Add(t.lockDuration)
		t.lockedUntil[identity] = until
		delete(t.failures, identity)
		return &until, nil
	}

	t.failures[identity] = recent
	t.evictStale(threshold, now)

	return nil, nil
}

func (t *MemoryTracker) Clear(ctx context.Context, identity string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.failures, identity)
	delete(t.lockedUntil, identity)

	return nil
}

// evictStale bounds memory under identity churn. Caller holds the mutex.
func (t *MemoryTracker) evictStale(threshold, now time.Time) {
	if len(t.failures) <= t.maxIdentities {
		return
	}
	for identity, hits := range t.failures {
		if len(hits) == 0 || hits[len(hits)-1].Before(threshold) {
			delete(t.failures, identity)
		}
	}
	for identity, until := range t.lockedUntil {
		if !now.Before(until) {
			delete(t.lockedUntil, identity)
		}
	}
}
