package reliability

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lock is an active run-lock grant.
type Lock struct {
	RunID      string
	HolderID   string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// AcquireResult is tryAcquire's return value.
type AcquireResult struct {
	Acquired bool
	Lock     *Lock
}

// RunLock guarantees at-most-one active mutator per runID (spec §4.7 /
// property 11: lock exclusivity). In-memory; a distributed deployment
// swaps this for a Redis SET NX PX lock using the same interface, the way
// pkg/kernel's RedisLimiterStore backs the in-process limiter with an
// atomic Lua script.
type RunLock struct {
	mu    sync.Mutex
	locks map[string]Lock
	clock func() time.Time
}

// NewRunLock constructs an empty run lock table.
func NewRunLock() *RunLock {
	return &RunLock{locks: make(map[string]Lock), clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (l *RunLock) WithClock(clock func() time.Time) *RunLock {
	l.clock = clock
	return l
}

// TryAcquire acquires the lock for runID if unheld or expired. holderID
// defaults to a fresh UUID when empty.
func (l *RunLock) TryAcquire(runID string, ttl time.Duration, holderID string) AcquireResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if existing, ok := l.locks[runID]; ok && now.Before(existing.ExpiresAt) {
		return AcquireResult{Acquired: false}
	}

	if holderID == "" {
		holderID = uuid.New().String()
	}
	lock := Lock{RunID: runID, HolderID: holderID, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	l.locks[runID] = lock
	return AcquireResult{Acquired: true, Lock: &lock}
}

// Release is a no-op if holderID does not match the current holder.
func (l *RunLock) Release(runID, holderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.locks[runID]
	if !ok || existing.HolderID != holderID {
		return
	}
	delete(l.locks, runID)
}

// Holder returns the current lock for runID, if any and unexpired.
func (l *RunLock) Holder(runID string) (Lock, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.locks[runID]
	if !ok || !l.clock().Before(existing.ExpiresAt) {
		return Lock{}, false
	}
	return existing, true
}
