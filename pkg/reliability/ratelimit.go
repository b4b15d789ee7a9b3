// Package reliability is the Reliability Primitives (H): a sliding-window
// rate limiter, capped-exponential-backoff retry, a failure-window circuit
// breaker, and a run lock. Grounded on this codebase's
// pkg/util/resiliency.EnhancedClient/CircuitBreaker (retry-with-jitter,
// simple three-state breaker) and pkg/kernel's Redis-atomic limiter
// pattern, generalized to the spec's sliding window + failure-window
// breaker semantics the teacher's single-counter breaker doesn't have.
package reliability

import (
	"sync"
	"time"
)

// RateLimitResult is check's verdict.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// ResourceLimit configures the sliding window for one resource.
type ResourceLimit struct {
	MaxRequests int
	Window      time.Duration
}

// RateLimiter is a sliding-window limiter keyed by (tenantID, resource).
// Thread-safe; holds its window state in memory per §4.7's backpressure
// requirement that limiter state be safe for concurrent callers.
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[string]ResourceLimit
	windows map[string][]time.Time
	clock   func() time.Time
}

// NewRateLimiter constructs a limiter with no configured resources; Check
// admits every request for a resource that has not been given a limit
// with Configure.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limits:  make(map[string]ResourceLimit),
		windows: make(map[string][]time.Time),
		clock:   time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (r *RateLimiter) WithClock(clock func() time.Time) *RateLimiter {
	r.clock = clock
	return r
}

// Configure sets the (maxRequests, window) limit for a resource.
func (r *RateLimiter) Configure(resource string, limit ResourceLimit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits[resource] = limit
}

func (r *RateLimiter) key(tenantID, resource string) string {
	return tenantID + "\x00" + resource
}

// Check evicts expired entries from the sliding window, then admits the
// request if the window has capacity remaining.
func (r *RateLimiter) Check(tenantID, resource string) RateLimitResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	limit, ok := r.limits[resource]
	if !ok {
		// Unconfigured resources are unrestricted.
		return RateLimitResult{Allowed: true, Remaining: -1}
	}

	now := r.clock()
	k := r.key(tenantID, resource)
	cutoff := now.Add(-limit.Window)

	kept := r.windows[k][:0]
	for _, t := range r.windows[k] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.windows[k] = kept

	resetAt := now.Add(limit.Window)
	if len(kept) > 0 {
		resetAt = kept[0].Add(limit.Window)
	}

	if len(kept) >= limit.MaxRequests {
		return RateLimitResult{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	r.windows[k] = append(r.windows[k], now)
	return RateLimitResult{Allowed: true, Remaining: limit.MaxRequests - len(kept) - 1, ResetAt: resetAt}
}
