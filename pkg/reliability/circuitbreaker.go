package reliability

import (
	"sync"
	"time"
)

// BreakerState is one of the three circuit states.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// CircuitBreakerConfig configures the failure-window breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int
	FailureWindow    time.Duration
	SuccessThreshold int
	ResetTimeout     time.Duration
}

// CircuitBreaker extends this codebase's pkg/util/resiliency.CircuitBreaker
// (single failure counter, no time window, single success closes) with a
// failure-window (consecutive failures must land within FailureWindow) and
// a successThreshold of consecutive probes required to close from
// half-open, per spec §4.7.
type CircuitBreaker struct {
	mu               sync.Mutex
	cfg              CircuitBreakerConfig
	state            BreakerState
	failures         []time.Time
	consecutiveOK    int
	openedAt         time.Time
	clock            func() time.Time
}

// NewCircuitBreaker constructs a breaker in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: StateClosed, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (b *CircuitBreaker) WithClock(clock func() time.Time) *CircuitBreaker {
	b.clock = clock
	return b
}

// Allow reports whether a call may proceed, transitioning open->half-open
// once ResetTimeout has elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.clock().Sub(b.openedAt) >= b.cfg.ResetTimeout {
			b.state = StateHalfOpen
			b.consecutiveOK = 0
			return true
		}
		return false
	default:
		return true
	}
}

// Success records a successful call.
func (b *CircuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.consecutiveOK++
		if b.consecutiveOK >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = nil
			b.consecutiveOK = 0
		}
	case StateClosed:
		b.failures = nil
	}
}

// Failure records a failed call. A failure in half-open re-opens
// immediately; in closed, it opens once FailureThreshold consecutive
// failures land within FailureWindow.
func (b *CircuitBreaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = now
		b.consecutiveOK = 0
		b.failures = nil
		return
	case StateOpen:
		return
	}

	cutoff := now.Add(-b.cfg.FailureWindow)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = append(kept, now)

	if len(b.failures) >= b.cfg.FailureThreshold {
		b.state = StateOpen
		b.openedAt = now
		b.failures = nil
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
