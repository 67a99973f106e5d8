package orchestrator

import (
	"sync"
	"time"
)

// BreakerState is the orchestrator's API circuit breaker state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// breaker is the cycle-failure circuit breaker: closed → open after
// F_threshold consecutive cycle failures, open → half_open after T_open,
// half_open → closed on the next cycle's success or back to open on failure.
type breaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	threshold    int
	openDuration time.Duration
	openedAt     time.Time
}

func newBreaker(threshold int, openDuration time.Duration) *breaker {
	return &breaker{state: BreakerClosed, threshold: threshold, openDuration: openDuration}
}

// allow reports whether a cycle may start, promoting open→half_open once
// T_open has elapsed.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if time.Since(b.openedAt) >= b.openDuration {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	}
	return true
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = BreakerClosed
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = BreakerOpen
		b.openedAt = time.Now()
	}
}

func (b *breaker) snapshot() (BreakerState, int, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.failures, b.openedAt
}
