package shell

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// breaker is the three-state failure gate:
// closed -> open after N consecutive failures within a sliding window;
// open -> half-open after a cooldown, letting exactly one trial through;
// half-open -> closed on success, back to open on failure.
//
// Modeled on the consecutiveFails/openedAt state machine in
// 99souls-ariadne's internal/ratelimit circuit breaker, generalized from a
// per-domain rate limiter feedback loop to a single transport's failures.
type breaker struct {
	mu sync.Mutex

	clock     clockwork.Clock
	threshold int
	window    time.Duration
	cooldown  time.Duration

	state            circuitState
	consecutiveFails int
	firstFailAt      time.Time
	openedAt         time.Time
	halfOpenInFlight bool
}

func newBreaker(clock clockwork.Clock, threshold int, window, cooldown time.Duration) *breaker {
	return &breaker{
		clock:     clock,
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		state:     circuitClosed,
	}
}

// allow reports whether a call may proceed, and if the breaker has just
// transitioned to half-open, marks the in-flight trial so a concurrent
// caller can't also sneak a trial through.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case circuitClosed:
		return true
	case circuitOpen:
		if b.clock.Now().Sub(b.openedAt) >= b.cooldown {
			b.state = circuitHalfOpen
			b.halfOpenInFlight = true
			return true
		}
		return false
	case circuitHalfOpen:
		if b.halfOpenInFlight {
			return false
		}
		b.halfOpenInFlight = true
		return true
	default:
		return false
	}
}

// recordSuccess closes the breaker (from any state).
func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = circuitClosed
	b.consecutiveFails = 0
	b.halfOpenInFlight = false
}

// recordFailure increments the failure counter within the sliding window
// and opens the breaker once the threshold is crossed.
func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.halfOpenInFlight = false

	if b.state == circuitHalfOpen {
		b.openCircuit(now)
		return
	}

	if b.consecutiveFails == 0 || now.Sub(b.firstFailAt) > b.window {
		b.firstFailAt = now
		b.consecutiveFails = 1
	} else {
		b.consecutiveFails++
	}

	if b.consecutiveFails >= b.threshold {
		b.openCircuit(now)
	}
}

func (b *breaker) openCircuit(now time.Time) {
	b.state = circuitOpen
	b.openedAt = now
}

// reset forces the breaker closed, as DeviceShell.ResetCircuit does.
func (b *breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = circuitClosed
	b.consecutiveFails = 0
	b.halfOpenInFlight = false
}

func (b *breaker) snapshot() (circuitState, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.consecutiveFails
}
