package shell

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// With threshold=3, window=60s: calls 1-3 fail, call 4 (within the window)
// must be refused without attempting the transport.
// The trial let through after the cooldown is covered by
// TestBreakerHalfOpenAfterCooldownThenCloses.
func TestBreakerOpensAfterThresholdWithinWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newBreaker(clock, 3, 60*time.Second, 30*time.Second)

	for i := 0; i < 3; i++ {
		if !b.allow() {
			t.Fatalf("call %d: expected breaker closed to allow the call", i+1)
		}
		b.recordFailure()
	}

	if b.allow() {
		t.Fatalf("expected the 4th call within the window to be refused")
	}

	state, fails := b.snapshot()
	if state != circuitOpen {
		t.Fatalf("expected circuit open, got state=%v fails=%d", state, fails)
	}
}

func TestBreakerHalfOpenAfterCooldownThenCloses(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newBreaker(clock, 3, 60*time.Second, 30*time.Second)

	for i := 0; i < 3; i++ {
		b.allow()
		b.recordFailure()
	}
	if b.allow() {
		t.Fatalf("expected refusal immediately after opening")
	}

	clock.Advance(31 * time.Second)

	if !b.allow() {
		t.Fatalf("expected a single trial to be let through after cooldown")
	}
	// A second concurrent call must not also get a trial.
	if b.allow() {
		t.Fatalf("expected only one in-flight half-open trial")
	}

	b.recordSuccess()
	state, _ := b.snapshot()
	if state != circuitClosed {
		t.Fatalf("expected circuit closed after a successful trial, got %v", state)
	}
	if !b.allow() {
		t.Fatalf("expected calls to be allowed once closed")
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newBreaker(clock, 3, 60*time.Second, 30*time.Second)

	for i := 0; i < 3; i++ {
		b.allow()
		b.recordFailure()
	}
	clock.Advance(31 * time.Second)
	b.allow()
	b.recordFailure()

	state, _ := b.snapshot()
	if state != circuitOpen {
		t.Fatalf("expected a failed half-open trial to reopen the circuit, got %v", state)
	}
}

func TestBreakerFailuresOutsideWindowDoNotAccumulate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newBreaker(clock, 3, 10*time.Second, 30*time.Second)

	b.allow()
	b.recordFailure()
	clock.Advance(11 * time.Second)
	b.allow()
	b.recordFailure()
	clock.Advance(11 * time.Second)
	b.allow()
	b.recordFailure()

	// Each failure was outside the prior one's window, so the breaker never
	// accumulated 3 consecutive failures within a single window.
	if !b.allow() {
		t.Fatalf("expected breaker to remain closed when failures are spread outside the window")
	}
}

func TestBreakerReset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newBreaker(clock, 1, 60*time.Second, 30*time.Second)

	b.allow()
	b.recordFailure()
	if b.allow() {
		t.Fatalf("expected breaker open after one failure at threshold 1")
	}

	b.reset()
	if !b.allow() {
		t.Fatalf("expected ResetCircuit to force the breaker closed")
	}
}
