// Package shell implements DeviceShell, the serialised command channel to a
// single networked device. It wraps an underlying
// transport (SSH or a directly-cabled serial console) with a circuit
// breaker so that a device in a failure spiral stops being hammered with
// commands it cannot answer.
package shell

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/netwatch-hq/netwatch/pkg/neterrors"
)

const (
	defaultCommandDeadline  = 10 * time.Second
	defaultBreakerThreshold = 3
	defaultBreakerWindow    = 60 * time.Second
	defaultBreakerCooldown  = 30 * time.Second
)

// DeviceShell is one serialised command channel to a networked device. Every
// Exec call (including the convenience wrappers) is mutex-serialised: only
// one command is ever in flight against the underlying transport at a time,
// since a DeviceShell is owned by exactly one worker.
type DeviceShell struct {
	log zerolog.Logger

	execMu sync.Mutex
	t      transport
	b      *breaker
	clock  clockwork.Clock

	commandDeadline time.Duration
}

// Option customises DeviceShell construction.
type Option func(*DeviceShell)

// WithCommandDeadline overrides the default 10s per-command deadline.
func WithCommandDeadline(d time.Duration) Option {
	return func(s *DeviceShell) { s.commandDeadline = d }
}

// WithClock overrides the clock driving the breaker's failure-window and
// cooldown timing, real by default; tests inject clockwork.NewFakeClock to
// control breaker trips deterministically.
func WithClock(clock clockwork.Clock) Option {
	return func(s *DeviceShell) { s.clock = clock }
}

// NewSSHShell builds a DeviceShell backed by an SSH transport.
func NewSSHShell(log zerolog.Logger, host string, port int, user, password, keyPath string, opts ...Option) *DeviceShell {
	return newShell(log, newSSHTransport(host, port, user, password, keyPath), opts...)
}

// NewSerialShell builds a DeviceShell backed by a directly-cabled serial
// console transport.
func NewSerialShell(log zerolog.Logger, portPath string, opts ...Option) *DeviceShell {
	return newShell(log, newSerialTransport(portPath), opts...)
}

func newShell(log zerolog.Logger, t transport, opts ...Option) *DeviceShell {
	s := &DeviceShell{
		log:             log,
		t:               t,
		clock:           clockwork.NewRealClock(),
		commandDeadline: defaultCommandDeadline,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.b = newBreaker(s.clock, defaultBreakerThreshold, defaultBreakerWindow, defaultBreakerCooldown)
	return s
}

// Connect opens the underlying transport and authenticates. It fails with
// UnavailableError on transport setup failure and with
// AuthError on rejected credentials. AuthError opens the breaker at once;
// other failures are recorded so a device that is persistently unreachable
// trips the breaker the same way a live one failing mid-session would.
func (s *DeviceShell) Connect(ctx context.Context) error {
	if !s.b.allow() {
		return neterrors.New(neterrors.KindCircuitOpen, "circuit open, refusing connect")
	}

	err := s.t.connect(ctx)
	if err != nil {
		if kind, isKind := neterrors.Of(err); isKind && kind == neterrors.KindAuth {
			s.b.mu.Lock()
			s.b.openCircuit(s.b.clock.Now())
			s.b.mu.Unlock()
			return err
		}
		s.b.recordFailure()
		return err
	}
	s.b.recordSuccess()
	return nil
}

// Exec runs a single command, serialised against all other callers of this
// shell. Transient transport errors are retried once before the breaker
// records a failure; AuthError is never retried and opens the breaker
// immediately.
func (s *DeviceShell) Exec(ctx context.Context, command string) (string, error) {
	if !s.b.allow() {
		return "", neterrors.New(neterrors.KindCircuitOpen, "circuit open, refusing command")
	}

	s.execMu.Lock()
	defer s.execMu.Unlock()

	deadlineCtx, cancel := context.WithTimeout(ctx, s.commandDeadline)
	defer cancel()

	out, err := s.t.exec(deadlineCtx, command)
	if err == nil {
		s.b.recordSuccess()
		return out, nil
	}

	if kind, ok := neterrors.Of(err); ok && kind == neterrors.KindAuth {
		s.b.mu.Lock()
		s.b.openCircuit(s.b.clock.Now())
		s.b.mu.Unlock()
		return out, err
	}

	s.log.Debug().Err(err).Str("command", command).Msg("transient exec failure, retrying once")

	retryCtx, retryCancel := context.WithTimeout(ctx, s.commandDeadline)
	defer retryCancel()

	out, err = s.t.exec(retryCtx, command)
	if err != nil {
		s.b.recordFailure()
		return out, err
	}

	s.b.recordSuccess()
	return out, nil
}

// GetKV reads a single opaque configuration key. The shell-driven router
// configuration key layout is owned by the device, not by this package; it
// is forwarded to Exec verbatim via a conventional "get" command template.
func (s *DeviceShell) GetKV(ctx context.Context, key string) (string, error) {
	return s.Exec(ctx, "uci get "+key)
}

// SetKV writes a single opaque configuration key.
func (s *DeviceShell) SetKV(ctx context.Context, key, value string) error {
	_, err := s.Exec(ctx, "uci set "+key+"='"+value+"'")
	return err
}

// Commit persists pending configuration changes made via SetKV.
func (s *DeviceShell) Commit(ctx context.Context) error {
	_, err := s.Exec(ctx, "uci commit")
	return err
}

// RestartRadio restarts the wireless subsystem, applying any committed
// configuration that requires a radio bounce.
func (s *DeviceShell) RestartRadio(ctx context.Context) error {
	_, err := s.Exec(ctx, "wifi reload")
	return err
}

// IsConnected reports whether the underlying transport believes it is
// usable. It does not consult the breaker: a closed transport with an open
// breaker is still "not connected".
func (s *DeviceShell) IsConnected() bool {
	return s.t.connected()
}

// Disconnect tears down the underlying transport.
func (s *DeviceShell) Disconnect() error {
	return s.t.close()
}

// ResetCircuit forces the breaker closed regardless of recent failures.
func (s *DeviceShell) ResetCircuit() {
	s.b.reset()
}
