package shell

import "context"

// transport is the underlying command channel a DeviceShell drives. Two
// implementations exist: sshTransport (the default, for network-reachable
// mesh devices) and serialTransport (for a directly-cabled console, the
// teacher's own go.bug.st/serial usage generalized from a Zigbee NCP link
// to a generic line-oriented shell).
type transport interface {
	// connect establishes the underlying channel and authenticates.
	connect(ctx context.Context) error
	// exec runs a single command and returns its combined stdout/stderr.
	exec(ctx context.Context, command string) (string, error)
	// connected reports whether the transport believes it is usable.
	connected() bool
	// close tears the channel down.
	close() error
}
