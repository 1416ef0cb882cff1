package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/netwatch-hq/netwatch/pkg/neterrors"
)

// serialTransport drives a directly-cabled console shell at 115200 8N1 with
// RTS asserted, the same line discipline as a serial management console: a
// command is written followed by a newline, and the reply is everything up
// to the next occurrence of the configured prompt string.
type serialTransport struct {
	portPath string
	prompt   string
	baudRate int

	mu     sync.Mutex
	port   serial.Port
	reader *bufio.Reader
}

func newSerialTransport(portPath string) *serialTransport {
	return &serialTransport{
		portPath: portPath,
		prompt:   "# ",
		baudRate: 115200,
	}
}

func (t *serialTransport) connect(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: t.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(t.portPath, mode)
	if err != nil {
		return neterrors.Wrap(neterrors.KindUnavailable, fmt.Sprintf("open serial port %s", t.portPath), err)
	}

	if err := port.SetRTS(true); err != nil {
		_ = port.Close()
		return neterrors.Wrap(neterrors.KindUnavailable, "set RTS", err)
	}

	t.mu.Lock()
	t.port = port
	t.reader = bufio.NewReader(port)
	t.mu.Unlock()

	if _, err := t.exec(ctx, ""); err != nil {
		_ = t.close()
		return neterrors.Wrap(neterrors.KindUnavailable, "probe serial console failed", err)
	}

	return nil
}

// exec writes command+"\n" and reads until the configured prompt reappears.
// A console without the expected prompt pattern will hit the context
// deadline and surface as a timeout rather than hanging forever.
func (t *serialTransport) exec(ctx context.Context, command string) (string, error) {
	t.mu.Lock()
	port := t.port
	reader := t.reader
	t.mu.Unlock()

	if port == nil {
		return "", neterrors.New(neterrors.KindUnavailable, "serial port not connected")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := port.Write([]byte(command + "\n")); err != nil {
		return "", neterrors.Wrap(neterrors.KindUnavailable, "write serial command", err)
	}

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		var sb strings.Builder
		for {
			line, err := reader.ReadString('\n')
			sb.WriteString(line)
			if err != nil {
				done <- result{out: sb.String(), err: err}
				return
			}
			if strings.Contains(sb.String(), t.prompt) {
				done <- result{out: sb.String(), err: nil}
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		return "", neterrors.Wrap(neterrors.KindCancelled, "command cancelled", ctx.Err())
	case r := <-done:
		if r.err != nil && r.err != io.EOF {
			return r.out, neterrors.Wrap(neterrors.KindUnavailable, "read serial response", r.err)
		}
		return strings.TrimSuffix(strings.TrimSuffix(r.out, t.prompt), "\n"), nil
	}
}

func (t *serialTransport) connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

func (t *serialTransport) close() error {
	t.mu.Lock()
	port := t.port
	t.port = nil
	t.reader = nil
	t.mu.Unlock()

	if port == nil {
		return nil
	}
	return port.Close()
}
