package shell

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/netwatch-hq/netwatch/pkg/neterrors"
)

// sshTransport drives a router's interactive shell over SSH, one command at
// a time (golang.org/x/crypto/ssh opens a fresh Session per Exec since a
// Session is single-use for a single command/pty).
type sshTransport struct {
	addr        string
	user        string
	password    string
	keyPath     string
	dialTimeout time.Duration

	mu     sync.Mutex
	client *ssh.Client
}

func newSSHTransport(host string, port int, user, password, keyPath string) *sshTransport {
	return &sshTransport{
		addr:        fmt.Sprintf("%s:%d", host, port),
		user:        user,
		password:    password,
		keyPath:     keyPath,
		dialTimeout: 10 * time.Second,
	}
}

func (t *sshTransport) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if t.keyPath != "" {
		key, err := os.ReadFile(t.keyPath)
		if err != nil {
			return nil, neterrors.Wrap(neterrors.KindUnavailable, "read ssh key", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, neterrors.Wrap(neterrors.KindAuth, "parse ssh key", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if t.password != "" {
		methods = append(methods, ssh.Password(t.password))
	}
	if len(methods) == 0 {
		return nil, neterrors.New(neterrors.KindAuth, "no ssh credentials configured")
	}
	return methods, nil
}

func (t *sshTransport) connect(ctx context.Context) error {
	methods, err := t.authMethods()
	if err != nil {
		return err
	}

	cfg := &ssh.ClientConfig{
		User:            t.user,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // consumer mesh devices rarely publish known_hosts
		Timeout:         t.dialTimeout,
	}

	dialer := net.Dialer{Timeout: t.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return neterrors.Wrap(neterrors.KindUnavailable, "dial ssh", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, t.addr, cfg)
	if err != nil {
		_ = conn.Close()
		if isAuthFailure(err) {
			return neterrors.Wrap(neterrors.KindAuth, "ssh handshake rejected", err)
		}
		return neterrors.Wrap(neterrors.KindUnavailable, "ssh handshake", err)
	}

	t.mu.Lock()
	t.client = ssh.NewClient(sshConn, chans, reqs)
	t.mu.Unlock()

	// Probe command to confirm liveness, Connect().
	if _, err := t.exec(ctx, "echo netwatch-probe"); err != nil {
		_ = t.close()
		return neterrors.Wrap(neterrors.KindUnavailable, "probe command failed", err)
	}

	return nil
}

func isAuthFailure(err error) bool {
	_, ok := err.(*ssh.PermanentCredentialsError)
	if ok {
		return true
	}
	// golang.org/x/crypto/ssh doesn't expose a reliable typed auth-failure
	// distinct from a closed connection in every server implementation, so
	// the message is used as a fallback signal.
	return err != nil && len(err.Error()) > 0 && contains(err.Error(), "unable to authenticate")
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func (t *sshTransport) exec(ctx context.Context, command string) (string, error) {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil {
		return "", neterrors.New(neterrors.KindUnavailable, "ssh client not connected")
	}

	session, err := client.NewSession()
	if err != nil {
		return "", neterrors.Wrap(neterrors.KindUnavailable, "open ssh session", err)
	}
	defer func() { _ = session.Close() }()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(command)
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return "", neterrors.Wrap(neterrors.KindCancelled, "command cancelled", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return string(r.out), neterrors.Wrap(neterrors.KindUnavailable, "exec failed", r.err)
		}
		return string(r.out), nil
	}
}

func (t *sshTransport) connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil
}

func (t *sshTransport) close() error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}
