package nodepool

import (
	"context"
	"errors"
	"testing"

	"github.com/netwatch-hq/netwatch/pkg/model"
	"github.com/netwatch-hq/netwatch/pkg/neterrors"
)

func TestParseMembershipRecord(t *testing.T) {
	raw := "<aa:bb:cc:dd:ee:01,192.168.1.2,0,EA6350,upstairs><aa:bb:cc:dd:ee:02,192.168.1.3,5,EA6350,downstairs>"

	entries, err := parseMembershipRecord(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].cost != 0 || backhaulFor(entries[0].cost) != model.BackhaulWired {
		t.Errorf("expected entry 0 wired, got cost=%d", entries[0].cost)
	}
	if entries[1].cost != 5 || backhaulFor(entries[1].cost) != model.BackhaulWireless {
		t.Errorf("expected entry 1 wireless, got cost=%d", entries[1].cost)
	}
}

func TestParseMembershipRecordSkipsMalformedEntries(t *testing.T) {
	raw := "<aa:bb:cc:dd:ee:01,192.168.1.2,0,EA6350,upstairs><malformed,only,three>"

	entries, err := parseMembershipRecord(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected malformed entry to be skipped, got %d entries", len(entries))
	}
}

func TestParseMembershipRecordEmptyIsParseError(t *testing.T) {
	_, err := parseMembershipRecord("no entries here")
	if !errors.Is(err, neterrors.ErrParse) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

type fakePeerShell struct {
	connectErr error
	execOut    string
	execErr    error
}

func (f *fakePeerShell) Connect(ctx context.Context) error { return f.connectErr }
func (f *fakePeerShell) Exec(ctx context.Context, command string) (string, error) {
	return f.execOut, f.execErr
}
func (f *fakePeerShell) Disconnect() error { return nil }

func TestInitializeTeratesPeerFailures(t *testing.T) {
	primary := &fakePeerShell{execOut: "<aa:bb:cc:dd:ee:01,192.168.1.2,0,EA6350,good><aa:bb:cc:dd:ee:02,192.168.1.3,1,EA6350,bad>"}

	pool := New(func(ip string) (peerShell, error) {
		if ip == "192.168.1.3" {
			return nil, neterrors.New(neterrors.KindUnavailable, "refused")
		}
		return &fakePeerShell{}, nil
	})

	if err := pool.Initialize(context.Background(), primary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	nodes := pool.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("expected both peers recorded, got %d", len(nodes))
	}

	var sawReachable, sawUnreachable bool
	for _, n := range nodes {
		if n.HardwareAddress == "aa:bb:cc:dd:ee:01" && n.Reachable {
			sawReachable = true
		}
		if n.HardwareAddress == "aa:bb:cc:dd:ee:02" && !n.Reachable {
			sawUnreachable = true
		}
	}
	if !sawReachable || !sawUnreachable {
		t.Fatalf("expected one reachable and one unreachable peer, got %+v", nodes)
	}
}

func TestExecOnUnknownNode(t *testing.T) {
	pool := New(func(ip string) (peerShell, error) { return &fakePeerShell{}, nil })
	_, err := pool.ExecOn(context.Background(), "nonexistent", "show version")
	if !errors.Is(err, neterrors.ErrUnknownNode) {
		t.Fatalf("expected UnknownNodeError, got %v", err)
	}
}

func TestExecOnAllRunsInParallelAcrossReachablePeers(t *testing.T) {
	primary := &fakePeerShell{execOut: "<aa:bb:cc:dd:ee:01,192.168.1.2,0,EA6350,a><aa:bb:cc:dd:ee:02,192.168.1.3,0,EA6350,b>"}
	pool := New(func(ip string) (peerShell, error) {
		return &fakePeerShell{execOut: "ok-" + ip}, nil
	})
	if err := pool.Initialize(context.Background(), primary); err != nil {
		t.Fatal(err)
	}

	results := pool.ExecOnAll(context.Background(), "show version")
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for id, r := range results {
		if r.Err != nil {
			t.Errorf("node %s: unexpected error %v", id, r.Err)
		}
	}
}
