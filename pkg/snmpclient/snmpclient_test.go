package snmpclient

import (
	"errors"
	"testing"

	"github.com/gosnmp/gosnmp"
)

type fakeConn struct {
	connectErr error
	walks      map[string][]gosnmp.SnmpPDU
}

func (f *fakeConn) Connect() error { return f.connectErr }
func (f *fakeConn) Close() error   { return nil }
func (f *fakeConn) BulkWalk(oid string, walkFn gosnmp.WalkFunc) error {
	for _, pdu := range f.walks[oid] {
		if err := walkFn(pdu); err != nil {
			return err
		}
	}
	return nil
}

func newTestClient(conn snmpConn, dialErr error) *Client {
	return &Client{dial: func(cfg HostConfig) (snmpConn, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return conn, nil
	}}
}

func TestWalkHostUnreachableReturnsNilStatus(t *testing.T) {
	c := newTestClient(nil, errors.New("no route to host"))
	snap := c.WalkHost(HostConfig{Host: "10.0.0.5", Community: "public"})

	if snap.Status != nil {
		t.Fatalf("expected nil status for unreachable host, got %+v", snap.Status)
	}
	if snap.Ports != nil {
		t.Fatalf("expected no ports for unreachable host")
	}
}

func TestWalkHostPortsAndVLANs(t *testing.T) {
	conn := &fakeConn{
		walks: map[string][]gosnmp.SnmpPDU{
			oidIfDescr: {
				{Name: oidIfDescr + ".1", Value: []byte("GigabitEthernet0/1")},
				{Name: oidIfDescr + ".2", Value: []byte("GigabitEthernet0/2")},
			},
			oidIfOperStat: {
				{Name: oidIfOperStat + ".1", Value: 1},
				{Name: oidIfOperStat + ".2", Value: 2},
			},
			oidPoEStatus: {
				{Name: oidPoEStatus + ".1", Value: 15},
			},
			oidVlanName: {
				{Name: oidVlanName + ".10", Value: []byte("cameras")},
			},
		},
	}
	c := newTestClient(conn, nil)

	snap := c.WalkHost(HostConfig{Host: "10.0.0.5", Community: "public"})

	if snap.Status == nil || !snap.Status.Available {
		t.Fatalf("expected available status, got %+v", snap.Status)
	}
	if len(snap.Ports) != 2 {
		t.Fatalf("expected 2 ports, got %d", len(snap.Ports))
	}
	if !snap.Ports[0].Up || snap.Ports[1].Up {
		t.Fatalf("expected port 1 up and port 2 down, got %+v", snap.Ports)
	}
	if snap.Ports[0].PoEWatts == nil || *snap.Ports[0].PoEWatts != 15 {
		t.Fatalf("expected port 1 PoE watts 15, got %+v", snap.Ports[0].PoEWatts)
	}
	if snap.Ports[1].PoEWatts != nil {
		t.Fatalf("expected port 2 to have no PoE reading")
	}
	if len(snap.VLANs) != 1 || snap.VLANs[0].Name != "cameras" {
		t.Fatalf("expected one vlan 'cameras', got %+v", snap.VLANs)
	}
}

func TestWalkHostUnknownOIDBranchYieldsEmptyNotError(t *testing.T) {
	conn := &fakeConn{
		walks: map[string][]gosnmp.SnmpPDU{
			oidIfDescr: {
				{Name: oidIfDescr + ".1", Value: []byte("eth0")},
			},
			// No PoE OID support on this switch at all.
		},
	}
	c := newTestClient(conn, nil)

	snap := c.WalkHost(HostConfig{Host: "10.0.0.9", Community: "public"})

	if snap.Status == nil || !snap.Status.Available {
		t.Fatalf("expected the host to still be reported available")
	}
	if len(snap.Ports) != 1 {
		t.Fatalf("expected 1 port, got %d", len(snap.Ports))
	}
	if snap.Ports[0].PoEWatts != nil {
		t.Fatalf("expected no PoE reading when the branch is unsupported")
	}
	if len(snap.VLANs) != 0 {
		t.Fatalf("expected no VLANs when the branch is unsupported, got %+v", snap.VLANs)
	}
}

func TestLastOIDComponent(t *testing.T) {
	cases := map[string]int{
		".1.3.6.1.2.1.2.2.1.2.7": 7,
		".1.3.6.1.2.1.2.2.1.2.0": 0,
		"not-an-oid":             0,
	}
	for oid, want := range cases {
		if got := lastOIDComponent(oid); got != want {
			t.Errorf("lastOIDComponent(%q) = %d, want %d", oid, got, want)
		}
	}
}
