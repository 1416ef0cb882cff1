// Package snmpclient implements SnmpClient, synchronous bulk walks of
// configured switch hosts. gosnmp is an ecosystem dependency
// not exercised anywhere in the example pack; its API is the standard
// community-string/bulk-walk shape documented by the library itself.
package snmpclient

import (
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/netwatch-hq/netwatch/pkg/model"
)

const (
	defaultPort    = uint16(161)
	defaultTimeout = 5 * time.Second
)

var (
	oidIfDescr    = ".1.3.6.1.2.1.2.2.1.2"
	oidIfOperStat = ".1.3.6.1.2.1.2.2.1.8"
	oidVlanName   = ".1.3.6.1.2.1.17.7.1.4.3.1.1"
	oidPoEStatus  = ".1.3.6.1.2.1.105.1.1.1.6"
)

// HostConfig describes one SNMP-managed switch.
type HostConfig struct {
	Host      string
	Port      uint16
	Community string
	Timeout   time.Duration
}

// Client issues synchronous bulk walks against configured switch hosts.
type Client struct {
	dial func(cfg HostConfig) (snmpConn, error)
}

// snmpConn is the subset of *gosnmp.GoSNMP this package drives, narrowed so
// tests can fake it.
type snmpConn interface {
	Connect() error
	BulkWalk(oid string, walkFn gosnmp.WalkFunc) error
	Close() error
}

// New builds a Client using the real gosnmp transport.
func New() *Client {
	return &Client{dial: dialGoSNMP}
}

func dialGoSNMP(cfg HostConfig) (snmpConn, error) {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	g := &gosnmp.GoSNMP{
		Target:    cfg.Host,
		Port:      port,
		Community: cfg.Community,
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   1,
	}
	return g, nil
}

// SwitchSnapshot is the result of one host's bulk walk.
type SwitchSnapshot struct {
	Host   string
	Status *model.SourceHealth
	Ports  []PortInfo
	VLANs  []VLANInfo
}

// PortInfo is one switch port's description, operational state, and PoE
// draw, where known.
type PortInfo struct {
	Index       int
	Description string
	Up          bool
	PoEWatts    *float64
}

// VLANInfo is one VLAN's name as reported by the switch.
type VLANInfo struct {
	ID   int
	Name string
}

// WalkHost performs a synchronous bulk walk of one configured host. A host
// that does not respond yields a nil Status rather than an error; unknown
// OID branches (a switch that doesn't support PoE, for instance) yield an
// empty slice rather than an error.
func (c *Client) WalkHost(cfg HostConfig) SwitchSnapshot {
	snap := SwitchSnapshot{Host: cfg.Host}

	conn, err := c.dial(cfg)
	if err != nil {
		return snap
	}
	if err := conn.Connect(); err != nil {
		return snap
	}
	defer conn.Close()

	descrs := walkStrings(conn, oidIfDescr)
	if descrs == nil {
		return snap
	}

	operStatus := walkBools(conn, oidIfOperStat)
	poe := walkFloats(conn, oidPoEStatus)

	ports := make([]PortInfo, 0, len(descrs))
	for idx, descr := range descrs {
		p := PortInfo{Index: idx, Description: descr}
		if up, ok := operStatus[idx]; ok {
			p.Up = up
		}
		if watts, ok := poe[idx]; ok {
			w := watts
			p.PoEWatts = &w
		}
		ports = append(ports, p)
	}
	snap.Ports = ports

	vlanNames := walkStrings(conn, oidVlanName)
	vlans := make([]VLANInfo, 0, len(vlanNames))
	for id, name := range vlanNames {
		vlans = append(vlans, VLANInfo{ID: id, Name: name})
	}
	snap.VLANs = vlans

	healthy := model.SourceHealth{Available: true}
	snap.Status = &healthy

	return snap
}

// walkStrings returns nil (not an error) if the OID branch is entirely
// unsupported by the host, matching the "unknown-OID branches yield empty
// sub-results rather than errors" rule.
func walkStrings(conn snmpConn, oid string) map[int]string {
	out := make(map[int]string)
	_ = conn.BulkWalk(oid, func(pdu gosnmp.SnmpPDU) error {
		idx := lastOIDComponent(pdu.Name)
		switch v := pdu.Value.(type) {
		case []byte:
			out[idx] = string(v)
		case string:
			out[idx] = v
		}
		return nil
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

func walkBools(conn snmpConn, oid string) map[int]bool {
	out := make(map[int]bool)
	_ = conn.BulkWalk(oid, func(pdu gosnmp.SnmpPDU) error {
		idx := lastOIDComponent(pdu.Name)
		if v, ok := pdu.Value.(int); ok {
			out[idx] = v == 1 // ifOperStatus: 1 == up
		}
		return nil
	})
	return out
}

func walkFloats(conn snmpConn, oid string) map[int]float64 {
	out := make(map[int]float64)
	_ = conn.BulkWalk(oid, func(pdu gosnmp.SnmpPDU) error {
		idx := lastOIDComponent(pdu.Name)
		switch v := pdu.Value.(type) {
		case int:
			out[idx] = float64(v)
		case uint:
			out[idx] = float64(v)
		}
		return nil
	})
	return out
}

// lastOIDComponent returns the trailing numeric component of a dotted OID
// string, used as the table index (ifIndex, vlan id, ...) gosnmp appends
// after the base OID during a bulk walk.
func lastOIDComponent(oid string) int {
	dot := -1
	for i := len(oid) - 1; i >= 0; i-- {
		if oid[i] == '.' {
			dot = i
			break
		}
	}
	n := 0
	for i := dot + 1; i < len(oid); i++ {
		if oid[i] < '0' || oid[i] > '9' {
			return 0
		}
		n = n*10 + int(oid[i]-'0')
	}
	return n
}
