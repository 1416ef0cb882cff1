// Package knowledge implements KnowledgeBase: the durable JSON document
// holding device profiles, the mesh-node registry, snapshot/connection/
// optimisation history, and retention settings, with a dirty-flag-driven
// auto-flush worker.
package knowledge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/netwatch-hq/netwatch/pkg/model"
)

const (
	currentVersion      = 1
	defaultFlushInterval = 30 * time.Second

	defaultSnapshotRingSize   = 50
	defaultConnectionRingSize = 200
	defaultOptimisationRingSize = 200
)

// DeviceProfile is what KnowledgeBase remembers about one device across
// scans, independent of any single NetworkSnapshot.
type DeviceProfile struct {
	HardwareAddress string    `json:"hardwareAddress"`
	Hostname        string    `json:"hostname,omitempty"`
	Vendor          string    `json:"vendor,omitempty"`
	FirstSeen       time.Time `json:"firstSeen"`
	LastSeen        time.Time `json:"lastSeen"`
}

// NodeRegistryEntry is a remembered mesh node, independent of whether it
// answered the most recent scan.
type NodeRegistryEntry struct {
	HardwareAddress string             `json:"hardwareAddress"`
	Alias           string             `json:"alias,omitempty"`
	Position        *model.NodePosition `json:"position,omitempty"`
	FirstSeen       time.Time          `json:"firstSeen"`
	LastSeen        time.Time          `json:"lastSeen"`
}

// SnmpDeviceEntry is a remembered SNMP-polled switch.
type SnmpDeviceEntry struct {
	Host     string    `json:"host"`
	LastSeen time.Time `json:"lastSeen"`
}

// ZigbeeDeviceEntry is a remembered Zigbee device, independent of the
// current hub session.
type ZigbeeDeviceEntry struct {
	IEEEAddress string    `json:"ieeeAddress"`
	LastSeen    time.Time `json:"lastSeen"`
}

// ConnectionEvent records a device joining, leaving, or roaming.
type ConnectionEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	DeviceAddr string    `json:"deviceAddr"`
	Kind       string    `json:"kind"` // "connected" | "disconnected" | "roamed"
	NodeAddr   string    `json:"nodeAddr,omitempty"`
}

// OptimisationRecord remembers one applied suggestion for audit/history.
type OptimisationRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	ActionType string    `json:"actionType"`
	SnapshotID string    `json:"snapshotId"`
}

// RetentionSettings controls ring sizes; zero values fall back to the
// documented defaults.
type RetentionSettings struct {
	SnapshotRingSize     int `json:"snapshotRingSize"`
	ConnectionRingSize   int `json:"connectionRingSize"`
	OptimisationRingSize int `json:"optimisationRingSize"`
}

// document is the exact shape persisted to network-knowledge.json.
type document struct {
	Version       int                          `json:"version"`
	NetworkID     string                       `json:"networkId"`
	UpdatedAt     time.Time                     `json:"updatedAt"`
	Devices       map[string]DeviceProfile      `json:"devices"`
	Nodes         map[string]NodeRegistryEntry  `json:"nodes"`
	SnmpDevices   map[string]SnmpDeviceEntry     `json:"snmpDevices"`
	ZigbeeDevices map[string]ZigbeeDeviceEntry   `json:"zigbeeDevices"`
	Snapshots     []*model.NetworkSnapshot      `json:"snapshots"`
	Connections   []ConnectionEvent             `json:"connectionEvents"`
	Optimisations []OptimisationRecord          `json:"optimisationHistory"`
	Retention     RetentionSettings             `json:"retention"`
}

func newDocument(networkID string) *document {
	return &document{
		Version:       currentVersion,
		NetworkID:     networkID,
		Devices:       make(map[string]DeviceProfile),
		Nodes:         make(map[string]NodeRegistryEntry),
		SnmpDevices:   make(map[string]SnmpDeviceEntry),
		ZigbeeDevices: make(map[string]ZigbeeDeviceEntry),
		Retention: RetentionSettings{
			SnapshotRingSize:     defaultSnapshotRingSize,
			ConnectionRingSize:   defaultConnectionRingSize,
			OptimisationRingSize: defaultOptimisationRingSize,
		},
	}
}

// KnowledgeBase owns the persisted document: all public mutators set a
// dirty flag and return synchronously, while a background worker flushes
// to disk every 30s when dirty and on Close.
type KnowledgeBase struct {
	log   zerolog.Logger
	clock clockwork.Clock
	path  string

	mu    sync.Mutex
	doc   *document
	dirty bool

	stopFlush chan struct{}
	stopped   chan struct{}
}

// Load reads path if it exists, or starts a fresh document for networkID
// otherwise, and starts the auto-flush worker.
func Load(log zerolog.Logger, clock clockwork.Clock, path, networkID string) (*KnowledgeBase, error) {
	kb := &KnowledgeBase{
		log:       log,
		clock:     clock,
		path:      path,
		stopFlush: make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = newDocument(networkID)
	}
	kb.doc = doc

	go kb.flushLoop()
	return kb, nil
}

func readDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Devices == nil {
		doc.Devices = make(map[string]DeviceProfile)
	}
	if doc.Nodes == nil {
		doc.Nodes = make(map[string]NodeRegistryEntry)
	}
	if doc.SnmpDevices == nil {
		doc.SnmpDevices = make(map[string]SnmpDeviceEntry)
	}
	if doc.ZigbeeDevices == nil {
		doc.ZigbeeDevices = make(map[string]ZigbeeDeviceEntry)
	}
	return &doc, nil
}

func (kb *KnowledgeBase) markDirty() {
	kb.dirty = true
}

// RecordDevice upserts a device profile's last-seen timestamp, setting
// first-seen only the first time the address is observed.
func (kb *KnowledgeBase) RecordDevice(addr, hostname, vendor string, now time.Time) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	p, ok := kb.doc.Devices[addr]
	if !ok {
		p = DeviceProfile{HardwareAddress: addr, FirstSeen: now}
	}
	p.Hostname = hostname
	p.Vendor = vendor
	p.LastSeen = now
	kb.doc.Devices[addr] = p
	kb.markDirty()
}

// RecordNode upserts a mesh node's registry entry.
func (kb *KnowledgeBase) RecordNode(addr, alias string, now time.Time) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	n, ok := kb.doc.Nodes[addr]
	if !ok {
		n = NodeRegistryEntry{HardwareAddress: addr, FirstSeen: now}
	}
	if alias != "" {
		n.Alias = alias
	}
	n.LastSeen = now
	kb.doc.Nodes[addr] = n
	kb.markDirty()
}

// SetNodePosition records a node's fixed 3D position. getNodePositions
// (via NodePositions) returns exactly what was set here, satisfying the
// setNodePosition3D/getNodePositions round-trip property.
func (kb *KnowledgeBase) SetNodePosition(pos model.NodePosition) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	n := kb.doc.Nodes[pos.NodeID]
	n.HardwareAddress = pos.NodeID
	posCopy := pos
	n.Position = &posCopy
	kb.doc.Nodes[pos.NodeID] = n
	kb.markDirty()
}

// NodePositions returns every node with a recorded position.
func (kb *KnowledgeBase) NodePositions() []model.NodePosition {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	var out []model.NodePosition
	for _, n := range kb.doc.Nodes {
		if n.Position != nil {
			out = append(out, *n.Position)
		}
	}
	return out
}

// AppendSnapshot ring-buffers snap into the snapshot history.
func (kb *KnowledgeBase) AppendSnapshot(snap *model.NetworkSnapshot) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	limit := kb.doc.Retention.SnapshotRingSize
	if limit <= 0 {
		limit = defaultSnapshotRingSize
	}
	kb.doc.Snapshots = append(kb.doc.Snapshots, snap)
	if len(kb.doc.Snapshots) > limit {
		kb.doc.Snapshots = kb.doc.Snapshots[len(kb.doc.Snapshots)-limit:]
	}
	kb.markDirty()
}

// RecordConnectionEvent ring-buffers a connection-lifecycle event.
func (kb *KnowledgeBase) RecordConnectionEvent(ev ConnectionEvent) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	limit := kb.doc.Retention.ConnectionRingSize
	if limit <= 0 {
		limit = defaultConnectionRingSize
	}
	kb.doc.Connections = append(kb.doc.Connections, ev)
	if len(kb.doc.Connections) > limit {
		kb.doc.Connections = kb.doc.Connections[len(kb.doc.Connections)-limit:]
	}
	kb.markDirty()
}

// RecordOptimisation ring-buffers an applied-suggestion audit record.
func (kb *KnowledgeBase) RecordOptimisation(rec OptimisationRecord) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	limit := kb.doc.Retention.OptimisationRingSize
	if limit <= 0 {
		limit = defaultOptimisationRingSize
	}
	kb.doc.Optimisations = append(kb.doc.Optimisations, rec)
	if len(kb.doc.Optimisations) > limit {
		kb.doc.Optimisations = kb.doc.Optimisations[len(kb.doc.Optimisations)-limit:]
	}
	kb.markDirty()
}

// LatestSnapshot returns the most recently appended snapshot, if any.
func (kb *KnowledgeBase) LatestSnapshot() (*model.NetworkSnapshot, bool) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if len(kb.doc.Snapshots) == 0 {
		return nil, false
	}
	return kb.doc.Snapshots[len(kb.doc.Snapshots)-1], true
}

// Export serialises the current document to JSON, for backup or transfer
// to another instance.
func (kb *KnowledgeBase) Export() ([]byte, error) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return json.MarshalIndent(kb.doc, "", "  ")
}

// Import replaces the current document with data, which must be a
// previously Export-ed document. Export followed by Import on the result
// is required to be a fixed point: the re-imported document must
// Export back to the same bytes.
func (kb *KnowledgeBase) Import(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Devices == nil {
		doc.Devices = make(map[string]DeviceProfile)
	}
	if doc.Nodes == nil {
		doc.Nodes = make(map[string]NodeRegistryEntry)
	}
	if doc.SnmpDevices == nil {
		doc.SnmpDevices = make(map[string]SnmpDeviceEntry)
	}
	if doc.ZigbeeDevices == nil {
		doc.ZigbeeDevices = make(map[string]ZigbeeDeviceEntry)
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.doc = &doc
	kb.markDirty()
	return nil
}

// Reload re-reads the document from disk, replacing the in-memory copy.
// It answers the documented SIGHUP behaviour: a configuration-reload
// signal reloads the knowledge base without disturbing live transports,
// which this package has none of to disturb. Unflushed in-memory changes
// are discarded in favour of what is on disk; callers that need them kept
// should Flush before calling Reload.
func (kb *KnowledgeBase) Reload() error {
	doc, err := readDocument(kb.path)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.doc = doc
	kb.dirty = false
	return nil
}

// Flush writes the document to disk if dirty, via a temp-file-then-rename
// so a crash mid-write never corrupts the previous good copy.
func (kb *KnowledgeBase) Flush() error {
	kb.mu.Lock()
	if !kb.dirty {
		kb.mu.Unlock()
		return nil
	}
	kb.doc.UpdatedAt = kb.clock.Now()
	data, err := json.MarshalIndent(kb.doc, "", "  ")
	dirty := kb.dirty
	kb.mu.Unlock()

	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(kb.path), 0o700); err != nil {
		return err
	}
	tmp := kb.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, kb.path); err != nil {
		return err
	}

	kb.mu.Lock()
	kb.dirty = false
	kb.mu.Unlock()
	return nil
}

func (kb *KnowledgeBase) flushLoop() {
	defer close(kb.stopped)
	for {
		select {
		case <-kb.clock.After(defaultFlushInterval):
			if err := kb.Flush(); err != nil {
				kb.log.Warn().Err(err).Msg("periodic knowledge-base flush failed")
			}
		case <-kb.stopFlush:
			return
		}
	}
}

// Close stops the auto-flush worker and performs one final flush.
func (kb *KnowledgeBase) Close(ctx context.Context) error {
	close(kb.stopFlush)

	select {
	case <-kb.stopped:
	case <-ctx.Done():
	}

	return kb.Flush()
}
