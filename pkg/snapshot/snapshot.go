// Package snapshot implements SnapshotBuilder, the phased scan orchestrator
// that produces one NetworkSnapshot per run.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/netwatch-hq/netwatch/pkg/model"
	"github.com/netwatch-hq/netwatch/pkg/neterrors"
	"github.com/netwatch-hq/netwatch/pkg/snmpclient"
)

// Phase names, emitted in Progress events.
const (
	PhaseCollectingRouter          = "collectingRouter"
	PhaseScanningNeighbors         = "scanningNeighbors"
	PhaseCollectingHub             = "collectingHub"
	PhaseCollectingSnmp            = "collectingSnmp"
	PhaseAnalysing                 = "analysing"
	PhaseGeneratingRecommendations = "generatingRecommendations"
)

// Progress is one phase's status update.
type Progress struct {
	Phase   string
	Percent int
	Message string
}

// PrimaryShell is the subset of DeviceShell SnapshotBuilder drives.
type PrimaryShell interface {
	Exec(ctx context.Context, command string) (string, error)
	IsConnected() bool
}

// NodePool is the subset of NodePool SnapshotBuilder drives.
type NodePool interface {
	Nodes() []model.Node
	ExecOn(ctx context.Context, hardwareAddress, command string) (string, error)
}

// HubClient is the subset of hub.Client SnapshotBuilder drives.
type HubClient interface {
	GetZigbeeDevices(ctx context.Context) (json.RawMessage, error)
	GetZigbeeNetwork(ctx context.Context) (json.RawMessage, error)
	IsConnected() bool
}

// SignalSink receives discovered RSSI samples, implemented by
// signalstore.Store.
type SignalSink interface {
	Append(sample model.SignalSample)
}

// SnmpClient is the subset of snmpclient.Client SnapshotBuilder drives.
type SnmpClient interface {
	WalkHost(cfg snmpclient.HostConfig) snmpclient.SwitchSnapshot
}

// Parser functions are injected so SnapshotBuilder stays decoupled from any
// one device's exact command-output grammar; production wiring supplies
// parsers built on pkg/spectrum and pkg/routerstate.
type Parsers struct {
	ParseNeighborScan      func(raw string) ([]model.NeighborAP, error)
	ParseRadios            func(raw, nodeID string) ([]model.Radio, error)
	ParseAssociatedClients func(raw, attachedNode string) ([]model.Device, error)
}

// Targets a caller may request recommendations for; forwarded verbatim to
// the recommendation stage.
type Targets []string

// Builder orchestrates one scan at a time across all configured
// collaborators.
type Builder struct {
	log zerolog.Logger

	primary   PrimaryShell
	nodes     NodePool
	hubCli    HubClient // nil if no hub configured
	signals   SignalSink
	snmp      SnmpClient             // nil if no switches configured
	snmpHosts []snmpclient.HostConfig
	parsers   Parsers

	mu           sync.Mutex
	scanning     bool
	currentPhase string

	recentCrossNode map[string]time.Time // dedup key -> last seen, 60s window
}

// New builds a Builder. hubCli may be nil if no hub is configured for this
// deployment; snmp may likewise be nil if no switches are configured, in
// which case snmpHosts is ignored.
func New(log zerolog.Logger, primary PrimaryShell, nodes NodePool, hubCli HubClient, signals SignalSink, snmp SnmpClient, snmpHosts []snmpclient.HostConfig, parsers Parsers) *Builder {
	return &Builder{
		log:             log,
		primary:         primary,
		nodes:           nodes,
		hubCli:          hubCli,
		signals:         signals,
		snmp:            snmp,
		snmpHosts:       snmpHosts,
		parsers:         parsers,
		recentCrossNode: make(map[string]time.Time),
	}
}

// CurrentPhase reports the in-progress scan's phase, or "" if idle.
func (b *Builder) CurrentPhase() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentPhase
}

// Scan runs the full phased pipeline once. If a scan is already in
// progress, it returns immediately with an InvariantError naming the
// current phase rather than queueing or running concurrently.
func (b *Builder) Scan(ctx context.Context, targets Targets, progress chan<- Progress) (*model.NetworkSnapshot, error) {
	b.mu.Lock()
	if b.scanning {
		phase := b.currentPhase
		b.mu.Unlock()
		return nil, neterrors.New(neterrors.KindInvariant, fmt.Sprintf("scan already in progress at phase %s", phase))
	}
	b.scanning = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.scanning = false
		b.currentPhase = ""
		b.mu.Unlock()
	}()

	snap := &model.NetworkSnapshot{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		SourceHealth: make(map[string]model.SourceHealth),
	}

	b.setPhase(progress, PhaseCollectingRouter, 10, "collecting router state")
	b.collectRouter(ctx, snap)

	b.setPhase(progress, PhaseScanningNeighbors, 30, "scanning neighbor networks")
	b.scanNeighbors(ctx, snap)

	b.setPhase(progress, PhaseCollectingHub, 50, "collecting hub state")
	b.collectHub(ctx, snap)

	b.setPhase(progress, PhaseCollectingSnmp, 65, "collecting switch state")
	b.collectSnmp(ctx, snap)

	b.setPhase(progress, PhaseAnalysing, 85, "analysing snapshot")
	b.analyse(snap)

	b.setPhase(progress, PhaseGeneratingRecommendations, 100, "generating recommendations")
	// RecommendationEngine is invoked by the caller (ActionDispatcher) with
	// this snapshot and targets; SnapshotBuilder's own responsibility ends
	// at producing the NetworkSnapshot.
	_ = targets

	return snap, nil
}

func (b *Builder) setPhase(progress chan<- Progress, phase string, percent int, message string) {
	b.mu.Lock()
	b.currentPhase = phase
	b.mu.Unlock()

	if progress == nil {
		return
	}
	select {
	case progress <- Progress{Phase: phase, Percent: percent, Message: message}:
	default:
		b.log.Warn().Str("phase", phase).Msg("dropping progress event, receiver not ready")
	}
}

func (b *Builder) recordHealth(snap *model.NetworkSnapshot, source string, err error) {
	if err != nil {
		snap.SourceHealth[source] = model.SourceHealth{Available: false, Error: err.Error()}
		return
	}
	snap.SourceHealth[source] = model.SourceHealth{Available: true}
}

func (b *Builder) collectRouter(ctx context.Context, snap *model.NetworkSnapshot) {
	if !b.primary.IsConnected() {
		b.recordHealth(snap, "primary", neterrors.New(neterrors.KindUnavailable, "primary shell not connected"))
		return
	}

	if _, err := b.primary.Exec(ctx, "show system"); err != nil {
		b.recordHealth(snap, "primary", err)
		return
	}

	snap.Nodes = b.nodes.Nodes()
	// Nothing adds the primary itself to the node list; when no node is
	// marked primary, its radios and clients are stamped with the ID
	// "primary".
	primaryID := "primary"
	if n, ok := snap.PrimaryNode(); ok {
		primaryID = n.HardwareAddress
	}

	b.collectNodeState(snap, primaryID, func(cmd string) (string, error) {
		return b.primary.Exec(ctx, cmd)
	})

	for _, node := range snap.Nodes {
		if node.IsPrimary {
			continue
		}
		hardwareAddress := node.HardwareAddress
		b.collectNodeState(snap, hardwareAddress, func(cmd string) (string, error) {
			return b.nodes.ExecOn(ctx, hardwareAddress, cmd)
		})
	}

	b.recordHealth(snap, "primary", nil)

	b.collectCrossNodeMeasurements(ctx, snap)
}

// collectNodeState queries one node (primary or peer, via exec) for its
// radio configuration and associated-client list and appends whatever
// parses successfully onto snap. A node that fails to answer one or both
// queries simply contributes nothing from that query; it does not fail the
// collectingRouter phase, since a single unreachable peer shouldn't blank
// out the rest of the mesh's device/radio data.
func (b *Builder) collectNodeState(snap *model.NetworkSnapshot, nodeID string, exec func(command string) (string, error)) {
	if raw, err := exec("show wireless"); err == nil {
		if radios, err := b.parsers.ParseRadios(raw, nodeID); err == nil {
			snap.Radios = append(snap.Radios, radios...)
		}
	}
	if raw, err := exec("show clients"); err == nil {
		if devices, err := b.parsers.ParseAssociatedClients(raw, nodeID); err == nil {
			snap.Devices = append(snap.Devices, devices...)
		}
	}
}

// collectCrossNodeMeasurements asks every reachable peer for RSSI readings
// on known wireless devices, skipping duplicates seen within the last 60
// seconds, so later phases have enough independent observations to
// triangulate.
func (b *Builder) collectCrossNodeMeasurements(ctx context.Context, snap *model.NetworkSnapshot) {
	now := time.Now()
	for _, device := range snap.Devices {
		for _, node := range snap.Nodes {
			key := device.HardwareAddress + "|" + node.HardwareAddress
			if last, ok := b.recentCrossNode[key]; ok && now.Sub(last) < 60*time.Second {
				continue
			}
			out, err := b.nodes.ExecOn(ctx, node.HardwareAddress, "show rssi "+device.HardwareAddress)
			if err != nil {
				continue
			}
			rssi, ok := parseRSSILine(out)
			if !ok {
				continue
			}
			b.recentCrossNode[key] = now
			b.signals.Append(model.SignalSample{
				Timestamp:  now,
				DeviceAddr: device.HardwareAddress,
				NodeAddr:   node.HardwareAddress,
				RSSI:       rssi,
			})
		}
	}
}

func (b *Builder) scanNeighbors(ctx context.Context, snap *model.NetworkSnapshot) {
	if !b.primary.IsConnected() {
		b.recordHealth(snap, "neighbors", neterrors.New(neterrors.KindUnavailable, "primary shell not connected"))
		return
	}

	raw, err := b.primary.Exec(ctx, "show neighbor-scan")
	if err != nil {
		b.recordHealth(snap, "neighbors", err)
		return
	}

	aps, err := b.parsers.ParseNeighborScan(raw)
	if err != nil {
		b.recordHealth(snap, "neighbors", err)
		return
	}

	snap.NeighborAPs = aps
	b.recordHealth(snap, "neighbors", nil)
}

func (b *Builder) collectHub(ctx context.Context, snap *model.NetworkSnapshot) {
	if b.hubCli == nil {
		// No hub configured for this deployment is not a failure.
		return
	}
	if !b.hubCli.IsConnected() {
		b.recordHealth(snap, "hub", neterrors.New(neterrors.KindUnavailable, "hub not connected"))
		return
	}

	networkJSON, err := b.hubCli.GetZigbeeNetwork(ctx)
	if err != nil {
		b.recordHealth(snap, "hub", err)
		return
	}

	var network model.ZigbeeNetwork
	if err := json.Unmarshal(networkJSON, &network); err != nil {
		b.recordHealth(snap, "hub", neterrors.Wrap(neterrors.KindParse, "decode zigbee network", err))
		return
	}

	devicesJSON, err := b.hubCli.GetZigbeeDevices(ctx)
	if err == nil {
		var devices []model.ZigbeeDevice
		if jsonErr := json.Unmarshal(devicesJSON, &devices); jsonErr == nil {
			network.Devices = devices
		}
	}

	snap.Zigbee = &network
	b.recordHealth(snap, "hub", nil)
}

func (b *Builder) collectSnmp(ctx context.Context, snap *model.NetworkSnapshot) {
	if b.snmp == nil || len(b.snmpHosts) == 0 {
		// No switches configured for this deployment is not a failure.
		return
	}

	var switches []model.Switch
	anyReachable := false

	for _, host := range b.snmpHosts {
		if err := ctx.Err(); err != nil {
			b.recordHealth(snap, "snmp", err)
			return
		}

		walked := b.snmp.WalkHost(host)
		if walked.Status == nil || !walked.Status.Available {
			continue
		}
		anyReachable = true
		switches = append(switches, toModelSwitch(walked))
	}

	snap.Switches = switches
	if !anyReachable {
		b.recordHealth(snap, "snmp", neterrors.New(neterrors.KindUnavailable, "no configured switch answered"))
		return
	}
	b.recordHealth(snap, "snmp", nil)
}

func toModelSwitch(s snmpclient.SwitchSnapshot) model.Switch {
	ports := make([]model.SwitchPort, 0, len(s.Ports))
	for _, p := range s.Ports {
		ports = append(ports, model.SwitchPort{
			Index:       p.Index,
			Description: p.Description,
			Up:          p.Up,
			PoEWatts:    p.PoEWatts,
		})
	}

	vlans := make([]model.SwitchVLAN, 0, len(s.VLANs))
	for _, v := range s.VLANs {
		vlans = append(vlans, model.SwitchVLAN{ID: v.ID, Name: v.Name})
	}

	return model.Switch{Host: s.Host, Ports: ports, VLANs: vlans}
}

func (b *Builder) analyse(snap *model.NetworkSnapshot) {
	snap.EnvironmentScore = computeEnvironmentScore(snap)
}

// computeEnvironmentScore is a 0-100 score that starts at 100, loses 10 per
// unavailable data source, and loses 15 (more than 10 APs) or 5 (more than 5
// APs) for a crowded 2.4GHz band. It has no separate wifi-health,
// cross-protocol-harmony or stability components.
func computeEnvironmentScore(snap *model.NetworkSnapshot) int {
	score := 100

	for _, health := range snap.SourceHealth {
		if !health.Available {
			score -= 10
		}
	}

	// Spectrum clarity: dock points for a crowded 2.4GHz band.
	count24 := 0
	for _, ap := range snap.NeighborAPs {
		if ap.Band == model.Band24 {
			count24++
		}
	}
	if count24 > 10 {
		score -= 15
	} else if count24 > 5 {
		score -= 5
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// parseRSSILine extracts a trailing "rssi: -NN" or bare integer from a
// device shell's RSSI query output.
func parseRSSILine(out string) (int, bool) {
	var n int
	var neg bool
	found := false
	for i := 0; i < len(out); i++ {
		c := out[i]
		if c == '-' && !found {
			neg = true
			found = true
			continue
		}
		if c >= '0' && c <= '9' {
			found = true
			n = n*10 + int(c-'0')
		} else if found && n > 0 {
			break
		}
	}
	if !found || n == 0 {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}
