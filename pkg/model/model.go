// Package model holds the shared data model: the entities that
// flow between collection, storage and recommendation without belonging to
// any single collaborator.
package model

import (
	"fmt"
	"sort"
	"time"
)

// Backhaul identifies how a mesh node reaches the primary node.
type Backhaul string

const (
	BackhaulWired    Backhaul = "wired"
	BackhaulWireless Backhaul = "wireless"
)

// Node is a Wi-Fi access point.
type Node struct {
	ID               string        `json:"id"`
	HardwareAddress  string        `json:"hardwareAddress"`
	Address          string        `json:"address"`
	Model            string        `json:"model"`
	Alias            string        `json:"alias"`
	IsPrimary        bool          `json:"isPrimary"`
	Backhaul         Backhaul      `json:"backhaul"`
	Firmware         string        `json:"firmware"`
	Uptime           time.Duration `json:"uptime"`
	CPUPercent       float64       `json:"cpuPercent"`
	MemoryPercent    float64       `json:"memoryPercent"`
	ConnectedClients int           `json:"connectedClients"`
	Reachable        bool          `json:"reachable"`
}

// Band is a Wi-Fi frequency band.
type Band string

const (
	Band24  Band = "2.4"
	Band5   Band = "5"
	Band5Alt Band = "5-alt"
	Band6   Band = "6"
)

// Radio is a per-Node per-band configuration.
type Radio struct {
	NodeID          string `json:"nodeId"`
	Band            Band   `json:"band"`
	Channel         int    `json:"channel"`
	WidthMHz        int    `json:"widthMHz"`
	TxPowerPercent  int    `json:"txPowerPercent"`
	Standard        string `json:"standard"`
	Security        string `json:"security"`
	BandSteering    bool   `json:"bandSteering"`
	Beamforming     bool   `json:"beamforming"`
	MUMIMO          bool   `json:"muMimo"`
	OFDMA           bool   `json:"ofdma"`
	RoamingAssist   bool   `json:"roamingAssist"`
}

// ValidChannels returns the legal channel set for a band: a single
// ChannelPlan lookup rather than per-band channel tables scattered as
// implicit literals throughout callers.
func ValidChannels(band Band) []int {
	switch band {
	case Band24:
		chs := make([]int, 0, 11)
		for c := 1; c <= 11; c++ {
			chs = append(chs, c)
		}
		return chs
	case Band5, Band5Alt:
		return []int{36, 40, 44, 48, 52, 56, 60, 64, 100, 104, 108, 112, 116, 120, 124, 128, 132, 136, 140, 144, 149, 153, 157, 161, 165}
	case Band6:
		chs := make([]int, 0, 59)
		for c := 1; c <= 233; c += 4 {
			chs = append(chs, c)
		}
		return chs
	default:
		return nil
	}
}

// ChannelValid reports whether channel belongs to band's valid channel set.
func ChannelValid(band Band, channel int) bool {
	for _, c := range ValidChannels(band) {
		if c == channel {
			return true
		}
	}
	return false
}

// ChannelFrequencyMHz returns the approximate 2.4 GHz channel center
// frequency in MHz, used by the co-channel overlap computation.
func ChannelFrequencyMHz(channel int) float64 {
	if channel == 14 {
		return 2484
	}
	return 2407 + float64(channel)*5
}

// Link identifies how a Device reaches the network.
type Link string

const (
	LinkWired       Link = "wired"
	LinkWireless2G  Link = "wireless-2g"
	LinkWireless5G  Link = "wireless-5g"
	LinkWireless6G  Link = "wireless-6g"
)

// DeviceStatus is a client's observed connectivity health.
type DeviceStatus string

const (
	DeviceOnline   DeviceStatus = "online"
	DeviceUnstable DeviceStatus = "unstable"
	DeviceOffline  DeviceStatus = "offline"
)

// Device is a network client.
type Device struct {
	HardwareAddress  string       `json:"hardwareAddress"`
	LastIPv4         string       `json:"lastIpv4"`
	Hostname         string       `json:"hostname,omitempty"`
	Vendor           string       `json:"vendor,omitempty"`
	Link             Link         `json:"link"`
	AttachedNode     string       `json:"attachedNode"`
	Status           DeviceStatus `json:"status"`
	LastRSSI         *int         `json:"lastRssi,omitempty"`
	DisconnectCount  int          `json:"disconnectCount"`
}

// SignalSample is an immutable (deviceAddr, nodeAddr) RSSI observation.
// Samples are append-only.
type SignalSample struct {
	Timestamp  time.Time `json:"timestamp"`
	DeviceAddr string    `json:"deviceAddr"`
	NodeAddr   string    `json:"nodeAddr"`
	RSSI       int       `json:"rssi"`
	Channel    int       `json:"channel,omitempty"`
	WidthMHz   int       `json:"widthMhz,omitempty"`
	RateMbps   float64   `json:"rateMbps,omitempty"`
}

// ZigbeeRole is a Zigbee device's role in the mesh.
type ZigbeeRole string

const (
	ZigbeeCoordinator ZigbeeRole = "coordinator"
	ZigbeeRouter      ZigbeeRole = "router"
	ZigbeeEnd         ZigbeeRole = "end"
)

// ZigbeeDevice is one device on the Zigbee network.
type ZigbeeDevice struct {
	IEEEAddress string     `json:"ieeeAddress"`
	Role        ZigbeeRole `json:"role"`
	LastLQI     int        `json:"lastLqi"`
	Available   bool       `json:"available"`
}

// ZigbeeNetwork describes the home-automation hub's Zigbee mesh.
type ZigbeeNetwork struct {
	CoordinatorChannel int            `json:"coordinatorChannel"`
	Devices            []ZigbeeDevice `json:"devices"`
}

// NeighborAP is a foreign BSS observed in a neighbor scan.
type NeighborAP struct {
	SSID     string    `json:"ssid"`
	BSSID    string    `json:"bssid"`
	Channel  int       `json:"channel"`
	Band     Band      `json:"band"`
	RSSI     int       `json:"rssi"`
	LastSeen time.Time `json:"lastSeen"`
}

// NodePosition is a Node's fixed position in the home.
type NodePosition struct {
	NodeID         string           `json:"nodeId"`
	Floor          int              `json:"floor"`
	X              float64          `json:"x"`
	Y              float64          `json:"y"`
	Z              float64          `json:"z"`
	CoverageRadius map[Band]float64 `json:"coverageRadius"`
	Outdoor        bool             `json:"outdoor"`
}

// TriangulationMethod records how a DevicePosition was derived.
type TriangulationMethod string

const (
	MethodSingle        TriangulationMethod = "single"
	MethodBilateration  TriangulationMethod = "bilateration"
	MethodTrilateration TriangulationMethod = "trilateration"
)

// DevicePosition is a derived client position.
type DevicePosition struct {
	DeviceAddr   string              `json:"deviceAddr"`
	X            float64             `json:"x"`
	Y            float64             `json:"y"`
	Z            float64             `json:"z"`
	Floor        int                 `json:"floor"`
	Confidence   float64             `json:"confidence"`
	Method       TriangulationMethod `json:"method"`
	Contributing int                 `json:"contributingReadings"`
}

// WallMaterial classifies a detected wall by attenuation magnitude.
type WallMaterial string

const (
	WallGlass    WallMaterial = "glass"
	WallDrywall  WallMaterial = "drywall"
	WallBrick    WallMaterial = "brick"
	WallConcrete WallMaterial = "concrete"
	WallUnknown  WallMaterial = "unknown"
)

// Wall is an inferred obstruction between two points.
type Wall struct {
	MidX        float64      `json:"midX"`
	MidY        float64      `json:"midY"`
	Material    WallMaterial `json:"material"`
	DeltaDB     float64      `json:"deltaDb"`
	Confidence  float64      `json:"confidence"`
	SampleCount int          `json:"sampleCount"`
}

// RiskLevel is a Suggestion's estimated blast radius.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// SuggestionCategory groups recommendation rules for reporting/dedup.
type SuggestionCategory string

const (
	CategoryChannel        SuggestionCategory = "channel"
	CategoryRoaming        SuggestionCategory = "roaming"
	CategoryPower          SuggestionCategory = "power"
	CategoryZigbee         SuggestionCategory = "zigbee"
	CategoryFeatureToggle  SuggestionCategory = "feature-toggle"
)

// Suggestion is a ranked, single-use optimisation proposal.
type Suggestion struct {
	Token               string             `json:"token"`
	Priority            int                `json:"priority"`
	Category            SuggestionCategory `json:"category"`
	ActionType          string             `json:"actionType"`
	Parameters          map[string]any     `json:"parameters"`
	CurrentValue        string             `json:"currentValue"`
	TargetValue         string             `json:"targetValue"`
	Risk                RiskLevel          `json:"risk"`
	ExpectedImprovement string             `json:"expectedImprovement"`
	Confidence          float64            `json:"confidence"`
	AffectedDevices     []string           `json:"affectedDevices"`
	RequiresRestart     bool               `json:"requiresRestart"`
	SnapshotID          string             `json:"snapshotId"`
}

// SourceHealth records whether a given collection source answered during a
// scan, for the snapshot's data-source health vector.
type SourceHealth struct {
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// SwitchPort is one managed switch port's description, link state, and PoE
// draw, where known.
type SwitchPort struct {
	Index       int      `json:"index"`
	Description string   `json:"description"`
	Up          bool     `json:"up"`
	PoEWatts    *float64 `json:"poeWatts,omitempty"`
}

// SwitchVLAN is one VLAN configured on a managed switch.
type SwitchVLAN struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Switch is one SNMP-managed switch's port and VLAN view, as collected by
// SnmpClient.
type Switch struct {
	Host  string       `json:"host"`
	Ports []SwitchPort `json:"ports"`
	VLANs []SwitchVLAN `json:"vlans"`
}

// NetworkSnapshot is the immutable aggregate produced by one scan.
type NetworkSnapshot struct {
	ID            string                  `json:"id"`
	Timestamp     time.Time               `json:"timestamp"`
	Nodes         []Node                  `json:"nodes"`
	Radios        []Radio                 `json:"radios"`
	Devices       []Device                `json:"devices"`
	NeighborAPs   []NeighborAP            `json:"neighborAps"`
	Zigbee        *ZigbeeNetwork          `json:"zigbee,omitempty"`
	Switches      []Switch                `json:"switches,omitempty"`
	SourceHealth  map[string]SourceHealth `json:"sourceHealth"`
	EnvironmentScore int                  `json:"environmentScore"`
	HealthScore   HealthScore             `json:"healthScore"`
}

// PrimaryNode returns the snapshot's single primary node, if present.
func (s *NetworkSnapshot) PrimaryNode() (Node, bool) {
	for _, n := range s.Nodes {
		if n.IsPrimary {
			return n, true
		}
	}
	return Node{}, false
}

// HasNode reports whether hardwareAddress belongs to a node in the
// snapshot — used to enforce Device.attachedNode's referential invariant.
func (s *NetworkSnapshot) HasNode(hardwareAddress string) bool {
	for _, n := range s.Nodes {
		if n.HardwareAddress == hardwareAddress {
			return true
		}
	}
	return false
}

// HealthScore is the 0-100 composite health rating.
type HealthScore struct {
	Overall     int `json:"overall"`
	Signal      int `json:"signal"`
	Channel     int `json:"channel"`
	Zigbee      int `json:"zigbee"`
	Interference int `json:"interference"`
	Stability   int `json:"stability"`
}

// ProblemSeverity ranks a Problem for filtering and alert thresholds.
type ProblemSeverity string

const (
	SeverityInfo     ProblemSeverity = "info"
	SeverityWarning  ProblemSeverity = "warning"
	SeverityCritical ProblemSeverity = "critical"
)

// Problem is a single derived issue surfaced from a snapshot: a weak signal,
// a down source, channel crowding, and so on. Key identifies the underlying
// condition so AlertRouter can apply a per-key cooldown independent of the
// problem's wording.
type Problem struct {
	Key         string          `json:"key"`
	Severity    ProblemSeverity `json:"severity"`
	Summary     string          `json:"summary"`
	DeviceAddr  string          `json:"deviceAddr,omitempty"`
	NodeAddr    string          `json:"nodeAddr,omitempty"`
	SnapshotID  string          `json:"snapshotId"`
	DetectedAt  time.Time       `json:"detectedAt"`
}

// DeriveProblems scans a snapshot for conditions worth surfacing: unreachable
// sources and weak device signal. Ordering is
// deterministic (sources, then devices) so repeated derivation from the same
// snapshot produces byte-identical results.
func DeriveProblems(snap *NetworkSnapshot) []Problem {
	if snap == nil {
		return nil
	}
	var out []Problem
	for _, source := range sortedSourceKeys(snap.SourceHealth) {
		health := snap.SourceHealth[source]
		if health.Available {
			continue
		}
		out = append(out, Problem{
			Key:        "source-down:" + source,
			Severity:   SeverityWarning,
			Summary:    fmt.Sprintf("%s is unreachable", source),
			SnapshotID: snap.ID,
			DetectedAt: snap.Timestamp,
		})
	}
	for _, d := range snap.Devices {
		if d.LastRSSI == nil || *d.LastRSSI >= -75 {
			continue
		}
		severity := SeverityWarning
		if *d.LastRSSI <= -85 {
			severity = SeverityCritical
		}
		out = append(out, Problem{
			Key:        "weak-signal:" + d.HardwareAddress,
			Severity:   severity,
			Summary:    fmt.Sprintf("%s has weak signal (%d dBm)", d.HardwareAddress, *d.LastRSSI),
			DeviceAddr: d.HardwareAddress,
			NodeAddr:   d.AttachedNode,
			SnapshotID: snap.ID,
			DetectedAt: snap.Timestamp,
		})
	}
	return out
}

func sortedSourceKeys(m map[string]SourceHealth) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
