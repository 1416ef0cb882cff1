package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/netwatch-hq/netwatch/pkg/alert"
	"github.com/netwatch-hq/netwatch/pkg/floorplan"
	"github.com/netwatch-hq/netwatch/pkg/knowledge"
	"github.com/netwatch-hq/netwatch/pkg/metrics"
	"github.com/netwatch-hq/netwatch/pkg/model"
	"github.com/netwatch-hq/netwatch/pkg/neterrors"
	"github.com/netwatch-hq/netwatch/pkg/recommend"
	"github.com/netwatch-hq/netwatch/pkg/snapshot"
	"github.com/netwatch-hq/netwatch/pkg/spectrum"
)

// handlerFunc is one action's implementation; it is always called with a
// fresh Response timestamp and never returns a Go error directly — a
// failure is encoded as Response.Success == false.
type handlerFunc func(ctx context.Context, d *Dispatcher, params map[string]any) Response

// handlers is the action registry described by §9's "deep conditional
// chains... replaced by a registry mapping action tag to handler function".
// Adding an action means adding one entry here and, if it needs a lazily
// connected transport, one entry in actionTransports.
var handlers = map[string]handlerFunc{
	"scanNetwork":           handleScanNetwork,
	"networkHealth":         handleNetworkHealth,
	"deviceList":            handleDeviceList,
	"deviceDetails":         handleDeviceDetails,
	"deviceSignalHistory":   handleDeviceSignalHistory,
	"meshNodes":             handleMeshNodes,
	"wifiSettings":          handleWifiSettings,
	"setWifiChannel":        handleSetWifiChannel,
	"problems":              handleProblems,
	"optimizationSuggestions": handleOptimizationSuggestions,
	"applyOptimization":     handleApplyOptimization,
	"scanZigbee":            handleScanZigbee,
	"frequencyConflicts":    handleFrequencyConflicts,
	"triangulateDevices":    handleTriangulateDevices,
	"setNodePosition3D":     handleSetNodePosition3D,
	"recordSignalMeasurement": handleRecordSignalMeasurement,
	"detectWalls":           handleDetectWalls,
	"fullIntelligenceScan":  handleFullIntelligenceScan,
	"getEnvironmentSummary": handleGetEnvironmentSummary,
	"configureAlerts":       handleConfigureAlerts,
	"getAlerts":             handleGetAlerts,
	"resetCircuitBreaker":   handleResetCircuitBreaker,
	"getMetrics":            handleGetMetrics,
	"getFloorPlanImage":     handleGetFloorPlanImage,
}

// --- parameter helpers ---

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func intParam(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}

func floatParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}

func boolParam(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func stringSliceParam(params map[string]any, key string) []string {
	v, ok := params[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func parseTargets(params map[string]any) []recommend.Target {
	names := stringSliceParam(params, "targets")
	if len(names) == 0 {
		return []recommend.Target{
			recommend.TargetMinimiseInterference,
			recommend.TargetProtectZigbee,
			recommend.TargetReduceNeighborOverlap,
			recommend.TargetMaximiseThroughput,
			recommend.TargetImproveRoaming,
			recommend.TargetBalanceCoverage,
		}
	}
	out := make([]recommend.Target, 0, len(names))
	for _, n := range names {
		out = append(out, recommend.Target(n))
	}
	return out
}

// channelScansFor groups a snapshot's neighbor APs into per-band
// per-channel ChannelScans, the shape recommend.Input and frequencyConflicts
// both need.
func channelScansFor(snap *model.NetworkSnapshot) map[model.Band]map[int]spectrum.ChannelScan {
	byBand := make(map[model.Band][]model.NeighborAP)
	for _, ap := range snap.NeighborAPs {
		byBand[ap.Band] = append(byBand[ap.Band], ap)
	}
	out := make(map[model.Band]map[int]spectrum.ChannelScan, len(byBand))
	for band, aps := range byBand {
		out[band] = spectrum.AggregateByChannel(aps)
	}
	return out
}

// --- scanning ---

func handleScanNetwork(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	return runScan(ctx, d, parseTargets(params))
}

func handleFullIntelligenceScan(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	return runScan(ctx, d, parseTargets(params))
}

func runScan(ctx context.Context, d *Dispatcher, targets []recommend.Target) Response {
	if d.builder == nil {
		return fail("scanNetwork", "snapshot builder not configured", d.clock.Now())
	}

	snap, err := d.builder.Scan(ctx, snapshot.Targets(targetNames(targets)), nil)
	if err != nil {
		return fail("scanNetwork", err.Error(), d.clock.Now(), "check router/hub/snmp connectivity")
	}

	d.setLatest(snap)
	snap.HealthScore = computeHealthScore(snap)

	if d.kb != nil {
		d.kb.AppendSnapshot(snap)
	}

	var suggestions []model.Suggestion
	if d.engine != nil {
		in := recommend.Input{
			Snapshot:     snap,
			ChannelScans: channelScansFor(snap),
			Zigbee:       snap.Zigbee,
		}
		suggestions = d.engine.Generate(in, targets)
	}

	if d.alerts != nil {
		d.alerts.Route(ctx, snap, d.clock.Now())
	}

	return ok("scanNetwork", map[string]any{
		"snapshot":    snap,
		"suggestions": suggestions,
	}, d.clock.Now())
}

func targetNames(targets []recommend.Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = string(t)
	}
	return out
}

// --- snapshot-derived reads ---

func handleNetworkHealth(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	snap := d.getLatest()
	if snap == nil {
		return fail("networkHealth", "no snapshot available, run scanNetwork first", d.clock.Now())
	}
	return ok("networkHealth", computeHealthScore(snap), d.clock.Now())
}

func handleDeviceList(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	snap := d.getLatest()
	if snap == nil {
		return fail("deviceList", "no snapshot available, run scanNetwork first", d.clock.Now())
	}

	filter, _ := stringParam(params, "filter")
	if filter == "" {
		filter = "all"
	}

	var out []model.Device
	for _, dev := range snap.Devices {
		if matchesDeviceFilter(dev, filter) {
			out = append(out, dev)
		}
	}
	return ok("deviceList", out, d.clock.Now())
}

func matchesDeviceFilter(dev model.Device, filter string) bool {
	switch filter {
	case "all":
		return true
	case "wireless":
		return dev.Link == model.LinkWireless2G || dev.Link == model.LinkWireless5G || dev.Link == model.LinkWireless6G
	case "wired":
		return dev.Link == model.LinkWired
	case "problematic":
		return dev.Status == model.DeviceUnstable || dev.Status == model.DeviceOffline
	default:
		return true
	}
}

func handleDeviceDetails(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	addr, found := stringParam(params, "addr")
	if !found {
		return fail("deviceDetails", "addr is required", d.clock.Now())
	}

	snap := d.getLatest()
	if snap == nil {
		return fail("deviceDetails", "no snapshot available, run scanNetwork first", d.clock.Now())
	}

	for _, dev := range snap.Devices {
		if dev.HardwareAddress == addr {
			return ok("deviceDetails", dev, d.clock.Now())
		}
	}
	return fail("deviceDetails", neterrors.New(neterrors.KindUnknownDevice, "no such device: "+addr).Error(), d.clock.Now())
}

func handleDeviceSignalHistory(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	addr, found := stringParam(params, "addr")
	if !found {
		return fail("deviceSignalHistory", "addr is required", d.clock.Now())
	}
	if d.signals == nil {
		return fail("deviceSignalHistory", "signal store not configured", d.clock.Now())
	}

	hours, hasHours := intParam(params, "hours")
	if !hasHours || hours <= 0 {
		hours = 1
	}

	samples := d.signals.History(addr, time.Duration(hours)*time.Hour, 0)
	return ok("deviceSignalHistory", samples, d.clock.Now())
}

func handleMeshNodes(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	if d.nodes == nil {
		return fail("meshNodes", "node pool not configured", d.clock.Now())
	}
	nodes := d.nodes.Nodes()

	if snap := d.getLatest(); snap != nil {
		if primary, found := snap.PrimaryNode(); found {
			nodes = append([]model.Node{primary}, nodes...)
		}
	}
	return ok("meshNodes", nodes, d.clock.Now())
}

func handleWifiSettings(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	snap := d.getLatest()
	if snap == nil {
		return fail("wifiSettings", "no snapshot available, run scanNetwork first", d.clock.Now())
	}
	return ok("wifiSettings", snap.Radios, d.clock.Now())
}

func handleSetWifiChannel(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	band, found := stringParam(params, "band")
	if !found {
		return fail("setWifiChannel", "band is required", d.clock.Now())
	}
	channel, found := intParam(params, "channel")
	if !found {
		return fail("setWifiChannel", "channel is required", d.clock.Now())
	}
	if !model.ChannelValid(model.Band(band), channel) {
		return fail("setWifiChannel", fmt.Sprintf("channel %d is not valid for band %s", channel, band), d.clock.Now())
	}
	if d.primary == nil {
		return fail("setWifiChannel", "primary shell not configured", d.clock.Now())
	}

	key := fmt.Sprintf("wireless.radio_%s.channel", band)
	if err := d.primary.SetKV(ctx, key, strconv.Itoa(channel)); err != nil {
		return fail("setWifiChannel", err.Error(), d.clock.Now())
	}
	if err := d.primary.Commit(ctx); err != nil {
		return fail("setWifiChannel", err.Error(), d.clock.Now())
	}
	if err := d.primary.RestartRadio(ctx); err != nil {
		return fail("setWifiChannel", err.Error(), d.clock.Now(), "configuration committed but radio restart failed; restart manually")
	}

	return ok("setWifiChannel", map[string]any{"band": band, "channel": channel}, d.clock.Now(), "rescan to confirm the change took effect")
}

func handleProblems(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	snap := d.getLatest()
	if snap == nil {
		return fail("problems", "no snapshot available, run scanNetwork first", d.clock.Now())
	}

	problems := model.DeriveProblems(snap)
	if sev, ok := stringParam(params, "severity"); ok {
		var filtered []model.Problem
		for _, p := range problems {
			if string(p.Severity) == sev {
				filtered = append(filtered, p)
			}
		}
		problems = filtered
	}
	return ok("problems", problems, d.clock.Now())
}

// --- recommendations ---

func handleOptimizationSuggestions(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	snap := d.getLatest()
	if snap == nil {
		return fail("optimizationSuggestions", "no snapshot available, run scanNetwork first", d.clock.Now())
	}
	if d.engine == nil {
		return fail("optimizationSuggestions", "recommendation engine not configured", d.clock.Now())
	}

	in := recommend.Input{
		Snapshot:     snap,
		ChannelScans: channelScansFor(snap),
		Zigbee:       snap.Zigbee,
	}
	suggestions := d.engine.Generate(in, parseTargets(params))
	return ok("optimizationSuggestions", suggestions, d.clock.Now())
}

func handleApplyOptimization(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	token, found := stringParam(params, "token")
	if !found {
		return fail("applyOptimization", "token is required", d.clock.Now())
	}
	confirm := boolParam(params, "confirm")

	if d.engine == nil {
		return fail("applyOptimization", "recommendation engine not configured", d.clock.Now())
	}
	if d.primary == nil {
		return fail("applyOptimization", "primary shell not configured", d.clock.Now())
	}

	suggestion, lookupErr := d.engine.Lookup(token)

	result, err := d.engine.Apply(ctx, token, confirm, d.primary)
	if err != nil {
		return fail("applyOptimization", err.Error(), d.clock.Now())
	}

	if result.Applied && d.kb != nil && lookupErr == nil {
		d.kb.RecordOptimisation(knowledge.OptimisationRecord{
			Timestamp:  d.clock.Now(),
			ActionType: suggestion.ActionType,
			SnapshotID: suggestion.SnapshotID,
		})
	}

	return ok("applyOptimization", result, d.clock.Now(), result.Hint)
}

// --- zigbee ---

func handleScanZigbee(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	if d.hubCli == nil {
		return fail("scanZigbee", "hub client not configured", d.clock.Now())
	}

	networkJSON, err := d.hubCli.GetZigbeeNetwork(ctx)
	if err != nil {
		return fail("scanZigbee", err.Error(), d.clock.Now())
	}

	var network model.ZigbeeNetwork
	if err := json.Unmarshal(networkJSON, &network); err != nil {
		return fail("scanZigbee", neterrors.Wrap(neterrors.KindParse, "decode zigbee network", err).Error(), d.clock.Now())
	}

	if devicesJSON, err := d.hubCli.GetZigbeeDevices(ctx); err == nil {
		var devices []model.ZigbeeDevice
		if jsonErr := json.Unmarshal(devicesJSON, &devices); jsonErr == nil {
			network.Devices = devices
		}
	}

	return ok("scanZigbee", network, d.clock.Now())
}

func handleFrequencyConflicts(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	snap := d.getLatest()
	if snap == nil {
		return fail("frequencyConflicts", "no snapshot available, run scanNetwork first", d.clock.Now())
	}
	if snap.Zigbee == nil {
		return ok("frequencyConflicts", []any{}, d.clock.Now())
	}

	type conflict struct {
		NodeID  string  `json:"nodeId"`
		Band    model.Band `json:"band"`
		Channel int     `json:"channel"`
		Overlap float64 `json:"overlap"`
	}

	var out []conflict
	for _, radio := range snap.Radios {
		if radio.Band != model.Band24 {
			continue
		}
		overlap := spectrum.OverlapWithZigbee(radio.Channel, snap.Zigbee.CoordinatorChannel)
		if overlap > 0.3 {
			out = append(out, conflict{NodeID: radio.NodeID, Band: radio.Band, Channel: radio.Channel, Overlap: overlap})
		}
	}
	return ok("frequencyConflicts", out, d.clock.Now())
}

// --- triangulation ---

func handleTriangulateDevices(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	if d.triang == nil || d.signals == nil || d.kb == nil {
		return fail("triangulateDevices", "triangulation not configured", d.clock.Now())
	}

	positions := nodePositionMap(d.kb)

	addr, hasAddr := stringParam(params, "addr")
	var addrs []string
	if hasAddr {
		addrs = []string{addr}
	} else {
		addrs = knownDeviceAddrs(d.getLatest())
	}

	out := make(map[string]any, len(addrs))
	for _, a := range addrs {
		samples := d.signals.LastPerNode(a)
		pos, err := d.triang.Locate(a, samples, positions)
		if err != nil {
			out[a] = map[string]any{"error": err.Error()}
			continue
		}
		out[a] = pos
	}
	return ok("triangulateDevices", out, d.clock.Now())
}

func nodePositionMap(kb *knowledge.KnowledgeBase) map[string]model.NodePosition {
	out := make(map[string]model.NodePosition)
	for _, p := range kb.NodePositions() {
		out[p.NodeID] = p
	}
	return out
}

func knownDeviceAddrs(snap *model.NetworkSnapshot) []string {
	if snap == nil {
		return nil
	}
	out := make([]string, 0, len(snap.Devices))
	for _, dev := range snap.Devices {
		out = append(out, dev.HardwareAddress)
	}
	return out
}

func handleSetNodePosition3D(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	nodeID, found := stringParam(params, "nodeId")
	if !found {
		return fail("setNodePosition3D", "nodeId is required", d.clock.Now())
	}
	floor, _ := intParam(params, "floor")
	x, _ := floatParam(params, "x")
	y, _ := floatParam(params, "y")
	z, hasZ := floatParam(params, "z")
	if !hasZ {
		// z defaults from floor: a flat 3m storey height, so a position set
		// without z still round-trips to a sensible value per floor.
		z = float64(floor) * 3.0
	}
	outdoor := boolParam(params, "outdoor")

	if d.kb == nil {
		return fail("setNodePosition3D", "knowledge base not configured", d.clock.Now())
	}

	pos := model.NodePosition{
		NodeID:  nodeID,
		Floor:   floor,
		X:       x,
		Y:       y,
		Z:       z,
		Outdoor: outdoor,
	}
	d.kb.SetNodePosition(pos)

	return ok("setNodePosition3D", pos, d.clock.Now())
}

func handleRecordSignalMeasurement(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	deviceAddr, found := stringParam(params, "deviceAddr")
	if !found {
		return fail("recordSignalMeasurement", "deviceAddr is required", d.clock.Now())
	}
	nodeAddr, found := stringParam(params, "nodeAddr")
	if !found {
		return fail("recordSignalMeasurement", "nodeAddr is required", d.clock.Now())
	}
	rssi, found := intParam(params, "rssi")
	if !found {
		return fail("recordSignalMeasurement", "rssi is required", d.clock.Now())
	}
	if d.signals == nil {
		return fail("recordSignalMeasurement", "signal store not configured", d.clock.Now())
	}

	sample := model.SignalSample{
		Timestamp:  d.clock.Now(),
		DeviceAddr: deviceAddr,
		NodeAddr:   nodeAddr,
		RSSI:       rssi,
	}
	d.signals.Append(sample)
	return ok("recordSignalMeasurement", sample, d.clock.Now())
}

func handleDetectWalls(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	if d.triang == nil || d.signals == nil || d.kb == nil {
		return fail("detectWalls", "triangulation not configured", d.clock.Now())
	}

	positions := nodePositionMap(d.kb)
	floor, hasFloor := intParam(params, "floor")
	if hasFloor {
		for id, p := range positions {
			if p.Floor != floor {
				delete(positions, id)
			}
		}
	}

	var walls []model.Wall
	for _, addr := range knownDeviceAddrs(d.getLatest()) {
		samples := d.signals.LastPerNode(addr)
		devicePos, err := d.triang.Locate(addr, samples, positions)
		if err != nil {
			continue
		}
		walls = append(walls, d.triang.DetectWalls(devicePos, samples, positions)...)
	}

	return ok("detectWalls", walls, d.clock.Now())
}

// --- environment summary ---

func handleGetEnvironmentSummary(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	snap := d.getLatest()
	if snap == nil {
		return fail("getEnvironmentSummary", "no snapshot available, run scanNetwork first", d.clock.Now())
	}

	health := computeHealthScore(snap)
	problems := model.DeriveProblems(snap)

	var topSuggestions []model.Suggestion
	if d.engine != nil {
		in := recommend.Input{Snapshot: snap, ChannelScans: channelScansFor(snap), Zigbee: snap.Zigbee}
		all := d.engine.Generate(in, parseTargets(nil))
		if len(all) > 3 {
			all = all[:3]
		}
		topSuggestions = all
	}

	return ok("getEnvironmentSummary", map[string]any{
		"environmentScore": snap.EnvironmentScore,
		"health":           health,
		"problemCount":     len(problems),
		"topSuggestions":   topSuggestions,
		"scannedAt":        snap.Timestamp,
	}, d.clock.Now())
}

// --- alerts ---

func handleConfigureAlerts(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	if d.alerts == nil {
		return fail("configureAlerts", "alert router not configured", d.clock.Now())
	}

	var t alert.Threshold
	if sev, ok := stringParam(params, "minSeverity"); ok {
		t.MinSeverity = model.ProblemSeverity(sev)
	}
	if secs, ok := intParam(params, "cooldownSeconds"); ok {
		t.Cooldown = time.Duration(secs) * time.Second
	}
	d.alerts.Configure(t)

	return ok("configureAlerts", t, d.clock.Now())
}

func handleGetAlerts(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	if d.alerts == nil {
		return fail("getAlerts", "alert router not configured", d.clock.Now())
	}
	hours, hasHours := intParam(params, "hours")
	if !hasHours || hours <= 0 {
		hours = 24
	}
	records := d.alerts.History(time.Duration(hours)*time.Hour, d.clock.Now())
	return ok("getAlerts", records, d.clock.Now())
}

// --- operational ---

func handleResetCircuitBreaker(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	if d.primary == nil {
		return fail("resetCircuitBreaker", "primary shell not configured", d.clock.Now())
	}
	d.primary.ResetCircuit()
	return ok("resetCircuitBreaker", nil, d.clock.Now())
}

func handleGetMetrics(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	samples, err := metrics.Gather()
	if err != nil {
		return fail("getMetrics", err.Error(), d.clock.Now())
	}
	return ok("getMetrics", samples, d.clock.Now())
}

func handleGetFloorPlanImage(ctx context.Context, d *Dispatcher, params map[string]any) Response {
	url, found := stringParam(params, "url")
	if !found {
		return fail("getFloorPlanImage", "url is required", d.clock.Now())
	}
	data, contentType, err := floorplan.Fetch(ctx, url)
	if err != nil {
		return fail("getFloorPlanImage", err.Error(), d.clock.Now())
	}
	return ok("getFloorPlanImage", map[string]any{
		"contentType": contentType,
		"sizeBytes":   len(data),
	}, d.clock.Now())
}
