package mcp

import "github.com/mark3labs/mcp-go/mcp"

// paramKind is the MCP schema type used for one tool parameter.
type paramKind int

const (
	kindString paramKind = iota
	kindNumber
	kindBoolean
)

// paramSpec describes one tool parameter; toolSpec.params drives both the
// MCP schema registration and nothing else, since validation of the
// values themselves is ActionDispatcher's job, not this layer's.
type paramSpec struct {
	name        string
	description string
	required    bool
	kind        paramKind
}

// toolSpec binds one dispatcher action to its MCP tool registration.
type toolSpec struct {
	action      string
	description string
	params      []paramSpec
}

// toolTable mirrors the dispatcher's action catalogue (see
// pkg/dispatcher/handlers.go's handlers map); every entry here dispatches
// through the exact same action name ActionDispatcher.Execute expects.
var toolTable = []toolSpec{
	{action: "scanNetwork", description: "Trigger a full network scan across the primary router and mesh nodes",
		params: []paramSpec{{"targets", "Recommendation targets to generate suggestions for (minimiseInterference, protectZigbee, reduceNeighborOverlap, maximiseThroughput, improveRoaming, balanceCoverage); only an array of names is read, any other value means all targets", false, kindString}}},
	{action: "networkHealth", description: "Get the current composite network health score and its component axes"},
	{action: "deviceList", description: "List every known device from the most recent snapshot"},
	{action: "deviceDetails", description: "Get full detail for one device",
		params: []paramSpec{{"addr", "Device hardware address", true, kindString}}},
	{action: "deviceSignalHistory", description: "Get recent RSSI samples for one device",
		params: []paramSpec{
			{"addr", "Device hardware address", true, kindString},
			{"hours", "How many hours of history to return (default 1)", false, kindNumber},
		}},
	{action: "meshNodes", description: "List discovered mesh nodes and their reachability/backhaul type"},
	{action: "wifiSettings", description: "Get the Wi-Fi radio settings of every node in the most recent snapshot"},
	{action: "setWifiChannel", description: "Set a Wi-Fi radio's channel",
		params: []paramSpec{
			{"band", "Radio band (e.g. 2.4 or 5)", true, kindString},
			{"channel", "Target channel number", true, kindNumber},
		}},
	{action: "problems", description: "List problems derived from the most recent snapshot"},
	{action: "optimizationSuggestions", description: "Generate ranked optimisation suggestions from the most recent snapshot"},
	{action: "applyOptimization", description: "Apply a previously generated optimisation suggestion by its token",
		params: []paramSpec{
			{"token", "Suggestion token returned by optimizationSuggestions", true, kindString},
			{"confirm", "Must be true to actually apply the change", true, kindBoolean},
		}},
	{action: "scanZigbee", description: "Scan the Zigbee network via the home-automation hub"},
	{action: "frequencyConflicts", description: "Report Wi-Fi/Zigbee channel overlap conflicts from the most recent snapshot"},
	{action: "triangulateDevices", description: "Estimate device floor positions from signal strength across mesh nodes",
		params: []paramSpec{{"addr", "Device hardware address to locate (default: every device in the most recent snapshot)", false, kindString}}},
	{action: "setNodePosition3D", description: "Record a mesh node's fixed physical position",
		params: []paramSpec{
			{"nodeId", "Node identifier the position is stored under", true, kindString},
			{"x", "X coordinate in meters", true, kindNumber},
			{"y", "Y coordinate in meters", true, kindNumber},
			{"z", "Z coordinate in meters (default derived from floor)", false, kindNumber},
			{"floor", "Floor number, used to default z when z is omitted", false, kindNumber},
		}},
	{action: "recordSignalMeasurement", description: "Record one manual RSSI measurement between a device and a node",
		params: []paramSpec{
			{"deviceAddr", "Device hardware address", true, kindString},
			{"nodeAddr", "Address of the node that took the reading", true, kindString},
			{"rssi", "Measured RSSI in dBm", true, kindNumber},
		}},
	{action: "detectWalls", description: "Infer wall locations from path-loss residual clustering across recorded measurements"},
	{action: "fullIntelligenceScan", description: "Run a full network scan and generate suggestions, as scanNetwork does; triangulation and wall detection are not run"},
	{action: "getEnvironmentSummary", description: "Get a structured summary of the current environment: environment score, health axes, problem count and top suggestions"},
	{action: "configureAlerts", description: "Configure the alert router's minimum severity and cooldown",
		params: []paramSpec{
			{"minSeverity", "Minimum problem severity that reaches alert channels (info, warning, critical)", false, kindString},
			{"cooldownSeconds", "Seconds to suppress a repeat alert for the same condition", false, kindNumber},
		}},
	{action: "getAlerts", description: "List recently fired alerts",
		params: []paramSpec{{"hours", "How many hours of alert history to return (default 24)", false, kindNumber}}},
	{action: "resetCircuitBreaker", description: "Force-close the primary router shell's circuit breaker",
		params: []paramSpec{{"target", "Not read: the primary router's breaker is reset whatever this holds", false, kindString}}},
	{action: "getMetrics", description: "Get the process's flattened Prometheus metrics as JSON"},
	{action: "getFloorPlanImage", description: "Fetch a floor-plan image by URL and report its content type and size in bytes",
		params: []paramSpec{{"url", "Floor-plan image URL", true, kindString}}},
}

func (s *Server) registerTools() {
	for _, spec := range toolTable {
		opts := []mcp.ToolOption{mcp.WithDescription(spec.description)}
		for _, p := range spec.params {
			opts = append(opts, paramOption(p))
		}
		s.mcpServer.AddTool(mcp.NewTool(spec.action, opts...), s.handlerFor(spec.action))
	}
}

func paramOption(p paramSpec) mcp.ToolOption {
	var propOpts []mcp.PropertyOption
	propOpts = append(propOpts, mcp.Description(p.description))
	if p.required {
		propOpts = append(propOpts, mcp.Required())
	}

	switch p.kind {
	case kindNumber:
		return mcp.WithNumber(p.name, propOpts...)
	case kindBoolean:
		return mcp.WithBoolean(p.name, propOpts...)
	default:
		return mcp.WithString(p.name, propOpts...)
	}
}
