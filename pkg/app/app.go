// Package app wires a full netwatch deployment together: it takes a loaded
// config.Config and constructs every collaborator ActionDispatcher needs,
// the same assembly job cmd/api/main.go does inline in the teacher repo,
// pulled out here so both netwatchd and netwatch-mcp (and tests) can share
// it.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/netwatch-hq/netwatch/pkg/alert"
	"github.com/netwatch-hq/netwatch/pkg/config"
	"github.com/netwatch-hq/netwatch/pkg/dispatcher"
	"github.com/netwatch-hq/netwatch/pkg/hub"
	"github.com/netwatch-hq/netwatch/pkg/knowledge"
	"github.com/netwatch-hq/netwatch/pkg/nodepool"
	"github.com/netwatch-hq/netwatch/pkg/recommend"
	"github.com/netwatch-hq/netwatch/pkg/routerstate"
	"github.com/netwatch-hq/netwatch/pkg/shell"
	"github.com/netwatch-hq/netwatch/pkg/signalstore"
	"github.com/netwatch-hq/netwatch/pkg/snapshot"
	"github.com/netwatch-hq/netwatch/pkg/snmpclient"
	"github.com/netwatch-hq/netwatch/pkg/spectrum"
	"github.com/netwatch-hq/netwatch/pkg/triangulate"
)

// App bundles a fully wired Dispatcher plus the collaborators the two
// command binaries need direct access to for startup/shutdown (the primary
// shell, node pool, hub client, and knowledge base all need an explicit
// disconnect/flush step; the dispatcher itself does not expose them).
type App struct {
	Log zerolog.Logger

	Dispatcher *dispatcher.Dispatcher

	Primary *shell.DeviceShell
	Nodes   *nodepool.NodePool
	Hub     *hub.Client
	KB      *knowledge.KnowledgeBase
	Signals *signalstore.Store
}

// Build constructs every collaborator named in Deps from cfg and assembles
// a Dispatcher. It does not connect any transport; the primary DeviceShell
// and HubClient connect lazily on first use (see
// dispatcher.ensureTransports). NodePool is not initialised here or there:
// it holds no peers until NodePool.Initialize is called.
func Build(log zerolog.Logger, cfg config.Config, networkID string) (*App, error) {
	clock := clockwork.NewRealClock()

	primary := newPrimaryShell(log, cfg.Router)

	nodes := nodepool.New(func(ip string) (peerShell, error) {
		return shell.NewSSHShell(log, ip, cfg.Router.SSHPort, cfg.Router.SSHUser, cfg.Router.SSHPassword, cfg.Router.SSHKeyPath), nil
	})

	var hubCli *hub.Client
	if cfg.Hub.Host != "" {
		hubCli = hub.New(log, hubURL(cfg.Hub), cfg.Hub.AccessToken)
	}

	var snmpCli *snmpclient.Client
	var snmpHosts []snmpclient.HostConfig
	if len(cfg.Snmp.Devices) > 0 {
		snmpCli = snmpclient.New()
		for _, dev := range cfg.Snmp.Devices {
			snmpHosts = append(snmpHosts, snmpclient.HostConfig{
				Host:      dev.Host,
				Port:      uint16(dev.Port),
				Community: dev.Community,
			})
		}
	}
	// snmpCli is a typed nil when no switches are configured; pass it to
	// SnapshotBuilder through an interface-typed local so the nil stays a
	// nil interface rather than a non-nil interface wrapping a nil pointer.
	var snapshotSnmp snapshot.SnmpClient
	if snmpCli != nil {
		snapshotSnmp = snmpCli
	}

	signals := signalstore.New(clock)

	triang := triangulate.New(
		triangulate.Config{
			ReferenceRSSI:    cfg.House.ReferenceRSSI,
			PathLossExponent: cfg.House.PathLossExponent,
		},
		triangulate.Bounds{
			MinX: cfg.House.MinX, MinY: cfg.House.MinY,
			MaxX: cfg.House.MaxX, MaxY: cfg.House.MaxY,
		},
	)

	engine := recommend.New()

	kbPath := cfg.DataDir + "/network-knowledge.json"
	kb, err := knowledge.Load(log, clock, kbPath, networkID)
	if err != nil {
		return nil, fmt.Errorf("load knowledge base: %w", err)
	}

	var broker mqtt.Client
	if cfg.Alert.BrokerURL != "" {
		opts := mqtt.NewClientOptions().AddBroker(cfg.Alert.BrokerURL).SetClientID("netwatchd")
		broker = mqtt.NewClient(opts)
		if tok := broker.Connect(); tok.Wait() && tok.Error() != nil {
			log.Warn().Err(tok.Error()).Msg("mqtt broker unavailable, alerts will skip the broker channel")
			broker = nil
		}
	}
	alerts := alert.New(log, cfg.Alert, broker)

	builder := snapshot.New(log, primary, nodes, snapshotHubAdapter{hubCli}, signals, snapshotSnmp, snmpHosts, snapshot.Parsers{
		ParseNeighborScan:      spectrum.ParseNeighborScan,
		ParseRadios:            routerstate.ParseRadios,
		ParseAssociatedClients: routerstate.ParseAssociatedClients,
	})

	d := dispatcher.New(dispatcher.Deps{
		Log:     log,
		Clock:   clock,
		Config:  cfg,
		Primary: primary,
		Nodes:   nodes,
		Hub:     dispatcherHubAdapter{hubCli},
		Signals: signals,
		Triang:  triang,
		Engine:  engine,
		KB:      kb,
		Alerts:  alerts,
		Builder: builder,
	})

	return &App{
		Log:        log,
		Dispatcher: d,
		Primary:    primary,
		Nodes:      nodes,
		Hub:        hubCli,
		KB:         kb,
		Signals:    signals,
	}, nil
}

// peerShell is an alias for the same unnamed interface type that
// nodepool's unexported peerShell alias denotes, so the factory literal
// passed to nodepool.New has a type identical to its parameter without
// nodepool exporting the type.
type peerShell = interface {
	Connect(ctx context.Context) error
	Exec(ctx context.Context, command string) (string, error)
	Disconnect() error
}

func newPrimaryShell(log zerolog.Logger, r config.RouterConfig) *shell.DeviceShell {
	if r.SerialPort != "" {
		return shell.NewSerialShell(log, r.SerialPort)
	}
	return shell.NewSSHShell(log, r.Host, r.SSHPort, r.SSHUser, r.SSHPassword, r.SSHKeyPath)
}

func hubURL(h config.HubConfig) string {
	scheme := "ws"
	if h.UseSSL {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/api/websocket", scheme, h.Host, h.Port)
}

// snapshotHubAdapter satisfies snapshot.HubClient even when hubCli is nil,
// reporting IsConnected() false and erroring on any actual call, so
// SnapshotBuilder can treat "no hub configured" the same as "hub
// unreachable" without a nil check at every call site.
type snapshotHubAdapter struct{ c *hub.Client }

func (a snapshotHubAdapter) IsConnected() bool { return a.c != nil && a.c.IsConnected() }

func (a snapshotHubAdapter) GetZigbeeDevices(ctx context.Context) (json.RawMessage, error) {
	if a.c == nil {
		return nil, errNoHub
	}
	return a.c.GetZigbeeDevices(ctx)
}

func (a snapshotHubAdapter) GetZigbeeNetwork(ctx context.Context) (json.RawMessage, error) {
	if a.c == nil {
		return nil, errNoHub
	}
	return a.c.GetZigbeeNetwork(ctx)
}

// dispatcherHubAdapter is the dispatcher.HubClient equivalent of
// snapshotHubAdapter; kept separate since the two interfaces ask for
// different method sets (dispatcher also dials Connect/Disconnect/topology).
type dispatcherHubAdapter struct{ c *hub.Client }

func (a dispatcherHubAdapter) IsConnected() bool { return a.c != nil && a.c.IsConnected() }

func (a dispatcherHubAdapter) GetZigbeeDevices(ctx context.Context) (json.RawMessage, error) {
	if a.c == nil {
		return nil, errNoHub
	}
	return a.c.GetZigbeeDevices(ctx)
}

func (a dispatcherHubAdapter) GetZigbeeNetwork(ctx context.Context) (json.RawMessage, error) {
	if a.c == nil {
		return nil, errNoHub
	}
	return a.c.GetZigbeeNetwork(ctx)
}

func (a dispatcherHubAdapter) Connect(ctx context.Context) error {
	if a.c == nil {
		return errNoHub
	}
	return a.c.Connect(ctx)
}

func (a dispatcherHubAdapter) GetZigbeeTopology(ctx context.Context) (json.RawMessage, error) {
	if a.c == nil {
		return nil, errNoHub
	}
	return a.c.GetZigbeeTopology(ctx)
}

func (a dispatcherHubAdapter) Disconnect() error {
	if a.c == nil {
		return nil
	}
	return a.c.Disconnect()
}

var errNoHub = errors.New("no hub configured for this deployment")

// Shutdown runs the documented shutdown sequence: disconnect peer shells,
// disconnect the primary shell, disconnect the hub client, then flush the
// knowledge base. Each step is tolerant of the previous one's failure so a
// stuck transport never blocks the knowledge base from flushing.
func (a *App) Shutdown(ctx context.Context) error {
	a.Nodes.Shutdown()

	if err := a.Primary.Disconnect(); err != nil {
		a.Log.Warn().Err(err).Msg("error disconnecting primary shell during shutdown")
	}

	if a.Hub != nil {
		if err := a.Hub.Disconnect(); err != nil {
			a.Log.Warn().Err(err).Msg("error disconnecting hub client during shutdown")
		}
	}

	a.Signals.Close()

	return a.KB.Close(ctx)
}
