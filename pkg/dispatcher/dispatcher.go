// Package dispatcher implements ActionDispatcher: the single entry point
// that accepts a named action with its parameters, lazily connects
// whatever transport the handler needs, runs it, and always returns a
// Response rather than propagating an error to the caller.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/netwatch-hq/netwatch/pkg/alert"
	"github.com/netwatch-hq/netwatch/pkg/config"
	"github.com/netwatch-hq/netwatch/pkg/knowledge"
	"github.com/netwatch-hq/netwatch/pkg/metrics"
	"github.com/netwatch-hq/netwatch/pkg/model"
	"github.com/netwatch-hq/netwatch/pkg/neterrors"
	"github.com/netwatch-hq/netwatch/pkg/nodepool"
	"github.com/netwatch-hq/netwatch/pkg/recommend"
	"github.com/netwatch-hq/netwatch/pkg/signalstore"
	"github.com/netwatch-hq/netwatch/pkg/snapshot"
	"github.com/netwatch-hq/netwatch/pkg/triangulate"
)

// PrimaryShell is the subset of shell.DeviceShell the dispatcher drives
// directly, beyond what SnapshotBuilder already needs.
type PrimaryShell interface {
	snapshot.PrimaryShell
	Connect(ctx context.Context) error
	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key, value string) error
	Commit(ctx context.Context) error
	RestartRadio(ctx context.Context) error
	Disconnect() error
	ResetCircuit()
}

// HubClient is the subset of hub.Client the dispatcher connects lazily,
// beyond what SnapshotBuilder already needs.
type HubClient interface {
	snapshot.HubClient
	Connect(ctx context.Context) error
	GetZigbeeTopology(ctx context.Context) (json.RawMessage, error)
	Disconnect() error
}

// Response is the envelope every Execute call returns; it never carries a
// Go error, since ActionDispatcher is defined to always answer rather than
// propagate.
type Response struct {
	Success     bool      `json:"success"`
	Action      string    `json:"action"`
	Data        any       `json:"data,omitempty"`
	Error       string    `json:"error,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func ok(action string, data any, now time.Time, suggestions ...string) Response {
	return Response{Success: true, Action: action, Data: data, Suggestions: suggestions, Timestamp: now}
}

func fail(action, errMsg string, now time.Time, suggestions ...string) Response {
	return Response{Success: false, Action: action, Error: errMsg, Suggestions: suggestions, Timestamp: now}
}

// Deps bundles every collaborator ActionDispatcher wires together. Hub may
// be left nil for a deployment without one; SnmpClient is wired into
// Builder directly since collectSnmp is the only thing that ever drives it.
type Deps struct {
	Log     zerolog.Logger
	Clock   clockwork.Clock
	Config  config.Config
	Primary PrimaryShell
	Nodes   *nodepool.NodePool
	Hub     HubClient
	Signals *signalstore.Store
	Triang  *triangulate.Triangulator
	Engine  *recommend.Engine
	KB      *knowledge.KnowledgeBase
	Alerts  *alert.Router
	Builder *snapshot.Builder
}

// Dispatcher is the single-flight action entry point described by §4.10:
// one action runs at a time per instance, concurrent submissions queue on
// execMu.
type Dispatcher struct {
	log   zerolog.Logger
	clock clockwork.Clock
	cfg   config.Config

	primary PrimaryShell
	nodes   *nodepool.NodePool
	hubCli  HubClient
	signals *signalstore.Store
	triang  *triangulate.Triangulator
	engine  *recommend.Engine
	kb      *knowledge.KnowledgeBase
	alerts  *alert.Router
	builder *snapshot.Builder

	execMu sync.Mutex

	snapMu sync.RWMutex
	latest *model.NetworkSnapshot
}

// New builds a Dispatcher from its collaborators. It does not connect
// anything; connections happen lazily, per action, in ensureTransports.
func New(d Deps) *Dispatcher {
	return &Dispatcher{
		log:     d.Log.With().Str("component", "dispatcher").Logger(),
		clock:   d.Clock,
		cfg:     d.Config,
		primary: d.Primary,
		nodes:   d.Nodes,
		hubCli:  d.Hub,
		signals: d.Signals,
		triang:  d.Triang,
		engine:  d.Engine,
		kb:      d.KB,
		alerts:  d.Alerts,
		builder: d.Builder,
	}
}

// Execute runs one action to completion, serialised against every other
// Execute call on this Dispatcher, and always returns a Response: a panic
// inside a handler is recovered and reported as a failed Response rather
// than crashing the caller.
func (d *Dispatcher) Execute(ctx context.Context, action string, params map[string]any) (resp Response) {
	d.execMu.Lock()
	defer d.execMu.Unlock()

	start := d.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Str("action", action).Msg("action handler panicked")
			resp = fail(action, fmt.Sprintf("internal error: %v", r), d.clock.Now())
		}
		metrics.ActionsTotal.WithLabelValues(action, outcomeLabel(resp.Success)).Inc()
		metrics.ActionDuration.WithLabelValues(action).Observe(d.clock.Now().Sub(start).Seconds())
	}()

	h, ok := handlers[action]
	if !ok {
		return fail(action, "unknown action: "+action, d.clock.Now(), "check the action name against the documented catalogue")
	}

	if err := d.ensureTransports(ctx, action); err != nil {
		return fail(action, err.Error(), d.clock.Now(), "check router/hub connectivity and credentials")
	}

	return h(ctx, d, params)
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// actionTransports names which lazily-connected collaborators a given
// action needs, so ensureTransports only pays for what's used.
var actionTransports = map[string][]string{
	"scanNetwork":          {"primary"},
	"wifiSettings":         {"primary"},
	"setWifiChannel":       {"primary"},
	"applyOptimization":    {"primary"},
	"resetCircuitBreaker":  {"primary"},
	"scanZigbee":           {"hub"},
	"fullIntelligenceScan": {"primary", "hub"},
}

func (d *Dispatcher) ensureTransports(ctx context.Context, action string) error {
	for _, t := range actionTransports[action] {
		switch t {
		case "primary":
			if d.primary != nil && !d.primary.IsConnected() {
				if err := d.primary.Connect(ctx); err != nil {
					return neterrors.Wrap(neterrors.KindUnavailable, "connect primary shell", err)
				}
			}
		case "hub":
			if d.hubCli != nil && !d.hubCli.IsConnected() {
				if err := d.hubCli.Connect(ctx); err != nil {
					return neterrors.Wrap(neterrors.KindUnavailable, "connect hub client", err)
				}
			}
		}
	}
	return nil
}

func (d *Dispatcher) setLatest(snap *model.NetworkSnapshot) {
	d.snapMu.Lock()
	d.latest = snap
	d.snapMu.Unlock()
}

func (d *Dispatcher) getLatest() *model.NetworkSnapshot {
	d.snapMu.RLock()
	defer d.snapMu.RUnlock()
	return d.latest
}

// computeHealthScore derives the 0-100 composite HealthScore from a
// snapshot: each axis starts at 100 and is penalised independently, then
// Overall is the unweighted mean of the five axes.
func computeHealthScore(snap *model.NetworkSnapshot) model.HealthScore {
	signal := 100
	for _, d := range snap.Devices {
		if d.LastRSSI == nil {
			continue
		}
		switch {
		case *d.LastRSSI <= -85:
			signal -= 15
		case *d.LastRSSI <= -75:
			signal -= 5
		}
	}
	signal = clampScore(signal)

	channel := 100
	count24 := 0
	for _, ap := range snap.NeighborAPs {
		if ap.Band == model.Band24 {
			count24++
		}
	}
	if count24 > 10 {
		channel -= 30
	} else if count24 > 5 {
		channel -= 10
	}
	channel = clampScore(channel)

	zigbee := 100
	if snap.Zigbee != nil {
		for _, zd := range snap.Zigbee.Devices {
			if !zd.Available {
				zigbee -= 10
			} else if zd.LastLQI > 0 && zd.LastLQI < 100 {
				zigbee -= 5
			}
		}
	}
	zigbee = clampScore(zigbee)

	interference := 100
	if count24 > 10 {
		interference -= 20
	}
	interference = clampScore(interference)

	stability := 100
	for _, d := range snap.Devices {
		if d.Status == model.DeviceUnstable {
			stability -= 10
		} else if d.Status == model.DeviceOffline {
			stability -= 15
		}
		stability -= d.DisconnectCount
	}
	stability = clampScore(stability)

	overall := (signal + channel + zigbee + interference + stability) / 5

	return model.HealthScore{
		Overall:      overall,
		Signal:       signal,
		Channel:      channel,
		Zigbee:       zigbee,
		Interference: interference,
		Stability:    stability,
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
