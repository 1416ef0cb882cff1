// Package hub implements HubClient, a JSON-RPC client over a persistent
// authenticated WebSocket connection to a home automation hub. The wire
// protocol here is abstracted from what any particular hub
// actually speaks: an auth handshake followed by id-correlated requests and
// unsolicited event frames.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/netwatch-hq/netwatch/pkg/neterrors"
)

const defaultCallDeadline = 30 * time.Second

// frame is the wire envelope for every direction of traffic.
type frame struct {
	ID        int64           `json:"id,omitempty"`
	Type      string          `json:"type"`
	Method    string          `json:"method,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
	EventType string          `json:"eventType,omitempty"`
	AuthToken string          `json:"access_token,omitempty"`
}

// Event is one unsolicited frame delivered to a subscriber.
type Event struct {
	Type    string
	Payload json.RawMessage
}

type pendingCall struct {
	resultCh chan frame
}

// Client is a connected HubClient.
type Client struct {
	log zerolog.Logger

	url         string
	accessToken string

	conn   *websocket.Conn
	connMu sync.Mutex

	nextID int64

	pendingMu sync.Mutex
	pending   map[int64]*pendingCall

	subMu sync.Mutex
	subs  map[string][]chan Event

	closed atomic.Bool

	callDeadline time.Duration
}

// New builds an unconnected Client for the given WebSocket URL.
func New(log zerolog.Logger, url, accessToken string) *Client {
	return &Client{
		log:          log,
		url:          url,
		accessToken:  accessToken,
		pending:      make(map[int64]*pendingCall),
		subs:         make(map[string][]chan Event),
		callDeadline: defaultCallDeadline,
	}
}

// Connect dials the hub, performs the auth_required/auth/auth_ok handshake,
// and starts the background read loop that dispatches responses and events.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return neterrors.Wrap(neterrors.KindUnavailable, "dial hub websocket", err)
	}

	var required frame
	if err := conn.ReadJSON(&required); err != nil {
		_ = conn.Close()
		return neterrors.Wrap(neterrors.KindUnavailable, "read auth_required", err)
	}
	if required.Type != "auth_required" {
		_ = conn.Close()
		return neterrors.New(neterrors.KindUnavailable, "unexpected hub handshake, expected auth_required")
	}

	if err := conn.WriteJSON(frame{Type: "auth", AuthToken: c.accessToken}); err != nil {
		_ = conn.Close()
		return neterrors.Wrap(neterrors.KindUnavailable, "send auth frame", err)
	}

	var authResult frame
	if err := conn.ReadJSON(&authResult); err != nil {
		_ = conn.Close()
		return neterrors.Wrap(neterrors.KindUnavailable, "read auth result", err)
	}
	if authResult.Type != "auth_ok" {
		_ = conn.Close()
		return neterrors.New(neterrors.KindAuth, "hub rejected access token")
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	go c.readLoop(conn)

	return nil
}

// readLoop dispatches incoming frames to waiting Call correlations or to
// event subscribers, until the socket closes.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			c.failAllPending(neterrors.Wrap(neterrors.KindUnavailable, "hub socket closed", err))
			return
		}

		switch f.Type {
		case "result", "error":
			c.deliverResult(f)
		case "event":
			c.deliverEvent(f)
		default:
			c.log.Debug().Str("type", f.Type).Msg("unrecognised hub frame type")
		}
	}
}

func (c *Client) deliverResult(f frame) {
	c.pendingMu.Lock()
	pc, ok := c.pending[f.ID]
	if ok {
		delete(c.pending, f.ID)
	}
	c.pendingMu.Unlock()

	if !ok {
		return // late response to a cancelled call; correlation slot already freed
	}
	pc.resultCh <- f
}

func (c *Client) deliverEvent(f frame) {
	c.subMu.Lock()
	subs := append([]chan Event{}, c.subs[f.EventType]...)
	c.subMu.Unlock()

	ev := Event{Type: f.EventType, Payload: f.Event}
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			c.log.Warn().Str("eventType", f.EventType).Msg("dropping event, subscriber channel full")
		}
	}
}

func (c *Client) failAllPending(err error) {
	c.closed.Store(true)

	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int64]*pendingCall)
	c.pendingMu.Unlock()

	errFrame := frame{Type: "error", Error: err.Error()}
	for _, pc := range pending {
		pc.resultCh <- errFrame
	}
}

// Call issues a JSON-RPC style request and waits for its correlated
// response, or TimeoutError after the per-call deadline. Caller
// cancellation removes the correlation slot without affecting the socket.
func (c *Client) Call(ctx context.Context, method string, args any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, neterrors.New(neterrors.KindUnavailable, "hub client disconnected")
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, neterrors.Wrap(neterrors.KindParse, "marshal call args", err)
	}

	id := atomic.AddInt64(&c.nextID, 1)
	pc := &pendingCall{resultCh: make(chan frame, 1)}

	c.pendingMu.Lock()
	c.pending[id] = pc
	c.pendingMu.Unlock()

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, neterrors.New(neterrors.KindUnavailable, "hub client not connected")
	}

	if err := conn.WriteJSON(frame{ID: id, Type: "call", Method: method, Args: argsJSON}); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, neterrors.Wrap(neterrors.KindUnavailable, "write call frame", err)
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, c.callDeadline)
	defer cancel()

	select {
	case <-deadlineCtx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		if ctx.Err() != nil {
			return nil, neterrors.Wrap(neterrors.KindCancelled, "call cancelled", ctx.Err())
		}
		return nil, neterrors.New(neterrors.KindTimeout, fmt.Sprintf("hub call %q timed out", method))
	case result := <-pc.resultCh:
		if result.Type == "error" {
			return nil, neterrors.New(neterrors.KindUnavailable, result.Error)
		}
		return result.Result, nil
	}
}

// Subscribe returns a channel of events of the given type. The channel is
// closed-on-disconnect only in the sense that no further sends occur; it is
// never explicitly closed while the client is connected, matching the
// "cold lazy sequence, finite only on disconnect" semantics.
func (c *Client) Subscribe(eventType string) <-chan Event {
	ch := make(chan Event, 32)

	c.subMu.Lock()
	c.subs[eventType] = append(c.subs[eventType], ch)
	c.subMu.Unlock()

	return ch
}

// ListEntities returns the hub's entity registry.
func (c *Client) ListEntities(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "config/entity_registry/list", nil)
}

// GetZigbeeDevices returns the hub's known Zigbee devices.
func (c *Client) GetZigbeeDevices(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "zha/devices", nil)
}

// GetZigbeeNetwork returns Zigbee network-level state (PAN ID, channel,
// coordinator info).
func (c *Client) GetZigbeeNetwork(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "zha/network", nil)
}

// GetZigbeeTopology returns the Zigbee mesh topology graph.
func (c *Client) GetZigbeeTopology(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "zha/topology", nil)
}

// InvokeService calls a domain/service action with the given arguments.
func (c *Client) InvokeService(ctx context.Context, domain, service string, args any) (json.RawMessage, error) {
	return c.Call(ctx, "call_service", map[string]any{
		"domain":  domain,
		"service": service,
		"args":    args,
	})
}

// IsConnected reports whether the client believes its socket is usable.
func (c *Client) IsConnected() bool {
	return !c.closed.Load() && c.conn != nil
}

// Disconnect closes the underlying socket, failing all pending calls with
// UnavailableError.
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn == nil {
		return nil
	}
	c.failAllPending(neterrors.New(neterrors.KindUnavailable, "hub client disconnected"))
	return conn.Close()
}
