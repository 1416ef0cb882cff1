package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/netwatch-hq/netwatch/pkg/config"
	"github.com/netwatch-hq/netwatch/pkg/dispatcher"
)

type fakePrimary struct{ connected bool }

func (f *fakePrimary) Exec(ctx context.Context, command string) (string, error) { return "", nil }
func (f *fakePrimary) IsConnected() bool                                       { return f.connected }
func (f *fakePrimary) Connect(ctx context.Context) error                       { f.connected = true; return nil }
func (f *fakePrimary) GetKV(ctx context.Context, key string) (string, error)    { return "", nil }
func (f *fakePrimary) SetKV(ctx context.Context, key, value string) error      { return nil }
func (f *fakePrimary) Commit(ctx context.Context) error                        { return nil }
func (f *fakePrimary) RestartRadio(ctx context.Context) error                  { return nil }
func (f *fakePrimary) Disconnect() error                                      { return nil }
func (f *fakePrimary) ResetCircuit()                                          {}

type fakeHub struct{}

func (f *fakeHub) IsConnected() bool                               { return false }
func (f *fakeHub) Connect(ctx context.Context) error               { return nil }
func (f *fakeHub) GetZigbeeDevices(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}
func (f *fakeHub) GetZigbeeNetwork(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}
func (f *fakeHub) GetZigbeeTopology(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}
func (f *fakeHub) Disconnect() error { return nil }

func newTestDispatcher() *dispatcher.Dispatcher {
	return dispatcher.New(dispatcher.Deps{
		Log:     zerolog.Nop(),
		Clock:   clockwork.NewFakeClock(),
		Config:  config.Default(),
		Primary: &fakePrimary{connected: true},
		Nodes:   nil,
		Hub:     &fakeHub{},
	})
}

func TestHealthEndpoint(t *testing.T) {
	r := NewRouter(zerolog.Nop(), newTestDispatcher())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestActionEndpointUnknownActionReturns422(t *testing.T) {
	r := NewRouter(zerolog.Nop(), newTestDispatcher())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/actions/doesNotExist", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.engine.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown action, got %d", w.Code)
	}

	var resp dispatcher.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Success {
		t.Fatal("expected Success=false for unknown action")
	}
}

func TestActionEndpointMalformedBodyReturns400(t *testing.T) {
	r := NewRouter(zerolog.Nop(), newTestDispatcher())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/actions/networkHealth", strings.NewReader(`not json`))
	w := httptest.NewRecorder()
	r.engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}
}

func TestActionEndpointEmptyBodyIsTreatedAsNoParams(t *testing.T) {
	r := NewRouter(zerolog.Nop(), newTestDispatcher())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/actions/networkHealth", nil)
	w := httptest.NewRecorder()
	r.engine.ServeHTTP(w, req)

	// No snapshot has been run yet, so this is a 422, but it must not be a
	// 400: an empty body is a valid (empty) params map.
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 (no snapshot yet), got %d", w.Code)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	r := NewRouter(zerolog.Nop(), newTestDispatcher())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "netwatch_") {
		t.Errorf("expected netwatch_ prefixed metrics in scrape output")
	}
}
