package dispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/netwatch-hq/netwatch/pkg/config"
	"github.com/netwatch-hq/netwatch/pkg/model"
	"github.com/netwatch-hq/netwatch/pkg/neterrors"
	"github.com/netwatch-hq/netwatch/pkg/nodepool"
)

type fakePrimary struct {
	connected bool
	execOut   string
	execErr   error
	kv        map[string]string
}

func (f *fakePrimary) Exec(ctx context.Context, command string) (string, error) {
	return f.execOut, f.execErr
}
func (f *fakePrimary) IsConnected() bool           { return f.connected }
func (f *fakePrimary) Connect(ctx context.Context) error { f.connected = true; return nil }
func (f *fakePrimary) GetKV(ctx context.Context, key string) (string, error) {
	return f.kv[key], nil
}
func (f *fakePrimary) SetKV(ctx context.Context, key, value string) error {
	if f.kv == nil {
		f.kv = map[string]string{}
	}
	f.kv[key] = value
	return nil
}
func (f *fakePrimary) Commit(ctx context.Context) error      { return nil }
func (f *fakePrimary) RestartRadio(ctx context.Context) error { return nil }
func (f *fakePrimary) Disconnect() error                     { return nil }
func (f *fakePrimary) ResetCircuit()                          {}

type fakeHub struct{ connected bool }

func (f *fakeHub) IsConnected() bool                                          { return f.connected }
func (f *fakeHub) Connect(ctx context.Context) error                          { f.connected = true; return nil }
func (f *fakeHub) GetZigbeeDevices(ctx context.Context) (json.RawMessage, error) { return json.RawMessage(`[]`), nil }
func (f *fakeHub) GetZigbeeNetwork(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}
func (f *fakeHub) GetZigbeeTopology(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}
func (f *fakeHub) Disconnect() error { return nil }

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	nodes := nodepool.New(func(ip string) (interface {
		Connect(ctx context.Context) error
		Exec(ctx context.Context, command string) (string, error)
		Disconnect() error
	}, error) {
		return nil, neterrors.New(neterrors.KindUnavailable, "no peers in this test")
	})

	return New(Deps{
		Log:     zerolog.Nop(),
		Clock:   clockwork.NewFakeClock(),
		Config:  config.Default(),
		Primary: &fakePrimary{connected: true},
		Nodes:   nodes,
		Hub:     &fakeHub{},
	})
}

func TestExecuteUnknownAction(t *testing.T) {
	d := newTestDispatcher(t)
	resp := d.Execute(context.Background(), "doesNotExist", nil)
	if resp.Success {
		t.Fatal("expected unknown action to fail")
	}
	if len(resp.Suggestions) == 0 {
		t.Error("expected a suggestion pointing at the action catalogue")
	}
}

func TestExecuteNetworkHealthWithoutSnapshotFails(t *testing.T) {
	d := newTestDispatcher(t)
	resp := d.Execute(context.Background(), "networkHealth", nil)
	if resp.Success {
		t.Fatal("expected networkHealth to fail before any scan has run")
	}
}

func TestExecuteRecoversHandlerPanic(t *testing.T) {
	d := newTestDispatcher(t)
	handlers["panicking"] = func(ctx context.Context, d *Dispatcher, params map[string]any) Response {
		panic("boom")
	}
	defer delete(handlers, "panicking")

	resp := d.Execute(context.Background(), "panicking", nil)
	if resp.Success {
		t.Fatal("expected panicking handler to produce a failed Response")
	}
}

func TestExecuteSerialisesConcurrentCalls(t *testing.T) {
	d := newTestDispatcher(t)
	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			d.Execute(context.Background(), "networkHealth", nil)
			done <- struct{}{}
		}()
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for concurrent Execute calls")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for concurrent Execute calls")
	}
}

func TestComputeHealthScorePenalisesWeakSignal(t *testing.T) {
	rssi := -90
	snap := &model.NetworkSnapshot{
		Devices: []model.Device{{LastRSSI: &rssi}},
	}
	score := computeHealthScore(snap)
	if score.Signal >= 100 {
		t.Errorf("expected weak signal to penalise the signal axis, got %d", score.Signal)
	}
	if score.Overall < 0 || score.Overall > 100 {
		t.Errorf("expected overall score in [0,100], got %d", score.Overall)
	}
}

func TestResetCircuitBreakerOnPrimary(t *testing.T) {
	d := newTestDispatcher(t)
	resp := d.Execute(context.Background(), "resetCircuitBreaker", nil)
	if !resp.Success {
		t.Fatalf("expected resetCircuitBreaker to succeed, got error: %s", resp.Error)
	}
}
