package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/mark3labs/mcp-go/mcp"
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

func newTestServer() *Server {
	d := dispatcher.New(dispatcher.Deps{
		Log:     zerolog.Nop(),
		Clock:   clockwork.NewFakeClock(),
		Config:  config.Default(),
		Primary: &fakePrimary{connected: true},
		Hub:     &fakeHub{},
	})
	return NewServer(zerolog.Nop(), d)
}

func TestToolTableMatchesActionCatalogue(t *testing.T) {
	if len(toolTable) == 0 {
		t.Fatal("expected a non-empty tool table")
	}
	seen := map[string]bool{}
	for _, spec := range toolTable {
		if spec.action == "" {
			t.Error("tool spec with empty action name")
		}
		if seen[spec.action] {
			t.Errorf("duplicate tool registration for action %q", spec.action)
		}
		seen[spec.action] = true
	}
}

func TestHandlerForSuccessWrapsResponseData(t *testing.T) {
	s := newTestServer()
	h := s.handlerFor("resetCircuitBreaker")

	result, err := h(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected successful tool result, got error result")
	}
}

func TestHandlerForFailureSurfacesAsToolError(t *testing.T) {
	s := newTestServer()
	h := s.handlerFor("networkHealth")

	result, err := h(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected networkHealth with no snapshot yet to surface as a tool error")
	}
}

func TestRegisterToolsPopulatesMCPServer(t *testing.T) {
	s := newTestServer()
	if s.mcpServer == nil {
		t.Fatal("expected mcpServer to be initialised")
	}
}

func TestFormatJSONProducesIndentedOutput(t *testing.T) {
	out := formatJSON(map[string]any{"a": 1})
	if !strings.Contains(out, "\"a\": 1") {
		t.Errorf("expected indented JSON output, got %q", out)
	}
}
