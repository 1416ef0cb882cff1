package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordActionTracksSuccessAndError(t *testing.T) {
	before := testutilCounterValue(t, ActionsTotal.WithLabelValues("scanNetwork", "success"))
	RecordAction("scanNetwork", time.Now(), nil)
	after := testutilCounterValue(t, ActionsTotal.WithLabelValues("scanNetwork", "success"))
	if after != before+1 {
		t.Fatalf("expected success counter to increment by 1, got %v -> %v", before, after)
	}

	beforeErr := testutilCounterValue(t, ActionsTotal.WithLabelValues("scanNetwork", "error"))
	RecordAction("scanNetwork", time.Now(), errors.New("boom"))
	afterErr := testutilCounterValue(t, ActionsTotal.WithLabelValues("scanNetwork", "error"))
	if afterErr != beforeErr+1 {
		t.Fatalf("expected error counter to increment by 1, got %v -> %v", beforeErr, afterErr)
	}
}

func TestSetCircuitStatePublishesEncodedValue(t *testing.T) {
	SetCircuitState("router-main", CircuitHalfOpen)

	samples, err := Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var found bool
	for _, s := range samples {
		if s.Name == "netwatch_circuit_state" && s.Labels["target"] == "router-main" {
			found = true
			if s.Value != float64(CircuitHalfOpen) {
				t.Errorf("expected half-open value %v, got %v", float64(CircuitHalfOpen), s.Value)
			}
		}
	}
	if !found {
		t.Fatal("expected a netwatch_circuit_state sample for router-main")
	}
}

func TestGatherFlattensLabelsAndNames(t *testing.T) {
	EnvironmentScore.Set(87)

	samples, err := Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var found bool
	for _, s := range samples {
		if s.Name == "netwatch_environment_score" {
			found = true
			if s.Value != 87 {
				t.Errorf("expected environment score 87, got %v", s.Value)
			}
		}
	}
	if !found {
		t.Fatal("expected a netwatch_environment_score sample")
	}
}

// testutilCounterValue reads a counter's current value without pulling in
// prometheus/client_golang/prometheus/testutil, which the teacher's stack
// doesn't otherwise depend on for a one-field read.
func testutilCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
