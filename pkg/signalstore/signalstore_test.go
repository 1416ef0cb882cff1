package signalstore

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/netwatch-hq/netwatch/pkg/model"
)

func sample(device, node string, t time.Time, rssi int) model.SignalSample {
	return model.SignalSample{DeviceAddr: device, NodeAddr: node, Timestamp: t, RSSI: rssi}
}

func TestAppendEnforcesPerKeyCap(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock)
	defer s.Close()

	s.cap = 3
	base := clock.Now()
	for i := 0; i < 5; i++ {
		s.Append(sample("dev1", "nodeA", base.Add(time.Duration(i)*time.Second), -50-i))
	}

	key := storeKey{deviceAddr: "dev1", nodeAddr: "nodeA"}
	if len(s.byKey[key]) != 3 {
		t.Fatalf("expected cap enforced at 3, got %d", len(s.byKey[key]))
	}
	// Oldest two must have been evicted; the remaining three are the last three appended.
	if s.byKey[key][0].RSSI != -52 {
		t.Fatalf("expected oldest retained sample rssi -52, got %d", s.byKey[key][0].RSSI)
	}
}

func TestAppendDropsOutOfOrderSample(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock)
	defer s.Close()

	base := clock.Now()
	s.Append(sample("dev1", "nodeA", base.Add(10*time.Second), -50))
	s.Append(sample("dev1", "nodeA", base, -60)) // older than tail, must be dropped

	key := storeKey{deviceAddr: "dev1", nodeAddr: "nodeA"}
	if len(s.byKey[key]) != 1 {
		t.Fatalf("expected out-of-order sample dropped, got %d entries", len(s.byKey[key]))
	}
}

func TestRecentReturnsLastHourAcrossNodesNewestLast(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock)
	defer s.Close()

	now := clock.Now()
	s.Append(sample("dev1", "nodeA", now.Add(-2*time.Hour), -70)) // too old
	s.Append(sample("dev1", "nodeB", now.Add(-30*time.Minute), -60))
	s.Append(sample("dev1", "nodeA", now.Add(-10*time.Minute), -55))

	recent := s.Recent("dev1", 10)
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent samples, got %d", len(recent))
	}
	if recent[len(recent)-1].RSSI != -55 {
		t.Fatalf("expected newest sample last, got %+v", recent)
	}
}

func TestLastPerNode(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock)
	defer s.Close()

	now := clock.Now()
	s.Append(sample("dev1", "nodeA", now, -70))
	s.Append(sample("dev1", "nodeA", now.Add(time.Second), -60))
	s.Append(sample("dev1", "nodeB", now, -65))

	last := s.LastPerNode("dev1")
	if len(last) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(last))
	}
	if last["nodeA"].RSSI != -60 {
		t.Fatalf("expected freshest sample for nodeA (-60), got %d", last["nodeA"].RSSI)
	}
}

func TestSweepDropsStaleSamplesAndDeletesEmptyKeys(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock)
	defer s.Close()

	s.Append(sample("dev1", "nodeA", clock.Now(), -60))
	clock.Advance(defaultRetention + time.Minute)

	s.sweep()

	key := storeKey{deviceAddr: "dev1", nodeAddr: "nodeA"}
	if _, ok := s.byKey[key]; ok {
		t.Fatalf("expected key deleted once all its samples are stale")
	}
}
