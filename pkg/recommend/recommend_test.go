package recommend

import (
	"context"
	"errors"
	"testing"

	"github.com/netwatch-hq/netwatch/pkg/model"
	"github.com/netwatch-hq/netwatch/pkg/neterrors"
	"github.com/netwatch-hq/netwatch/pkg/spectrum"
)

type fakeShell struct {
	sets       map[string]string
	commits    int
	restarts   int
	setErr     error
	restartErr error
}

func newFakeShell() *fakeShell {
	return &fakeShell{sets: make(map[string]string)}
}

func (f *fakeShell) SetKV(ctx context.Context, key, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.sets[key] = value
	return nil
}

func (f *fakeShell) Commit(ctx context.Context) error {
	f.commits++
	return nil
}

func (f *fakeShell) RestartRadio(ctx context.Context) error {
	if f.restartErr != nil {
		return f.restartErr
	}
	f.restarts++
	return nil
}

func crowdedChannelScans() map[model.Band]map[int]spectrum.ChannelScan {
	var aps []model.NeighborAP
	for i := 0; i < 8; i++ {
		aps = append(aps, model.NeighborAP{
			SSID: "n", BSSID: "aa:bb:" + string(rune('0'+i)), Channel: 6, Band: model.Band24, RSSI: -60,
		})
	}
	return map[model.Band]map[int]spectrum.ChannelScan{
		model.Band24: spectrum.AggregateByChannel(aps),
	}
}

func snapshotWithCrowdedRadio() *model.NetworkSnapshot {
	return &model.NetworkSnapshot{
		ID: "snap-1",
		Radios: []model.Radio{
			{NodeID: "node-1", Band: model.Band24, Channel: 6, WidthMHz: 20},
		},
	}
}

// Scenario 4 from the optimisation-suggestion apply flow: generate a
// suggestion, echo pending without confirm, commit and restart the radio on
// confirm, then reject a second apply of the same token.
func TestApplyFlowConfirmThenUnknownOnReuse(t *testing.T) {
	e := New()
	snap := snapshotWithCrowdedRadio()
	suggestions := e.Generate(Input{Snapshot: snap, ChannelScans: crowdedChannelScans()}, []Target{TargetMinimiseInterference})
	if len(suggestions) == 0 {
		t.Fatal("expected at least one suggestion from the crowded channel 6 scenario")
	}
	token := suggestions[0].Token

	shell := newFakeShell()

	pendingResult, err := e.Apply(context.Background(), token, false, shell)
	if err != nil {
		t.Fatalf("unexpected error on unconfirmed apply: %v", err)
	}
	if !pendingResult.Pending || pendingResult.Applied {
		t.Fatalf("expected a pending echo without applying, got %+v", pendingResult)
	}
	if shell.commits != 0 {
		t.Fatalf("expected no commit before confirm, got %d", shell.commits)
	}

	confirmResult, err := e.Apply(context.Background(), token, true, shell)
	if err != nil {
		t.Fatalf("unexpected error on confirmed apply: %v", err)
	}
	if !confirmResult.Applied {
		t.Fatalf("expected Applied=true on confirm, got %+v", confirmResult)
	}
	if shell.commits != 1 {
		t.Fatalf("expected exactly one commit, got %d", shell.commits)
	}
	if shell.restarts != 1 {
		t.Fatalf("expected RestartRadio called once for a channel change, got %d", shell.restarts)
	}

	_, err = e.Apply(context.Background(), token, true, shell)
	if !errors.Is(err, neterrors.ErrUnknownSuggestion) {
		t.Fatalf("expected UnknownSuggestionError on token reuse, got %v", err)
	}
}

func TestApplyUnknownTokenIsUnknownSuggestionError(t *testing.T) {
	e := New()
	_, err := e.Apply(context.Background(), "never-issued", true, newFakeShell())
	if !errors.Is(err, neterrors.ErrUnknownSuggestion) {
		t.Fatalf("expected UnknownSuggestionError, got %v", err)
	}
}

// A suggestion minted against an older snapshot must not survive a newer
// Generate call: the pending set is fully replaced, not merged.
func TestGenerateInvalidatesPriorSnapshotTokens(t *testing.T) {
	e := New()
	snap := snapshotWithCrowdedRadio()
	first := e.Generate(Input{Snapshot: snap, ChannelScans: crowdedChannelScans()}, []Target{TargetMinimiseInterference})
	if len(first) == 0 {
		t.Fatal("expected a suggestion from the first snapshot")
	}
	staleToken := first[0].Token

	snap2 := snapshotWithCrowdedRadio()
	snap2.ID = "snap-2"
	e.Generate(Input{Snapshot: snap2, ChannelScans: crowdedChannelScans()}, []Target{TargetMinimiseInterference})

	_, err := e.Lookup(staleToken)
	if !errors.Is(err, neterrors.ErrUnknownSuggestion) {
		t.Fatalf("expected the stale token to be invalidated by the newer snapshot, got %v", err)
	}
}

func TestDedupByActionTypeAndParameters(t *testing.T) {
	e := New()
	snap := snapshotWithCrowdedRadio()
	// Both targets route through the same channelChangeRule for this
	// radio, so Generate must not emit the identical suggestion twice.
	suggestions := e.Generate(Input{Snapshot: snap, ChannelScans: crowdedChannelScans()},
		[]Target{TargetMinimiseInterference, TargetReduceNeighborOverlap})

	seen := make(map[string]bool)
	for _, s := range suggestions {
		key := s.ActionType + paramsFingerprint(s.Parameters)
		if seen[key] {
			t.Fatalf("expected no duplicate suggestions, found repeat of %s", key)
		}
		seen[key] = true
	}
}

func TestZigbeeProtectionOutranksPlainChannelChange(t *testing.T) {
	e := New()
	snap := snapshotWithCrowdedRadio()
	zigbee := &model.ZigbeeNetwork{CoordinatorChannel: 16} // overlaps heavily with channel 6

	suggestions := e.Generate(Input{Snapshot: snap, ChannelScans: crowdedChannelScans(), Zigbee: zigbee},
		[]Target{TargetMinimiseInterference, TargetProtectZigbee})

	if len(suggestions) == 0 {
		t.Fatal("expected suggestions")
	}
	if suggestions[0].Category != model.CategoryZigbee {
		t.Errorf("expected the zigbee-protection suggestion to rank first, got category %s", suggestions[0].Category)
	}
}

func TestApModeCleanupOnlyFiresForWiredPrimary(t *testing.T) {
	e := New()
	wiredPrimary := &model.NetworkSnapshot{
		ID:    "snap-wired",
		Nodes: []model.Node{{ID: "n1", IsPrimary: true, Backhaul: model.BackhaulWired}},
	}
	suggestions := e.Generate(Input{Snapshot: wiredPrimary}, []Target{TargetBalanceCoverage})
	if len(suggestions) == 0 {
		t.Fatal("expected AP-mode cleanup suggestions for a wired-backhaul primary")
	}

	e2 := New()
	noPrimary := &model.NetworkSnapshot{ID: "snap-no-primary"}
	suggestions2 := e2.Generate(Input{Snapshot: noPrimary}, []Target{TargetBalanceCoverage})
	if len(suggestions2) != 0 {
		t.Fatalf("expected no suggestions without a wired primary, got %+v", suggestions2)
	}
}
