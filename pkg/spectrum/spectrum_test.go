package spectrum

import (
	"errors"
	"strings"
	"testing"

	"github.com/netwatch-hq/netwatch/pkg/model"
	"github.com/netwatch-hq/netwatch/pkg/neterrors"
)

func TestParseNeighborScan(t *testing.T) {
	raw := strings.Join([]string{
		"SSID: HomeNet",
		"BSSID: aa:bb:cc:00:00:01",
		"Channel: 6",
		"RSSI: -55",
		"SSID: Neighbor2",
		"BSSID: aa:bb:cc:00:00:02",
		"Channel: 11",
		"RSSI: -70",
	}, "\n")

	aps, err := ParseNeighborScan(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(aps) != 2 {
		t.Fatalf("expected 2 APs, got %d", len(aps))
	}
	if aps[0].Channel != 6 || aps[0].RSSI != -55 {
		t.Errorf("unexpected first AP: %+v", aps[0])
	}
}

func TestParseNeighborScanSkipsMalformedBlocks(t *testing.T) {
	raw := strings.Join([]string{
		"SSID: Good",
		"BSSID: aa:bb:cc:00:00:01",
		"Channel: 6",
		"RSSI: -55",
		"SSID: MissingChannel",
		"BSSID: aa:bb:cc:00:00:02",
		"RSSI: -70",
	}, "\n")

	aps, err := ParseNeighborScan(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(aps) != 1 {
		t.Fatalf("expected malformed block without a channel to be skipped, got %d", len(aps))
	}
}

func TestParseNeighborScanEmptyIsParseError(t *testing.T) {
	_, err := ParseNeighborScan("nothing useful here")
	if !errors.Is(err, neterrors.ErrParse) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

// 7 neighbors on channel 6 (strongest -55dBm),
// Zigbee coordinator on channel 15, current radio on channel 6. Expect a
// suggestion for channel 11 whose improvement clears the 2.4GHz threshold
// (20); the priority a suggestion gets is RecommendationEngine's concern.
func TestSuggestChannelScenario(t *testing.T) {
	var aps []model.NeighborAP
	for i := 0; i < 7; i++ {
		rssi := -70
		if i == 0 {
			rssi = -55 // strongest
		}
		aps = append(aps, model.NeighborAP{
			SSID:    "neighbor",
			BSSID:   "aa:bb:cc:00:00:0" + string(rune('0'+i)),
			Channel: 6,
			Band:    model.Band24,
			RSSI:    rssi,
		})
	}

	scans := AggregateByChannel(aps)

	suggestion, ok := SuggestChannel(model.Band24, 6, scans, 15)
	if !ok {
		t.Fatalf("expected a channel suggestion given heavy co-channel contention on 6")
	}
	if suggestion.BestChannel != 11 {
		t.Errorf("expected channel 11 (overlap with zigbee 15 ~= 0), got %d", suggestion.BestChannel)
	}
	if suggestion.Improvement <= improvementThreshold(model.Band24) {
		t.Errorf("expected improvement above threshold, got %f", suggestion.Improvement)
	}
}

func TestOverlapWithZigbeeIsNearZeroFarApart(t *testing.T) {
	// Channel 11 center ~2462MHz, Zigbee channel 15 center 2425MHz: far
	// enough apart that overlap should be clamped to 0.
	overlap := overlapWithZigbee(11, 15)
	if overlap != 0 {
		t.Errorf("expected zero overlap for channel 11 vs zigbee 15, got %f", overlap)
	}
}

func TestOverlapWithZigbeeIsHighWhenCoincident(t *testing.T) {
	// Wi-Fi channel 6 (2437MHz) vs a Zigbee channel centered nearby.
	overlap := overlapWithZigbee(6, 16) // zigbee 16 = 2430MHz
	if overlap <= 0 {
		t.Errorf("expected nonzero overlap for closely spaced channels, got %f", overlap)
	}
}

func TestAggregateByChannelUtilisationHeuristic(t *testing.T) {
	var aps []model.NeighborAP
	for i := 0; i < 10; i++ {
		aps = append(aps, model.NeighborAP{Channel: 1, BSSID: "x", RSSI: -80})
	}
	scans := AggregateByChannel(aps)
	if scans[1].Utilisation != 100 {
		t.Errorf("expected utilisation clamped to 100 for 10 networks, got %d", scans[1].Utilisation)
	}
}
