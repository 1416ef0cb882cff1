package recommend

import (
	"fmt"

	"github.com/netwatch-hq/netwatch/pkg/model"
	"github.com/netwatch-hq/netwatch/pkg/spectrum"
)

// channelChangeRule proposes a channel change for any band whose current
// radio has a large enough score deficit to the best available channel. On
// 2.4GHz with a Zigbee network present, a candidate is only offered when its
// overlap with the Zigbee channel stays below 0.3.
func channelChangeRule(in Input) []model.Suggestion {
	var out []model.Suggestion
	if in.Snapshot == nil {
		return out
	}

	zigbeeChannel := 0
	if in.Zigbee != nil {
		zigbeeChannel = in.Zigbee.CoordinatorChannel
	}

	for _, radio := range in.Snapshot.Radios {
		scans := in.ChannelScans[radio.Band]
		if scans == nil {
			continue
		}

		suggestion, ok := spectrum.SuggestChannel(radio.Band, radio.Channel, scans, zigbeeChannel)
		if !ok {
			continue
		}

		if radio.Band == model.Band24 && zigbeeChannel > 0 {
			if overlap := zigbeeOverlapFraction(suggestion.BestChannel, zigbeeChannel); overlap >= 0.3 {
				continue
			}
		}

		priority := 5
		if suggestion.Improvement > 2*spectrumThreshold(radio.Band) {
			priority = 8
		}

		out = append(out, model.Suggestion{
			Priority:   priority,
			Category:   model.CategoryChannel,
			ActionType: "setWifiChannel",
			Parameters: map[string]any{
				"nodeId":  radio.NodeID,
				"band":    string(radio.Band),
				"channel": suggestion.BestChannel,
			},
			CurrentValue:        fmt.Sprintf("channel %d", radio.Channel),
			TargetValue:         fmt.Sprintf("channel %d", suggestion.BestChannel),
			Risk:                model.RiskLow,
			ExpectedImprovement: fmt.Sprintf("+%.0f spectrum score", suggestion.Improvement),
			Confidence:          confidenceFromImprovement(suggestion.Improvement),
			AffectedDevices:     nil,
			RequiresRestart:     true,
		})
	}

	return out
}

func spectrumThreshold(band model.Band) float64 {
	if band == model.Band24 {
		return 20
	}
	return 15
}

func confidenceFromImprovement(improvement float64) float64 {
	c := 0.5 + improvement/100
	if c > 0.95 {
		c = 0.95
	}
	return c
}

// zigbeeOverlapFraction is a thin alias over spectrum.OverlapWithZigbee so
// rule packs read in terms of the domain concept without importing the
// scoring internals directly.
func zigbeeOverlapFraction(wifiChannel, zigbeeChannel int) float64 {
	return spectrum.OverlapWithZigbee(wifiChannel, zigbeeChannel)
}

// zigbeeProtectionRule prefers moving the Wi-Fi channel over the Zigbee
// channel whenever the two currently overlap more than 0.3: Wi-Fi clients
// roam and reconnect gracefully, stationary Zigbee end devices often don't.
func zigbeeProtectionRule(in Input) []model.Suggestion {
	var out []model.Suggestion
	if in.Zigbee == nil || in.Snapshot == nil {
		return out
	}

	for _, radio := range in.Snapshot.Radios {
		if radio.Band != model.Band24 {
			continue
		}
		overlap := zigbeeOverlapFraction(radio.Channel, in.Zigbee.CoordinatorChannel)
		if overlap <= 0.3 {
			continue
		}

		scans := in.ChannelScans[radio.Band]
		suggestion, ok := spectrum.SuggestChannel(radio.Band, radio.Channel, scans, in.Zigbee.CoordinatorChannel)
		targetValue := "a channel with lower Zigbee overlap"
		channel := 0
		if ok {
			targetValue = fmt.Sprintf("channel %d", suggestion.BestChannel)
			channel = suggestion.BestChannel
		}

		out = append(out, model.Suggestion{
			Priority:   9,
			Category:   model.CategoryZigbee,
			ActionType: "setWifiChannel",
			Parameters: map[string]any{
				"nodeId":  radio.NodeID,
				"band":    string(radio.Band),
				"channel": channel,
				"reason":  "zigbee-protection",
			},
			CurrentValue:        fmt.Sprintf("channel %d (overlap %.2f)", radio.Channel, overlap),
			TargetValue:         targetValue,
			Risk:                model.RiskLow,
			ExpectedImprovement: "reduced Zigbee co-channel interference",
			Confidence:          0.8,
			RequiresRestart:     true,
		})
	}

	return out
}

// featureEnableRule proposes turning on a disabled standard feature
// (roaming assist, MU-MIMO, wider 5GHz channel width) on every radio where
// it is off; the radio's health and client load are not checked.
func featureEnableRule(in Input) []model.Suggestion {
	var out []model.Suggestion
	if in.Snapshot == nil {
		return out
	}

	for _, radio := range in.Snapshot.Radios {
		if !radio.RoamingAssist {
			out = append(out, featureSuggestion(radio, "roamingAssist", "enable"))
		}
		if !radio.MUMIMO {
			out = append(out, featureSuggestion(radio, "muMimo", "enable"))
		}
		if (radio.Band == model.Band5 || radio.Band == model.Band5Alt) && radio.WidthMHz < 80 {
			out = append(out, featureSuggestion(radio, "widthMHz", "80"))
		}
	}

	return out
}

func featureSuggestion(radio model.Radio, field, target string) model.Suggestion {
	return model.Suggestion{
		Priority:   3,
		Category:   model.CategoryFeatureToggle,
		ActionType: "setWifiSetting",
		Parameters: map[string]any{
			"nodeId": radio.NodeID,
			"band":   string(radio.Band),
			"field":  field,
			"value":  target,
		},
		CurrentValue:        "disabled",
		TargetValue:         target,
		Risk:                model.RiskLow,
		ExpectedImprovement: "improved throughput/roaming for capable clients",
		Confidence:          0.6,
		RequiresRestart:     false,
	}
}

// wiredBackhaulRule flags nodes on wireless backhaul whose MemoryPercent is
// 85 or more, proposing a wired uplink. Node carries no backhaul RSSI, so
// backhaul signal strength is not consulted: a wireless-backhaul node below
// 85% memory is never flagged, however weak its link.
func wiredBackhaulRule(in Input) []model.Suggestion {
	var out []model.Suggestion
	if in.Snapshot == nil {
		return out
	}

	for _, node := range in.Snapshot.Nodes {
		if node.Backhaul != model.BackhaulWireless {
			continue
		}
		if node.MemoryPercent < 85 {
			continue
		}

		out = append(out, model.Suggestion{
			Priority:   6,
			Category:   model.CategoryRoaming,
			ActionType: "recommendWiredBackhaul",
			Parameters: map[string]any{
				"nodeId": node.ID,
			},
			CurrentValue:        "wireless backhaul",
			TargetValue:         "wired backhaul",
			Risk:                model.RiskLow,
			ExpectedImprovement: "improved backhaul stability",
			Confidence:          0.5,
			AffectedDevices:     []string{node.HardwareAddress},
			RequiresRestart:     false,
		})
	}

	return out
}

// apModeCleanupRule, when the primary device is acting purely as an access
// point (no WAN-facing role implied by having peers with wired backhaul to
// it), proposes disabling router-only features that otherwise still burn
// CPU: QoS, intrusion detection, traffic analyser, VPN server, DDNS, UPnP.
func apModeCleanupRule(in Input) []model.Suggestion {
	var out []model.Suggestion
	if in.Snapshot == nil {
		return out
	}

	primary, ok := in.Snapshot.PrimaryNode()
	if !ok || primary.Backhaul != model.BackhaulWired {
		// A primary with no wired backhaul of its own is the border router,
		// not a pure AP; router-only features are still earning their keep.
		return out
	}

	for _, feature := range []string{"qos", "intrusionDetection", "trafficAnalyser", "vpnServer", "ddns", "upnp"} {
		out = append(out, model.Suggestion{
			Priority:   2,
			Category:   model.CategoryFeatureToggle,
			ActionType: "disableWanFeature",
			Parameters: map[string]any{
				"nodeId":  primary.ID,
				"feature": feature,
			},
			CurrentValue:        "enabled",
			TargetValue:         "disabled",
			Risk:                model.RiskLow,
			ExpectedImprovement: "reduced CPU load in access-point mode",
			Confidence:          0.55,
			RequiresRestart:     false,
		})
	}

	return out
}
