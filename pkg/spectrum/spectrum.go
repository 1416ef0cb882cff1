// Package spectrum implements SpectrumAnalyser: neighbor-scan parsing,
// per-channel scoring, and channel-change suggestion emission.
package spectrum

import (
	"math"
	"strconv"
	"strings"

	"github.com/netwatch-hq/netwatch/pkg/model"
	"github.com/netwatch-hq/netwatch/pkg/neterrors"
)

// ChannelScan aggregates the neighbor APs observed on one channel.
type ChannelScan struct {
	Channel     int
	Band        model.Band
	Networks    []model.NeighborAP
	Utilisation int // min(100, 15 * networksOnChannel)
}

// ParseNeighborScan parses the "SSID:"-delimited block format: each block
// carries BSSID, Channel and RSSI lines. A block is accepted only when its
// channel is > 0 and its BSSID is non-empty; malformed blocks are skipped.
func ParseNeighborScan(raw string) ([]model.NeighborAP, error) {
	var aps []model.NeighborAP

	for _, block := range splitBlocks(raw) {
		ap, ok := parseBlock(block)
		if ok {
			aps = append(aps, ap)
		}
	}

	if len(aps) == 0 {
		return nil, neterrors.New(neterrors.KindParse, "no parseable blocks in neighbor scan")
	}
	return aps, nil
}

// splitBlocks breaks raw into per-"SSID:" chunks, each chunk including its
// own SSID: header line.
func splitBlocks(raw string) []string {
	lines := strings.Split(raw, "\n")
	var blocks []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "SSID:") {
			flush()
		}
		current = append(current, line)
	}
	flush()

	return blocks
}

func parseBlock(block string) (model.NeighborAP, bool) {
	var ap model.NeighborAP
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "SSID:"):
			ap.SSID = strings.TrimSpace(strings.TrimPrefix(line, "SSID:"))
		case strings.HasPrefix(line, "BSSID:"):
			ap.BSSID = strings.TrimSpace(strings.TrimPrefix(line, "BSSID:"))
		case strings.HasPrefix(line, "Channel:"):
			if c, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Channel:"))); err == nil {
				ap.Channel = c
			}
		case strings.HasPrefix(line, "RSSI:"):
			if r, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "RSSI:"))); err == nil {
				ap.RSSI = r
			}
		}
	}

	if ap.Channel <= 0 || ap.BSSID == "" {
		return model.NeighborAP{}, false
	}
	ap.Band = bandForChannel(ap.Channel)
	return ap, true
}

func bandForChannel(channel int) model.Band {
	if channel >= 1 && channel <= 14 {
		return model.Band24
	}
	return model.Band5
}

// AggregateByChannel groups neighbor APs into one ChannelScan per observed
// channel, with the networksOnChannel utilisation heuristic.
func AggregateByChannel(aps []model.NeighborAP) map[int]ChannelScan {
	out := make(map[int]ChannelScan)
	for _, ap := range aps {
		scan := out[ap.Channel]
		scan.Channel = ap.Channel
		scan.Band = ap.Band
		scan.Networks = append(scan.Networks, ap)
		out[ap.Channel] = scan
	}
	for ch, scan := range out {
		scan.Utilisation = minInt(100, 15*len(scan.Networks))
		out[ch] = scan
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// zigbeeChannelFrequencyMHz returns the Zigbee channel's center frequency
// (channels 11-26, 2405 + 5*(ch-11) MHz).
func zigbeeChannelFrequencyMHz(channel int) float64 {
	return 2405 + 5*float64(channel-11)
}

// overlapWithZigbee is the fractional overlap between a 22MHz-wide Wi-Fi
// channel and a 2MHz-wide Zigbee channel, per the glossary definition.
func overlapWithZigbee(wifiChannel, zigbeeChannel int) float64 {
	delta := math.Abs(model.ChannelFrequencyMHz(wifiChannel) - zigbeeChannelFrequencyMHz(zigbeeChannel))
	overlap := 1 - delta/22
	if overlap < 0 {
		overlap = 0
	}
	return overlap
}

// OverlapWithZigbee exposes the fractional co-channel overlap between a
// Wi-Fi channel and a Zigbee channel to callers outside this package
// (frequencyConflicts and the recommendation rule packs both need it).
func OverlapWithZigbee(wifiChannel, zigbeeChannel int) float64 {
	return overlapWithZigbee(wifiChannel, zigbeeChannel)
}

// ScoreChannel computes a channel's composite desirability score for band.
// zigbeeChannel is 0 when no Zigbee coordinator is configured (the overlap
// term is then always 0).
func ScoreChannel(band model.Band, channel int, scans map[int]ChannelScan, zigbeeChannel int) float64 {
	score := 100.0

	scan, ok := scans[channel]
	if ok {
		score -= float64(scan.Utilisation) * 0.5
		score -= 5 * float64(len(scan.Networks))

		for _, ap := range scan.Networks {
			if ap.RSSI > -60 {
				score -= 10
			} else if ap.RSSI > -70 {
				score -= 5
			}
		}
	}

	if band == model.Band24 && zigbeeChannel > 0 {
		score -= 30 * overlapWithZigbee(channel, zigbeeChannel)
	}

	if band == model.Band24 && (channel == 1 || channel == 6 || channel == 11) {
		score += 5
	}

	if score < 0 {
		score = 0
	}
	return score
}

// ChannelSuggestion is a candidate channel change with its expected score
// improvement over the current channel.
type ChannelSuggestion struct {
	Band         model.Band
	CurrentScore float64
	BestChannel  int
	BestScore    float64
	Improvement  float64
}

// improvementThreshold: 20 for 2.4GHz, 15 for 5GHz.
func improvementThreshold(band model.Band) float64 {
	if band == model.Band24 {
		return 20
	}
	return 15
}

// SuggestChannel scores every valid channel in band and returns a
// suggestion only when the best channel's improvement over currentChannel
// exceeds the category-dependent threshold.
func SuggestChannel(band model.Band, currentChannel int, scans map[int]ChannelScan, zigbeeChannel int) (ChannelSuggestion, bool) {
	currentScore := ScoreChannel(band, currentChannel, scans, zigbeeChannel)

	bestChannel := currentChannel
	bestScore := currentScore
	for _, c := range model.ValidChannels(band) {
		s := ScoreChannel(band, c, scans, zigbeeChannel)
		if s > bestScore {
			bestScore = s
			bestChannel = c
		}
	}

	improvement := bestScore - currentScore
	if improvement <= improvementThreshold(band) {
		return ChannelSuggestion{}, false
	}

	return ChannelSuggestion{
		Band:         band,
		CurrentScore: currentScore,
		BestChannel:  bestChannel,
		BestScore:    bestScore,
		Improvement:  improvement,
	}, true
}
