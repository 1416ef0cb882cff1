// Package routerstate parses the ad-hoc router-output text that
// SnapshotBuilder's collectingRouter phase gathers: the associated-client
// list per radio interface (fed by the ARP table and DHCP leases) and the
// per-radio configuration, both queried across the primary device and every
// NodePool peer. This complements pkg/spectrum's neighbor-scan parser,
// which covers third-party networks rather than this network's own state.
package routerstate

import (
	"strconv"
	"strings"

	"github.com/netwatch-hq/netwatch/pkg/model"
	"github.com/netwatch-hq/netwatch/pkg/neterrors"
)

// ParseAssociatedClients parses the "MAC:"-delimited block format returned
// by a device's client-list command: each block carries the client's MAC,
// last-known IPv4 (from the ARP table/DHCP leases), hostname, vendor, link
// type, RSSI and disconnect count. A block is accepted only when its MAC is
// non-empty; malformed blocks are skipped. attachedNode is stamped onto
// every parsed Device since the command output itself doesn't name the
// node it was queried against.
func ParseAssociatedClients(raw, attachedNode string) ([]model.Device, error) {
	var devices []model.Device

	for _, block := range splitBlocks(raw, "MAC:") {
		device, ok := parseClientBlock(block)
		if !ok {
			continue
		}
		device.AttachedNode = attachedNode
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, neterrors.New(neterrors.KindParse, "no parseable blocks in client list")
	}
	return devices, nil
}

func parseClientBlock(block string) (model.Device, bool) {
	var d model.Device
	d.Status = model.DeviceOnline

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "MAC:"):
			d.HardwareAddress = value(line, "MAC:")
		case strings.HasPrefix(line, "IPv4:"):
			d.LastIPv4 = value(line, "IPv4:")
		case strings.HasPrefix(line, "Hostname:"):
			d.Hostname = value(line, "Hostname:")
		case strings.HasPrefix(line, "Vendor:"):
			d.Vendor = value(line, "Vendor:")
		case strings.HasPrefix(line, "Link:"):
			d.Link = model.Link(value(line, "Link:"))
		case strings.HasPrefix(line, "RSSI:"):
			if r, err := strconv.Atoi(value(line, "RSSI:")); err == nil {
				d.LastRSSI = &r
			}
		case strings.HasPrefix(line, "Disconnects:"):
			if n, err := strconv.Atoi(value(line, "Disconnects:")); err == nil {
				d.DisconnectCount = n
			}
		case strings.HasPrefix(line, "Status:"):
			d.Status = model.DeviceStatus(value(line, "Status:"))
		}
	}

	if d.HardwareAddress == "" {
		return model.Device{}, false
	}
	return d, true
}

// ParseRadios parses the "Band:"-delimited block format returned by a
// device's radio-configuration command: each block carries one radio's
// band, channel, width, tx power and feature flags. A block is accepted
// only when its band is non-empty. nodeID is stamped onto every parsed
// Radio for the same reason ParseAssociatedClients stamps attachedNode.
func ParseRadios(raw, nodeID string) ([]model.Radio, error) {
	var radios []model.Radio

	for _, block := range splitBlocks(raw, "Band:") {
		radio, ok := parseRadioBlock(block)
		if !ok {
			continue
		}
		radio.NodeID = nodeID
		radios = append(radios, radio)
	}

	if len(radios) == 0 {
		return nil, neterrors.New(neterrors.KindParse, "no parseable blocks in radio config")
	}
	return radios, nil
}

func parseRadioBlock(block string) (model.Radio, bool) {
	var r model.Radio

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Band:"):
			r.Band = model.Band(value(line, "Band:"))
		case strings.HasPrefix(line, "Channel:"):
			if c, err := strconv.Atoi(value(line, "Channel:")); err == nil {
				r.Channel = c
			}
		case strings.HasPrefix(line, "Width:"):
			if w, err := strconv.Atoi(value(line, "Width:")); err == nil {
				r.WidthMHz = w
			}
		case strings.HasPrefix(line, "TxPower:"):
			if p, err := strconv.Atoi(value(line, "TxPower:")); err == nil {
				r.TxPowerPercent = p
			}
		case strings.HasPrefix(line, "Standard:"):
			r.Standard = value(line, "Standard:")
		case strings.HasPrefix(line, "Security:"):
			r.Security = value(line, "Security:")
		case strings.HasPrefix(line, "BandSteering:"):
			r.BandSteering = value(line, "BandSteering:") == "true"
		case strings.HasPrefix(line, "Beamforming:"):
			r.Beamforming = value(line, "Beamforming:") == "true"
		case strings.HasPrefix(line, "MUMIMO:"):
			r.MUMIMO = value(line, "MUMIMO:") == "true"
		case strings.HasPrefix(line, "OFDMA:"):
			r.OFDMA = value(line, "OFDMA:") == "true"
		case strings.HasPrefix(line, "RoamingAssist:"):
			r.RoamingAssist = value(line, "RoamingAssist:") == "true"
		}
	}

	if r.Band == "" {
		return model.Radio{}, false
	}
	return r, true
}

func value(line, prefix string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, prefix))
}

// splitBlocks breaks raw into per-header chunks, each chunk including its
// own header line, the same scheme pkg/spectrum uses for neighbor scans.
func splitBlocks(raw, header string) []string {
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
		if strings.HasPrefix(strings.TrimSpace(line), header) {
			flush()
		}
		current = append(current, line)
	}
	flush()

	return blocks
}
