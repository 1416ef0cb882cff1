package routerstate

import (
	"errors"
	"strings"
	"testing"

	"github.com/netwatch-hq/netwatch/pkg/model"
	"github.com/netwatch-hq/netwatch/pkg/neterrors"
)

func TestParseAssociatedClients(t *testing.T) {
	raw := strings.Join([]string{
		"MAC: aa:bb:cc:00:00:01",
		"IPv4: 192.168.1.50",
		"Hostname: johns-phone",
		"Vendor: Apple",
		"Link: wireless-5g",
		"RSSI: -55",
		"Disconnects: 2",
		"MAC: aa:bb:cc:00:00:02",
		"IPv4: 192.168.1.51",
		"Link: wired",
	}, "\n")

	devices, err := ParseAssociatedClients(raw, "node-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}

	first := devices[0]
	if first.HardwareAddress != "aa:bb:cc:00:00:01" || first.Hostname != "johns-phone" || first.Vendor != "Apple" {
		t.Errorf("unexpected first device: %+v", first)
	}
	if first.Link != model.LinkWireless5G {
		t.Errorf("expected wireless-5g link, got %q", first.Link)
	}
	if first.LastRSSI == nil || *first.LastRSSI != -55 {
		t.Errorf("expected RSSI -55, got %v", first.LastRSSI)
	}
	if first.AttachedNode != "node-1" {
		t.Errorf("expected attachedNode stamped onto every device, got %q", first.AttachedNode)
	}
	if first.Status != model.DeviceOnline {
		t.Errorf("expected default status online, got %q", first.Status)
	}

	if devices[1].Link != model.LinkWired {
		t.Errorf("expected second device wired, got %q", devices[1].Link)
	}
}

func TestParseAssociatedClientsSkipsBlocksWithoutMAC(t *testing.T) {
	raw := strings.Join([]string{
		"MAC: aa:bb:cc:00:00:01",
		"IPv4: 192.168.1.50",
	}, "\n")
	// Prepend a stray line with no MAC header before the first real block.
	raw = "Hostname: orphan\n" + raw

	devices, err := ParseAssociatedClients(raw, "node-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected the headerless leading block to be skipped, got %d", len(devices))
	}
}

func TestParseAssociatedClientsEmptyIsParseError(t *testing.T) {
	_, err := ParseAssociatedClients("nothing useful here", "node-1")
	if !errors.Is(err, neterrors.ErrParse) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestParseRadios(t *testing.T) {
	raw := strings.Join([]string{
		"Band: 2.4",
		"Channel: 6",
		"Width: 20",
		"TxPower: 100",
		"Standard: ax",
		"Security: wpa3",
		"BandSteering: true",
		"Beamforming: false",
		"MUMIMO: true",
		"OFDMA: true",
		"RoamingAssist: false",
		"Band: 5",
		"Channel: 36",
		"Width: 80",
	}, "\n")

	radios, err := ParseRadios(raw, "node-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(radios) != 2 {
		t.Fatalf("expected 2 radios, got %d", len(radios))
	}

	first := radios[0]
	if first.Band != model.Band24 || first.Channel != 6 || first.WidthMHz != 20 {
		t.Errorf("unexpected first radio: %+v", first)
	}
	if !first.BandSteering || first.Beamforming || !first.MUMIMO || !first.OFDMA || first.RoamingAssist {
		t.Errorf("unexpected feature flags: %+v", first)
	}
	if first.NodeID != "node-1" {
		t.Errorf("expected nodeID stamped onto every radio, got %q", first.NodeID)
	}

	if radios[1].Band != model.Band5 || radios[1].Channel != 36 {
		t.Errorf("unexpected second radio: %+v", radios[1])
	}
}

func TestParseRadiosEmptyIsParseError(t *testing.T) {
	_, err := ParseRadios("nothing useful here", "node-1")
	if !errors.Is(err, neterrors.ErrParse) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}
