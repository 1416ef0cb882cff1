package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultHasDocumentedValues(t *testing.T) {
	cfg := Default()
	if cfg.Router.SSHPort != 22 {
		t.Errorf("expected default sshPort 22, got %d", cfg.Router.SSHPort)
	}
	if cfg.Hub.Port != 8123 {
		t.Errorf("expected default hub port 8123, got %d", cfg.Hub.Port)
	}
	if cfg.Zigbee.PreferredChannel != 15 {
		t.Errorf("expected default preferred zigbee channel 15, got %d", cfg.Zigbee.PreferredChannel)
	}
	if cfg.Scan.IntervalMs != 30000 {
		t.Errorf("expected default scan interval 30000ms, got %d", cfg.Scan.IntervalMs)
	}
	if cfg.Scan.SignalHistoryRetentionDays != 7 {
		t.Errorf("expected default retention 7 days, got %d", cfg.Scan.SignalHistoryRetentionDays)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
router:
  host: 192.168.1.1
  sshUser: root
hub:
  host: hub.local
  accessToken: secret
scan:
  intervalMs: 5000
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Router.Host != "192.168.1.1" || cfg.Router.SSHUser != "root" {
		t.Errorf("expected router overlay applied, got %+v", cfg.Router)
	}
	// Field not present in the file keeps the documented default.
	if cfg.Router.SSHPort != 22 {
		t.Errorf("expected untouched field to keep default 22, got %d", cfg.Router.SSHPort)
	}
	if cfg.Scan.IntervalMs != 5000 {
		t.Errorf("expected scan interval overlay, got %d", cfg.Scan.IntervalMs)
	}
	// scan.signalHistoryRetentionDays wasn't in the file either.
	if cfg.Scan.SignalHistoryRetentionDays != 7 {
		t.Errorf("expected retention default to remain 7, got %d", cfg.Scan.SignalHistoryRetentionDays)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error loading nonexistent config file")
	}
}
