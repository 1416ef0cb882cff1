// Package config holds the static, file-based configuration for a netwatch
// deployment. Parsing environment variables is an explicit Non-goal; the
// only supported source is a YAML file, loaded with gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RouterConfig describes how to reach the primary mesh device's shell.
type RouterConfig struct {
	Host       string `yaml:"host"`
	SSHPort    int    `yaml:"sshPort"`
	SSHUser    string `yaml:"sshUser"`
	SSHPassword string `yaml:"sshPassword"`
	SSHKeyPath string `yaml:"sshKeyPath"`
	HTTPPort   int    `yaml:"httpPort"`
	// SerialPort, if set, makes DeviceShell use a directly-cabled serial
	// console instead of SSH (see pkg/shell's transport selection).
	SerialPort string `yaml:"serialPort"`
}

// HubConfig describes the home-automation hub's socket endpoint.
type HubConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	AccessToken string `yaml:"accessToken"`
	UseSSL      bool   `yaml:"useSsl"`
}

// ZigbeeCoordinatorType identifies how the hub exposes its Zigbee radio.
type ZigbeeCoordinatorType string

const (
	ZigbeeNative ZigbeeCoordinatorType = "native"
	ZigbeeBridge ZigbeeCoordinatorType = "bridge"
)

// ZigbeeConfig carries Zigbee-specific tunables.
type ZigbeeConfig struct {
	CoordinatorType   ZigbeeCoordinatorType `yaml:"coordinatorType"`
	PreferredChannel  int                   `yaml:"preferredChannel"`
}

// ScanConfig tunes the collection pipeline's cadence and retention.
type ScanConfig struct {
	IntervalMs                int `yaml:"intervalMs"`
	SignalHistoryRetentionDays int `yaml:"signalHistoryRetentionDays"`
}

// HouseBoundsConfig is the floor-plane bounding box Triangulator uses to
// break sphere-intersection ambiguity; it also carries the path-loss model's
// tunables since both describe the same physical house.
type HouseBoundsConfig struct {
	MinX             float64 `yaml:"minX"`
	MinY             float64 `yaml:"minY"`
	MaxX             float64 `yaml:"maxX"`
	MaxY             float64 `yaml:"maxY"`
	ReferenceRSSI    float64 `yaml:"referenceRssi"`
	PathLossExponent float64 `yaml:"pathLossExponent"`
}

// LogLevel mirrors zerolog's level names.
type LogLevel string

const (
	LogTrace LogLevel = "trace"
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
	LogFatal LogLevel = "fatal"
)

// LoggingConfig configures the process-wide logger.
type LoggingConfig struct {
	Level LogLevel `yaml:"level"`
}

// SnmpDeviceType selects vendor-specific OID quirks for SnmpClient.
type SnmpDeviceType string

const (
	SnmpGeneric  SnmpDeviceType = "generic"
	SnmpMikrotik SnmpDeviceType = "mikrotik"
	SnmpCisco    SnmpDeviceType = "cisco"
	SnmpUbiquiti SnmpDeviceType = "ubiquiti"
)

// SnmpDevice describes one switch to poll.
type SnmpDevice struct {
	Host       string         `yaml:"host"`
	Port       int            `yaml:"port"`
	Community  string         `yaml:"community"`
	DeviceType SnmpDeviceType `yaml:"deviceType"`
}

// SnmpConfig is the set of switches to poll via SnmpClient.
type SnmpConfig struct {
	Devices []SnmpDevice `yaml:"devices"`
}

// AlertConfig configures AlertRouter's outbound channels.
type AlertConfig struct {
	WebhookURL  string `yaml:"webhookUrl"`
	BrokerTopic string `yaml:"brokerTopic"`
	BrokerURL   string `yaml:"brokerUrl"`
}

// Config is the complete static configuration.
type Config struct {
	Router  RouterConfig  `yaml:"router"`
	Hub     HubConfig     `yaml:"hub"`
	Zigbee  ZigbeeConfig  `yaml:"zigbee"`
	Scan    ScanConfig    `yaml:"scan"`
	Logging LoggingConfig `yaml:"logging"`
	Snmp    SnmpConfig    `yaml:"snmp"`
	Alert   AlertConfig   `yaml:"alert"`
	House   HouseBoundsConfig `yaml:"house"`
	DataDir string        `yaml:"dataDir"`
}

// Default returns a Config with every documented default applied.
func Default() Config {
	return Config{
		Router: RouterConfig{
			SSHPort:  22,
			SSHUser:  "admin",
			HTTPPort: 80,
		},
		Hub: HubConfig{
			Port:   8123,
			UseSSL: false,
		},
		Zigbee: ZigbeeConfig{
			CoordinatorType:  ZigbeeBridge,
			PreferredChannel: 15,
		},
		Scan: ScanConfig{
			IntervalMs:                 30000,
			SignalHistoryRetentionDays: 7,
		},
		Logging: LoggingConfig{
			Level: LogInfo,
		},
		House: HouseBoundsConfig{
			MinX: 0, MinY: 0, MaxX: 30, MaxY: 20,
			ReferenceRSSI:    -40,
			PathLossExponent: 3.5,
		},
		DataDir: "./data",
	}
}

// Load reads a YAML configuration file at path and overlays it onto the
// documented defaults. A missing field in the file keeps its default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}
