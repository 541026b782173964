// Package config handles budwatch configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scanner backends.
const (
	BackendBlueZ   = "bluez"
	BackendAdapter = "adapter"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./budwatch.yaml, ~/.config/budwatch/config.yaml, /etc/budwatch/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"budwatch.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "budwatch", "config.yaml"))
	}

	paths = append(paths, "/etc/budwatch/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all budwatch configuration.
type Config struct {
	LogLevel     string             `yaml:"log_level"`
	LogFormat    string             `yaml:"log_format"` // text or json
	DataDir      string             `yaml:"data_dir"`
	Scanner      ScannerConfig      `yaml:"scanner"`
	Classifier   ClassifierConfig   `yaml:"classifier"`
	BlueZBattery BlueZBatteryConfig `yaml:"bluez_battery"`
	Media        MediaConfig        `yaml:"media"`
	Tray         TrayConfig         `yaml:"tray"`
	History      HistoryConfig      `yaml:"history"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
}

// ScannerConfig selects the advertisement source.
type ScannerConfig struct {
	Backend          string `yaml:"backend"` // bluez or adapter
	Adapter          string `yaml:"adapter"` // e.g. hci0
	RetryIntervalSec int    `yaml:"retry_interval_sec"`
}

// RetryInterval returns RetryIntervalSec as a duration.
func (s ScannerConfig) RetryInterval() time.Duration {
	return time.Duration(s.RetryIntervalSec) * time.Second
}

// ClassifierConfig overrides the earbuds name keywords.
// An empty list keeps the built-in keywords.
type ClassifierConfig struct {
	Keywords []string `yaml:"keywords"`
}

// BlueZBatteryConfig controls the BlueZ battery provider export.
type BlueZBatteryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MediaConfig controls automatic play/pause.
type MediaConfig struct {
	AutoPlay bool `yaml:"autoplay"`
}

// TrayConfig controls the system tray indicator.
type TrayConfig struct {
	Enabled bool `yaml:"enabled"`
}

// HistoryConfig controls the SQLite sighting journal.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default: <data_dir>/history.db
}

// MQTTConfig defines the Home Assistant MQTT publisher.
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	DeviceName      string `yaml:"device_name"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

// Load reads configuration from a YAML file. Environment variables are
// expanded before parsing; unset fields keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		DataDir:   "~/.local/share/budwatch",
		Scanner: ScannerConfig{
			Backend:          BackendBlueZ,
			Adapter:          "hci0",
			RetryIntervalSec: 3,
		},
		BlueZBattery: BlueZBatteryConfig{Enabled: true},
		Media:        MediaConfig{AutoPlay: true},
		Tray:         TrayConfig{Enabled: true},
		MQTT: MQTTConfig{
			Broker:          "mqtt://localhost:1883",
			DeviceName:      "budwatch",
			DiscoveryPrefix: "homeassistant",
		},
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q (valid: text, json)", c.LogFormat)
	}

	switch c.Scanner.Backend {
	case BackendBlueZ, BackendAdapter:
	default:
		return fmt.Errorf("unknown scanner.backend %q (valid: %s, %s)", c.Scanner.Backend, BackendBlueZ, BackendAdapter)
	}

	if c.Scanner.RetryIntervalSec <= 0 {
		return fmt.Errorf("scanner.retry_interval_sec must be positive, got %d", c.Scanner.RetryIntervalSec)
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.DeviceName == "" {
			return fmt.Errorf("mqtt.device_name is required when mqtt is enabled")
		}
	}

	return nil
}

// ResolvedDataDir returns DataDir with a leading ~ expanded.
func (c *Config) ResolvedDataDir() string {
	return expandHome(c.DataDir)
}

// HistoryPath returns the journal database path.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return expandHome(c.History.Path)
	}
	return filepath.Join(c.ResolvedDataDir(), "history.db")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
