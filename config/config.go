package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the collector's listening and access-control settings.
type ServerConfig struct {
	ListenAddress string   `yaml:"listen_address"`
	AllowedPeers  []string `yaml:"allowed_peers"`
	AllowAllPeers bool     `yaml:"allow_all_peers"`
}

// StorageConfig holds the durable store settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ClientConfig holds the sender-side settings.
type ClientConfig struct {
	ServerAddress  string `yaml:"server_address"`
	SourceID       string `yaml:"source_id"`
	MaxAttempts    int    `yaml:"max_attempts"` // 0 means retry without bound
	SampleInterval string `yaml:"sample_interval"`
	DialTimeout    string `yaml:"dial_timeout"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// DebugConfig holds the debug HTTP server settings.
type DebugConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ListenAddress  string `yaml:"listen_address"`
	PProfEnabled   bool   `yaml:"pprof_enabled"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// SelfMonitoringConfig controls the system usage collector.
type SelfMonitoringConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval"`
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol string `yaml:"protocol"` // "grpc" or "http"
}

// Config is the top-level configuration struct shared by the collector and
// the sender; each binary reads the sections it needs.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Storage        StorageConfig        `yaml:"storage"`
	Client         ClientConfig         `yaml:"client"`
	Logging        LoggingConfig        `yaml:"logging"`
	Debug          DebugConfig          `yaml:"debug"`
	SelfMonitoring SelfMonitoringConfig `yaml:"self_monitoring"`
	Tracing        TracingConfig        `yaml:"tracing"`
}

// ParseDuration parses a duration string. Returns the default duration if the
// string is empty or invalid. Logs a warning if the string is invalid but not
// empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Load reads configuration from an io.Reader. Fields omitted from the input
// keep their defaults. This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddress: ":5050",
		},
		Storage: StorageConfig{
			Path: "./data/whc_data.csv",
		},
		Client: ClientConfig{
			ServerAddress:  "127.0.0.1:5050",
			SourceID:       "rpi01",
			MaxAttempts:    100,
			SampleInterval: "100ms",
			DialTimeout:    "5s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "motionrelay.log",
		},
		Debug: DebugConfig{
			Enabled:        false,
			ListenAddress:  "0.0.0.0:6060",
			PProfEnabled:   true,
			MetricsEnabled: true,
		},
		SelfMonitoring: SelfMonitoringConfig{
			Enabled:  false,
			Interval: "15s",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
	}

	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}

	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path. A missing file is
// an error: the collector's allowlist and the sender's server address must be
// stated explicitly, so startup without a config file is always a mistake.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}
