package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ops       OpsConfig       `yaml:"ops"`
	Storage   StorageConfig   `yaml:"storage"`
	Stream    StreamConfig    `yaml:"stream"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Chat      ChatConfig      `yaml:"chat"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	MaxBodySize  int    `yaml:"max_body_size"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
	IdleTimeout  int    `yaml:"idle_timeout"`
}

// OpsConfig contains the operational endpoint settings
type OpsConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig contains storage engine settings
type StorageConfig struct {
	DataDir                string `yaml:"data_dir"`
	GCIntervalMinutes      int    `yaml:"gc_interval_minutes"`
	CacheEnabled           bool   `yaml:"cache_enabled"`
	NotificationCacheSize  int    `yaml:"notification_cache_size"`
	CacheExpirationSeconds int    `yaml:"cache_expiration_seconds"`
}

// StreamConfig contains live connection settings
type StreamConfig struct {
	HeartbeatInterval int `yaml:"heartbeat_interval"`
	WriteTimeout      int `yaml:"write_timeout"`
	SSEBufferSize     int `yaml:"sse_buffer_size"`
}

// NotifierConfig contains notification engine settings
type NotifierConfig struct {
	PersistTimeoutSeconds int `yaml:"persist_timeout_seconds"`
}

// ChatConfig contains chat engine settings
type ChatConfig struct {
	MaxBodyBytes int `yaml:"max_body_bytes"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level         string            `yaml:"level"`
	Format        string            `yaml:"format"`
	IncludeCaller bool              `yaml:"include_caller"`
	GlobalFields  map[string]string `yaml:"global_fields"`
}

// TelemetryConfig contains OpenTelemetry settings
type TelemetryConfig struct {
	Enabled       bool              `yaml:"enabled"`
	ServiceName   string            `yaml:"service_name"`
	Endpoint      string            `yaml:"endpoint"`
	SamplingRatio float64           `yaml:"sampling_ratio"`
	Attributes    map[string]string `yaml:"attributes"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			MaxBodySize:  1048576, // 1MB
			ReadTimeout:  5,
			WriteTimeout: 10,
			IdleTimeout:  120,
		},
		Ops: OpsConfig{
			Addr: ":9090",
		},
		Storage: StorageConfig{
			DataDir:                "./data",
			GCIntervalMinutes:      10,
			CacheEnabled:           true,
			NotificationCacheSize:  10000,
			CacheExpirationSeconds: 30,
		},
		Stream: StreamConfig{
			HeartbeatInterval: 25,
			WriteTimeout:      10,
			SSEBufferSize:     64,
		},
		Notifier: NotifierConfig{
			PersistTimeoutSeconds: 5,
		},
		Chat: ChatConfig{
			MaxBodyBytes: 4096,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "json",
			IncludeCaller: false,
			GlobalFields:  map[string]string{},
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			ServiceName:   "pulse",
			Endpoint:      "localhost:4317",
			SamplingRatio: 0.1,
			Attributes:    map[string]string{},
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

// LoadConfigFromFile loads configuration from a YAML file
func LoadConfigFromFile(filePath string) (*Config, error) {
	// Start with default configuration
	config := DefaultConfig()

	// Read and parse configuration file
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("file", filePath).Msg("Configuration file not found, using defaults")
			return config, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// LoadConfig loads configuration from file, environment variables, and flags
func LoadConfig(configFile string, dataDir string, serverAddr string, logLevel string) (*Config, error) {
	var config *Config
	var err error

	// Load from file if specified
	if configFile != "" {
		config, err = LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		// Use default config
		config = DefaultConfig()
	}

	// Override with environment variables
	applyEnvOverrides(config)

	// Override with command line flags (highest priority)
	if dataDir != "" {
		absDataDir, err := filepath.Abs(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for data directory: %w", err)
		}
		config.Storage.DataDir = absDataDir
	}

	if serverAddr != "" {
		config.Server.Addr = serverAddr
	}

	if logLevel != "" {
		config.Logging.Level = logLevel
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(config *Config) {
	// Server config overrides
	if addr := os.Getenv("PULSE_SERVER_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
	if addr := os.Getenv("PULSE_OPS_ADDR"); addr != "" {
		config.Ops.Addr = addr
	}

	// Storage config overrides
	if dataDir := os.Getenv("PULSE_STORAGE_DATA_DIR"); dataDir != "" {
		config.Storage.DataDir = dataDir
	}
	if gcStr := os.Getenv("PULSE_STORAGE_GC_INTERVAL_MINUTES"); gcStr != "" {
		if val, err := strconv.Atoi(gcStr); err == nil {
			config.Storage.GCIntervalMinutes = val
		}
	}

	// Stream config overrides
	if hbStr := os.Getenv("PULSE_STREAM_HEARTBEAT_INTERVAL"); hbStr != "" {
		if val, err := strconv.Atoi(hbStr); err == nil {
			config.Stream.HeartbeatInterval = val
		}
	}

	// Logging config overrides
	if level := os.Getenv("PULSE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("PULSE_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	// Telemetry config overrides
	if endpoint := os.Getenv("PULSE_TELEMETRY_ENDPOINT"); endpoint != "" {
		config.Telemetry.Endpoint = endpoint
		config.Telemetry.Enabled = true
	}
}
