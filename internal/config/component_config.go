package config

import (
	"time"

	"github.com/pulsehub/pulse/internal/api"
	"github.com/pulsehub/pulse/internal/chat"
	"github.com/pulsehub/pulse/internal/logging"
	"github.com/pulsehub/pulse/internal/notification"
	"github.com/pulsehub/pulse/internal/ops"
	"github.com/pulsehub/pulse/internal/storage"
	"github.com/pulsehub/pulse/internal/telemetry"
)

// ToStorageConfig converts to storage config
func (c *Config) ToStorageConfig() storage.Config {
	return storage.Config{
		DataDir:               c.Storage.DataDir,
		GCInterval:            time.Duration(c.Storage.GCIntervalMinutes) * time.Minute,
		CacheEnabled:          c.Storage.CacheEnabled,
		NotificationCacheSize: c.Storage.NotificationCacheSize,
		CacheExpiration:       time.Duration(c.Storage.CacheExpirationSeconds) * time.Second,
	}
}

// ToNotificationConfig converts to notification engine config
func (c *Config) ToNotificationConfig() notification.Config {
	return notification.Config{
		PersistTimeout: time.Duration(c.Notifier.PersistTimeoutSeconds) * time.Second,
	}
}

// ToChatConfig converts to chat engine config
func (c *Config) ToChatConfig() chat.Config {
	return chat.Config{
		MaxBodyBytes: c.Chat.MaxBodyBytes,
	}
}

// ToAPIConfig converts to API config
func (c *Config) ToAPIConfig() api.Config {
	return api.Config{
		Addr:               c.Server.Addr,
		MaxBodySize:        c.Server.MaxBodySize,
		ReadTimeout:        time.Duration(c.Server.ReadTimeout) * time.Second,
		WriteTimeout:       time.Duration(c.Server.WriteTimeout) * time.Second,
		IdleTimeout:        time.Duration(c.Server.IdleTimeout) * time.Second,
		HeartbeatInterval:  time.Duration(c.Stream.HeartbeatInterval) * time.Second,
		StreamWriteTimeout: time.Duration(c.Stream.WriteTimeout) * time.Second,
		SSEBufferSize:      c.Stream.SSEBufferSize,
	}
}

// ToOpsConfig converts to ops server config
func (c *Config) ToOpsConfig() ops.Config {
	return ops.Config{
		Addr:            c.Ops.Addr,
		MetricsEnabled:  c.Metrics.Enabled,
		MetricsEndpoint: c.Metrics.Endpoint,
	}
}

// ToLoggingConfig converts to logging config
func (c *Config) ToLoggingConfig() logging.Config {
	var level logging.LogLevel
	switch c.Logging.Level {
	case "debug":
		level = logging.LevelDebug
	case "info":
		level = logging.LevelInfo
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	default:
		level = logging.LevelInfo
	}

	var format logging.LogFormat
	switch c.Logging.Format {
	case "json":
		format = logging.FormatJSON
	case "console":
		format = logging.FormatConsole
	default:
		format = logging.FormatJSON
	}

	fields := map[string]string{"service": "pulse"}
	for k, v := range c.Logging.GlobalFields {
		fields[k] = v
	}

	return logging.Config{
		Level:             level,
		Format:            format,
		IncludeCaller:     c.Logging.IncludeCaller,
		IncludeStacktrace: true,
		GlobalFields:      fields,
	}
}

// ToTelemetryConfig converts to telemetry config
func (c *Config) ToTelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:       c.Telemetry.Enabled,
		ServiceName:   c.Telemetry.ServiceName,
		Endpoint:      c.Telemetry.Endpoint,
		SamplingRatio: c.Telemetry.SamplingRatio,
		Timeout:       5 * time.Second,
		Attributes:    c.Telemetry.Attributes,
	}
}
