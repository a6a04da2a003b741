package storage

import (
	"time"

	"github.com/pulsehub/pulse/internal/domain"
	"github.com/pulsehub/pulse/internal/storage/badger"
)

// Config contains storage configuration
type Config struct {
	// Base directory for data files
	DataDir string

	// Value log garbage collection interval
	GCInterval time.Duration

	// Cache settings
	CacheEnabled          bool
	NotificationCacheSize int
	CacheExpiration       time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		DataDir:               "./data",
		GCInterval:            10 * time.Minute,
		CacheEnabled:          true,
		NotificationCacheSize: 10000,
		CacheExpiration:       30 * time.Second,
	}
}

// New creates a new store backed by Badger
func New(config Config) (domain.Store, error) {
	badgerConfig := badger.Config{
		DataDir:               config.DataDir,
		GCInterval:            config.GCInterval,
		CacheEnabled:          config.CacheEnabled,
		NotificationCacheSize: config.NotificationCacheSize,
		CacheExpiration:       config.CacheExpiration,
	}

	return badger.NewStore(badgerConfig)
}
