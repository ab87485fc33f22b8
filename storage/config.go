package storage

import (
	"fmt"
	"time"

	"github.com/mezonai/mmn-storage/db"
)

const (
	DefaultMaxStoredBlocks = 100_000
	DefaultCacheCapacity   = 64 << 20 // bytes
	DefaultThreadCount     = 32
)

// StorageConfig is fixed for the lifetime of an engine.
type StorageConfig struct {
	// MaxStoredBlocks bounds the number of distinct hashes kept; must be > 0
	MaxStoredBlocks int
	// Path is the backing store directory, created if missing
	Path string
	// CacheCapacity bounds the write-back cache in bytes of encoded blocks; 0 disables it
	CacheCapacity int
	// FlushInterval enables the debounced background flush; nil flushes only on
	// explicit Flush calls, cache pressure and shutdown
	FlushInterval *time.Duration
	// ThreadCount is the number of parallel block-producing threads
	ThreadCount uint8
	// Backend selects the embedded engine, leveldb when empty
	Backend db.Vendor
}

// DefaultStorageConfig returns a config with the node defaults for path.
func DefaultStorageConfig(path string) StorageConfig {
	return StorageConfig{
		MaxStoredBlocks: DefaultMaxStoredBlocks,
		Path:            path,
		CacheCapacity:   DefaultCacheCapacity,
		ThreadCount:     DefaultThreadCount,
		Backend:         db.LevelDB,
	}
}

func (c StorageConfig) backend() db.Vendor {
	if c.Backend == "" {
		return db.LevelDB
	}
	return c.Backend
}

// Validate checks the config and reports problems as ConfigurationError.
func (c StorageConfig) Validate() error {
	var err error
	switch {
	case c.MaxStoredBlocks <= 0:
		err = fmt.Errorf("max stored blocks must be positive, got %d", c.MaxStoredBlocks)
	case c.CacheCapacity < 0:
		err = fmt.Errorf("cache capacity cannot be negative, got %d", c.CacheCapacity)
	case c.ThreadCount == 0:
		err = fmt.Errorf("thread count must be positive")
	case c.FlushInterval != nil && *c.FlushInterval <= 0:
		err = fmt.Errorf("flush interval must be positive, got %s", *c.FlushInterval)
	case c.Path == "" && c.backend() != db.Memory:
		err = fmt.Errorf("path cannot be empty")
	default:
		pc := db.ProviderConfig{Vendor: c.backend(), Directory: c.Path}
		err = pc.Validate()
	}
	if err != nil {
		return newError(ConfigurationError, "validate", err)
	}
	return nil
}
