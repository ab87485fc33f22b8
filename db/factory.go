package db

import (
	"errors"
	"fmt"
)

// Vendor names an embedded key-value engine
type Vendor string

const (
	LevelDB Vendor = "leveldb"
	BoltDB  Vendor = "bbolt"
	Badger  Vendor = "badger"
	RocksDB Vendor = "rocksdb"
	// Memory keeps everything in RAM, used by tests and dry runs
	Memory Vendor = "memory"
)

// ErrUnsupportedVendor is returned for an unknown vendor name
var ErrUnsupportedVendor = errors.New("unsupported db provider")

// ProviderConfig holds what is needed to open a provider
type ProviderConfig struct {
	Vendor    Vendor `json:"vendor" yaml:"vendor"`
	Directory string `json:"directory" yaml:"directory"`
}

// Validate validates the provider configuration
func (c *ProviderConfig) Validate() error {
	switch c.Vendor {
	case LevelDB, BoltDB, Badger, RocksDB:
		if c.Directory == "" {
			return fmt.Errorf("directory cannot be empty for %s", c.Vendor)
		}
		return nil
	case Memory:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedVendor, c.Vendor)
	}
}

// NewProvider opens the provider described by cfg
func NewProvider(cfg ProviderConfig) (DatabaseProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}

	switch cfg.Vendor {
	case LevelDB:
		return NewLevelDBProvider(cfg.Directory)
	case BoltDB:
		return NewBoltProvider(cfg.Directory)
	case Badger:
		return NewBadgerProvider(cfg.Directory)
	case RocksDB:
		return NewRocksDBProvider(cfg.Directory)
	case Memory:
		return NewMemoryProvider()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVendor, cfg.Vendor)
	}
}
