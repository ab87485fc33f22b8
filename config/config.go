package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mezonai/mmn-storage/db"
	"github.com/mezonai/mmn-storage/logx"
	"github.com/mezonai/mmn-storage/storage"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// StorageSection is the [storage] section of config.ini, or the storage key of a yaml file.
type StorageSection struct {
	MaxStoredBlocks int    `ini:"max_stored_blocks" yaml:"max_stored_blocks"`
	Path            string `ini:"path" yaml:"path"`
	CacheCapacity   int    `ini:"cache_capacity" yaml:"cache_capacity"`
	FlushIntervalMs int    `ini:"flush_interval_ms" yaml:"flush_interval_ms"`
	ThreadCount     int    `ini:"thread_count" yaml:"thread_count"`
	Backend         string `ini:"backend" yaml:"backend"`
}

// ConfigFile is the top-level structure of a yaml config
type ConfigFile struct {
	Storage StorageSection `yaml:"storage"`
}

// DefaultStorageSection mirrors storage.DefaultStorageConfig. Keys missing from a file keep these values.
func DefaultStorageSection() StorageSection {
	return StorageSection{
		MaxStoredBlocks: storage.DefaultMaxStoredBlocks,
		Path:            "./data/blocks",
		CacheCapacity:   storage.DefaultCacheCapacity,
		ThreadCount:     storage.DefaultThreadCount,
		Backend:         string(db.LevelDB),
	}
}

// LoadStorageConfig reads the storage settings from an .ini or .yml/.yaml file
func LoadStorageConfig(path string) (*StorageSection, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini":
		return loadIni(path)
	case ".yml", ".yaml":
		return loadYaml(path)
	default:
		return nil, fmt.Errorf("unsupported config file extension: %q", filepath.Ext(path))
	}
}

func loadIni(path string) (*StorageSection, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load ini config: %w", err)
	}
	section := DefaultStorageSection()
	if err := cfg.Section("storage").StrictMapTo(&section); err != nil {
		return nil, fmt.Errorf("failed to map storage section: %w", err)
	}
	logx.Debug("CONFIG", fmt.Sprintf("Loaded storage config from %s: %+v", path, section))
	return &section, nil
}

func loadYaml(path string) (*StorageSection, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	cfgFile := ConfigFile{Storage: DefaultStorageSection()}
	if err := yaml.NewDecoder(file).Decode(&cfgFile); err != nil {
		return nil, fmt.Errorf("failed to decode yaml config: %w", err)
	}
	logx.Debug("CONFIG", fmt.Sprintf("Loaded storage config from %s: %+v", path, cfgFile.Storage))
	return &cfgFile.Storage, nil
}

// ToStorageConfig converts the file representation. Range checks are left to
// storage.StorageConfig.Validate, except for values that do not fit the target types.
func (s StorageSection) ToStorageConfig() (storage.StorageConfig, error) {
	if s.ThreadCount < 0 || s.ThreadCount > 255 {
		return storage.StorageConfig{}, fmt.Errorf("thread_count out of range: %d", s.ThreadCount)
	}
	if s.FlushIntervalMs < 0 {
		return storage.StorageConfig{}, fmt.Errorf("flush_interval_ms cannot be negative: %d", s.FlushIntervalMs)
	}

	cfg := storage.StorageConfig{
		MaxStoredBlocks: s.MaxStoredBlocks,
		Path:            s.Path,
		CacheCapacity:   s.CacheCapacity,
		ThreadCount:     uint8(s.ThreadCount),
		Backend:         db.Vendor(strings.ToLower(strings.TrimSpace(s.Backend))),
	}
	if s.FlushIntervalMs > 0 {
		interval := time.Duration(s.FlushIntervalMs) * time.Millisecond
		cfg.FlushInterval = &interval
	}
	return cfg, nil
}
