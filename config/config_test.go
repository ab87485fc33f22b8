package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mezonai/mmn-storage/db"
	"github.com/mezonai/mmn-storage/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadStorageConfigIni(t *testing.T) {
	path := writeFile(t, "config.ini", `
[poh]
ticks_per_slot = 4

[storage]
max_stored_blocks = 500
path = /var/lib/mmn/blocks
cache_capacity = 1048576
flush_interval_ms = 250
thread_count = 8
backend = bbolt
`)

	section, err := LoadStorageConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 500, section.MaxStoredBlocks)
	assert.Equal(t, "/var/lib/mmn/blocks", section.Path)
	assert.Equal(t, 1048576, section.CacheCapacity)
	assert.Equal(t, 250, section.FlushIntervalMs)
	assert.Equal(t, 8, section.ThreadCount)
	assert.Equal(t, "bbolt", section.Backend)

	cfg, err := section.ToStorageConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg.FlushInterval)
	assert.Equal(t, 250*time.Millisecond, *cfg.FlushInterval)
	assert.Equal(t, uint8(8), cfg.ThreadCount)
	assert.Equal(t, db.BoltDB, cfg.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoadStorageConfigYamlKeepsDefaults(t *testing.T) {
	path := writeFile(t, "storage.yaml", `
storage:
  max_stored_blocks: 42
  backend: memory
`)

	section, err := LoadStorageConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 42, section.MaxStoredBlocks)
	assert.Equal(t, storage.DefaultThreadCount, section.ThreadCount)
	assert.Equal(t, storage.DefaultCacheCapacity, section.CacheCapacity)

	cfg, err := section.ToStorageConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg.FlushInterval)
	assert.Equal(t, db.Memory, cfg.Backend)
}

func TestLoadStorageConfigErrors(t *testing.T) {
	_, err := LoadStorageConfig(writeFile(t, "config.toml", "x = 1"))
	assert.Error(t, err)

	_, err = LoadStorageConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	_, err = LoadStorageConfig(writeFile(t, "bad.yml", "storage: [not, a, map"))
	assert.Error(t, err)

	_, err = LoadStorageConfig(writeFile(t, "bad.ini", "[storage]\nmax_stored_blocks = lots\n"))
	assert.Error(t, err)
}

func TestToStorageConfigRejectsOutOfRange(t *testing.T) {
	section := DefaultStorageSection()
	section.ThreadCount = 256
	_, err := section.ToStorageConfig()
	assert.Error(t, err)

	section = DefaultStorageSection()
	section.FlushIntervalMs = -5
	_, err = section.ToStorageConfig()
	assert.Error(t, err)

	cfg, err := DefaultStorageSection().ToStorageConfig()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}
