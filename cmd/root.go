package cmd

import (
	"fmt"
	"os"

	"github.com/mezonai/mmn-storage/config"
	"github.com/mezonai/mmn-storage/logx"
	"github.com/mezonai/mmn-storage/storage"
	"github.com/spf13/cobra"
)

type StoreFlags struct {
	ConfigPath      string
	Path            string
	Backend         string
	MaxStoredBlocks int
	CacheCapacity   int
	FlushIntervalMs int
	ThreadCount     int
}

var storeFlags StoreFlags

var rootCmd = &cobra.Command{
	Use:   "mmn-storage",
	Short: "MMN block storage CLI",
	Long:  "Command line interface for inspecting and maintaining the slot-ordered block store of an MMN node.",
}

func init() {
	defaults := config.DefaultStorageSection()
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&storeFlags.ConfigPath, "config", "c", "", "config file (.ini with a [storage] section, or .yml/.yaml)")
	flags.StringVarP(&storeFlags.Path, "path", "p", defaults.Path, "block store directory")
	flags.StringVarP(&storeFlags.Backend, "backend", "b", defaults.Backend, "backing store: leveldb, bbolt, badger, rocksdb or memory")
	flags.IntVar(&storeFlags.MaxStoredBlocks, "max-blocks", defaults.MaxStoredBlocks, "maximum number of stored blocks")
	flags.IntVar(&storeFlags.CacheCapacity, "cache-bytes", defaults.CacheCapacity, "write-back cache capacity in bytes")
	flags.IntVar(&storeFlags.FlushIntervalMs, "flush-interval-ms", defaults.FlushIntervalMs, "background flush interval, 0 disables it")
	flags.IntVar(&storeFlags.ThreadCount, "threads", defaults.ThreadCount, "number of block-producing threads")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}

// resolveConfig starts from the config file when one is given and lets flags
// set on the command line override it.
func resolveConfig(cmd *cobra.Command) (storage.StorageConfig, error) {
	section := config.DefaultStorageSection()
	if storeFlags.ConfigPath != "" {
		loaded, err := config.LoadStorageConfig(storeFlags.ConfigPath)
		if err != nil {
			return storage.StorageConfig{}, err
		}
		section = *loaded
	}

	flags := cmd.Flags()
	if storeFlags.ConfigPath == "" || flags.Changed("path") {
		section.Path = storeFlags.Path
	}
	if storeFlags.ConfigPath == "" || flags.Changed("backend") {
		section.Backend = storeFlags.Backend
	}
	if storeFlags.ConfigPath == "" || flags.Changed("max-blocks") {
		section.MaxStoredBlocks = storeFlags.MaxStoredBlocks
	}
	if storeFlags.ConfigPath == "" || flags.Changed("cache-bytes") {
		section.CacheCapacity = storeFlags.CacheCapacity
	}
	if storeFlags.ConfigPath == "" || flags.Changed("flush-interval-ms") {
		section.FlushIntervalMs = storeFlags.FlushIntervalMs
	}
	if storeFlags.ConfigPath == "" || flags.Changed("threads") {
		section.ThreadCount = storeFlags.ThreadCount
	}
	return section.ToStorageConfig()
}

// withStore opens the store, runs fn and always stops the engine so the final flush happens.
func withStore(cmd *cobra.Command, fn func(h storage.Handle) error) (err error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	h, m, err := storage.Start(cfg)
	if err != nil {
		return fmt.Errorf("failed to open block store: %w", err)
	}
	defer func() {
		if stopErr := m.Stop(); stopErr != nil && err == nil {
			err = fmt.Errorf("failed to stop block store: %w", stopErr)
		}
	}()
	return fn(h)
}
