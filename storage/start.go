package storage

import (
	"fmt"
	"os"

	"github.com/mezonai/mmn-storage/block"
	"github.com/mezonai/mmn-storage/db"
	"github.com/mezonai/mmn-storage/exception"
	"github.com/mezonai/mmn-storage/logx"
	"github.com/mezonai/mmn-storage/monitoring"
	"github.com/mezonai/mmn-storage/slot"
)

// Start opens the backing store at cfg.Path, rebuilds the slot index from its
// contents and launches the engine. A store that cannot be decoded is refused
// rather than partially loaded.
func Start(cfg StorageConfig) (Handle, *Manager, error) {
	if err := cfg.Validate(); err != nil {
		return Handle{}, nil, err
	}

	backend := cfg.backend()
	if backend != db.Memory {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return Handle{}, nil, newError(ConfigurationError, "start", fmt.Errorf("failed to create storage directory: %w", err))
		}
	}

	provider, err := db.NewProvider(db.ProviderConfig{Vendor: backend, Directory: cfg.Path})
	if err != nil {
		return Handle{}, nil, newError(IoError, "start", err)
	}
	return startWithProvider(cfg, provider)
}

// startWithProvider runs the engine on an already opened provider. The provider
// is closed if loading fails.
func startWithProvider(cfg StorageConfig, provider db.DatabaseProvider) (Handle, *Manager, error) {
	e := newEngine(cfg, provider)
	if err := e.load(); err != nil {
		_ = provider.Close()
		return Handle{}, nil, err
	}

	// the flusher only talks to the engine after a dirty signal, which the
	// engine can send only once it runs
	if cfg.FlushInterval != nil {
		f := &flusher{e: e, interval: *cfg.FlushInterval}
		e.flusherDone = exception.SafeGo("storage-flusher", f.run)
	}
	e.done = exception.SafeGo("storage-engine", e.run)

	logx.Info("STORAGE", fmt.Sprintf("Storage engine started | backend=%s | path=%s | blocks=%d | max_blocks=%d",
		cfg.backend(), cfg.Path, e.index.Len(), cfg.MaxStoredBlocks))
	return Handle{e: e}, &Manager{e: e}, nil
}

// load checks the persisted thread count and rebuilds the slot index from every
// stored block, pruning down to capacity if the limit shrank since the last run.
func (e *engine) load() error {
	if err := e.checkThreadCount(); err != nil {
		return err
	}

	var loadErr error
	err := e.provider.IteratePrefix([]byte(PrefixBlock), func(key, value []byte) bool {
		h, err := hashFromBlockKey(key)
		if err != nil {
			loadErr = newError(Corruption, "load", err)
			return false
		}
		b, err := block.Decode(value)
		if err != nil {
			loadErr = newError(Corruption, "load", fmt.Errorf("block %s: %w", h, err))
			return false
		}
		if err := b.Slot().Validate(e.cfg.ThreadCount); err != nil {
			loadErr = newError(Corruption, "load", fmt.Errorf("block %s: %w", h, err))
			return false
		}
		e.index.Insert(b.Slot(), h)
		return true
	})
	if err != nil {
		return newError(IoError, "load", err)
	}
	if loadErr != nil {
		return loadErr
	}

	if err := e.trimToCapacity(); err != nil {
		return err
	}
	monitoring.SetStoredBlocks(e.index.Len())
	return nil
}

func (e *engine) checkThreadCount() error {
	key := metaKey(MetaKeyThreadCount)
	value, err := e.provider.Get(key)
	if err != nil {
		return newError(IoError, "load", err)
	}
	if value == nil {
		if err := e.provider.Put(key, []byte{e.cfg.ThreadCount}); err != nil {
			return newError(IoError, "load", err)
		}
		return nil
	}
	if len(value) != 1 {
		return newError(Corruption, "load", fmt.Errorf("invalid thread count record length: %d", len(value)))
	}
	if value[0] != e.cfg.ThreadCount {
		return newError(ConfigurationError, "load",
			fmt.Errorf("store was written with %d threads, configured %d", value[0], e.cfg.ThreadCount))
	}
	return nil
}

func (e *engine) trimToCapacity() error {
	var pruned []slot.Slot
	var dropped []block.Hash
	for e.index.Len() > e.cfg.MaxStoredBlocks {
		s, hashes, ok := e.index.PopMin()
		if !ok {
			break
		}
		pruned = append(pruned, s)
		dropped = append(dropped, hashes...)
	}
	if len(dropped) == 0 {
		return nil
	}

	err := e.txm.WithBatch(func(batch db.DatabaseBatch) error {
		for _, h := range dropped {
			batch.Delete(blockKey(h))
		}
		return nil
	})
	if err != nil {
		return newError(IoError, "load", err)
	}
	logx.Info("STORAGE", fmt.Sprintf("Pruned %d block(s) over capacity at startup | oldest_kept_after=%s",
		len(dropped), pruned[len(pruned)-1]))
	return nil
}
