package db

import (
	"fmt"

	"github.com/mezonai/mmn-storage/logx"
)

// DBTxManager runs groups of writes as one atomic batch on the shared provider.
type DBTxManager struct {
	provider DatabaseProvider
}

// NewDBTxManager creates a new transaction manager with the given provider
func NewDBTxManager(provider DatabaseProvider) *DBTxManager {
	return &DBTxManager{provider: provider}
}

// WithBatch executes fn within a batch context.
// If fn returns nil, the batch is committed; otherwise, it's discarded.
// An empty batch is not written at all.
func (tm *DBTxManager) WithBatch(fn func(batch DatabaseBatch) error) error {
	return tm.run(fn, false)
}

// WithSyncBatch is WithBatch with a durable commit.
func (tm *DBTxManager) WithSyncBatch(fn func(batch DatabaseBatch) error) error {
	return tm.run(fn, true)
}

func (tm *DBTxManager) run(fn func(batch DatabaseBatch) error, sync bool) error {
	batch := tm.provider.Batch()
	defer func() {
		if err := batch.Close(); err != nil {
			logx.Error("TX_MANAGER", "Failed to close batch:", err)
		}
	}()

	if err := fn(batch); err != nil {
		batch.Reset()
		return fmt.Errorf("transaction failed: %w", err)
	}

	if batch.Len() == 0 {
		return nil
	}

	var err error
	if sync {
		err = batch.WriteSync()
	} else {
		err = batch.Write()
	}
	if err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}

	return nil
}
