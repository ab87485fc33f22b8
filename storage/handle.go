package storage

import (
	"context"

	"github.com/mezonai/mmn-storage/block"
	"github.com/mezonai/mmn-storage/slot"
)

// Handle is the caller-facing side of the store. Copies share the same engine and
// may be used from any number of goroutines; every call waits for the engine's reply.
type Handle struct {
	e *engine
}

// AddBlock stores b under hash, replacing any previous entry for hash, and prunes
// the oldest slots if the store goes over capacity.
func (h Handle) AddBlock(ctx context.Context, hash block.Hash, b *block.Block) error {
	return h.e.call(ctx, "add_block", func() error {
		return h.e.addBlock(hash, b)
	})
}

// GetSlotRange returns every stored block with start <= slot < end.
// A nil bound leaves that side open.
func (h Handle) GetSlotRange(ctx context.Context, start, end *slot.Slot) (map[block.Hash]*block.Block, error) {
	var out map[block.Hash]*block.Block
	err := h.e.call(ctx, "get_slot_range", func() error {
		var err error
		out, err = h.e.getSlotRange(start, end)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetBlock returns the block stored under hash. The bool is false when it is unknown.
func (h Handle) GetBlock(ctx context.Context, hash block.Hash) (*block.Block, bool, error) {
	var (
		b     *block.Block
		found bool
	)
	err := h.e.call(ctx, "get_block", func() error {
		var err error
		b, found, err = h.e.getBlock(hash)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return b, found, nil
}

// Contains reports whether hash is stored.
func (h Handle) Contains(ctx context.Context, hash block.Hash) (bool, error) {
	var found bool
	err := h.e.call(ctx, "contains", func() error {
		_, found = h.e.index.Lookup(hash)
		return nil
	})
	return found, err
}

// Len returns the number of distinct hashes stored.
func (h Handle) Len(ctx context.Context) (int, error) {
	var n int
	err := h.e.call(ctx, "len", func() error {
		n = h.e.index.Len()
		return nil
	})
	return n, err
}

// Clear removes every block.
func (h Handle) Clear(ctx context.Context) error {
	return h.e.call(ctx, "clear", h.e.clear)
}

// Flush writes all dirty cached blocks to the backing store now.
func (h Handle) Flush(ctx context.Context) error {
	return h.e.call(ctx, "flush", func() error {
		return h.e.flush(false)
	})
}

func (h Handle) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := h.e.call(ctx, "stats", func() error {
		st = h.e.stats()
		return nil
	})
	return st, err
}
