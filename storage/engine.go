package storage

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mezonai/mmn-storage/block"
	"github.com/mezonai/mmn-storage/cache"
	"github.com/mezonai/mmn-storage/db"
	"github.com/mezonai/mmn-storage/logx"
	"github.com/mezonai/mmn-storage/monitoring"
	"github.com/mezonai/mmn-storage/slot"
	"github.com/mezonai/mmn-storage/slotindex"
)

// request is one operation executed on the engine goroutine.
type request struct {
	run   func() error
	reply chan error
}

// engine owns the provider, the cache and the slot index. Every field below
// requests is touched only from the engine goroutine.
type engine struct {
	cfg StorageConfig

	requests chan request
	stopCh   chan struct{} // closed by the manager
	closing  chan struct{} // closed once the engine stops accepting requests
	closeMu  sync.Once
	done     <-chan struct{}

	notify      chan struct{} // dirty signal for the flusher, nil without one
	flusherDone <-chan struct{}
	stopErr     error
	stopped     bool

	provider db.DatabaseProvider
	txm      *db.DBTxManager
	cache    *cache.Cache
	index    *slotindex.Index
}

func newEngine(cfg StorageConfig, provider db.DatabaseProvider) *engine {
	e := &engine{
		cfg:      cfg,
		requests: make(chan request),
		stopCh:   make(chan struct{}),
		closing:  make(chan struct{}),
		provider: provider,
		txm:      db.NewDBTxManager(provider),
		cache:    cache.New(cfg.CacheCapacity, blockKey),
		index:    slotindex.New(),
	}
	if cfg.FlushInterval != nil {
		e.notify = make(chan struct{}, 1)
	}
	return e
}

// run is the engine loop. Requests are handled one at a time, so callers observe
// a linearizable history and never a half applied insert or eviction.
func (e *engine) run() {
	for {
		select {
		case req := <-e.requests:
			req.reply <- req.run()
		case <-e.stopCh:
			e.shutdown()
			return
		}
	}
}

func (e *engine) stopAccepting() {
	e.closeMu.Do(func() { close(e.closing) })
}

func (e *engine) shutdown() {
	e.stopAccepting()
	if e.flusherDone != nil {
		<-e.flusherDone
	}

	flushErr := e.flush(true)
	if flushErr != nil {
		logx.Error("STORAGE", "Final flush failed: ", flushErr)
	}
	closeErr := e.provider.Close()
	if closeErr != nil {
		logx.Error("STORAGE", "Failed to close backing store: ", closeErr)
		closeErr = newError(IoError, "close", closeErr)
	}

	if flushErr != nil {
		e.stopErr = flushErr
	} else {
		e.stopErr = closeErr
	}
	e.stopped = true
	logx.Info("STORAGE", fmt.Sprintf("Storage engine stopped | blocks=%d", e.index.Len()))
}

// call hands fn to the engine goroutine and waits for its result. Once the
// engine received a request it always completes it, even if ctx is cancelled
// while waiting for the reply.
func (e *engine) call(ctx context.Context, op string, fn func() error) error {
	req := request{run: fn, reply: make(chan error, 1)}

	select {
	case e.requests <- req:
	case <-e.closing:
		return stoppedError(op)
	case <-e.done:
		return stoppedError(op)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-e.done:
		select {
		case err := <-req.reply:
			return err
		default:
			return newError(EngineStopped, op, fmt.Errorf("engine terminated during operation"))
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *engine) markDirty() {
	if e.notify == nil {
		return
	}
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

type prunedBucket struct {
	slot   slot.Slot
	hashes []block.Hash
}

// addBlock inserts or overwrites hash, then prunes the smallest slots until the
// store is back within capacity. All backing store effects go into one batch; if
// it fails the index and cache are left as they were.
func (e *engine) addBlock(h block.Hash, b *block.Block) error {
	if b == nil {
		return newError(ConfigurationError, "add_block", fmt.Errorf("block cannot be nil"))
	}
	s := b.Slot()
	if err := s.Validate(e.cfg.ThreadCount); err != nil {
		return newError(ConfigurationError, "add_block", err)
	}
	data, err := block.Encode(b)
	if err != nil {
		return newError(IoError, "add_block", err)
	}

	prevSlot, existed := e.index.Insert(s, h)

	var pruned []prunedBucket
	var dropped []block.Hash
	selfPruned := false
	for e.index.Len() > e.cfg.MaxStoredBlocks {
		ps, hashes, ok := e.index.PopMin()
		if !ok {
			break
		}
		pruned = append(pruned, prunedBucket{slot: ps, hashes: hashes})
		for _, ph := range hashes {
			if ph == h {
				selfPruned = true
			}
		}
		dropped = append(dropped, hashes...)
	}

	change := cache.Change{Drop: dropped}
	if !selfPruned {
		change.Put = &cache.Entry{Hash: h, Value: data}
		change.Dirty = true
	}

	var pending *cache.Pending
	err = e.txm.WithBatch(func(batch db.DatabaseBatch) error {
		pending = e.cache.Stage(batch, change)
		for _, dh := range dropped {
			batch.Delete(blockKey(dh))
		}
		return nil
	})
	if err != nil {
		for _, pb := range pruned {
			for _, ph := range pb.hashes {
				e.index.Insert(pb.slot, ph)
			}
		}
		e.index.Remove(h)
		if existed {
			e.index.Insert(prevSlot, h)
		}
		return newError(IoError, "add_block", err)
	}
	pending.Commit()

	if evicted := pending.Evicted(); len(evicted) > 0 {
		logx.Debug("STORAGE", fmt.Sprintf("Cache made room for %s by evicting %d block(s)", h, len(evicted)))
	}
	for _, pb := range pruned {
		logx.Debug("STORAGE", fmt.Sprintf("Pruned %d block(s) at slot %s", len(pb.hashes), pb.slot))
	}
	if len(dropped) > 0 {
		monitoring.AddEvictedBlocks(len(dropped))
	}
	monitoring.SetStoredBlocks(e.index.Len())
	if !selfPruned && e.cache.IsDirty(h) {
		e.markDirty()
	}
	return nil
}

// read returns the blocks for hashes, consulting the cache first and the backing
// store for the rest. Blocks read from disk are admitted to the cache as clean.
func (e *engine) read(op string, hashes []block.Hash) (map[block.Hash]*block.Block, error) {
	out := make(map[block.Hash]*block.Block, len(hashes))
	var missing [][]byte
	for _, h := range hashes {
		if data, ok := e.cache.Get(h); ok {
			b, err := block.Decode(data)
			if err != nil {
				return nil, newError(Corruption, op, fmt.Errorf("cached block %s: %w", h, err))
			}
			out[h] = b
			continue
		}
		missing = append(missing, blockKey(h))
	}
	if len(missing) == 0 {
		return out, nil
	}

	values, err := e.provider.GetBatch(missing)
	if err != nil {
		return nil, newError(IoError, op, err)
	}
	for _, key := range missing {
		h, _ := hashFromBlockKey(key)
		data, ok := values[string(key)]
		if !ok {
			return nil, newError(Corruption, op, fmt.Errorf("indexed block %s missing from backing store", h))
		}
		b, err := block.Decode(data)
		if err != nil {
			return nil, newError(Corruption, op, fmt.Errorf("block %s: %w", h, err))
		}
		out[h] = b
		e.admit(h, data)
	}
	return out, nil
}

// admit caches a value read from disk. Failing to spill dirty victims only
// costs the caching, the read itself already succeeded.
func (e *engine) admit(h block.Hash, data []byte) {
	var pending *cache.Pending
	err := e.txm.WithBatch(func(batch db.DatabaseBatch) error {
		pending = e.cache.Stage(batch, cache.Change{Put: &cache.Entry{Hash: h, Value: data}})
		return nil
	})
	if err != nil {
		logx.Warn("STORAGE", "Skipping cache admission of ", h, ": ", err)
		return
	}
	pending.Commit()
}

func (e *engine) getSlotRange(start, end *slot.Slot) (map[block.Hash]*block.Block, error) {
	entries := e.index.Range(start, end)
	if len(entries) == 0 {
		return make(map[block.Hash]*block.Block), nil
	}
	hashes := make([]block.Hash, 0, len(entries))
	for _, en := range entries {
		hashes = append(hashes, en.Hash)
	}
	return e.read("get_slot_range", hashes)
}

func (e *engine) getBlock(h block.Hash) (*block.Block, bool, error) {
	if _, ok := e.index.Lookup(h); !ok {
		return nil, false, nil
	}
	blocks, err := e.read("get_block", []block.Hash{h})
	if err != nil {
		return nil, false, err
	}
	return blocks[h], true, nil
}

func (e *engine) clear() error {
	var keys [][]byte
	err := e.provider.IteratePrefix([]byte(PrefixBlock), func(key, _ []byte) bool {
		keys = append(keys, append([]byte(nil), key...))
		return true
	})
	if err != nil {
		return newError(IoError, "clear", err)
	}

	err = e.txm.WithBatch(func(batch db.DatabaseBatch) error {
		for _, key := range keys {
			batch.Delete(key)
		}
		return nil
	})
	if err != nil {
		return newError(IoError, "clear", err)
	}

	e.index.Reset()
	e.cache.Reset()
	monitoring.SetStoredBlocks(0)
	logx.Info("STORAGE", fmt.Sprintf("Cleared storage | removed_keys=%d", len(keys)))
	return nil
}

// flush persists every dirty cache entry. The durable variant is used at shutdown
// and also records the flush time so the sync always reaches the disk.
func (e *engine) flush(durable bool) error {
	dirty := e.cache.Dirty()
	if len(dirty) == 0 && !durable {
		return nil
	}

	started := time.Now()
	fill := func(batch db.DatabaseBatch) error {
		for _, en := range dirty {
			batch.Put(blockKey(en.Hash), en.Value)
		}
		if durable {
			batch.Put(metaKey(MetaKeyLastFlush), []byte(strconv.FormatInt(started.UnixNano(), 10)))
		}
		return nil
	}

	var err error
	if durable {
		err = e.txm.WithSyncBatch(fill)
	} else {
		err = e.txm.WithBatch(fill)
	}
	monitoring.RecordFlush(time.Since(started), err)
	if err != nil {
		return newError(IoError, "flush", err)
	}

	e.cache.MarkClean(dirty)
	if len(dirty) > 0 {
		logx.Debug("STORAGE", fmt.Sprintf("Flushed %d block(s) in %s", len(dirty), time.Since(started)))
	}
	return nil
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Blocks        int        `json:"blocks"`
	Slots         int        `json:"slots"`
	MinSlot       *slot.Slot `json:"min_slot,omitempty"`
	MaxSlot       *slot.Slot `json:"max_slot,omitempty"`
	CacheEntries  int        `json:"cache_entries"`
	CacheBytes    int        `json:"cache_bytes"`
	CacheCapacity int        `json:"cache_capacity"`
	CacheDirty    int        `json:"cache_dirty"`
}

func (e *engine) stats() Stats {
	st := Stats{
		Blocks:        e.index.Len(),
		Slots:         e.index.Buckets(),
		CacheEntries:  e.cache.Len(),
		CacheBytes:    e.cache.Size(),
		CacheCapacity: e.cache.Capacity(),
		CacheDirty:    e.cache.DirtyLen(),
	}
	if s, _, ok := e.index.Min(); ok {
		st.MinSlot = &s
	}
	if s, _, ok := e.index.Max(); ok {
		st.MaxSlot = &s
	}
	return st
}
