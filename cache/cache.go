// Package cache is the write-back LRU layer in front of the backing store.
//
// Capacity is counted in bytes of cached block data. Dirty entries are never dropped
// silently: an insertion that needs their room first queues them into the caller's
// batch, and the change only becomes visible after that batch was committed.
// The cache is not safe for concurrent use.
package cache

import (
	"container/list"

	"github.com/mezonai/mmn-storage/block"
	"github.com/mezonai/mmn-storage/db"
	"github.com/mezonai/mmn-storage/monitoring"
)

// KeyFunc maps a hash to its backing store key.
type KeyFunc func(block.Hash) []byte

// Entry is a cached value.
type Entry struct {
	Hash  block.Hash
	Value []byte
}

type item struct {
	hash  block.Hash
	value []byte
	dirty bool
}

// Cache is an LRU of encoded blocks bounded by total value size.
type Cache struct {
	capacity int
	key      KeyFunc

	ll    *list.List // front = most recently used
	items map[block.Hash]*list.Element
	size  int
	dirty int
}

// New creates a cache holding at most capacity bytes. A zero capacity disables residency,
// every write then goes straight to the batch.
func New(capacity int, key KeyFunc) *Cache {
	if capacity < 0 {
		capacity = 0
	}
	return &Cache{
		capacity: capacity,
		key:      key,
		ll:       list.New(),
		items:    make(map[block.Hash]*list.Element),
	}
}

// Get returns a resident value and marks it recently used.
func (c *Cache) Get(h block.Hash) ([]byte, bool) {
	el, ok := c.items[h]
	if !ok {
		monitoring.IncreaseCacheMiss()
		return nil, false
	}
	monitoring.IncreaseCacheHit()
	c.ll.MoveToFront(el)
	return el.Value.(*item).value, true
}

// IsDirty reports whether h is resident and not yet persisted.
func (c *Cache) IsDirty(h block.Hash) bool {
	el, ok := c.items[h]
	return ok && el.Value.(*item).dirty
}

func (c *Cache) Len() int      { return len(c.items) }
func (c *Cache) Size() int     { return c.size }
func (c *Cache) DirtyLen() int { return c.dirty }
func (c *Cache) Capacity() int { return c.capacity }

// Change is one atomic modification: drop some hashes, then optionally insert one entry.
type Change struct {
	Put   *Entry
	Dirty bool
	Drop  []block.Hash
}

// Pending is a staged change waiting for its batch to be committed.
type Pending struct {
	c       *Cache
	change  Change
	evict   []block.Hash
	resides bool
}

// Stage plans ch. Values that must reach the backing store for the change to be safe
// (dirty LRU victims, or a dirty value too large to be resident) are added to batch.
// Dropped hashes are not written; the caller deletes them in the same batch.
// Nothing in the cache changes until Commit is called.
func (c *Cache) Stage(batch db.DatabaseBatch, ch Change) *Pending {
	p := &Pending{c: c, change: ch}
	if ch.Put == nil {
		return p
	}

	need := len(ch.Put.Value)
	if need > c.capacity {
		if ch.Dirty {
			batch.Put(c.key(ch.Put.Hash), ch.Put.Value)
		}
		return p
	}
	p.resides = true

	skip := make(map[block.Hash]struct{}, len(ch.Drop)+1)
	freed := 0
	for _, h := range ch.Drop {
		if el, ok := c.items[h]; ok {
			if _, seen := skip[h]; !seen {
				freed += len(el.Value.(*item).value)
			}
		}
		skip[h] = struct{}{}
	}
	if el, ok := c.items[ch.Put.Hash]; ok {
		if _, seen := skip[ch.Put.Hash]; !seen {
			freed += len(el.Value.(*item).value)
		}
	}
	skip[ch.Put.Hash] = struct{}{}

	for el := c.ll.Back(); el != nil && c.size-freed+need > c.capacity; el = el.Prev() {
		it := el.Value.(*item)
		if _, ok := skip[it.hash]; ok {
			continue
		}
		if it.dirty {
			batch.Put(c.key(it.hash), it.value)
		}
		p.evict = append(p.evict, it.hash)
		freed += len(it.value)
	}
	return p
}

// Commit applies the staged change. Call it only after the batch was written.
func (p *Pending) Commit() {
	c := p.c
	for _, h := range p.change.Drop {
		c.remove(h)
	}
	for _, h := range p.evict {
		c.remove(h)
	}
	put := p.change.Put
	if put == nil {
		return
	}
	if !p.resides {
		// the value went straight to the batch, any older resident copy is stale
		c.remove(put.Hash)
		return
	}

	c.remove(put.Hash)
	it := &item{hash: put.Hash, value: put.Value, dirty: p.change.Dirty}
	c.items[put.Hash] = c.ll.PushFront(it)
	c.size += len(put.Value)
	if it.dirty {
		c.dirty++
	}
	monitoring.SetCacheState(c.size, c.dirty)
}

// Evicted lists the resident hashes the change pushes out of the cache.
func (p *Pending) Evicted() []block.Hash {
	return p.evict
}

// Remove drops h from the cache regardless of its state.
func (c *Cache) Remove(h block.Hash) {
	c.remove(h)
	monitoring.SetCacheState(c.size, c.dirty)
}

func (c *Cache) remove(h block.Hash) {
	el, ok := c.items[h]
	if !ok {
		return
	}
	it := el.Value.(*item)
	c.ll.Remove(el)
	delete(c.items, h)
	c.size -= len(it.value)
	if it.dirty {
		c.dirty--
	}
}

// Dirty returns a snapshot of every entry not yet persisted.
func (c *Cache) Dirty() []Entry {
	out := make([]Entry, 0, c.dirty)
	for el := c.ll.Front(); el != nil; el = el.Next() {
		it := el.Value.(*item)
		if it.dirty {
			out = append(out, Entry{Hash: it.hash, Value: it.value})
		}
	}
	return out
}

// MarkClean flags entries as persisted.
func (c *Cache) MarkClean(entries []Entry) {
	for _, e := range entries {
		el, ok := c.items[e.Hash]
		if !ok {
			continue
		}
		it := el.Value.(*item)
		if it.dirty {
			it.dirty = false
			c.dirty--
		}
	}
	monitoring.SetCacheState(c.size, c.dirty)
}

// Reset empties the cache, dirty entries included.
func (c *Cache) Reset() {
	c.ll.Init()
	c.items = make(map[block.Hash]*list.Element)
	c.size = 0
	c.dirty = 0
	monitoring.SetCacheState(0, 0)
}
