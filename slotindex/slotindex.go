// Package slotindex keeps the ordered mapping from slot to the hashes stored at that slot.
//
// The index is what drives pruning: the oldest slot is always the tree minimum, no matter
// in which order blocks arrived. It is not safe for concurrent use; the storage engine
// owns it from a single goroutine.
package slotindex

import (
	"github.com/google/btree"

	"github.com/mezonai/mmn-storage/block"
	"github.com/mezonai/mmn-storage/slot"
)

const degree = 32

// Entry is one (slot, hash) pair.
type Entry struct {
	Slot slot.Slot
	Hash block.Hash
}

type bucket struct {
	slot   slot.Slot
	hashes map[block.Hash]struct{}
}

func lessBucket(a, b *bucket) bool {
	return a.slot.Less(b.slot)
}

// Index maps slots to hash sets. It never holds an empty bucket.
type Index struct {
	tree   *btree.BTreeG[*bucket]
	byHash map[block.Hash]slot.Slot
}

func New() *Index {
	return &Index{
		tree:   btree.NewG(degree, lessBucket),
		byHash: make(map[block.Hash]slot.Slot),
	}
}

// Len returns the number of distinct hashes.
func (ix *Index) Len() int {
	return len(ix.byHash)
}

// Buckets returns the number of distinct slots.
func (ix *Index) Buckets() int {
	return ix.tree.Len()
}

// Lookup returns the slot a hash is stored under.
func (ix *Index) Lookup(h block.Hash) (slot.Slot, bool) {
	s, ok := ix.byHash[h]
	return s, ok
}

// Insert maps hash to s. A hash already present under another slot is moved.
// It returns the previous slot of the hash, if any.
func (ix *Index) Insert(s slot.Slot, h block.Hash) (prev slot.Slot, existed bool) {
	prev, existed = ix.byHash[h]
	if existed {
		if prev == s {
			return prev, true
		}
		ix.removeFromBucket(prev, h)
	}

	b, ok := ix.tree.Get(&bucket{slot: s})
	if !ok {
		b = &bucket{slot: s, hashes: make(map[block.Hash]struct{}, 1)}
		ix.tree.ReplaceOrInsert(b)
	}
	b.hashes[h] = struct{}{}
	ix.byHash[h] = s
	return prev, existed
}

// Remove drops hash from the index and returns the slot it was stored under.
func (ix *Index) Remove(h block.Hash) (slot.Slot, bool) {
	s, ok := ix.byHash[h]
	if !ok {
		return slot.Slot{}, false
	}
	delete(ix.byHash, h)
	ix.removeFromBucket(s, h)
	return s, true
}

func (ix *Index) removeFromBucket(s slot.Slot, h block.Hash) {
	b, ok := ix.tree.Get(&bucket{slot: s})
	if !ok {
		return
	}
	delete(b.hashes, h)
	if len(b.hashes) == 0 {
		ix.tree.Delete(b)
	}
}

// Min returns the smallest slot and its hashes.
func (ix *Index) Min() (slot.Slot, []block.Hash, bool) {
	b, ok := ix.tree.Min()
	if !ok {
		return slot.Slot{}, nil, false
	}
	return b.slot, b.list(), true
}

// Max returns the largest slot and its hashes.
func (ix *Index) Max() (slot.Slot, []block.Hash, bool) {
	b, ok := ix.tree.Max()
	if !ok {
		return slot.Slot{}, nil, false
	}
	return b.slot, b.list(), true
}

// PopMin removes the whole bucket of the smallest slot and returns it.
func (ix *Index) PopMin() (slot.Slot, []block.Hash, bool) {
	b, ok := ix.tree.DeleteMin()
	if !ok {
		return slot.Slot{}, nil, false
	}
	hashes := b.list()
	for _, h := range hashes {
		delete(ix.byHash, h)
	}
	return b.slot, hashes, true
}

// Range returns every entry with start <= slot < end in slot order.
// A nil bound is unbounded on that side; start >= end yields nothing.
func (ix *Index) Range(start, end *slot.Slot) []Entry {
	if start != nil && end != nil && !start.Less(*end) {
		return nil
	}

	var out []Entry
	collect := func(b *bucket) bool {
		for h := range b.hashes {
			out = append(out, Entry{Slot: b.slot, Hash: h})
		}
		return true
	}

	switch {
	case start != nil && end != nil:
		ix.tree.AscendRange(&bucket{slot: *start}, &bucket{slot: *end}, collect)
	case start != nil:
		ix.tree.AscendGreaterOrEqual(&bucket{slot: *start}, collect)
	case end != nil:
		ix.tree.AscendLessThan(&bucket{slot: *end}, collect)
	default:
		ix.tree.Ascend(collect)
	}
	return out
}

// Reset empties the index.
func (ix *Index) Reset() {
	ix.tree.Clear(false)
	ix.byHash = make(map[block.Hash]slot.Slot)
}

func (b *bucket) list() []block.Hash {
	out := make([]block.Hash, 0, len(b.hashes))
	for h := range b.hashes {
		out = append(out, h)
	}
	return out
}
