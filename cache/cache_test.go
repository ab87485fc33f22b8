package cache

import (
	"bytes"
	"testing"

	"github.com/mezonai/mmn-storage/block"
	"github.com/mezonai/mmn-storage/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(h block.Hash) []byte {
	return append([]byte("blk:"), h[:]...)
}

func newTestCache(t *testing.T, capacity int) (*Cache, db.DatabaseProvider) {
	t.Helper()
	p, err := db.NewMemoryProvider()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return New(capacity, testKey), p
}

// resident reports residency without touching recency.
func resident(c *Cache, h block.Hash) bool {
	_, ok := c.items[h]
	return ok
}

func hashOf(s string) block.Hash {
	return block.HashOf([]byte(s))
}

// apply stages ch, writes the batch and commits, the way the engine does.
func apply(t *testing.T, c *Cache, p db.DatabaseProvider, ch Change) *Pending {
	t.Helper()
	batch := p.Batch()
	defer batch.Close()
	pending := c.Stage(batch, ch)
	require.NoError(t, batch.Write())
	pending.Commit()
	return pending
}

func stored(t *testing.T, p db.DatabaseProvider, h block.Hash) []byte {
	t.Helper()
	v, err := p.Get(testKey(h))
	require.NoError(t, err)
	return v
}

func TestDirtyPutStaysInMemory(t *testing.T) {
	c, p := newTestCache(t, 64)
	h := hashOf("a")

	apply(t, c, p, Change{Put: &Entry{Hash: h, Value: []byte("aaaa")}, Dirty: true})

	v, ok := c.Get(h)
	require.True(t, ok)
	assert.Equal(t, []byte("aaaa"), v)
	assert.Equal(t, 1, c.DirtyLen())
	assert.Equal(t, 4, c.Size())
	assert.Nil(t, stored(t, p, h), "write-back must not touch the store yet")
}

func TestEvictionSpillsDirtyLRU(t *testing.T) {
	c, p := newTestCache(t, 8)
	a, b, d := hashOf("a"), hashOf("b"), hashOf("d")

	apply(t, c, p, Change{Put: &Entry{Hash: a, Value: []byte("aaaa")}, Dirty: true})
	apply(t, c, p, Change{Put: &Entry{Hash: b, Value: []byte("bbbb")}, Dirty: true})
	// touch a so b becomes the LRU
	_, _ = c.Get(a)

	pending := apply(t, c, p, Change{Put: &Entry{Hash: d, Value: []byte("dddd")}, Dirty: true})
	assert.Equal(t, []block.Hash{b}, pending.Evicted())

	assert.False(t, resident(c, b))
	assert.Equal(t, []byte("bbbb"), stored(t, p, b), "evicted dirty entry must be persisted")
	assert.True(t, resident(c, a))
	assert.True(t, resident(c, d))
	assert.LessOrEqual(t, c.Size(), c.Capacity())
}

func TestCleanEvictionWritesNothing(t *testing.T) {
	c, p := newTestCache(t, 4)
	a, b := hashOf("a"), hashOf("b")

	apply(t, c, p, Change{Put: &Entry{Hash: a, Value: []byte("aaaa")}})
	batch := p.Batch()
	pending := c.Stage(batch, Change{Put: &Entry{Hash: b, Value: []byte("bbbb")}})
	assert.Equal(t, 0, batch.Len())
	pending.Commit()

	assert.False(t, resident(c, a))
	assert.True(t, resident(c, b))
}

func TestStageWithoutCommitChangesNothing(t *testing.T) {
	c, p := newTestCache(t, 4)
	a := hashOf("a")
	apply(t, c, p, Change{Put: &Entry{Hash: a, Value: []byte("aaaa")}, Dirty: true})

	batch := p.Batch()
	c.Stage(batch, Change{Put: &Entry{Hash: hashOf("b"), Value: []byte("bbbb")}, Dirty: true})
	assert.Equal(t, 1, batch.Len())

	// batch dropped: cache must still hold a as dirty
	assert.True(t, c.IsDirty(a))
	assert.Equal(t, 1, c.Len())
}

func TestOversizedValueIsWrittenThrough(t *testing.T) {
	c, p := newTestCache(t, 4)
	h := hashOf("big")

	apply(t, c, p, Change{Put: &Entry{Hash: h, Value: []byte("0123456789")}, Dirty: true})
	assert.False(t, resident(c, h))
	assert.Equal(t, []byte("0123456789"), stored(t, p, h))
}

func TestZeroCapacityDisablesResidency(t *testing.T) {
	c, p := newTestCache(t, 0)
	h := hashOf("x")
	apply(t, c, p, Change{Put: &Entry{Hash: h, Value: []byte("x")}, Dirty: true})
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, []byte("x"), stored(t, p, h))
}

func TestDropFreesRoomWithoutPersisting(t *testing.T) {
	c, p := newTestCache(t, 8)
	a, b, d := hashOf("a"), hashOf("b"), hashOf("d")
	apply(t, c, p, Change{Put: &Entry{Hash: a, Value: []byte("aaaa")}, Dirty: true})
	apply(t, c, p, Change{Put: &Entry{Hash: b, Value: []byte("bbbb")}, Dirty: true})

	batch := p.Batch()
	pending := c.Stage(batch, Change{Put: &Entry{Hash: d, Value: []byte("dddd")}, Dirty: true, Drop: []block.Hash{a}})
	assert.Equal(t, 0, batch.Len(), "dropped entry must not be spilled")
	assert.Empty(t, pending.Evicted())
	pending.Commit()

	assert.False(t, resident(c, a))
	assert.True(t, resident(c, b))
	assert.True(t, resident(c, d))
	assert.Equal(t, 2, c.DirtyLen())
}

func TestOverwriteReplacesValue(t *testing.T) {
	c, p := newTestCache(t, 16)
	h := hashOf("h")
	apply(t, c, p, Change{Put: &Entry{Hash: h, Value: []byte("first")}, Dirty: true})
	apply(t, c, p, Change{Put: &Entry{Hash: h, Value: []byte("second!")}, Dirty: true})

	v, ok := c.Get(h)
	require.True(t, ok)
	assert.Equal(t, []byte("second!"), v)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 7, c.Size())
	assert.Equal(t, 1, c.DirtyLen())
}

func TestDirtySnapshotAndMarkClean(t *testing.T) {
	c, p := newTestCache(t, 64)
	a, b := hashOf("a"), hashOf("b")
	apply(t, c, p, Change{Put: &Entry{Hash: a, Value: []byte("a")}, Dirty: true})
	apply(t, c, p, Change{Put: &Entry{Hash: b, Value: []byte("b")}})

	dirty := c.Dirty()
	require.Len(t, dirty, 1)
	assert.Equal(t, a, dirty[0].Hash)

	c.MarkClean(dirty)
	assert.Equal(t, 0, c.DirtyLen())
	assert.Empty(t, c.Dirty())
	assert.True(t, resident(c, a))
}

func TestRemoveAndReset(t *testing.T) {
	c, p := newTestCache(t, 64)
	a, b := hashOf("a"), hashOf("b")
	apply(t, c, p, Change{Put: &Entry{Hash: a, Value: []byte("aa")}, Dirty: true})
	apply(t, c, p, Change{Put: &Entry{Hash: b, Value: []byte("bb")}, Dirty: true})

	c.Remove(a)
	assert.False(t, resident(c, a))
	assert.Equal(t, 1, c.DirtyLen())
	assert.Equal(t, 2, c.Size())

	c.Reset()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, 0, c.DirtyLen())
}

func TestLRUOrderAcrossManyInserts(t *testing.T) {
	c, p := newTestCache(t, 3)
	var hashes []block.Hash
	for i := 0; i < 10; i++ {
		h := block.HashOf([]byte{byte(i)})
		hashes = append(hashes, h)
		apply(t, c, p, Change{Put: &Entry{Hash: h, Value: []byte{byte(i)}}, Dirty: true})
	}

	assert.Equal(t, 3, c.Len())
	for i, h := range hashes {
		if i >= 7 {
			assert.True(t, resident(c, h))
			continue
		}
		assert.True(t, bytes.Equal([]byte{byte(i)}, stored(t, p, h)), "entry %d must be spilled", i)
	}
}
