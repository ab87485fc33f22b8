package storage

import (
	"fmt"

	"github.com/mezonai/mmn-storage/block"
)

// Backing store key layout
const (
	PrefixBlock = "blk:"
	PrefixMeta  = "meta:"

	MetaKeyThreadCount = "thread_count"
	MetaKeyLastFlush   = "last_flush"
)

func blockKey(h block.Hash) []byte {
	key := make([]byte, len(PrefixBlock)+block.HashSize)
	copy(key, PrefixBlock)
	copy(key[len(PrefixBlock):], h[:])
	return key
}

func hashFromBlockKey(key []byte) (block.Hash, error) {
	if len(key) != len(PrefixBlock)+block.HashSize || string(key[:len(PrefixBlock)]) != PrefixBlock {
		return block.Hash{}, fmt.Errorf("malformed block key %x", key)
	}
	return block.HashFromBytes(key[len(PrefixBlock):])
}

func metaKey(name string) []byte {
	return []byte(PrefixMeta + name)
}
