package block

import (
	"crypto/sha256"
	"fmt"

	"github.com/mezonai/mmn-storage/jsonx"
	"github.com/mezonai/mmn-storage/slot"
	"github.com/mr-tron/base58"
)

// HashSize is the length of a content hash.
const HashSize = 32

// Hash identifies a block by content. It is supplied by the caller and trusted as is.
type Hash [HashSize]byte

// HashOf returns the sha256 digest of data.
func HashOf(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// HashFromBytes copies b into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash length: %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// HashFromString decodes a base58 encoded hash.
func HashFromString(s string) (Hash, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Hash{}, fmt.Errorf("failed to decode base58 hash: %w", err)
	}
	return HashFromBytes(b)
}

func (h Hash) String() string {
	return base58.Encode(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := HashFromString(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Header carries the fields the storage layer reads. Only Slot is interpreted.
type Header struct {
	Slot    slot.Slot `json:"slot"`
	Creator string    `json:"creator,omitempty"`
	Parents []Hash    `json:"parents,omitempty"`
}

// Block is an already validated block. Payload is opaque to storage.
type Block struct {
	Header  Header `json:"header"`
	Payload []byte `json:"payload"`
}

// New assembles a block for the given slot.
func New(s slot.Slot, payload []byte) *Block {
	return &Block{
		Header:  Header{Slot: s},
		Payload: payload,
	}
}

// Slot returns the slot embedded in the header.
func (b *Block) Slot() slot.Slot {
	return b.Header.Slot
}

// Encode serializes a block for the backing store.
func Encode(b *Block) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("block cannot be nil")
	}
	data, err := jsonx.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal block: %w", err)
	}
	return data, nil
}

// Decode parses bytes written by Encode.
func Decode(data []byte) (*Block, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty block data")
	}
	var b Block
	if err := jsonx.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block: %w", err)
	}
	return &b, nil
}
