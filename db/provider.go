package db

// DatabaseProvider abstracts the embedded key-value engine behind the block storage.
// Implementations must be safe for use from a single owner goroutine; the storage
// engine never calls a provider concurrently.
type DatabaseProvider interface {
	// Get retrieves a value by key, returning nil, nil when the key is absent
	Get(key []byte) ([]byte, error)

	// GetBatch retrieves multiple values by keys in a single operation.
	// Missing keys are left out of the result.
	GetBatch(keys [][]byte) (map[string][]byte, error)

	// Put stores a key-value pair
	Put(key, value []byte) error

	// Delete removes a key-value pair
	Delete(key []byte) error

	// Has checks if a key exists
	Has(key []byte) (bool, error)

	// IteratePrefix iterates over all key-value pairs with the given prefix in key order.
	// The callback function should return false to stop iteration. Slices passed to the
	// callback are only valid for the duration of the call.
	IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error

	// Batch returns a new batch for atomic operations
	Batch() DatabaseBatch

	// Close closes the database connection
	Close() error
}

// DatabaseBatch provides atomic batch operations
type DatabaseBatch interface {
	// Put adds a key-value pair to the batch
	Put(key, value []byte)

	// Delete adds a deletion to the batch
	Delete(key []byte)

	// Len returns the number of queued operations
	Len() int

	// Write commits all operations in the batch
	Write() error

	// WriteSync commits all operations and waits until they are durable on disk
	WriteSync() error

	// Reset clears the batch
	Reset()

	// Close releases batch resources
	Close() error
}

// op is a queued batch operation, used by providers whose native batch
// cannot be built up ahead of the commit.
type op struct {
	key    []byte
	value  []byte
	delete bool
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
