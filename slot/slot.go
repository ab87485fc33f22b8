package slot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// KeySize is the length of the composite ordering key: 8 bytes period + 1 byte thread.
const KeySize = 9

// Slot is a point of logical time: a period and one of the parallel block-producing threads.
type Slot struct {
	Period uint64 `json:"period" yaml:"period"`
	Thread uint8  `json:"thread" yaml:"thread"`
}

// New creates a slot. Thread is not validated here, the caller knows the thread count.
func New(period uint64, thread uint8) Slot {
	return Slot{Period: period, Thread: thread}
}

// Index returns the linear position of the slot: period * threadCount + thread.
func (s Slot) Index(threadCount uint8) uint64 {
	return s.Period*uint64(threadCount) + uint64(s.Thread)
}

// Key returns the big endian composite key: 8 bytes period then 1 byte thread.
// Byte order of keys is slot order.
func (s Slot) Key() [KeySize]byte {
	var k [KeySize]byte
	binary.BigEndian.PutUint64(k[:8], s.Period)
	k[8] = s.Thread
	return k
}

// Compare returns -1, 0 or 1 by comparing the composite keys, so period and thread
// can never be weighed against each other.
func (s Slot) Compare(other Slot) int {
	a, b := s.Key(), other.Key()
	return bytes.Compare(a[:], b[:])
}

func (s Slot) Less(other Slot) bool {
	return s.Compare(other) < 0
}

// Validate checks the slot against the number of threads.
func (s Slot) Validate(threadCount uint8) error {
	if s.Thread >= threadCount {
		return fmt.Errorf("slot thread %d out of range, thread count is %d", s.Thread, threadCount)
	}
	return nil
}

func (s Slot) String() string {
	return fmt.Sprintf("(period: %d, thread: %d)", s.Period, s.Thread)
}

// Parse reads a slot written as "period,thread".
func Parse(str string) (Slot, error) {
	parts := strings.Split(strings.TrimSpace(str), ",")
	if len(parts) != 2 {
		return Slot{}, fmt.Errorf("invalid slot %q, expected period,thread", str)
	}
	period, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return Slot{}, fmt.Errorf("invalid slot period %q: %w", parts[0], err)
	}
	thread, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 8)
	if err != nil {
		return Slot{}, fmt.Errorf("invalid slot thread %q: %w", parts[1], err)
	}
	return New(period, uint8(thread)), nil
}
