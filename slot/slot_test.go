package slot

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotOrderingByPeriod(t *testing.T) {
	assert.True(t, New(1, 1).Less(New(2, 0)))
	assert.False(t, New(2, 0).Less(New(1, 1)))
	assert.Equal(t, 1, New(3, 0).Compare(New(2, 1)))
}

func TestSlotOrderingByThread(t *testing.T) {
	assert.True(t, New(4, 0).Less(New(4, 1)))
	assert.Equal(t, -1, New(4, 0).Compare(New(4, 1)))
	assert.Equal(t, 0, New(4, 1).Compare(New(4, 1)))
}

func TestSlotOrderMatchesLinearIndex(t *testing.T) {
	const threadCount = 3
	var slots []Slot
	for p := uint64(0); p < 5; p++ {
		for th := uint8(0); th < threadCount; th++ {
			slots = append(slots, New(p, th))
		}
	}
	for _, a := range slots {
		for _, b := range slots {
			ia, ib := a.Index(threadCount), b.Index(threadCount)
			assert.Equal(t, ia < ib, a.Less(b), "%s vs %s", a, b)
			ka, kb := a.Key(), b.Key()
			assert.Equal(t, a.Compare(b), bytes.Compare(ka[:], kb[:]), "%s vs %s", a, b)
		}
	}
}

func TestSlotIndex(t *testing.T) {
	assert.Equal(t, uint64(0), New(0, 0).Index(2))
	assert.Equal(t, uint64(3), New(1, 1).Index(2))
	assert.Equal(t, uint64(64), New(2, 0).Index(32))
}

func TestSlotKeyLayout(t *testing.T) {
	k := New(1<<40+7, 31).Key()
	assert.Equal(t, [KeySize]byte{0, 0, 1, 0, 0, 0, 0, 7, 31}, k)

	// a higher thread never outranks a higher period
	assert.Equal(t, -1, New(1, 255).Compare(New(2, 0)))
	assert.Equal(t, 1, New(2, 0).Compare(New(1, 255)))
	assert.Equal(t, 0, New(3, 4).Compare(New(3, 4)))
}

func TestSlotValidate(t *testing.T) {
	assert.NoError(t, New(10, 1).Validate(2))
	assert.Error(t, New(10, 2).Validate(2))
}

func TestSlotString(t *testing.T) {
	assert.Equal(t, "(period: 2, thread: 1)", New(2, 1).String())
}

func TestParse(t *testing.T) {
	s, err := Parse(" 12, 3 ")
	require.NoError(t, err)
	assert.Equal(t, New(12, 3), s)

	for _, bad := range []string{"", "1", "1,2,3", "x,1", "1,256", "-1,0"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}
