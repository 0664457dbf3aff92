package observer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_AppendNewestFirst(t *testing.T) {
	f := NewFeed(10)

	f.Append("first")
	f.Append("second")

	snap := f.Snapshot()
	require.Len(t, snap, 2)
	assert.Contains(t, snap[0], "second")
	assert.Contains(t, snap[1], "first")
}

func TestFeed_CapEvictsOldest(t *testing.T) {
	f := NewFeed(50)

	for i := 0; i < 60; i++ {
		f.Append(fmt.Sprintf("entry %d", i))
	}

	snap := f.Snapshot()
	require.Len(t, snap, 50)
	assert.Contains(t, snap[0], "entry 59")
	assert.Contains(t, snap[49], "entry 10")
}

func TestFeed_Clear(t *testing.T) {
	f := NewFeed(5)
	f.Append("something")
	require.Equal(t, 1, f.Len())

	f.Clear()
	assert.Equal(t, 0, f.Len())
	assert.Empty(t, f.Snapshot())
}

func TestFeed_DefaultCapacity(t *testing.T) {
	f := NewFeed(0)
	for i := 0; i < DefaultCapacity+10; i++ {
		f.Append("x")
	}
	assert.Equal(t, DefaultCapacity, f.Len())
}

func TestFeed_SnapshotIsCopy(t *testing.T) {
	f := NewFeed(5)
	f.Append("original")

	snap := f.Snapshot()
	snap[0] = "mutated"

	assert.Contains(t, f.Snapshot()[0], "original")
}
