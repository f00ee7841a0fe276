package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferEvictsOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}
	assert.Equal(t, []int{3, 4, 5}, b.Snapshot())
	assert.Equal(t, 3, b.Len())
}

func TestBufferBelowCapacity(t *testing.T) {
	b := New[string](4)
	b.Push("a")
	b.Push("b")
	assert.Equal(t, []string{"a", "b"}, b.Snapshot())
}

func TestBufferClear(t *testing.T) {
	b := New[int](2)
	b.Push(1)
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Snapshot())
}
