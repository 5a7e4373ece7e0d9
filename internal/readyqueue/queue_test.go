package readyqueue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmptyPop(t *testing.T) {
	var q Queue[int]
	require.True(t, q.Empty())

	_, ok := q.Pop()
	require.False(t, ok)
}

// TestFIFOOrder checks that strands come out in the order they went in.
func TestFIFOOrder(t *testing.T) {
	var q Queue[string]

	q.Push("a")
	q.Push("b")
	q.Push("c")
	require.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	require.True(t, q.Empty())
}

// TestInterleavedPushPop mirrors how the scheduler loop actually drives the
// queue: a yielded strand is re-pushed mid-drain, and it must land behind
// everything already waiting.
func TestInterleavedPushPop(t *testing.T) {
	var q Queue[int]
	q.Push(1)
	q.Push(2)

	v, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, 1, v)

	q.Push(3) // simulates re-queueing a strand after a yield

	var order []int
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		order = append(order, v)
	}
	require.Equal(t, []int{2, 3}, order)
}
