package ctxswitch

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

const fiberStackSize = 64 * 1024

// newFiberStack allocates a stack for a fiber under test and keeps it
// reachable for the life of the test: the caller only ever holds the raw
// address, and a slice the GC can't see a live pointer into is a slice it
// is free to reclaim.
func newFiberStack(t *testing.T) uintptr {
	t.Helper()
	stack := make([]byte, fiberStackSize)
	t.Cleanup(func() { _ = stack })
	return uintptr(unsafe.Pointer(&stack[0]))
}

// TestInitAlignment checks that Init leaves the saved stack pointer 16-byte
// aligned on both halves of the switch, independent of architecture.
func TestInitAlignment(t *testing.T) {
	low := newFiberStack(t)
	var ctx Context
	Init(&ctx, low, fiberStackSize, func() {})
	require.Zero(t, savedSP(&ctx)%16)
}

// TestRoundTrip checks that two contexts passing control back and forth,
// each incrementing a counter it holds in a local variable that must
// survive across Switch as faithfully as if it were a callee-saved
// register or a stack slot - which, mechanically, is exactly what it is.
func TestRoundTrip(t *testing.T) {
	const iterations = 2000

	var home, fiber Context
	results := make([]int, 0, iterations)

	body := func() {
		// Running on the fiber's own stack now. Every local here lives
		// either in a register switchArch preserves or on this stack,
		// both of which survive a Switch back to home and a later
		// Switch back here.
		counter := 0
		for counter < iterations {
			counter++
			results = append(results, counter)
			Switch(&fiber, &home)
		}
	}

	Init(&fiber, newFiberStack(t), fiberStackSize, body)

	for i := 0; i < iterations; i++ {
		Switch(&home, &fiber)
	}

	require.Len(t, results, iterations)
	for i, v := range results {
		require.Equal(t, i+1, v)
	}
}

// TestRoundTripStress is the one-million-switch stress bound; it is expensive
// enough to skip under go test -short.
func TestRoundTripStress(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress round trip in -short mode")
	}

	const iterations = 1_000_000

	var home, fiber Context
	seen := 0

	body := func() {
		for {
			seen++
			Switch(&fiber, &home)
		}
	}

	Init(&fiber, newFiberStack(t), fiberStackSize, body)

	for i := 0; i < iterations; i++ {
		Switch(&home, &fiber)
	}

	require.Equal(t, iterations, seen)
}

// TestTwoFibersPingPong exercises two independently initialized contexts
// swapping through a shared home context, the shape the scheduler's main
// loop actually drives.
func TestTwoFibersPingPong(t *testing.T) {
	var home, a, b Context
	var trace []string

	runA := func() {
		trace = append(trace, "a1")
		Switch(&a, &home)
		trace = append(trace, "a2")
		Switch(&a, &home)
	}
	runB := func() {
		trace = append(trace, "b1")
		Switch(&b, &home)
		trace = append(trace, "b2")
		Switch(&b, &home)
	}

	Init(&a, newFiberStack(t), fiberStackSize, runA)
	Init(&b, newFiberStack(t), fiberStackSize, runB)

	Switch(&home, &a)
	Switch(&home, &b)
	Switch(&home, &a)
	Switch(&home, &b)

	require.Equal(t, []string{"a1", "b1", "a2", "b2"}, trace)
}
