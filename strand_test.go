package strand

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOperationsBeforeInitReturnError(t *testing.T) {
	_, err := Spawn(func(vs ValueStack) ValueStack { return vs }, nil)
	require.Error(t, err)
	require.Error(t, Yield())
	require.Error(t, Shutdown())
}

func TestInitSpawnRunShutdown(t *testing.T) {
	require.NoError(t, Init(NewConfig().WithInitialStackSize(8*1024)))
	defer func() { _ = Shutdown() }()

	var order []string

	_, err := Spawn(func(vs ValueStack) ValueStack {
		order = append(order, "first-a")
		require.NoError(t, Yield())
		order = append(order, "first-b")
		return "first-result"
	}, nil)
	require.NoError(t, err)

	_, err = Spawn(func(vs ValueStack) ValueStack {
		order = append(order, "second-a")
		require.NoError(t, Yield())
		order = append(order, "second-b")
		return vs
	}, nil)
	require.NoError(t, err)

	// The main strand completes while the second strand is still queued,
	// so it is not the last one standing and Run reports no result.
	result, err := Run()
	require.NoError(t, err)
	require.Nil(t, result)
	require.Equal(t, []string{"first-a", "second-a", "first-b", "second-b"}, order)

	require.NoError(t, Shutdown())
}

func TestDoubleInitIsRejected(t *testing.T) {
	require.NoError(t, Init(NewConfig()))
	defer func() { _ = Shutdown() }()

	require.Error(t, Init(NewConfig()))
}

func TestTestYieldRoundTripsValueStack(t *testing.T) {
	require.NoError(t, Init(NewConfig()))
	defer func() { _ = Shutdown() }()

	var observed ValueStack
	_, err := Spawn(func(vs ValueStack) ValueStack {
		out, yerr := TestYield(vs)
		require.NoError(t, yerr)
		observed = out
		return out
	}, "payload")
	require.NoError(t, err)

	_, err = Run()
	require.NoError(t, err)
	require.Equal(t, "payload", observed)
}
