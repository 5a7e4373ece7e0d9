//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package ioadapter

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/navicore/strand/internal/sched"
)

// stack is a minimal ValueStack for tests: a single-slot string register,
// enough to exercise WriteLine's pop and ReadLine's push without pulling
// in a real tagged-value stack implementation.
type stack struct {
	val   string
	valid bool
}

func (s *stack) PopString() (string, bool) {
	if !s.valid {
		return "", false
	}
	s.valid = false
	return s.val, true
}

func (s *stack) PushString(v string) {
	s.val = v
	s.valid = true
}

func socketPair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func newTestScheduler(t *testing.T) *sched.Scheduler {
	t.Helper()
	s, err := sched.New(sched.NewConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestWriteLineSendsStringPlusNewline(t *testing.T) {
	s := newTestScheduler(t)
	a, b := socketPair(t)

	_, err := s.Spawn(func(vs sched.ValueStack) sched.ValueStack {
		vs2, werr := WriteLine(s, a, vs.(*stack))
		require.NoError(t, werr)
		return vs2
	}, &stack{val: "hello", valid: true})
	require.NoError(t, err)

	_, err = s.Run()
	require.NoError(t, err)

	got := make([]byte, 64)
	n, err := unix.Read(b, got)
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(got[:n]))
}

func TestWriteLineBlocksWhenSendBufferFull(t *testing.T) {
	s := newTestScheduler(t)
	a, b := socketPair(t)
	require.NoError(t, unix.SetNonblock(a, true))
	require.NoError(t, unix.SetNonblock(b, true))

	// Fill a's send buffer (and therefore b's receive buffer) by writing
	// from a to b without draining b, so WriteLine on a genuinely
	// observes EAGAIN at least once before this test drains it.
	filler := make([]byte, 4096)
	for {
		n, err := unix.Write(a, filler)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			break
		}
		require.NoError(t, err)
		if n == 0 {
			break
		}
	}

	done := make(chan struct{})
	_, err := s.Spawn(func(vs sched.ValueStack) sched.ValueStack {
		vs2, werr := WriteLine(s, a, vs.(*stack))
		require.NoError(t, werr)
		close(done)
		return vs2
	}, &stack{val: "line", valid: true})
	require.NoError(t, err)

	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		buf := make([]byte, 4096)
		for {
			select {
			case <-done:
				return
			default:
			}
			_, _ = unix.Read(b, buf)
		}
	}()

	_, err = s.Run()
	require.NoError(t, err)
	<-drainDone
}

func TestReadLineStopsAtNewline(t *testing.T) {
	s := newTestScheduler(t)
	a, b := socketPair(t)

	_, err := unix.Write(b, []byte("first line\nsecond"))
	require.NoError(t, err)

	var result sched.ValueStack
	_, err = s.Spawn(func(vs sched.ValueStack) sched.ValueStack {
		vs2, rerr := ReadLine(s, a, vs.(*stack))
		require.NoError(t, rerr)
		result = vs2
		return vs2
	}, &stack{})
	require.NoError(t, err)

	_, err = s.Run()
	require.NoError(t, err)

	got, ok := result.(*stack).PopString()
	require.True(t, ok)
	require.Equal(t, "first line", got)
}

func TestReadLineBlocksThenResumesOnData(t *testing.T) {
	s := newTestScheduler(t)
	a, b := socketPair(t)

	var result sched.ValueStack
	_, err := s.Spawn(func(vs sched.ValueStack) sched.ValueStack {
		vs2, rerr := ReadLine(s, a, vs.(*stack))
		require.NoError(t, rerr)
		result = vs2
		return vs2
	}, &stack{})
	require.NoError(t, err)

	go func() {
		_, _ = unix.Write(b, []byte("delayed\n"))
	}()

	_, err = s.Run()
	require.NoError(t, err)

	got, ok := result.(*stack).PopString()
	require.True(t, ok)
	require.Equal(t, "delayed", got)
}

func TestReadLineGrowsBufferPastInitialCapacity(t *testing.T) {
	s := newTestScheduler(t)
	a, b := socketPair(t)

	long := make([]byte, initialReadCapacity*3)
	for i := range long {
		long[i] = 'x'
	}
	_, err := unix.Write(b, append(long, '\n'))
	require.NoError(t, err)

	var result sched.ValueStack
	_, err = s.Spawn(func(vs sched.ValueStack) sched.ValueStack {
		vs2, rerr := ReadLine(s, a, vs.(*stack))
		require.NoError(t, rerr)
		result = vs2
		return vs2
	}, &stack{})
	require.NoError(t, err)

	_, err = s.Run()
	require.NoError(t, err)

	got, ok := result.(*stack).PopString()
	require.True(t, ok)
	require.Equal(t, string(long), got)
}

func TestWriteLineWithoutStringReturnsError(t *testing.T) {
	s := newTestScheduler(t)
	a, _ := socketPair(t)

	var writeErr error
	_, err := s.Spawn(func(vs sched.ValueStack) sched.ValueStack {
		_, writeErr = WriteLine(s, a, vs.(*stack))
		return vs
	}, &stack{})
	require.NoError(t, err)

	_, err = s.Run()
	require.NoError(t, err)
	require.ErrorIs(t, writeErr, ErrNoStringOnStack)
}
