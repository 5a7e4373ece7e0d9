package ioadapter

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/navicore/strand/internal/sched"
)

const initialReadCapacity = 128

// readBuf is the growable in-flight buffer ReadLine registers a cleanup
// handler for. Go slices don't grow in place, so a capacity overflow
// produces a new backing array; readBuf is what UpdateCleanupArg's pointer
// gets re-pointed at each time that happens, exactly matching spec.md's
// "double the capacity via reallocation and update the cleanup argument to
// the new pointer".
type readBuf struct {
	data []byte
	n    int

	// one is the single-byte scratch region unix.Read fills on each
	// iteration. It lives here rather than as a local so it stays
	// reachable through the strand's cleanup-handler argument - and
	// therefore through the scheduler's own heap-resident state - across
	// every BlockOnRead this function takes; see the accepted-risk note
	// on internal/sched's trampoline for why a bare local would not be
	// safe to keep live across a suspension point.
	one []byte
}

func releaseReadBuf(arg interface{}) {
	if b, ok := arg.(*readBuf); ok {
		b.data = nil
		b.one = nil
	}
}

// ReadLine reads bytes from fd until a newline or EOF, pushes the
// resulting line (without its trailing newline) onto vs, and returns vs.
// fd is put into non-blocking mode the first time any operation in this
// package touches it. A read that would block suspends the calling strand
// via s.BlockOnRead and retries once woken; any other error releases the
// buffer through its cleanup handler and is returned to the caller.
func ReadLine(s *sched.Scheduler, fd int, vs ValueStack) (ValueStack, error) {
	if err := ensureNonblock(fd); err != nil {
		return vs, fmt.Errorf("ioadapter: set fd %d non-blocking: %w", fd, err)
	}

	buf := &readBuf{data: make([]byte, initialReadCapacity), one: make([]byte, 1)}
	if err := s.PushCleanup(releaseReadBuf, buf); err != nil {
		return vs, fmt.Errorf("ioadapter: push read cleanup: %w", err)
	}

readLoop:
	for {
		n, err := unix.Read(fd, buf.one)
		switch {
		case err == nil && n == 0:
			break readLoop
		case err == nil:
			if buf.n == len(buf.data) {
				grown := make([]byte, len(buf.data)*2)
				copy(grown, buf.data[:buf.n])
				buf.data = grown
				if updErr := s.UpdateCleanupArg(buf); updErr != nil {
					_ = s.PopCleanup()
					releaseReadBuf(buf)
					return vs, fmt.Errorf("ioadapter: update read cleanup arg: %w", updErr)
				}
			}
			buf.data[buf.n] = buf.one[0]
			buf.n++
			if buf.one[0] == '\n' {
				break readLoop
			}
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			if blockErr := s.BlockOnRead(fd); blockErr != nil {
				_ = s.PopCleanup()
				releaseReadBuf(buf)
				return vs, fmt.Errorf("ioadapter: block on read fd %d: %w", fd, blockErr)
			}
		default:
			_ = s.PopCleanup()
			releaseReadBuf(buf)
			return vs, fmt.Errorf("ioadapter: read fd %d: %w", fd, err)
		}
	}

	line := buf.n
	if line > 0 && buf.data[line-1] == '\n' {
		line--
	}
	result := string(buf.data[:line])

	if err := s.PopCleanup(); err != nil {
		return vs, fmt.Errorf("ioadapter: pop read cleanup: %w", err)
	}
	vs.PushString(result)
	return vs, nil
}
