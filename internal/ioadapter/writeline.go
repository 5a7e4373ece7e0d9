package ioadapter

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/navicore/strand/internal/sched"
)

// writeBuf is the in-flight buffer WriteLine registers a cleanup handler
// for. There is nothing to actually free in Go - the slice is collected
// once nothing references it - but clearing data on release keeps a
// destroyed strand's last cleanup argument from holding a stale slice
// alive for longer than it needs to.
type writeBuf struct {
	data []byte
}

func releaseWriteBuf(arg interface{}) {
	if b, ok := arg.(*writeBuf); ok {
		b.data = nil
	}
}

// WriteLine pops one string off vs, writes it to fd followed by a newline,
// and returns vs. fd is put into non-blocking mode the first time any
// operation in this package touches it. A write that would block suspends
// the calling strand via s.BlockOnWrite and retries once woken; any other
// error releases the buffer through its cleanup handler and is returned to
// the caller, matching spec.md's "fatal" framing for non-EAGAIN I/O errors
// by leaving the decision to panic, if any, to the caller.
func WriteLine(s *sched.Scheduler, fd int, vs ValueStack) (ValueStack, error) {
	str, ok := vs.PopString()
	if !ok {
		return vs, ErrNoStringOnStack
	}
	if err := ensureNonblock(fd); err != nil {
		return vs, fmt.Errorf("ioadapter: set fd %d non-blocking: %w", fd, err)
	}

	buf := &writeBuf{data: append([]byte(str), '\n')}
	if err := s.PushCleanup(releaseWriteBuf, buf); err != nil {
		return vs, fmt.Errorf("ioadapter: push write cleanup: %w", err)
	}

	for len(buf.data) > 0 {
		n, err := unix.Write(fd, buf.data)
		switch {
		case err == nil:
			buf.data = buf.data[n:]
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			if blockErr := s.BlockOnWrite(fd); blockErr != nil {
				_ = s.PopCleanup()
				releaseWriteBuf(buf)
				return vs, fmt.Errorf("ioadapter: block on write fd %d: %w", fd, blockErr)
			}
		default:
			_ = s.PopCleanup()
			releaseWriteBuf(buf)
			return vs, fmt.Errorf("ioadapter: write fd %d: %w", fd, err)
		}
	}

	if err := s.PopCleanup(); err != nil {
		return vs, fmt.Errorf("ioadapter: pop write cleanup: %w", err)
	}
	return vs, nil
}
