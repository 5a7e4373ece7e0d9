//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package reactor

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// kqueueReactor backs Reactor with BSD/Darwin kqueue. EV_ONESHOT gives the
// same disarm-on-fire semantics epoll's EPOLLONESHOT does, without needing
// edge-triggered mode to avoid re-delivery.
type kqueueReactor struct {
	kq int
}

// New opens a fresh OS event multiplexer for the current platform.
func New() (Reactor, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("reactor: kqueue: %w", err)
	}
	return &kqueueReactor{kq: kq}, nil
}

func (r *kqueueReactor) register(fd int, token uint64, filter int16) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  unix.EV_ADD | unix.EV_ONESHOT,
		Udata:  tokenToUdata(token),
	}
	_, err := unix.Kevent(r.kq, []unix.Kevent_t{ev}, nil, nil)
	if err != nil {
		return fmt.Errorf("reactor: kevent register fd=%d: %w", fd, err)
	}
	return nil
}

func (r *kqueueReactor) RegisterRead(fd int, token uint64) error {
	return r.register(fd, token, unix.EVFILT_READ)
}

func (r *kqueueReactor) RegisterWrite(fd int, token uint64) error {
	return r.register(fd, token, unix.EVFILT_WRITE)
}

func (r *kqueueReactor) Wait() ([]Event, error) {
	raw := make([]unix.Kevent_t, DefaultBatchSize)
	for {
		n, err := unix.Kevent(r.kq, nil, raw, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reactor: kevent wait: %w", err)
		}

		events := make([]Event, 0, n)
		for _, ev := range raw[:n] {
			var ready Readiness
			switch ev.Filter {
			case unix.EVFILT_READ:
				ready = Read
			case unix.EVFILT_WRITE:
				ready = Write
			}
			events = append(events, Event{Token: udataToToken(ev.Udata), Readiness: ready})
		}
		return events, nil
	}
}

func (r *kqueueReactor) Close() error {
	return unix.Close(r.kq)
}

// tokenToUdata/udataToToken stash the 64-bit strand token in Kevent_t's
// Udata field by round-tripping it through a pointer-sized integer rather
// than a real pointer. The kernel treats Udata as opaque and hands it back
// unexamined, so this is safe as long as nothing ever dereferences it - it
// never is.
func tokenToUdata(token uint64) *byte {
	return (*byte)(unsafe.Pointer(uintptr(token)))
}

func udataToToken(p *byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(p)))
}
