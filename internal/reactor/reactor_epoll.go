//go:build linux

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// epollReactor backs Reactor with Linux epoll in one-shot, edge-triggered
// mode: EPOLLONESHOT disarms a descriptor the moment it fires, and EPOLLET
// avoids the level-triggered re-delivery that would otherwise wake the
// strand again before it has had a chance to retry its I/O.
type epollReactor struct {
	epfd int
}

// New opens a fresh OS event multiplexer for the current platform.
func New() (Reactor, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollReactor{epfd: fd}, nil
}

func (r *epollReactor) register(fd int, token uint64, events uint32) error {
	ev := unix.EpollEvent{
		Events: events | unix.EPOLLONESHOT | unix.EPOLLET,
	}
	packToken(&ev, token)

	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	if err != nil {
		err = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	}
	if err != nil {
		return fmt.Errorf("reactor: epoll_ctl fd=%d: %w", fd, err)
	}
	return nil
}

func (r *epollReactor) RegisterRead(fd int, token uint64) error {
	return r.register(fd, token, unix.EPOLLIN)
}

func (r *epollReactor) RegisterWrite(fd int, token uint64) error {
	return r.register(fd, token, unix.EPOLLOUT)
}

func (r *epollReactor) Wait() ([]Event, error) {
	raw := make([]unix.EpollEvent, DefaultBatchSize)
	for {
		n, err := unix.EpollWait(r.epfd, raw, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reactor: epoll_wait: %w", err)
		}

		events := make([]Event, 0, n)
		for _, ev := range raw[:n] {
			ready := Readiness(0)
			if ev.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				ready |= Read
			}
			if ev.Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				ready |= Write
			}
			events = append(events, Event{Token: unpackToken(&ev), Readiness: ready})
		}
		return events, nil
	}
}

func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}

// packToken/unpackToken stash the 64-bit strand token in the EpollEvent's
// Fd and Pad fields, which together occupy the same 8 bytes a union'd
// epoll_data_t would on the C side; Go's EpollEvent exposes them as two
// separate int32s instead of the union, so this package does the packing
// itself.
func packToken(ev *unix.EpollEvent, token uint64) {
	ev.Fd = int32(token)
	ev.Pad = int32(token >> 32)
}

func unpackToken(ev *unix.EpollEvent) uint64 {
	return uint64(uint32(ev.Fd)) | uint64(uint32(ev.Pad))<<32
}
