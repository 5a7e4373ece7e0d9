// Package stackmgr allocates, grows, and frees the per-strand machine
// stacks the context-switch package's Init and Switch run strand code on.
//
// Each stack is a single anonymous mmap with a PROT_NONE guard page at its
// low address, so growth can start small and only pay for what a strand
// actually uses, while an overrun still faults instead of silently
// corrupting an adjacent mapping.
//
// These mappings are never registered with the Go runtime as a goroutine
// stack - the scheduler's trampoline (internal/sched) repoints SP into one
// by hand. See that trampoline's doc comment for the garbage-collector
// visibility risk this carries and the constraint it puts on strand bodies.
package stackmgr

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/navicore/strand/internal/ctxswitch"
	"github.com/navicore/strand/internal/rtlog"
)

// Stack is the metadata and backing mapping for one strand's machine stack.
type Stack struct {
	mapping []byte // keeps the mmap'd region reachable until Free

	base       uintptr // low address of the mapping, guard page included
	usableBase uintptr // base + guardSize, first usable byte
	totalSize  uintptr
	usableSize uintptr
	guardSize  uintptr

	growthCount int
	guardHit    bool
}

var pageSize = uintptr(unix.Getpagesize())

func roundUpPage(n uintptr) uintptr {
	if rem := n % pageSize; rem != 0 {
		n += pageSize - rem
	}
	return n
}

// Base returns the low address of the mapping, including the guard page.
func (s *Stack) Base() uintptr { return s.base }

// UsableBase returns the first usable (non-guard) byte's address.
func (s *Stack) UsableBase() uintptr { return s.usableBase }

// UsableTop returns the address one past the last usable byte - the initial
// stack pointer for a freshly initialized context.
func (s *Stack) UsableTop() uintptr { return s.usableBase + s.usableSize }

// UsableSize returns the stack's current usable region size in bytes.
func (s *Stack) UsableSize() uintptr { return s.usableSize }

// GuardSize returns the size of the PROT_NONE page at the stack's low
// address.
func (s *Stack) GuardSize() uintptr { return s.guardSize }

// TotalSize returns the full size of the mapping, guard page included -
// what ctxswitch.Init expects as the stack region size.
func (s *Stack) TotalSize() uintptr { return s.totalSize }

// GrowthCount returns how many times this strand's stack has grown across
// its lifetime (growth replaces the Stack value but carries this forward).
func (s *Stack) GrowthCount() int { return s.growthCount }

// GuardHit reports whether this strand's guard page has ever trapped.
func (s *Stack) GuardHit() bool { return s.guardHit }

// Allocate reserves a fresh stack with the given usable size, rounded up to
// a page boundary, plus one guard page below it.
func Allocate(usableSize uintptr, tun Tunables) (*Stack, error) {
	return allocate(usableSize, tun)
}

func allocate(usableSize uintptr, tun Tunables) (*Stack, error) {
	if usableSize > tun.MaxSize {
		return nil, ErrSizeTooLarge
	}
	usableSize = roundUpPage(usableSize)
	if usableSize == 0 {
		usableSize = pageSize
	}

	total := usableSize + pageSize
	if total < usableSize {
		return nil, ErrSizeOverflow
	}

	data, err := unix.Mmap(-1, 0, int(total), unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("stackmgr: mmap: %w", err)
	}

	if err := unix.Mprotect(data[pageSize:], unix.PROT_READ|unix.PROT_WRITE); err != nil {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("stackmgr: mprotect: %w", err)
	}

	base := uintptr(unsafe.Pointer(&data[0]))
	return &Stack{
		mapping:    data,
		base:       base,
		usableBase: base + pageSize,
		totalSize:  total,
		usableSize: usableSize,
		guardSize:  pageSize,
	}, nil
}

// Free unmaps s's backing memory. A failure to unmap is logged, not
// returned: the metadata is released regardless, since holding onto it
// would only compound the leak with bookkeeping that can no longer do
// anything useful.
func (s *Stack) Free() {
	if s.mapping == nil {
		return
	}
	if err := unix.Munmap(s.mapping); err != nil {
		rtlog.Warnf("stackmgr: munmap %#x (%d bytes) failed: %v", s.base, s.totalSize, err)
	}
	s.mapping = nil
}

// Used returns how many bytes of the usable region lie between sp and the
// usable top, i.e. are in use by the strand (the stack grows downward). A corrupt sp - outside the usable region - is
// clamped to the full usable size, signaling the stack is as full as it can
// be rather than reporting a nonsensical negative or oversized count.
func (s *Stack) Used(sp uintptr) uintptr {
	top := s.UsableTop()
	if sp < s.usableBase || sp > top {
		return s.usableSize
	}
	return top - sp
}

// FreeBytes returns the usable space remaining below sp.
func (s *Stack) FreeBytes(sp uintptr) uintptr {
	return s.usableSize - s.Used(sp)
}

// CheckAndGrow runs one checkpoint: if s is low on free space or more than
// Tunables.GrowthThreshold full, it grows s to double its current usable
// size (bounded by Tunables.MaxSize) and fixes up ctx accordingly. It
// returns the stack to use going forward (s itself if no growth occurred)
// and whether growth occurred.
func CheckAndGrow(s *Stack, ctx *ctxswitch.Context, tun Tunables) (*Stack, bool, error) {
	sp := ctxswitch.CurrentSP(ctx)
	free := s.FreeBytes(sp)
	used := s.Used(sp)
	threshold := uintptr(float64(s.usableSize) * tun.GrowthThreshold)

	if free >= tun.MinFree && used <= threshold {
		return s, false, nil
	}

	target := s.usableSize * 2
	if target > tun.MaxSize {
		target = tun.MaxSize
	}
	if target <= s.usableSize {
		// Already at the ceiling; nothing more this checkpoint can do.
		return s, false, nil
	}

	grown, err := Grow(s, ctx, target, tun)
	if err != nil {
		return s, false, err
	}
	return grown, true, nil
}

// Grow replaces old with a new stack of at least newSize usable bytes,
// copying the in-use region across and fixing up ctx's stack pointer, frame
// pointer, and (on x86-64) the saved frame-pointer chain to refer to the
// new memory; saved return addresses are left unchanged (see
// ctxswitch.Relocate). old is unmapped on success.
//
// A corrupt stack pointer - more bytes "in use" than the stack's entire
// usable size - is a programmer error with no safe continuation, so Grow
// panics rather than returning an error for it; the caller is expected to
// let this terminate the process, matching the immediate-abort semantics
// the corruption case calls for everywhere else in this package.
func Grow(old *Stack, ctx *ctxswitch.Context, newSize uintptr, tun Tunables) (*Stack, error) {
	if newSize <= old.usableSize {
		return nil, ErrNotLarger
	}
	if newSize > tun.MaxSize {
		return nil, ErrSizeTooLarge
	}

	oldTop := old.UsableTop()
	oldSP := ctxswitch.CurrentSP(ctx)
	usedBytes := oldTop - oldSP
	if oldSP > oldTop || usedBytes > old.usableSize {
		panic(fmt.Sprintf("stackmgr: corrupt stack pointer %#x (usable top %#x)", oldSP, oldTop))
	}

	newStack, err := allocate(newSize, tun)
	if err != nil {
		return nil, err
	}

	newTop := newStack.UsableTop()
	newSP := newTop - usedBytes

	if usedBytes > 0 {
		oldRegion := unsafe.Slice((*byte)(unsafe.Pointer(oldSP)), int(usedBytes))
		newRegion := unsafe.Slice((*byte)(unsafe.Pointer(newSP)), int(usedBytes))
		copy(newRegion, oldRegion)
	}

	ctxswitch.Relocate(ctx, old.usableBase, oldTop, newStack.usableBase, newTop)

	newStack.growthCount = old.growthCount + 1
	old.Free()

	return newStack, nil
}
