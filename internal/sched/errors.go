package sched

import "errors"

var (
	// ErrNoCurrentStrand is returned by any operation that only makes
	// sense called from within a running strand (Yield, BlockOnRead,
	// BlockOnWrite, the cleanup stack operations) when no strand is
	// currently running on the calling goroutine.
	ErrNoCurrentStrand = errors.New("sched: no strand is currently running")
	// ErrNilEntry is returned by Spawn when given a nil entry function.
	ErrNilEntry = errors.New("sched: entry function must not be nil")
	// ErrNegativeFD is returned by BlockOnRead/BlockOnWrite for a
	// negative descriptor.
	ErrNegativeFD = errors.New("sched: descriptor must not be negative")
	// ErrEmptyCleanup is returned by PopCleanup and UpdateCleanupArg when
	// the current strand has no cleanup handlers registered.
	ErrEmptyCleanup = errors.New("sched: cleanup stack is empty")
	// ErrNilCleanup is returned by PushCleanup when given a nil function.
	ErrNilCleanup = errors.New("sched: cleanup function must not be nil")
)
