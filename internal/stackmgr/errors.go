package stackmgr

import "errors"

var (
	// ErrSizeTooLarge is returned when a requested or grown size would
	// exceed Tunables.MaxSize.
	ErrSizeTooLarge = errors.New("stackmgr: requested size exceeds maximum")
	// ErrSizeOverflow is returned when computing a mapping's total size
	// would overflow uintptr.
	ErrSizeOverflow = errors.New("stackmgr: size computation overflowed")
	// ErrNotLarger is returned by Grow when the requested size is not
	// strictly larger than the stack's current usable size.
	ErrNotLarger = errors.New("stackmgr: new size is not larger than current size")
	// ErrStackOverflow reports that a strand's guard page was hit; the
	// strand is terminated rather than grown. See FaultAddr and
	// IsGuardFault, and internal/sched's trampoline.
	ErrStackOverflow = errors.New("stackmgr: stack overflowed its guard page")
)
