package stackmgr

import "runtime/debug"

// IsGuardFault reports whether addr falls inside s's guard page - the
// PROT_NONE region immediately below its usable stack.
func IsGuardFault(s *Stack, addr uintptr) bool {
	return addr >= s.base && addr < s.usableBase
}

// MarkGuardHit records that s's guard page has trapped at least once.
// Exposed as a method rather than folded into IsGuardFault so the caller
// controls exactly when the flag flips relative to its own recovery logic.
func (s *Stack) MarkGuardHit() { s.guardHit = true }

// faultAddress is the interface the Go runtime's recoverable segmentation
// fault errors implement: when debug.SetPanicOnFault converts a hardware
// fault into a panic, the recovered value carries the faulting address
// behind this accessor.
type faultAddress interface {
	Addr() uintptr
}

// FaultAddr extracts the faulting address from a value recovered from a
// panic, if that value is one of the runtime's own fault errors. It returns
// false for any other panic value, including ordinary application panics,
// so callers can tell "this was a memory fault we might be able to handle"
// from "this is someone else's panic and must be re-raised unchanged". The
// scheduler's shared trampoline is the one caller: it recovers, calls
// FaultAddr and IsGuardFault to decide whether the panic was its own
// strand overrunning its guard page, and terminates just that strand if
// so, re-panicking anything else.
func FaultAddr(recovered interface{}) (uintptr, bool) {
	if fa, ok := recovered.(faultAddress); ok {
		return fa.Addr(), true
	}
	return 0, false
}

// EnableFaultPanics turns on debug.SetPanicOnFault for the calling
// goroutine. sched.New calls this once when it creates a Scheduler, before
// running any strand.
//
// This is this runtime's honest substitute for the signal-handler-based
// emergency growth a C implementation of the same design would install:
// genuine SA_SIGINFO handling that inspects siginfo_t, grows the stack, and
// resumes execution at the faulting instruction requires manipulating a
// ucontext_t the Go runtime does not expose to pure Go code, and installing
// a raw machine-code signal handler from within a cgo-free binary isn't
// something this package attempts. debug.SetPanicOnFault instead converts
// the hardware fault into a normal, recoverable Go panic in the faulting
// goroutine - which is enough to turn "the process dies silently" into "the
// strand that overran its stack fails cleanly and the scheduler keeps
// running everything else" (see internal/sched's trampoline), but it
// cannot retry the faulting instruction in place. Checkpoint-based growth
// (CheckAndGrow,
// run before every resume) is this runtime's real defense against guard
// page faults; the guard page itself is a backstop against heuristics that
// guessed wrong, not the primary growth mechanism.
func EnableFaultPanics() {
	debug.SetPanicOnFault(true)
}
