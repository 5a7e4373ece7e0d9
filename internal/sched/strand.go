package sched

import (
	"github.com/navicore/strand/internal/ctxswitch"
	"github.com/navicore/strand/internal/stackmgr"
)

// State is a strand's position in the scheduler's lifecycle.
type State int

const (
	// StateReady means the strand is sitting in the ready queue, waiting
	// for its turn.
	StateReady State = iota
	// StateRunning means the strand is the one currently executing on
	// the carrier goroutine.
	StateRunning
	// StateYielded is the state a strand is in after calling Yield: it
	// sits at the tail of the ready queue in this state until the
	// dispatch loop resumes it.
	StateYielded
	// StateBlockedRead means the strand is waiting on a descriptor to
	// become readable.
	StateBlockedRead
	// StateBlockedWrite means the strand is waiting on a descriptor to
	// become writable.
	StateBlockedWrite
	// StateCompleted means the strand's entry function has returned, or
	// it was terminated by an unrecoverable fault.
	StateCompleted
)

// String names a State the way log lines and error messages want it.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateYielded:
		return "yielded"
	case StateBlockedRead:
		return "blocked-read"
	case StateBlockedWrite:
		return "blocked-write"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ValueStack is the opaque per-strand payload the scheduler carries between
// suspensions but never inspects. Callers that need to act on it - line
// I/O, say - define their own narrower interface and type-assert.
type ValueStack = interface{}

// EntryFunc is a strand's body: it receives the value stack it was spawned
// with and returns the value stack left behind when it completes.
type EntryFunc func(ValueStack) ValueStack

// CleanupFunc runs when a strand unwinds, in reverse order of registration,
// regardless of whether it completed normally or was torn down by the
// scheduler. arg is whatever was registered alongside it, and may be
// updated in place by UpdateCleanupArg between registration and unwind.
type CleanupFunc func(arg interface{})

type cleanupEntry struct {
	fn  CleanupFunc
	arg interface{}
}

// Strand is one green thread: a machine stack, a saved register context,
// an entry function and its value stack, and the cleanup handlers it has
// registered. Callers outside this package only ever see a *Strand as an
// opaque handle returned by Scheduler.Spawn.
type Strand struct {
	id         int64
	state      State
	ctx        ctxswitch.Context
	stack      *stackmgr.Stack
	entry      EntryFunc
	valueStack ValueStack
	cleanup    []cleanupEntry
	blockedFD  int
	err        error
	scheduler  *Scheduler
}

// ID returns the strand's scheduler-assigned identifier. Identifier 1 is
// always the first strand spawned on a Scheduler; see Scheduler.Run.
func (st *Strand) ID() int64 { return st.id }

// State returns the strand's current lifecycle state.
func (st *Strand) State() State { return st.state }

// Err returns the fault that terminated the strand, if it was torn down by
// a guard page trap rather than completing normally.
func (st *Strand) Err() error { return st.err }
