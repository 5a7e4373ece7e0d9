// Package strand is the embedding façade for the cooperative green-thread
// runtime: a process-wide scheduler exposed as bare package functions, the
// way a language runtime's generated code would call into it, rather than
// as methods threaded through every call site.
//
// Init must run before any other function in this package. Run occupies
// the calling goroutine until every strand completes.
package strand

import (
	"fmt"
	"sync"

	"github.com/navicore/strand/internal/ioadapter"
	"github.com/navicore/strand/internal/sched"
)

// ValueStack is the opaque per-strand payload this package's functions
// carry between suspensions. A real embedder supplies its own
// implementation carrying a tagged-value stack; this package never
// inspects it beyond handing it back and forth.
type ValueStack = sched.ValueStack

// EntryFunc is a strand's body.
type EntryFunc = sched.EntryFunc

// CleanupFunc runs during a strand's teardown; see PushCleanup.
type CleanupFunc = sched.CleanupFunc

// Config configures the scheduler Init creates. See NewConfig.
type Config = sched.Config

// NewConfig returns a Config seeded with this runtime's default tunables.
func NewConfig() Config { return sched.NewConfig() }

var (
	mu  sync.Mutex
	run *sched.Scheduler
)

// Init creates the process-wide scheduler. It must be called exactly once
// before Spawn, Run, or any suspension primitive.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	if run != nil {
		return fmt.Errorf("strand: already initialized")
	}
	s, err := sched.New(cfg)
	if err != nil {
		return err
	}
	run = s
	return nil
}

func current() (*sched.Scheduler, error) {
	mu.Lock()
	s := run
	mu.Unlock()
	if s == nil {
		return nil, fmt.Errorf("strand: Init has not been called")
	}
	return s, nil
}

// Shutdown tears down every strand still pending and releases the
// scheduler's reactor. After Shutdown, Init may be called again.
func Shutdown() error {
	mu.Lock()
	s := run
	run = nil
	mu.Unlock()
	if s == nil {
		return fmt.Errorf("strand: Init has not been called")
	}
	return s.Shutdown()
}

// Spawn creates a new strand running entry with the given initial value
// stack. The first strand spawned after Init is the designated main
// strand: its final value stack becomes Run's result, provided it is also
// the last strand to complete.
func Spawn(entry EntryFunc, initial ValueStack) (*sched.Strand, error) {
	s, err := current()
	if err != nil {
		return nil, err
	}
	return s.Spawn(entry, initial)
}

// Yield suspends the calling strand and re-queues it at the tail of the
// ready queue.
func Yield() error {
	s, err := current()
	if err != nil {
		return err
	}
	return s.Yield()
}

// TestYield is a value-stack-shaped wrapper over Yield, for generated code
// that emits cooperative checkpoints inline with other value-stack
// operations rather than as a bare control-flow call.
func TestYield(vs ValueStack) (ValueStack, error) {
	if err := Yield(); err != nil {
		return vs, err
	}
	return vs, nil
}

// BlockOnRead suspends the calling strand until fd becomes readable.
func BlockOnRead(fd int) error {
	s, err := current()
	if err != nil {
		return err
	}
	return s.BlockOnRead(fd)
}

// BlockOnWrite suspends the calling strand until fd becomes writable.
func BlockOnWrite(fd int) error {
	s, err := current()
	if err != nil {
		return err
	}
	return s.BlockOnWrite(fd)
}

// PushCleanup registers fn to run, with arg, when the calling strand
// unwinds.
func PushCleanup(fn CleanupFunc, arg interface{}) error {
	s, err := current()
	if err != nil {
		return err
	}
	return s.PushCleanup(fn, arg)
}

// PopCleanup removes the calling strand's most recently registered cleanup
// handler without running it.
func PopCleanup() error {
	s, err := current()
	if err != nil {
		return err
	}
	return s.PopCleanup()
}

// UpdateCleanupArg replaces the argument the calling strand's most
// recently registered cleanup handler will be called with.
func UpdateCleanupArg(newArg interface{}) error {
	s, err := current()
	if err != nil {
		return err
	}
	return s.UpdateCleanupArg(newArg)
}

// Run drives the scheduler until every strand has completed. See
// sched.Scheduler.Run for the result's semantics.
func Run() (ValueStack, error) {
	s, err := current()
	if err != nil {
		return nil, err
	}
	return s.Run()
}

// WriteLine pops one string off vs, writes it to fd followed by a newline,
// and returns vs, suspending the calling strand on EAGAIN until fd is
// writable.
func WriteLine(fd int, vs ioadapter.ValueStack) (ioadapter.ValueStack, error) {
	s, err := current()
	if err != nil {
		return vs, err
	}
	return ioadapter.WriteLine(s, fd, vs)
}

// ReadLine reads from fd until a newline or EOF, pushes the resulting line
// onto vs, and returns vs, suspending the calling strand on EAGAIN until
// fd is readable.
func ReadLine(fd int, vs ioadapter.ValueStack) (ioadapter.ValueStack, error) {
	s, err := current()
	if err != nil {
		return vs, err
	}
	return ioadapter.ReadLine(s, fd, vs)
}
