// Package sched implements the cooperative scheduler: the ready queue, the
// blocked set, the single shared trampoline every strand's machine context
// starts at, and the dispatch loop that drives them all on one carrier
// goroutine.
//
// A Scheduler owns no goroutines of its own. Run occupies the calling
// goroutine entirely until every strand has completed; everything this
// package does - switching contexts, growing stacks, polling the reactor -
// happens synchronously on that one goroutine, which is what lets a
// Context's registers be trusted without any synchronization.
package sched

import (
	"fmt"
	"sync/atomic"

	"github.com/navicore/strand/internal/ctxswitch"
	"github.com/navicore/strand/internal/reactor"
	"github.com/navicore/strand/internal/readyqueue"
	"github.com/navicore/strand/internal/rtlog"
	"github.com/navicore/strand/internal/stackmgr"
)

// mainStrandID is always assigned to the first strand spawned on a fresh
// Scheduler. Run treats its completion specially: if it is also the last
// strand standing, its value stack becomes Run's return value.
const mainStrandID = 1

// Scheduler is one cooperative scheduler instance: a ready queue, a blocked
// set keyed by strand ID, and the stack and reactor tunables every strand
// it spawns shares.
//
// A Scheduler is not safe for concurrent use from multiple goroutines. Its
// entire value, including the strand it hands the shared trampoline
// through the package-level currentStrand variable, assumes one Run loop drives
// it at a time - this runtime's generalization of the process-wide
// singleton scheduler the design describes, kept instance-based so tests
// can run more than one without interfering with each other, as long as
// they don't run concurrently.
type Scheduler struct {
	tun       stackmgr.Tunables
	batchSize int

	ready   readyqueue.Queue[*Strand]
	blocked map[int64]*Strand
	current *Strand
	nextID  int64

	home    ctxswitch.Context
	reactor reactor.Reactor
}

// New creates a Scheduler and its I/O reactor. It also arms
// debug.SetPanicOnFault for the calling goroutine, since every strand this
// Scheduler ever runs, runs on it; see stackmgr.EnableFaultPanics.
func New(cfg Config) (*Scheduler, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	c, _ := cfg.(*config)
	batchSize := reactor.DefaultBatchSize
	if c != nil && c.batchSize > 0 {
		batchSize = c.batchSize
	}

	r, err := reactor.New()
	if err != nil {
		return nil, fmt.Errorf("sched: init reactor: %w", err)
	}

	stackmgr.EnableFaultPanics()

	return &Scheduler{
		tun:       tunablesOf(cfg),
		batchSize: batchSize,
		blocked:   make(map[int64]*Strand),
		nextID:    mainStrandID,
		reactor:   r,
	}, nil
}

// Spawn allocates a new strand running entry with the given initial value
// stack, and enqueues it as ready. It does not run the strand; that
// happens when Run's dispatch loop reaches it.
func (s *Scheduler) Spawn(entry EntryFunc, initial ValueStack) (*Strand, error) {
	if entry == nil {
		return nil, ErrNilEntry
	}

	st := &Strand{
		id:         s.nextID,
		state:      StateReady,
		entry:      entry,
		valueStack: initial,
		blockedFD:  -1,
		scheduler:  s,
	}
	s.nextID++

	stk, err := stackmgr.Allocate(s.tun.InitialSize, s.tun)
	if err != nil {
		return nil, fmt.Errorf("sched: allocate stack for strand %d: %w", st.id, err)
	}
	st.stack = stk

	ctxswitch.Init(&st.ctx, stk.Base(), stk.TotalSize(), ctxswitch.EntryFunc(trampoline))

	s.ready.Push(st)
	return st, nil
}

// currentStrand is the scheduling model's one piece of asynchronously-read
// state: which strand is presently executing. The dispatch loop stores it
// immediately before switching into a strand's context and clears it
// immediately after switching back; the shared trampoline reads it as its
// first action once it starts running on the newly resumed context. An
// atomic.Pointer rather than a plain package variable because this is
// exactly the value a real SIGSEGV handler would read asynchronously, per
// the design's concurrency model - even though this pure-Go runtime's
// actual guard-page handling (stackmgr.EnableFaultPanics) recovers
// synchronously on the same goroutine rather than from a real signal
// handler, matching the type to the documented contract costs nothing and
// keeps the seam honest if a future signal-based backend replaces it.
var currentStrand atomic.Pointer[Strand]

// trampoline is the single fixed entry point every strand's Context begins
// executing at. It identifies itself through currentStrand rather than
// through a closure capture, so that every Strand can share one EntryFunc
// value with ctxswitch.Init instead of allocating a distinct closure per
// strand - see ctxswitch's package doc for why that distinction matters to
// this package's contract with it.
//
// Accepted risk: st.entry runs with its stack pointer inside a
// stackmgr-owned mmap region, not inside the goroutine's own g.stack.lo/hi.
// The garbage collector's stack scanner only walks memory the runtime
// itself registered as a goroutine's stack, so a heap pointer reachable
// only from a local variable or callee-saved register that is live on this
// foreign stack across a Yield, BlockOnRead, or BlockOnWrite is invisible
// to it for as long as the strand stays suspended, and can be collected out
// from under it. There is no pure-Go way to register a second, foreign
// stack region as GC roots for an already-running goroutine the way
// runtime.Stack tracking works for ordinary goroutine growth, so this
// module does not attempt one - matching the honesty of the
// debug.SetPanicOnFault substitute in stackmgr.EnableFaultPanics, this is
// documented instead of silently assumed away.
//
// What this package itself guarantees: st.valueStack (the handoff at the
// top of st.entry and its return) and every pushed cleanup handler's
// argument (st.cleanup) are fields on the Strand struct, an ordinary heap
// object the scheduler keeps reachable, so both are scanned normally
// regardless of where the strand's SP points while parked -
// internal/ioadapter's own in-flight read/write buffers rely on exactly
// this by routing through PushCleanup/UpdateCleanupArg rather than a bare
// local. What it does not and cannot guarantee: an EntryFunc's own locals,
// including whatever live ValueStack value it threads through a chain of
// calls between suspension points, are outside this package's reach - the
// ValueStack interface is an opaque, embedder-owned value per spec.md §1,
// and an embedder whose concrete implementation is itself a persistent,
// independently-rooted structure (the natural shape for a real tagged-
// value stack backing a language runtime) is unaffected by this; one that
// allocates a fresh ValueStack value reachable only through a local held
// across a suspension point is not.
func trampoline() {
	st := currentStrand.Load()
	home := &st.scheduler.home

	defer func() {
		if r := recover(); r != nil {
			addr, isFault := stackmgr.FaultAddr(r)
			if !isFault || !stackmgr.IsGuardFault(st.stack, addr) {
				panic(r)
			}
			st.stack.MarkGuardHit()
			st.err = fmt.Errorf("strand %d: %w (fault at %#x)", st.id, stackmgr.ErrStackOverflow, addr)
			rtlog.Errorf("sched: strand %d overran its guard page at %#x; terminating the strand", st.id, addr)
		}
		st.state = StateCompleted
		ctxswitch.Switch(&st.ctx, home)
	}()

	st.valueStack = st.entry(st.valueStack)
}

// Yield suspends the currently running strand, re-queues it as ready, and
// returns control to the scheduler's dispatch loop. It returns
// ErrNoCurrentStrand if called outside a running strand.
func (s *Scheduler) Yield() error {
	st := s.current
	if st == nil {
		return ErrNoCurrentStrand
	}
	st.state = StateYielded
	s.ready.Push(st)
	s.current = nil
	ctxswitch.Switch(&st.ctx, &s.home)
	return nil
}

// BlockOnRead suspends the currently running strand until fd becomes
// readable.
func (s *Scheduler) BlockOnRead(fd int) error { return s.blockOn(fd, false) }

// BlockOnWrite suspends the currently running strand until fd becomes
// writable.
func (s *Scheduler) BlockOnWrite(fd int) error { return s.blockOn(fd, true) }

func (s *Scheduler) blockOn(fd int, write bool) error {
	if fd < 0 {
		return ErrNegativeFD
	}
	st := s.current
	if st == nil {
		return ErrNoCurrentStrand
	}

	var err error
	if write {
		st.state = StateBlockedWrite
		err = s.reactor.RegisterWrite(fd, uint64(st.id))
	} else {
		st.state = StateBlockedRead
		err = s.reactor.RegisterRead(fd, uint64(st.id))
	}
	if err != nil {
		st.state = StateRunning
		return fmt.Errorf("sched: register fd=%d for strand %d: %w", fd, st.id, err)
	}

	st.blockedFD = fd
	s.blocked[st.id] = st
	s.current = nil
	ctxswitch.Switch(&st.ctx, &s.home)
	st.blockedFD = -1
	return nil
}

// PushCleanup registers fn to run, with arg, when the current strand
// unwinds - in reverse order relative to other handlers it registers
// before completing.
func (s *Scheduler) PushCleanup(fn CleanupFunc, arg interface{}) error {
	if fn == nil {
		return ErrNilCleanup
	}
	st := s.current
	if st == nil {
		return ErrNoCurrentStrand
	}
	st.cleanup = append(st.cleanup, cleanupEntry{fn: fn, arg: arg})
	return nil
}

// PopCleanup removes the current strand's most recently registered cleanup
// handler without running it.
func (s *Scheduler) PopCleanup() error {
	st := s.current
	if st == nil {
		return ErrNoCurrentStrand
	}
	if len(st.cleanup) == 0 {
		return ErrEmptyCleanup
	}
	st.cleanup = st.cleanup[:len(st.cleanup)-1]
	return nil
}

// UpdateCleanupArg replaces the argument the current strand's most
// recently registered cleanup handler will be called with. Used when a
// handler's target changes shape mid-operation - a line buffer that grows,
// say - without needing to pop and re-push the handler itself.
func (s *Scheduler) UpdateCleanupArg(newArg interface{}) error {
	st := s.current
	if st == nil {
		return ErrNoCurrentStrand
	}
	if len(st.cleanup) == 0 {
		return ErrEmptyCleanup
	}
	st.cleanup[len(st.cleanup)-1].arg = newArg
	return nil
}

// Current returns the strand presently running on this Scheduler, or nil
// if none is (Run is idle between dispatch iterations, or hasn't started).
func (s *Scheduler) Current() *Strand { return s.current }

// Run drives the dispatch loop until every strand has completed: pop the
// ready queue, run a checkpoint growth check, switch in, and act on the
// state the strand left itself in when it suspended. When the ready queue
// empties but strands remain blocked, Run polls the reactor; when both are
// empty, Run returns.
//
// Its return value is the value stack the strand spawned with identifier 1
// left behind, if that strand was also the last one standing when it
// completed - matching the design's notion of a distinguished main strand.
// Any other ordering (main strand finishes early, other strands outlive
// it) yields a nil result, since there is no well-defined "the" final value
// stack in that case.
func (s *Scheduler) Run() (ValueStack, error) {
	for {
		st, ok := s.ready.Pop()
		if !ok {
			if len(s.blocked) == 0 {
				return nil, nil
			}
			if err := s.pollReactor(); err != nil {
				return nil, err
			}
			continue
		}

		st.state = StateRunning
		s.current = st

		if grown, did, err := stackmgr.CheckAndGrow(st.stack, &st.ctx, s.tun); err != nil {
			rtlog.Warnf("sched: checkpoint growth failed for strand %d: %v", st.id, err)
		} else if did {
			st.stack = grown
		}

		currentStrand.Store(st)
		ctxswitch.Switch(&s.home, &st.ctx)
		currentStrand.Store(nil)
		s.current = nil

		switch st.state {
		case StateCompleted:
			result := st.valueStack
			faultErr := st.err
			isMain := st.id == mainStrandID
			nothingElse := s.ready.Empty() && len(s.blocked) == 0
			s.teardown(st)
			if isMain && nothingElse {
				return result, faultErr
			}
		case StateYielded, StateBlockedRead, StateBlockedWrite:
			// Already re-queued (Yield) or registered with the
			// reactor and recorded in s.blocked (blockOn) before
			// it suspended itself.
		default:
			panic(fmt.Sprintf("sched: strand %d resumed into unexpected state %v", st.id, st.state))
		}
	}
}

func (s *Scheduler) pollReactor() error {
	events, err := s.reactor.Wait()
	if err != nil {
		return fmt.Errorf("sched: reactor wait: %w", err)
	}
	for _, ev := range events {
		id := int64(ev.Token)
		st, ok := s.blocked[id]
		if !ok {
			continue
		}
		delete(s.blocked, id)
		st.state = StateReady
		s.ready.Push(st)
	}
	return nil
}

// teardown runs st's cleanup handlers in LIFO order and frees its stack.
// Run calls it once a strand has reached StateCompleted, whether by
// returning normally or by being terminated after a guard page fault;
// Shutdown calls it for every strand still ready or blocked.
func (s *Scheduler) teardown(st *Strand) {
	for i := len(st.cleanup) - 1; i >= 0; i-- {
		entry := st.cleanup[i]
		entry.fn(entry.arg)
	}
	st.cleanup = nil
	st.stack.Free()
}

// Shutdown tears down every strand still ready or blocked, without running
// them further, and closes the reactor. Used to unwind a Scheduler whose
// Run loop exited early - a fatal reactor error, say - without leaking
// stacks or descriptors.
func (s *Scheduler) Shutdown() error {
	for {
		st, ok := s.ready.Pop()
		if !ok {
			break
		}
		s.teardown(st)
	}
	for id, st := range s.blocked {
		delete(s.blocked, id)
		s.teardown(st)
	}
	return s.reactor.Close()
}
