//go:build amd64

package ctxswitch

import "unsafe"

// Context holds the callee-saved x86-64 register state switchArch needs to
// suspend and resume a strand: rbx, rbp, r12-r15, the stack pointer, and the
// SSE/x87 control words, per spec. Field order and size are load-bearing —
// context_amd64.s indexes into this struct by literal byte offset, since Go
// assembly has no access to the Go type system.
//
// Layout (must stay in sync with context_amd64.s):
//
//	0   rsp
//	8   rbx
//	16  rbp
//	24  r12
//	32  r13
//	40  r14
//	48  r15
//	56  mxcsr (SSE control/status, 32 bits)
//	60  fcw   (x87 control word, 16 bits)
//	62  _     (padding)
type Context struct {
	rsp   uintptr
	rbx   uintptr
	rbp   uintptr
	r12   uintptr
	r13   uintptr
	r14   uintptr
	r15   uintptr
	mxcsr uint32
	fcw   uint16
	_     uint16
}

// stackAlign16 rounds addr down to the nearest 16-byte boundary.
func stackAlign16(addr uintptr) uintptr {
	return addr &^ uintptr(15)
}

// initArch lays out a fresh stack frame so that switchArch's restore half,
// ending in a RET, transfers control to entryPC as if entryPC had just been
// called: immediately after the call instruction's implicit push, the SysV
// ABI guarantees rsp%16 == 8. To reproduce that from a bare RET (which pops
// 8 bytes and jumps), the slot holding entryPC must itself sit at an
// address congruent to 0 mod 16, so that rsp is slot+8 once RET has popped
// it.
//
// The slot is placed 16 bytes below the aligned top rather than 8: the
// topmost 16-byte-aligned slot would sit exactly at the aligned top, which
// is one-past-the-end of the usable region, and the slot 8 bytes below it
// is only 8-byte aligned, so the slot is reserved one 16-byte unit lower
// instead.
func initArch(ctx *Context, stackLow, stackSize, entryPC uintptr) {
	top := stackAlign16(stackLow + stackSize)
	slot := top - 16
	*(*uintptr)(unsafe.Pointer(slot)) = entryPC

	*ctx = Context{}
	ctx.rsp = slot
	ctx.mxcsr = defaultMXCSR
	ctx.fcw = defaultFCW
}

const (
	// defaultMXCSR masks all SSE floating-point exceptions, matching the
	// hardware reset state and Go's own runtime convention.
	defaultMXCSR = 0x1f80
	// defaultFCW is the standard x87 control word: round-to-nearest,
	// 64-bit extended precision, all exceptions masked.
	defaultFCW = 0x037f
)

// switchArch is implemented in context_amd64.s. It saves rsp and the
// callee-saved registers into save, then restores restore's registers and
// resumes there.
func switchArch(save, restore *Context)

// savedSP exposes the saved stack pointer for alignment tests.
func savedSP(c *Context) uintptr { return c.rsp }

// CurrentSP returns ctx's saved stack pointer. Exported for the stack
// manager's growth arithmetic, which needs it to compute how much of the
// old stack is in use.
func CurrentSP(ctx *Context) uintptr { return ctx.rsp }

// maxRelocateFrames bounds the frame-pointer walk in Relocate so a corrupted
// or non-frame-pointer chain can't spin the growth path forever.
const maxRelocateFrames = 4096

// Relocate adapts ctx after the stack memory backing it has been copied
// verbatim from [oldBase, oldTop) to [newBase, newTop) (same length, new
// base address). rsp and rbp are translated by preserving their offset from
// the top of the region.
//
// x86-64 additionally keeps a frame-pointer chain on the stack, so Relocate
// walks it starting at the translated rbp and adjusts each frame's saved
// previous-frame-pointer slot - a stack address, which moves with the stack
// - to match. It deliberately leaves each frame's saved return address
// alone: a return address is a code pointer into the text segment, which
// does not move when the stack does, and Go maintains this frame-pointer
// chain on amd64 by default, so a live strand calling back up through it
// depends on those return addresses staying exactly as the compiler left
// them. The walk stops the instant anything looks off - a null previous
// frame, a misaligned or out-of-range pointer, or a non-monotonic chain -
// rather than risk corrupting memory it doesn't understand.
func Relocate(ctx *Context, oldBase, oldTop, newBase, newTop uintptr) {
	delta := newTop - oldTop
	translate := func(p uintptr) uintptr {
		if p == 0 || p < oldBase || p > oldTop {
			return p
		}
		return p + delta
	}

	ctx.rsp = translate(ctx.rsp)

	inOld := ctx.rbp >= oldBase && ctx.rbp <= oldTop
	ctx.rbp = translate(ctx.rbp)
	if !inOld {
		return
	}

	cur := ctx.rbp
	for i := 0; i < maxRelocateFrames; i++ {
		if cur == 0 || cur%8 != 0 || cur < newBase || cur+16 > newTop {
			return
		}
		savedFPPtr := (*uintptr)(unsafe.Pointer(cur))

		savedFP := *savedFPPtr
		if savedFP == 0 {
			return
		}
		newFP := translate(savedFP)
		if newFP <= cur {
			return
		}
		*savedFPPtr = newFP
		cur = newFP
	}
}
