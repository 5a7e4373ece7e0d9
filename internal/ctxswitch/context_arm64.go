//go:build arm64

package ctxswitch

// Context holds the callee-saved ARM64 register state switchArch needs to
// suspend and resume a strand: x19-x27, the frame pointer (x29), the link
// register (x30), the stack pointer, and the eight callee-saved
// floating-point registers d8-d15, per spec. Field order and size are
// load-bearing — context_arm64.s indexes into this struct by literal byte
// offset.
//
// x28 is deliberately excluded from the callee-saved set this package
// actively swaps even though AAPCS64 numbers it among x19-x28: the Go
// runtime reserves x28 as the current goroutine pointer (g), and this
// package's Switch runs within a single goroutine, manually repointing the
// hardware stack pointer without ever creating a new g. Touching x28 here
// would momentarily present the runtime with a stale g during the handful
// of instructions between save and restore. See DESIGN.md's note on x28.
//
// Layout (must stay in sync with context_arm64.s):
//
//	0   sp
//	8   fp (x29)
//	16  lr (x30)
//	24  x19
//	32  x20
//	40  x21
//	48  x22
//	56  x23
//	64  x24
//	72  x25
//	80  x26
//	88  x27
//	96  d8
//	104 d9
//	112 d10
//	120 d11
//	128 d12
//	136 d13
//	144 d14
//	152 d15
type Context struct {
	sp  uintptr
	fp  uintptr
	lr  uintptr
	x19 uintptr
	x20 uintptr
	x21 uintptr
	x22 uintptr
	x23 uintptr
	x24 uintptr
	x25 uintptr
	x26 uintptr
	x27 uintptr
	d8  uint64
	d9  uint64
	d10 uint64
	d11 uint64
	d12 uint64
	d13 uint64
	d14 uint64
	d15 uint64
}

func stackAlign16(addr uintptr) uintptr {
	return addr &^ uintptr(15)
}

// initArch arranges ctx so that switchArch's restore half lands directly on
// entryPC: ARM64 keeps return addresses in the link register rather than on
// the stack, so unlike the x86-64 half of this package, no stack slot needs
// to be reserved or fixed up on growth.
func initArch(ctx *Context, stackLow, stackSize, entryPC uintptr) {
	top := stackAlign16(stackLow + stackSize)

	*ctx = Context{}
	ctx.sp = top
	ctx.fp = top
	ctx.lr = entryPC
}

// switchArch is implemented in context_arm64.s.
func switchArch(save, restore *Context)

// savedSP exposes the saved stack pointer for alignment tests.
func savedSP(c *Context) uintptr { return c.sp }

// CurrentSP returns ctx's saved stack pointer. Exported for the stack
// manager's growth arithmetic, which needs it to compute how much of the
// old stack is in use.
func CurrentSP(ctx *Context) uintptr { return ctx.sp }

// Relocate adapts ctx after the stack memory backing it has been copied
// verbatim from [oldBase, oldTop) to [newBase, newTop). Only sp and fp live
// in the copied memory's address space and need translation; lr holds a
// return address in the program's text segment, which doesn't move when the
// stack does, so it is left untouched. Unlike the x86-64 half of this
// package, there is no stack-resident return-address chain to walk.
func Relocate(ctx *Context, oldBase, oldTop, newBase, newTop uintptr) {
	delta := newTop - oldTop
	translate := func(p uintptr) uintptr {
		if p == 0 || p < oldBase || p > oldTop {
			return p
		}
		return p + delta
	}
	ctx.sp = translate(ctx.sp)
	ctx.fp = translate(ctx.fp)
}
