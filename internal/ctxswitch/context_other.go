//go:build !amd64 && !arm64

package ctxswitch

import "runtime"

// Context is a stand-in on unsupported architectures; per spec this runtime
// targets 64-bit Unix on amd64 or arm64 only.
type Context struct{}

func initArch(ctx *Context, stackLow, stackSize, entryPC uintptr) {
	panic("ctxswitch: unsupported GOARCH " + runtime.GOARCH)
}

func switchArch(save, restore *Context) {
	panic("ctxswitch: unsupported GOARCH " + runtime.GOARCH)
}

func savedSP(c *Context) uintptr {
	panic("ctxswitch: unsupported GOARCH " + runtime.GOARCH)
}

// Relocate panics on unsupported architectures; see context_amd64.go and
// context_arm64.go for the real implementations.
func Relocate(ctx *Context, oldBase, oldTop, newBase, newTop uintptr) {
	panic("ctxswitch: unsupported GOARCH " + runtime.GOARCH)
}

// CurrentSP panics on unsupported architectures; see context_amd64.go and
// context_arm64.go for the real implementations.
func CurrentSP(ctx *Context) uintptr {
	panic("ctxswitch: unsupported GOARCH " + runtime.GOARCH)
}
