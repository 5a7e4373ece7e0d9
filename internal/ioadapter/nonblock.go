package ioadapter

import (
	"sync"

	"golang.org/x/sys/unix"
)

// nonblockDone remembers, per descriptor, whether SetNonblock has already
// been applied and what it returned - the "process-wide idempotent setup"
// spec.md calls for, generalized from stdin/stdout specifically to any
// descriptor WriteLine or ReadLine is given, since tests exercise this
// package against socket pairs rather than the real standard streams.
var (
	nonblockMu   sync.Mutex
	nonblockDone = make(map[int]error)
)

func ensureNonblock(fd int) error {
	nonblockMu.Lock()
	defer nonblockMu.Unlock()
	if err, done := nonblockDone[fd]; done {
		return err
	}
	err := unix.SetNonblock(fd, true)
	nonblockDone[fd] = err
	return err
}
