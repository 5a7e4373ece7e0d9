package sched

import (
	"github.com/navicore/strand/internal/reactor"
	"github.com/navicore/strand/internal/stackmgr"
)

// Config configures a Scheduler before it is created. Each With method
// returns a new Config rather than mutating the receiver, so a base
// configuration can be shared and specialized without the specializations
// interfering with each other.
type Config interface {
	// WithInitialStackSize sets the usable size a freshly spawned
	// strand's stack starts at.
	WithInitialStackSize(size uintptr) Config
	// WithMaxStackSize sets the usable-size ceiling no strand's stack
	// may grow past.
	WithMaxStackSize(size uintptr) Config
	// WithMinFreeStack sets the free-space floor that triggers proactive
	// growth at the top of every resume.
	WithMinFreeStack(size uintptr) Config
	// WithGrowthThreshold sets the fraction of usable stack size, once
	// exceeded by bytes in use, that also triggers proactive growth.
	WithGrowthThreshold(fraction float64) Config
	// WithBatchSize records a reactor batch size on the Scheduler. The
	// reactor backends do not read it: a single Wait call returns at most
	// reactor.DefaultBatchSize events whatever this is set to.
	WithBatchSize(n int) Config
}

type config struct {
	tun       stackmgr.Tunables
	batchSize int
}

// NewConfig returns a Config seeded with this runtime's default tunables.
func NewConfig() Config {
	return &config{
		tun:       stackmgr.DefaultTunables(),
		batchSize: reactor.DefaultBatchSize,
	}
}

func (c *config) clone() *config {
	cp := *c
	return &cp
}

func (c *config) WithInitialStackSize(size uintptr) Config {
	cp := c.clone()
	cp.tun.InitialSize = size
	return cp
}

func (c *config) WithMaxStackSize(size uintptr) Config {
	cp := c.clone()
	cp.tun.MaxSize = size
	return cp
}

func (c *config) WithMinFreeStack(size uintptr) Config {
	cp := c.clone()
	cp.tun.MinFree = size
	return cp
}

func (c *config) WithGrowthThreshold(fraction float64) Config {
	cp := c.clone()
	cp.tun.GrowthThreshold = fraction
	return cp
}

func (c *config) WithBatchSize(n int) Config {
	cp := c.clone()
	cp.batchSize = n
	return cp
}

func tunablesOf(cfg Config) stackmgr.Tunables {
	if c, ok := cfg.(*config); ok && c != nil {
		return c.tun
	}
	return stackmgr.DefaultTunables()
}
