package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/navicore/strand"
	"github.com/navicore/strand/internal/sched"
)

// doGrowStack spawns a single strand that recurses deep enough, yielding
// at each level, to force repeated checkpoint-triggered stack growth - a
// visible demonstration of the growth path that pingpong and echo never
// touch.
func doGrowStack(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("growstack", flag.ContinueOnError)
	flags.SetOutput(stdErr)
	depth := flags.Int("depth", 2000, "Recursion depth to reach, yielding at each level.")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	cfg := strand.NewConfig().
		WithInitialStackSize(4 * 1024).
		WithMaxStackSize(8 * 1024 * 1024)
	if err := strand.Init(cfg); err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}
	defer func() { _ = strand.Shutdown() }()

	var recurse func(n int) error
	recurse = func(n int) error {
		var pad [256]byte
		pad[0] = byte(n)
		if n <= 0 {
			return nil
		}
		if err := strand.Yield(); err != nil {
			return err
		}
		return recurse(n - 1)
	}

	_, err := strand.Spawn(func(vs sched.ValueStack) sched.ValueStack {
		if rerr := recurse(*depth); rerr != nil {
			return rerr
		}
		return *depth
	}, nil)
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}

	result, err := strand.Run()
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}
	if errVal, ok := result.(error); ok && errVal != nil {
		fmt.Fprintln(stdErr, errVal)
		return 1
	}
	fmt.Fprintf(stdOut, "reached depth %v without tripping the guard page\n", result)
	return 0
}
