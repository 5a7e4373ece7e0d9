package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/navicore/strand"
	"github.com/navicore/strand/internal/sched"
)

// doPingPong spawns two strands that yield back and forth, printing as
// they go, to demonstrate FIFO ready-queue ordering end to end.
func doPingPong(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("pingpong", flag.ContinueOnError)
	flags.SetOutput(stdErr)
	rounds := flags.Int("rounds", 5, "Number of ping/pong round trips.")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	if err := strand.Init(strand.NewConfig()); err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}
	defer func() { _ = strand.Shutdown() }()

	_, err := strand.Spawn(func(vs sched.ValueStack) sched.ValueStack {
		for i := 0; i < *rounds; i++ {
			fmt.Fprintf(stdOut, "ping %d\n", i)
			if err := strand.Yield(); err != nil {
				return err
			}
		}
		return nil
	}, nil)
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}

	_, err = strand.Spawn(func(vs sched.ValueStack) sched.ValueStack {
		for i := 0; i < *rounds; i++ {
			fmt.Fprintf(stdOut, "pong %d\n", i)
			if err := strand.Yield(); err != nil {
				return err
			}
		}
		return nil
	}, nil)
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}

	if result, err := strand.Run(); err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	} else if errVal, ok := result.(error); ok && errVal != nil {
		fmt.Fprintln(stdErr, errVal)
		return 1
	}
	return 0
}
