package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/navicore/strand"
	"github.com/navicore/strand/internal/sched"
)

// lineStack is the smallest ValueStack that satisfies both
// strand.ReadLine's and strand.WriteLine's string-in/string-out contract:
// a single register holding the line currently in flight.
type lineStack struct {
	line string
	has  bool
}

func (s *lineStack) PopString() (string, bool) {
	if !s.has {
		return "", false
	}
	s.has = false
	return s.line, true
}

func (s *lineStack) PushString(v string) {
	s.line = v
	s.has = true
}

// doEcho reads lines from stdin and writes each one back to stdout until a
// blank line arrives or stdin reaches EOF - this runtime's ReadLine
// intentionally does not distinguish "empty line" from "EOF with nothing
// read", so a tiny demo driver like this one treats both as "stop".
func doEcho(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("echo", flag.ContinueOnError)
	flags.SetOutput(stdErr)
	if err := flags.Parse(args); err != nil {
		return 1
	}

	if err := strand.Init(strand.NewConfig()); err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}
	defer func() { _ = strand.Shutdown() }()

	stdinFD := int(os.Stdin.Fd())
	stdoutFD := int(os.Stdout.Fd())

	_, err := strand.Spawn(func(vs sched.ValueStack) sched.ValueStack {
		for {
			buf := &lineStack{}
			out, rerr := strand.ReadLine(stdinFD, buf)
			if rerr != nil {
				return rerr
			}
			line, _ := out.(*lineStack).PopString()
			if line == "" {
				return nil
			}

			echoBuf := &lineStack{line: line, has: true}
			if _, werr := strand.WriteLine(stdoutFD, echoBuf); werr != nil {
				return werr
			}
		}
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
	return 0
}
