package main

import (
	"bytes"
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func runMain(t *testing.T, args []string) (int, string, string) {
	t.Helper()
	oldArgs := os.Args
	oldCommandLine := flag.CommandLine
	t.Cleanup(func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	})
	os.Args = append([]string{"strandrun"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	stdOut := &bytes.Buffer{}
	stdErr := &bytes.Buffer{}
	exitCode := doMain(stdOut, stdErr)
	return exitCode, stdOut.String(), stdErr.String()
}

func TestHelp(t *testing.T) {
	exitCode, _, stdErr := runMain(t, []string{"-h"})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdErr, "strandrun runs canned workloads")
}

func TestInvalidCommand(t *testing.T) {
	exitCode, _, stdErr := runMain(t, []string{"bogus"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdErr, `invalid command "bogus"`)
}

func TestPingPong(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, []string{"pingpong", "-rounds=3"})
	require.Equal(t, 0, exitCode)
	require.Empty(t, stdErr)
	require.Contains(t, stdOut, "ping 0\n")
	require.Contains(t, stdOut, "pong 2\n")
}

func TestGrowStack(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, []string{"growstack", "-depth=500"})
	require.Equal(t, 0, exitCode)
	require.Empty(t, stdErr)
	require.Contains(t, stdOut, "reached depth 500")
}
