// Command mobius submits tasks to Mobius workers and inspects the state
// they checkpoint.
//
// `submit` is the only command that executes work; all others are
// read-only.
//
// Usage:
//
//	mobius <command> [subcommand] [options] [args]
//
// Exit codes for `submit`:
//   - 0: task completed
//   - 1: task fault (the worker reported an exception)
//   - 2: worker crash, or submit could not start
//   - 3: input truncated
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/cite-sa/MobiusCore/cli/cmd"
	"github.com/cite-sa/MobiusCore/types"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// Only reached for errors exitErrHandler did not exit on.
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "mobius",
		Usage:          "Submit tasks to Mobius workers and inspect checkpointed state",
		Version:        fmt.Sprintf("%s (protocol %s, commit: %s)", types.Version, types.ProtocolVersion, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.SubmitCommand(),
			cmd.InspectCommand(),
			cmd.StatsCommand(),
			cmd.ListCommand(),
			cmd.DebugCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus maps err to a process exit code and the message to print.
// cli.Exit codes pass through, also when wrapped. Anything else exits 1.
func exitStatus(err error) (int, string) {
	var ec cli.ExitCoder
	if !errors.As(err, &ec) {
		return 1, "Error: " + err.Error()
	}
	return ec.ExitCode(), strings.TrimSpace(err.Error())
}
