// Package main provides the erldb CLI entrypoint.
//
// Usage:
//
//	erldb [global options] <command> [options] [args]
//
// Exit codes:
//   - 0: success
//   - 1: remote or query error
//   - 2: transport error (node unreachable, timeout)
//   - 3: usage or configuration error
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/PuffoTrillionarioGonePublic/erldb/cli/cmd"
	"github.com/PuffoTrillionarioGonePublic/erldb/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

const exitUsage = 3

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "erldb",
		Usage:          "Client for erldb nodes",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:          cmd.GlobalFlags(),
		Commands:       cmd.Commands(commit),
		ExitErrHandler: exitErrHandler,
		OnUsageError:   onUsageError,

		// --param values may contain commas.
		DisableSliceFlagSeparator: true,
	}
}

func onUsageError(_ *cli.Context, err error, _ bool) error {
	return cli.Exit(err.Error(), exitUsage)
}

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code := report(os.Stderr, err)
	os.Exit(code)
}

// report prints err to w and returns the exit code it maps to.
func report(w io.Writer, err error) int {
	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(w, msg)
		}
		return code
	}

	// Unexpected error - print and exit with code 1
	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
