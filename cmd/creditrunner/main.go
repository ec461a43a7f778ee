// Package main provides the creditrunner CLI entrypoint.
//
// Usage:
//
//	creditrunner run [options]
//	creditrunner wallet show --credentials <json>
//	creditrunner wallet watch --credentials <json>
//
// Exit codes: 0 once a run finishes or is cancelled, including runs with
// failed rows or fatal driver classifications; 1 on a configuration error
// or when the input, wallet, or tool entry cannot be set up.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecus-labs/creditrunner/cli/cmd"
)

// version is set via ldflags at build time.
var version = "dev"

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "creditrunner",
		Usage:          "Credit-aware job runner",
		Version:        fmt.Sprintf("%s (commit: %s)", version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.WalletCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// exitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch only covers errors urfave/cli raises itself, e.g. flag
		// parsing failures, which never wrap an ExitCoder.
		os.Exit(1)
	}
}

// exitErrHandler preserves the exit codes set via cli.Exit() instead of
// urfave/cli's default of always exiting 1.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
