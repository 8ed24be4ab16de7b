// Package cli provides the command-line interface for apptest-runner.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"APPTEST_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the CLI application writing to stdout and stderr.
func NewApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:    "apptest-runner",
		Usage:   "Run YAML UI test scripts against a mobile app through Appium",
		Version: Version,
		Description: `apptest-runner executes YAML test scripts step by step against an
Appium session and writes a Markdown and JSON report per run.

Examples:
  apptest-runner run login.yaml
  apptest-runner run login.yaml --platform ios --caps caps.json
  apptest-runner run login.yaml -e USER=test --stop-on-failure
  apptest-runner validate login.yaml`,
		Flags:     GlobalFlags,
		Writer:    stdout,
		ErrWriter: stderr,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				color.NoColor = true
			}
			return nil
		},
		Commands: []*cli.Command{
			runCommand,
			validateCommand,
		},
		// Exit codes are handled by Execute so that Run never calls os.Exit.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// Execute runs the CLI.
func Execute() {
	app := NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(os.Stderr, "Error: %v\n", msg)
		}
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return 1
}

// lineageBool reads a flag from the command or, for global flags, its parents.
func lineageBool(c *cli.Context, name string) bool {
	for _, ctx := range c.Lineage() {
		if ctx != nil && ctx.IsSet(name) {
			return ctx.Bool(name)
		}
	}
	return false
}
