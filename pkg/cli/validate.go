package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/apptest-runner/pkg/script"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check a test script and its step files without a device",
	ArgsUsage: "<script.yaml>",
	Action:    validateScript,
}

func validateScript(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one script file is required", 2)
	}
	path := c.Args().First()
	out := newPrinter(c.App.Writer)

	s, steps, err := script.Expand(path)
	if err != nil {
		fmt.Fprintf(c.App.Writer, "  %s %s\n", out.red("✗"), path)
		return cli.Exit(err.Error(), 1)
	}

	fmt.Fprintf(c.App.Writer, "  %s %s: %d steps (%d after includes)\n",
		out.green("✓"), s.DisplayName(), len(s.Steps), len(steps))
	for i, step := range steps {
		file, line := step.Origin()
		fmt.Fprintf(c.App.Writer, "    %d. %s %s\n", i+1, step.Describe(), out.gray(fmt.Sprintf("(%s:%d)", file, line)))
	}
	return nil
}
