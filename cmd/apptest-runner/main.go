// Command apptest-runner runs YAML UI test scripts against an Appium session.
package main

import "github.com/devicelab-dev/apptest-runner/pkg/cli"

func main() {
	cli.Execute()
}
