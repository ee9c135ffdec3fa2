// Command rulectl runs, validates and stores rule sets from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/liamcoop/ruleengine/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
