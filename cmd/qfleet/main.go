// Command qfleet rewrites SQL queries and validates the rewrites.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/qfleet/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
