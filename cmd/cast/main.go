// Command cast is the thin CLI entry point over the sync engine: parse
// flags, call into internal/cliapp, exit with the code the command chose.
package main

import (
	"fmt"
	"os"

	"github.com/castsync/cast/internal/cliapp"
)

func main() {
	cmd := cliapp.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cliapp.ExitCodeOf(err))
	}
}
