// Command travelrelay relays travel check-ins into chat channels.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/travelrelay/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
