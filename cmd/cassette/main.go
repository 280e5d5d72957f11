// Command cassette is the CLI surface for the hybrid retrieval engine.
package main

import (
	"fmt"
	"os"

	"github.com/cassette-engine/cassette/cmd/cassette/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cmd.ExitCodeFor(err))
	}
}
