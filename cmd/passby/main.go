// Command passby runs the encounter and relationship backend.
package main

import (
	"fmt"
	"os"

	"github.com/and161185/passby/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "passby:", err)
		os.Exit(1)
	}
}
