// Command redpiler simulates compiled redstone circuits.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/redpiler/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "redpiler:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
