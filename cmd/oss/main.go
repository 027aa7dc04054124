// Command oss runs the scheduler simulation.
package main

import (
	"fmt"
	"os"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "oss:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
