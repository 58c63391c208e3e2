package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/eleven-am/pantry/internal/cli"
	"github.com/eleven-am/pantry/pkg/pantry"
)

// Build information - these can be set at build time using ldflags
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func Execute() error {
	pantry.SetBuildInfo(GitCommit, BuildDate, runtime.Version())

	cmd := cli.NewRootCommand()
	return cmd.Execute()
}
