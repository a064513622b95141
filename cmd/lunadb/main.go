package main

import (
	"fmt"
	"os"

	"github.com/roach88/lunadb/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lunadb: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
