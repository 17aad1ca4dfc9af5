package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/haybind/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "haybind:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
