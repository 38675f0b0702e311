// Command entitydb inspects and edits CUE-declared entity tables.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/entitydb/internal/cli"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || exitErr.Code == cli.ExitCommandError {
			fmt.Fprintf(os.Stderr, "entitydb: %v\n", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}

func mainImpl() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return cli.NewRootCommand(cli.NewRegistry()).ExecuteContext(ctx)
}
