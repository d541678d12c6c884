package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/guhesse/script-wf-sub000/cmd"
	"github.com/guhesse/script-wf-sub000/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)

	// Flush buffered log entries before the process goes away.
	observability.Sync()

	if err != nil {
		os.Exit(1)
	}
}
