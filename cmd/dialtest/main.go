package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/dialtest-cli/cmd"
	"github.com/xkilldash9x/dialtest-cli/internal/observability"
)

// main is the entry point of the application.
func main() {
	// Set up a context that listens for interrupt signals (SIGINT, SIGTERM)
	// for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Graceful shutdown via Ctrl+C exits cleanly.
			os.Exit(0)
		}
		os.Exit(1)
	}
}
