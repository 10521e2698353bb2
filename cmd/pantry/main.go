// Command pantry serves the pantry inventory tracker.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"pantry/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx, os.Args[1:], nil); err != nil {
		slog.Error("pantry stopped with error", "error", err)
		stop()
		os.Exit(1)
	}
}
