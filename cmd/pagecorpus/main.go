package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// graceful shutdown closes the dataset and drains the embedding queue
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
