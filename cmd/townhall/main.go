// Command townhall is the municipal document assistant.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/townhall/internal/adapters/driving/cli"
	"github.com/custodia-labs/townhall/internal/logger"
)

func main() {
	// A .env file is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("reading .env: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cli.Execute(ctx); err != nil {
		logger.Error(err, "townhall failed")
		cancel()
		os.Exit(1)
	}
}
