// Command auth runs the Maturity identity service: OAuth 2.1 and OpenID
// Connect for the platform and its registered clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/maturity/internal/auth/app"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "auth:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(app.LoadConfig())
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return application.Run(ctx)
}
