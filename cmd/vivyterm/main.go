package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vivyterm/vivyterm/internal/cli"
	"github.com/vivyterm/vivyterm/internal/update"
)

func main() {
	if applied, err := update.ApplyStagedBinary(); err != nil {
		log.Printf("staged update not applied: %v", err)
	} else if applied != "" {
		log.Printf("applied staged update: %s", applied)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(cli.Execute(ctx))
}
