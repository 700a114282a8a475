package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stockcount/internal/app"
	"stockcount/internal/config"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log := app.NewLogger(cfg, "catalog-listener")
	defer log.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	must(err)
	defer a.Close()

	svc, err := a.Listener(ctx)
	must(err)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
