package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"erp-inventory/internal/adapters/cli"
	"erp-inventory/internal/adapters/repl"
	"erp-inventory/internal/app"
	"erp-inventory/internal/config"
	"erp-inventory/internal/core"
	"erp-inventory/internal/db"
	"erp-inventory/internal/logger"
)

func main() {
	org := flag.Int64("org", 1, "organization id")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, cli.Usage) }
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.ServiceName+"-cli", cfg.LogLevel, cfg.IsDevelopment())

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := app.NewPostgresAppService(pool, app.Options{
		LockTimeout:           cfg.LockTimeout,
		AllowNegativeStock:    cfg.AllowNegativeStock,
		HorizonDays:           cfg.ATPHorizonDays,
		MaxSplitShipments:     cfg.MaxSplitShipments,
		MaxFulfillmentOptions: cfg.MaxFulfillmentOptions,
	})

	if flag.NArg() == 0 {
		repl.Run(ctx, svc, *org, bufio.NewReader(os.Stdin), os.Stdout)
		return
	}

	if err := cli.Run(ctx, svc, *org, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		pool.Close()
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes caller mistakes from stock and infrastructure failures.
func exitCode(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrNotFound):
		return 2
	case errors.Is(err, core.ErrInsufficientStock), errors.Is(err, core.ErrIdempotencyConflict):
		return 3
	case errors.Is(err, core.ErrContention):
		return 4
	default:
		return 1
	}
}
