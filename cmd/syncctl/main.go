package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fekuna/omnipos-sync-service/config"
	"github.com/fekuna/omnipos-sync-service/internal/app"
	"github.com/fekuna/omnipos-sync-service/internal/cli"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	appLogger := app.NewLogger(cfg)
	defer appLogger.Sync()

	load := func(ctx context.Context) (*cli.Services, func(), error) {
		a, err := app.New(ctx, cfg, appLogger)
		if err != nil {
			return nil, nil, err
		}
		return &cli.Services{
			Coordinator:           a.Coordinator,
			Catalog:               a.Catalog,
			Inventory:             a.Inventory,
			Velocity:              a.Velocity,
			Retry:                 a.Retry,
			VelocityMaxPeriodDays: cfg.Sync.VelocityMaxPeriodDays,
			RetentionDays:         cfg.Retry.RetentionDays,
			FailedRetentionDays:   cfg.Retry.FailedRetentionDays,
		}, a.Close, nil
	}

	if err := cli.NewRootCommand(load).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		appLogger.Sync()
		os.Exit(1)
	}
}
