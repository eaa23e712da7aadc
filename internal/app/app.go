// Package app wires repositories, remote clients and use cases from config.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-sync-service/config"
	"github.com/fekuna/omnipos-sync-service/internal/catalog"
	catRepoPkg "github.com/fekuna/omnipos-sync-service/internal/catalog/repository"
	catUCPkg "github.com/fekuna/omnipos-sync-service/internal/catalog/usecase"
	"github.com/fekuna/omnipos-sync-service/internal/database"
	"github.com/fekuna/omnipos-sync-service/internal/dedup"
	"github.com/fekuna/omnipos-sync-service/internal/inventory"
	invRepoPkg "github.com/fekuna/omnipos-sync-service/internal/inventory/repository"
	invUCPkg "github.com/fekuna/omnipos-sync-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-sync-service/internal/logger"
	"github.com/fekuna/omnipos-sync-service/internal/remote"
	"github.com/fekuna/omnipos-sync-service/internal/retry"
	retryRepoPkg "github.com/fekuna/omnipos-sync-service/internal/retry/repository"
	retryUCPkg "github.com/fekuna/omnipos-sync-service/internal/retry/usecase"
	"github.com/fekuna/omnipos-sync-service/internal/syncqueue"
	syncRepoPkg "github.com/fekuna/omnipos-sync-service/internal/syncqueue/repository"
	"github.com/fekuna/omnipos-sync-service/internal/tenant"
	tenantRepoPkg "github.com/fekuna/omnipos-sync-service/internal/tenant/repository"
	"github.com/fekuna/omnipos-sync-service/internal/velocity"
	velRepoPkg "github.com/fekuna/omnipos-sync-service/internal/velocity/repository"
	velUCPkg "github.com/fekuna/omnipos-sync-service/internal/velocity/usecase"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dedupKeyPrefix = "omnipos:sync:dedup:"

type App struct {
	Cfg    *config.Config
	Log    logger.ZapLogger
	DB     *sqlx.DB
	Redis  *redis.Client
	Remote remote.ClientFactory

	Tenants     tenant.Repository
	Coordinator *syncqueue.Coordinator
	Catalog     catalog.UseCase
	Inventory   inventory.UseCase
	Velocity    velocity.UseCase
	Retry       retry.UseCase
}

// New connects to postgres (and redis when enabled) and builds every use
// case. Close releases what New opened.
func New(ctx context.Context, cfg *config.Config, log logger.ZapLogger) (*App, error) {
	db, err := database.NewPostgres(&database.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	log.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	if cfg.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("Database schema applied")
	}

	a := &App{Cfg: cfg, Log: log, DB: db}

	claimer, err := a.newClaimer(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a.Tenants = tenantRepoPkg.NewPGRepository(db)
	a.Remote = remote.NewHTTPClientFactory(remote.HTTPConfig{
		BaseURL:     cfg.Remote.BaseURL,
		APIVersion:  cfg.Remote.APIVersion,
		Timeout:     cfg.Remote.Timeout,
		MaxAttempts: cfg.Remote.MaxAttempts,
	}, tenant.NewTokenSource(a.Tenants), nil)

	a.Coordinator = syncqueue.NewCoordinator(syncRepoPkg.NewPGRepository(db), syncqueue.Config{
		StaleAfter: cfg.Sync.StaleRunningAfter,
	}, log)

	a.Catalog = catUCPkg.NewCatalogUseCase(catRepoPkg.NewPGRepository(db), a.Remote, catalog.Config{
		DeltaFallbackThreshold: cfg.Sync.DeltaFallbackThreshold,
		DeletionMaxRatio:       cfg.Sync.DeletionMaxRatio,
		DeletionMinItems:       cfg.Sync.DeletionMinItems,
	}, log)
	a.Inventory = invUCPkg.NewInventoryUseCase(invRepoPkg.NewPGRepository(db), a.Remote, inventory.Config{
		UnauthorizedTTL: cfg.Sync.UnauthorizedTTL,
	}, log)
	a.Velocity = velUCPkg.NewVelocityUseCase(velRepoPkg.NewPGRepository(db), a.Remote, claimer, log)
	a.Retry = retryUCPkg.NewRetryUseCase(retryRepoPkg.NewPGRepository(db), retry.Config{
		BaseDelay:         cfg.Retry.BaseDelay,
		MaxDelay:          cfg.Retry.MaxDelay,
		MaxRetries:        cfg.Retry.MaxRetries,
		StaleRunningAfter: cfg.Sync.StaleRunningAfter,
	}, log)

	return a, nil
}

// newClaimer uses redis when enabled so every worker shares one dedup
// window. Otherwise duplicates are only caught within this process.
func (a *App) newClaimer(ctx context.Context) (dedup.Claimer, error) {
	if !a.Cfg.Redis.Enabled {
		return dedup.NewMemoryClaimer(a.Cfg.Sync.DedupTTL), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.Cfg.Redis.Addr,
		Password: a.Cfg.Redis.Password,
		DB:       a.Cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	a.Redis = client
	a.Log.Info("Connected to Redis", zap.String("addr", a.Cfg.Redis.Addr))
	return dedup.NewRedisClaimer(client, dedupKeyPrefix, a.Cfg.Sync.DedupTTL), nil
}

// Close waits for queued follow-up syncs, then closes connections.
func (a *App) Close() {
	if a.Coordinator != nil {
		a.Coordinator.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

func NewLogger(cfg *config.Config) logger.ZapLogger {
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if cfg.Server.AppEnv == "development" || cfg.Server.AppEnv == "dev" {
		logConfig.IsDevelopment = true
	}
	return logger.NewZapLogger(logConfig)
}
