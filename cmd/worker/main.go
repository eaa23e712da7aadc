package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fekuna/omnipos-sync-service/config"
	"github.com/fekuna/omnipos-sync-service/internal/app"
	"github.com/fekuna/omnipos-sync-service/internal/events/listener"
	"github.com/fekuna/omnipos-sync-service/internal/retry/replayer"
	"github.com/fekuna/omnipos-sync-service/internal/scheduler"
	"github.com/fekuna/omnipos-sync-service/internal/syncqueue"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	appLogger := app.NewLogger(cfg)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Connect to Database and Redis, build use cases
	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Could not initialize application", zap.Error(err))
	}
	defer a.Close()

	a.Coordinator.OnFollowUpError = func(kind syncqueue.Kind, tenantID string, err error) {
		appLogger.Warn("queued follow-up sync failed, next trigger will retry",
			zap.String("kind", string(kind)),
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	}

	// 4. Recover sync state left by a previous process
	recovered, err := a.Coordinator.Recover(ctx)
	if err != nil {
		appLogger.Error("Failed to recover sync state", zap.Error(err))
	} else {
		appLogger.Info("Recovered sync state",
			zap.Int("interrupted", recovered.Interrupted),
			zap.Int("restored", recovered.Restored),
		)
	}

	// 5. Initialize Workers
	router := listener.NewRouter(a.Coordinator, a.Catalog, a.Inventory, a.Velocity, a.Remote, appLogger)

	retryReplayer := replayer.NewReplayer(a.Retry, router, replayer.Config{
		Interval:            cfg.Retry.ReplayInterval,
		BatchSize:           cfg.Retry.ReplayBatch,
		CleanupInterval:     cfg.Retry.CleanupInterval,
		RetentionDays:       cfg.Retry.RetentionDays,
		FailedRetentionDays: cfg.Retry.FailedRetentionDays,
	}, appLogger)

	syncScheduler := scheduler.NewScheduler(a.Tenants, a.Coordinator, a.Catalog, a.Inventory, a.Velocity, scheduler.Config{
		CatalogInterval:       cfg.Sync.CatalogInterval,
		CommittedInterval:     cfg.Sync.CommittedInterval,
		VelocityInterval:      cfg.Sync.VelocityInterval,
		TenantConcurrency:     cfg.Sync.TenantConcurrency,
		VelocityMaxPeriodDays: cfg.Sync.VelocityMaxPeriodDays,
	}, appLogger)

	var workers sync.WaitGroup
	startWorker := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(ctx)
		}()
	}

	// 5.5 Initialize Kafka Consumer
	if cfg.Kafka.Enabled {
		reader := listener.NewKafkaReader(listener.ReaderConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer reader.Close()
		appLogger.Info("Connected to Kafka Consumer", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))

		webhookListener := listener.NewWebhookListener(reader, router, a.Retry, appLogger)
		startWorker(webhookListener.Start)
	}
	startWorker(retryReplayer.Start)
	startWorker(syncScheduler.Start)

	// 6. Start gRPC health server
	port := cfg.Server.GRPCPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	lis, err := net.Listen("tcp", port)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Register Reflection
	reflection.Register(grpcServer)

	appLogger.Info("Starting gRPC health server", zap.String("port", port))

	// Graceful Shutdown
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down worker...")
	healthServer.Shutdown()
	cancel()
	workers.Wait()
	grpcServer.GracefulStop()
	appLogger.Info("Worker stopped")
}
