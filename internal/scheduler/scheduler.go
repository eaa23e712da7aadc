// Package scheduler triggers periodic full syncs for every active tenant.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/catalog"
	catalogdto "github.com/fekuna/omnipos-sync-service/internal/catalog/dto"
	"github.com/fekuna/omnipos-sync-service/internal/inventory"
	inventorydto "github.com/fekuna/omnipos-sync-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-sync-service/internal/logger"
	"github.com/fekuna/omnipos-sync-service/internal/syncqueue"
	"github.com/fekuna/omnipos-sync-service/internal/tenant"
	"github.com/fekuna/omnipos-sync-service/internal/velocity"
	velocitydto "github.com/fekuna/omnipos-sync-service/internal/velocity/dto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	CatalogInterval       time.Duration
	CommittedInterval     time.Duration
	VelocityInterval      time.Duration
	TenantConcurrency     int
	VelocityMaxPeriodDays int
}

// Summary reports one pass over all active tenants.
type Summary struct {
	Kind    syncqueue.Kind `json:"kind"`
	Tenants int            `json:"tenants"`
	Queued  int            `json:"queued"`
	Failed  int            `json:"failed"`
}

type tenantRun func(ctx context.Context, tenantID string) (queued bool, err error)

type Scheduler struct {
	tenants     tenant.Repository
	coordinator *syncqueue.Coordinator
	catalog     catalog.UseCase
	inventory   inventory.UseCase
	velocity    velocity.UseCase
	cfg         Config
	logger      logger.ZapLogger
}

func NewScheduler(
	tenants tenant.Repository,
	coordinator *syncqueue.Coordinator,
	catalogUC catalog.UseCase,
	inventoryUC inventory.UseCase,
	velocityUC velocity.UseCase,
	cfg Config,
	log logger.ZapLogger,
) *Scheduler {
	if cfg.TenantConcurrency <= 0 {
		cfg.TenantConcurrency = 4
	}
	return &Scheduler{
		tenants:     tenants,
		coordinator: coordinator,
		catalog:     catalogUC,
		inventory:   inventoryUC,
		velocity:    velocityUC,
		cfg:         cfg,
		logger:      log.With(zap.String("component", "Scheduler")),
	}
}

// Start runs each job on its own ticker until ctx is cancelled. A job with a
// non-positive interval is disabled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting scheduler",
		zap.Duration("catalog_interval", s.cfg.CatalogInterval),
		zap.Duration("committed_interval", s.cfg.CommittedInterval),
		zap.Duration("velocity_interval", s.cfg.VelocityInterval),
	)
	jobs := []struct {
		interval time.Duration
		run      func(context.Context) (*Summary, error)
	}{
		{s.cfg.CatalogInterval, s.RunCatalog},
		{s.cfg.CommittedInterval, s.RunCommittedInventory},
		{s.cfg.VelocityInterval, s.RunVelocity},
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		if job.interval <= 0 {
			continue
		}
		g.Go(func() error {
			s.loop(ctx, job.interval, job.run)
			return nil
		})
	}
	_ = g.Wait()
	s.logger.Info("Stopping scheduler")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, run func(context.Context) (*Summary, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := run(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("scheduled pass failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) RunCatalog(ctx context.Context) (*Summary, error) {
	return s.forEachTenant(ctx, syncqueue.KindCatalog, func(ctx context.Context, tenantID string) (bool, error) {
		out, err := syncqueue.ExecuteWithQueue(ctx, s.coordinator, syncqueue.KindCatalog, tenantID,
			func(ctx context.Context) (*catalogdto.SyncStats, error) {
				return s.catalog.SyncCatalog(ctx, tenantID)
			})
		return out.Queued, err
	})
}

func (s *Scheduler) RunCommittedInventory(ctx context.Context) (*Summary, error) {
	return s.forEachTenant(ctx, syncqueue.KindCommittedInventory, func(ctx context.Context, tenantID string) (bool, error) {
		out, err := syncqueue.ExecuteWithQueue(ctx, s.coordinator, syncqueue.KindCommittedInventory, tenantID,
			func(ctx context.Context) (*inventorydto.CommittedResult, error) {
				return s.inventory.SyncCommittedInventory(ctx, tenantID)
			})
		return out.Queued, err
	})
}

func (s *Scheduler) RunVelocity(ctx context.Context) (*Summary, error) {
	return s.forEachTenant(ctx, syncqueue.KindSalesVelocity, func(ctx context.Context, tenantID string) (bool, error) {
		out, err := syncqueue.ExecuteWithQueue(ctx, s.coordinator, syncqueue.KindSalesVelocity, tenantID,
			func(ctx context.Context) (*velocitydto.SyncResult, error) {
				return s.velocity.SyncSalesVelocityAllPeriods(ctx, tenantID, s.cfg.VelocityMaxPeriodDays)
			})
		return out.Queued, err
	})
}

// forEachTenant runs fn for every active tenant with bounded concurrency.
// One tenant failing never stops the others.
func (s *Scheduler) forEachTenant(ctx context.Context, kind syncqueue.Kind, fn tenantRun) (*Summary, error) {
	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}

	var queued, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.TenantConcurrency)
	for _, t := range tenants {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			q, err := fn(ctx, t.ID)
			if err != nil {
				failed.Add(1)
				s.logger.Warn("scheduled sync failed",
					zap.String("tenant_id", t.ID),
					zap.String("kind", string(kind)),
					zap.Error(err),
				)
				return nil
			}
			if q {
				queued.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{Kind: kind, Tenants: len(tenants), Queued: int(queued.Load()), Failed: int(failed.Load())}
	s.logger.Info("scheduled pass finished",
		zap.String("kind", string(kind)),
		zap.Int("tenants", summary.Tenants),
		zap.Int("queued", summary.Queued),
		zap.Int("failed", summary.Failed),
	)
	return summary, ctx.Err()
}
