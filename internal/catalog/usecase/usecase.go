package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/catalog"
	"github.com/fekuna/omnipos-sync-service/internal/catalog/dto"
	"github.com/fekuna/omnipos-sync-service/internal/logger"
	"github.com/fekuna/omnipos-sync-service/internal/remote"
	"go.uber.org/zap"
)

var (
	fullSyncTypes  = []string{remote.ObjectTypeCategory, remote.ObjectTypeImage, remote.ObjectTypeItem}
	deltaSyncTypes = []string{remote.ObjectTypeCategory, remote.ObjectTypeImage, remote.ObjectTypeItem, remote.ObjectTypeItemVariation}

	errDeltaTooLarge = errors.New("delta exceeds fallback threshold")
)

type catalogUseCase struct {
	repo    catalog.Repository
	clients remote.ClientFactory
	cfg     catalog.Config
	logger  logger.ZapLogger
	now     func() time.Time
}

type Option func(*catalogUseCase)

func WithClock(now func() time.Time) Option {
	return func(uc *catalogUseCase) { uc.now = now }
}

func NewCatalogUseCase(repo catalog.Repository, clients remote.ClientFactory, cfg catalog.Config, log logger.ZapLogger, opts ...Option) catalog.UseCase {
	if cfg.DeltaFallbackThreshold <= 0 {
		cfg.DeltaFallbackThreshold = 100
	}
	if cfg.DeletionMaxRatio <= 0 {
		cfg.DeletionMaxRatio = 0.5
	}
	if cfg.DeletionMinItems <= 0 {
		cfg.DeletionMinItems = 10
	}
	uc := &catalogUseCase{
		repo:    repo,
		clients: clients,
		cfg:     cfg,
		logger:  log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *catalogUseCase) SyncCatalog(ctx context.Context, tenantID string) (*dto.SyncStats, error) {
	client, err := uc.clients.ForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return uc.fullSync(ctx, tenantID, client)
}

func (uc *catalogUseCase) fullSync(ctx context.Context, tenantID string, client remote.Client) (*dto.SyncStats, error) {
	log := uc.logger.With(zap.String("tenant_id", tenantID))
	start := uc.now()

	snap := newSnapshot()
	cursor := ""
	for {
		page, err := client.ListCatalog(ctx, remote.ListCatalogRequest{Types: fullSyncTypes, Cursor: cursor})
		if err != nil {
			return nil, fmt.Errorf("list catalog: %w", err)
		}
		snap.addPage(page)
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	log.Debug("catalog snapshot fetched",
		zap.Int("items", len(snap.items)),
		zap.Int("variations", len(snap.variations)),
		zap.Int("categories", len(snap.categories)),
		zap.Int("images", len(snap.images)),
	)

	stats := &dto.SyncStats{}
	if err := uc.apply(ctx, tenantID, client, snap, stats); err != nil {
		return nil, err
	}
	uc.detectDeletions(ctx, tenantID, snap, stats)

	watermark := snap.latest
	if watermark.IsZero() {
		watermark = start
	}
	if err := uc.repo.SetDeltaCursor(ctx, tenantID, watermark); err != nil {
		return nil, fmt.Errorf("store delta cursor: %w", err)
	}

	log.Info("full catalog sync completed",
		zap.Int("items", stats.Items),
		zap.Int("variations", stats.Variations),
		zap.Int("items_deleted", stats.ItemsDeleted),
		zap.Int("variations_deleted", stats.VariationsDeleted),
		zap.Int("errors", len(stats.Errors)),
		zap.Duration("duration", uc.now().Sub(start)),
	)
	return stats, nil
}

// DeltaSyncCatalog applies changes since the stored cursor. It runs a full
// sync instead when no cursor exists, when the delta is too large, or when
// anything in the delta path fails.
func (uc *catalogUseCase) DeltaSyncCatalog(ctx context.Context, tenantID string) (*dto.SyncStats, error) {
	client, err := uc.clients.ForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	log := uc.logger.With(zap.String("tenant_id", tenantID))

	since, err := uc.repo.GetDeltaCursor(ctx, tenantID)
	if err != nil {
		log.Warn("failed to load delta cursor, running full sync", zap.Error(err))
		return uc.fullSync(ctx, tenantID, client)
	}
	if since == nil {
		log.Info("no delta cursor, running full sync")
		return uc.fullSync(ctx, tenantID, client)
	}

	stats, err := uc.deltaSync(ctx, tenantID, client, *since)
	switch {
	case errors.Is(err, errDeltaTooLarge):
		log.Info("delta too large, running full sync",
			zap.Int("threshold", uc.cfg.DeltaFallbackThreshold),
			zap.String("reason", "delta_threshold_exceeded"),
		)
		return uc.fullSync(ctx, tenantID, client)
	case err != nil:
		log.Error("delta sync failed, running full sync", zap.Error(err))
		return uc.fullSync(ctx, tenantID, client)
	}
	return stats, nil
}

func (uc *catalogUseCase) deltaSync(ctx context.Context, tenantID string, client remote.Client, since time.Time) (*dto.SyncStats, error) {
	log := uc.logger.With(zap.String("tenant_id", tenantID))

	snap := newSnapshot()
	cursor := ""
	for {
		page, err := client.SearchCatalogObjects(ctx, remote.SearchCatalogRequest{
			ObjectTypes:    deltaSyncTypes,
			BeginTime:      &since,
			IncludeDeleted: true,
			Cursor:         cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("search catalog since %s: %w", since.Format(time.RFC3339), err)
		}
		snap.addPage(page)
		if snap.count > uc.cfg.DeltaFallbackThreshold {
			return nil, fmt.Errorf("%w: %d objects", errDeltaTooLarge, snap.count)
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	stats := &dto.SyncStats{DeltaSync: true}
	if err := uc.apply(ctx, tenantID, client, snap, stats); err != nil {
		return nil, err
	}
	if err := uc.applyDeletionMarkers(ctx, tenantID, snap, stats); err != nil {
		return nil, err
	}

	// Without a reported watermark the old cursor stays; replaying a window
	// is harmless, skipping one is not.
	if !snap.latest.IsZero() {
		if err := uc.repo.SetDeltaCursor(ctx, tenantID, snap.latest); err != nil {
			return nil, fmt.Errorf("store delta cursor: %w", err)
		}
	}

	log.Info("delta catalog sync completed",
		zap.Int("changed_objects", snap.count),
		zap.Int("items", stats.Items),
		zap.Int("variations", stats.Variations),
		zap.Int("items_deleted", stats.ItemsDeleted),
		zap.Int("variations_deleted", stats.VariationsDeleted),
	)
	return stats, nil
}

func (uc *catalogUseCase) applyDeletionMarkers(ctx context.Context, tenantID string, snap *snapshot, stats *dto.SyncStats) error {
	at := uc.now()
	if ids := snap.deleted[remote.ObjectTypeItem]; len(ids) > 0 {
		items, variations, err := uc.repo.SoftDeleteItems(ctx, tenantID, ids, at)
		if err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		stats.ItemsDeleted += int(items)
		stats.VariationsDeleted += int(variations)
	}
	if ids := snap.deleted[remote.ObjectTypeItemVariation]; len(ids) > 0 {
		n, err := uc.repo.SoftDeleteVariations(ctx, tenantID, ids, at)
		if err != nil {
			return fmt.Errorf("delete variations: %w", err)
		}
		stats.VariationsDeleted += int(n)
	}
	if ids := snap.deleted[remote.ObjectTypeCategory]; len(ids) > 0 {
		if _, err := uc.repo.SoftDeleteCategories(ctx, tenantID, ids, at); err != nil {
			return fmt.Errorf("delete categories: %w", err)
		}
	}
	if ids := snap.deleted[remote.ObjectTypeImage]; len(ids) > 0 {
		if _, err := uc.repo.SoftDeleteImages(ctx, tenantID, ids, at); err != nil {
			return fmt.Errorf("delete images: %w", err)
		}
	}
	return nil
}
