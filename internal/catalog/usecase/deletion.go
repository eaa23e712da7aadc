package usecase

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-sync-service/internal/catalog/dto"
	"go.uber.org/zap"
)

const (
	reasonZeroItemsSynced   = "zero_items_synced"
	reasonThresholdExceeded = "deletion_threshold_exceeded"
)

// deletionGuard returns a non-empty reason when soft-deleting candidates out
// of active would more likely reflect a broken fetch than real deletions.
func (uc *catalogUseCase) deletionGuard(synced, active, candidates int) string {
	if synced == 0 && active > 0 {
		return reasonZeroItemsSynced
	}
	if active > uc.cfg.DeletionMinItems && float64(candidates)/float64(active) > uc.cfg.DeletionMaxRatio {
		return reasonThresholdExceeded
	}
	return ""
}

// detectDeletions soft-deletes every active local item and variation that
// the full snapshot did not contain. Failures are recorded on stats; the
// rest of the sync has already been written.
func (uc *catalogUseCase) detectDeletions(ctx context.Context, tenantID string, snap *snapshot, stats *dto.SyncStats) {
	log := uc.logger.With(zap.String("tenant_id", tenantID))

	active, err := uc.repo.ActiveItemIDs(ctx, tenantID)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("deletion detection: %v", err))
		log.Error("failed to load active items", zap.Error(err))
		return
	}
	var missing []string
	for _, id := range active {
		if _, ok := snap.items[id]; !ok {
			missing = append(missing, id)
		}
	}

	if reason := uc.deletionGuard(len(snap.items), len(active), len(missing)); reason != "" {
		stats.DeletionSkippedReason = reason
		stats.Warnings = append(stats.Warnings, fmt.Sprintf(
			"deletion detection skipped: %s (%d of %d active items missing)", reason, len(missing), len(active)))
		log.Warn("deletion detection skipped",
			zap.String("reason", reason),
			zap.Int("synced_items", len(snap.items)),
			zap.Int("active_items", len(active)),
			zap.Int("missing_items", len(missing)),
		)
		return
	}

	at := uc.now()
	if len(missing) > 0 {
		items, variations, err := uc.repo.SoftDeleteItems(ctx, tenantID, missing, at)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("delete items: %v", err))
			log.Error("failed to soft-delete items", zap.Error(err))
			return
		}
		stats.ItemsDeleted += int(items)
		stats.VariationsDeleted += int(variations)
	}

	activeVariations, err := uc.repo.ActiveVariationIDs(ctx, tenantID)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("deletion detection: %v", err))
		log.Error("failed to load active variations", zap.Error(err))
		return
	}
	var missingVariations []string
	for _, id := range activeVariations {
		if _, ok := snap.variations[id]; !ok {
			missingVariations = append(missingVariations, id)
		}
	}
	if len(missingVariations) > 0 {
		n, err := uc.repo.SoftDeleteVariations(ctx, tenantID, missingVariations, at)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("delete variations: %v", err))
			log.Error("failed to soft-delete variations", zap.Error(err))
			return
		}
		stats.VariationsDeleted += int(n)
	}

	if stats.ItemsDeleted > 0 || stats.VariationsDeleted > 0 {
		log.Info("removed objects missing from remote catalog",
			zap.Int("items_deleted", stats.ItemsDeleted),
			zap.Int("variations_deleted", stats.VariationsDeleted),
		)
	}
}
