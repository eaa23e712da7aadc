package catalog

import (
	"context"
	"errors"

	"github.com/fekuna/omnipos-sync-service/internal/catalog/dto"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrVariationNotFound = errors.New("variation not found")
)

type Config struct {
	// DeltaFallbackThreshold is the changed-object count above which delta
	// sync runs a full sync instead.
	DeltaFallbackThreshold int
	// DeletionMaxRatio caps the share of active items one full sync may delete.
	DeletionMaxRatio float64
	// DeletionMinItems is the active item count at or below which the ratio
	// check is not enforced.
	DeletionMinItems int
}

type UseCase interface {
	SyncCatalog(ctx context.Context, tenantID string) (*dto.SyncStats, error)
	DeltaSyncCatalog(ctx context.Context, tenantID string) (*dto.SyncStats, error)
	UpdateVariationVendorCost(ctx context.Context, input *dto.VendorCostInput) error
}
