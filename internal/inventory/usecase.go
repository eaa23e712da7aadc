package inventory

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/inventory/dto"
)

type Config struct {
	// UnauthorizedTTL is how long a tenant without invoice access is skipped.
	UnauthorizedTTL time.Duration
}

type UseCase interface {
	SyncCommittedInventory(ctx context.Context, tenantID string) (*dto.CommittedResult, error)
	SyncInventoryCounts(ctx context.Context, tenantID string) (*dto.CountsResult, error)
}
