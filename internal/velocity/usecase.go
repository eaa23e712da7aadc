package velocity

import (
	"context"
	"errors"

	"github.com/fekuna/omnipos-sync-service/internal/remote"
	"github.com/fekuna/omnipos-sync-service/internal/velocity/dto"
)

// StandardPeriods are the rolling windows, in days, velocity is kept for.
var StandardPeriods = []int{91, 182, 365}

var ErrInvalidInput = errors.New("invalid input")

type UseCase interface {
	SyncSalesVelocityAllPeriods(ctx context.Context, tenantID string, maxPeriodDays int) (*dto.SyncResult, error)
	UpdateSalesVelocityFromOrder(ctx context.Context, order remote.Order, tenantID string) (*dto.UpdateResult, error)
}
