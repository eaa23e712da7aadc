package velocity

import (
	"context"

	"github.com/fekuna/omnipos-sync-service/internal/model"
)

type Repository interface {
	// ReplacePeriod swaps every row of one (tenant, period) for rows in a
	// single transaction.
	ReplacePeriod(ctx context.Context, tenantID string, periodDays int, rows []model.SalesVelocity) error
	// IncrementFromOrder adds each row's totals onto the stored row, creating
	// it when missing, and recomputes the averages in the same statement.
	IncrementFromOrder(ctx context.Context, rows []model.SalesVelocity) error
	ListByPeriod(ctx context.Context, tenantID string, periodDays int) ([]model.SalesVelocity, error)

	KnownVariationIDs(ctx context.Context, tenantID string, ids []string) ([]string, error)
}
