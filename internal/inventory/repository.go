package inventory

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/model"
)

type Repository interface {
	// Committed inventory
	// DeleteRowsNotInInvoices removes rows whose invoice is not listed; an
	// empty list removes every row of the tenant.
	DeleteRowsNotInInvoices(ctx context.Context, tenantID string, openInvoiceIDs []string) (int64, error)
	ReplaceInvoiceRows(ctx context.Context, tenantID, invoiceID string, rows []model.CommittedInventory) error
	CountRows(ctx context.Context, tenantID string) (int64, error)
	// RebuildReservedCounts replaces the tenant's RESERVED_FOR_SALE counts
	// with the committed rows summed by variation and location.
	RebuildReservedCounts(ctx context.Context, tenantID string, at time.Time) (int64, error)

	// Counts
	UpsertCounts(ctx context.Context, counts []model.InventoryCount) error
	ListCounts(ctx context.Context, tenantID, state string) ([]model.InventoryCount, error)

	KnownVariationIDs(ctx context.Context, tenantID string, ids []string) ([]string, error)
}
