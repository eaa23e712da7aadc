package catalog

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/model"
)

type Repository interface {
	// Reference data
	UpsertCategories(ctx context.Context, categories []model.Category) error
	UpsertImages(ctx context.Context, images []model.Image) error
	CategoryNames(ctx context.Context, tenantID string, ids []string) (map[string]string, error)

	// Items and variations
	UpsertItems(ctx context.Context, items []model.CatalogItem) error
	UpsertVariation(ctx context.Context, v *model.CatalogVariation) error
	ExistingItemIDs(ctx context.Context, tenantID string, ids []string) ([]string, error)
	UpdateItemCategories(ctx context.Context, tenantID string, assignments []model.ItemCategory) error

	// Vendors
	KnownVendorIDs(ctx context.Context, tenantID string, ids []string) ([]string, error)
	UpsertVendor(ctx context.Context, v *model.Vendor) error
	UpsertVendorCost(ctx context.Context, cost *model.VariationVendorCost) error

	// Deletion detection
	ActiveItemIDs(ctx context.Context, tenantID string) ([]string, error)
	ActiveVariationIDs(ctx context.Context, tenantID string) ([]string, error)
	// SoftDeleteItems flags items and their variations deleted and zeroes the
	// variations' inventory counts.
	SoftDeleteItems(ctx context.Context, tenantID string, ids []string, at time.Time) (items int64, variations int64, err error)
	SoftDeleteVariations(ctx context.Context, tenantID string, ids []string, at time.Time) (int64, error)
	SoftDeleteCategories(ctx context.Context, tenantID string, ids []string, at time.Time) (int64, error)
	SoftDeleteImages(ctx context.Context, tenantID string, ids []string, at time.Time) (int64, error)

	// Delta cursor
	GetDeltaCursor(ctx context.Context, tenantID string) (*time.Time, error)
	SetDeltaCursor(ctx context.Context, tenantID string, cursor time.Time) error
}
