package model

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

type Category struct {
	TenantID  string     `db:"tenant_id"`
	ID        string     `db:"id"`
	Name      string     `db:"name"`
	ParentID  *string    `db:"parent_id"`
	Version   int64      `db:"version"`
	IsDeleted bool       `db:"is_deleted"`
	DeletedAt *time.Time `db:"deleted_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

type Image struct {
	TenantID  string     `db:"tenant_id"`
	ID        string     `db:"id"`
	Name      string     `db:"name"`
	URL       string     `db:"url"`
	Caption   string     `db:"caption"`
	Version   int64      `db:"version"`
	IsDeleted bool       `db:"is_deleted"`
	DeletedAt *time.Time `db:"deleted_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

type CatalogItem struct {
	TenantID              string         `db:"tenant_id"`
	ID                    string         `db:"id"`
	Name                  string         `db:"name"`
	Description           *string        `db:"description"`
	CategoryID            *string        `db:"category_id"`
	CategoryName          *string        `db:"category_name"`
	ReportingCategoryID   *string        `db:"reporting_category_id"`
	ProductType           string         `db:"product_type"`
	IsArchived            bool           `db:"is_archived"`
	Visibility            string         `db:"visibility"`
	SEOTitle              *string        `db:"seo_title"`
	SEODescription        *string        `db:"seo_description"`
	SEOPermalink          *string        `db:"seo_permalink"`
	ImageIDs              types.JSONText `db:"image_ids"`
	PresentAtAllLocations bool           `db:"present_at_all_locations"`
	PresentAtLocationIDs  types.JSONText `db:"present_at_location_ids"`
	AbsentAtLocationIDs   types.JSONText `db:"absent_at_location_ids"`
	CustomAttributes      types.JSONText `db:"custom_attributes"` // opaque passthrough
	Version               int64          `db:"version"`
	IsDeleted             bool           `db:"is_deleted"`
	DeletedAt             *time.Time     `db:"deleted_at"`
	RemoteUpdatedAt       *time.Time     `db:"remote_updated_at"`
	UpdatedAt             time.Time      `db:"updated_at"`
}

type CatalogVariation struct {
	TenantID                string         `db:"tenant_id"`
	ID                      string         `db:"id"`
	ItemID                  string         `db:"item_id"`
	Name                    string         `db:"name"`
	SKU                     *string        `db:"sku"`
	UPC                     *string        `db:"upc"`
	Ordinal                 int            `db:"ordinal"`
	PricingType             string         `db:"pricing_type"`
	PriceAmount             *int64         `db:"price_amount"`
	PriceCurrency           *string        `db:"price_currency"`
	TrackInventory          bool           `db:"track_inventory"`
	InventoryAlertType      *string        `db:"inventory_alert_type"`
	InventoryAlertThreshold *int64         `db:"inventory_alert_threshold"`
	Sellable                bool           `db:"sellable"`
	Stockable               bool           `db:"stockable"`
	PresentAtAllLocations   bool           `db:"present_at_all_locations"`
	PresentAtLocationIDs    types.JSONText `db:"present_at_location_ids"`
	CustomAttributes        types.JSONText `db:"custom_attributes"`
	Version                 int64          `db:"version"`
	IsDeleted               bool           `db:"is_deleted"`
	DeletedAt               *time.Time     `db:"deleted_at"`
	RemoteUpdatedAt         *time.Time     `db:"remote_updated_at"`
	UpdatedAt               time.Time      `db:"updated_at"`

	VendorCosts []VariationVendorCost `db:"-"`
}

type Vendor struct {
	TenantID  string    `db:"tenant_id"`
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Status    string    `db:"status"`
	UpdatedAt time.Time `db:"updated_at"`
}

type VariationVendorCost struct {
	TenantID       string    `db:"tenant_id"`
	VariationID    string    `db:"variation_id"`
	VendorID       string    `db:"vendor_id"`
	VendorCode     *string   `db:"vendor_code"`
	UnitCostAmount *int64    `db:"unit_cost_amount"`
	Currency       *string   `db:"currency"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// ItemCategory is the recomputed category assignment for one item.
type ItemCategory struct {
	ItemID       string  `db:"id"`
	CategoryID   *string `db:"category_id"`
	CategoryName *string `db:"category_name"`
}
