package remote

import (
	"encoding/json"
	"time"
)

const (
	ObjectTypeItem          = "ITEM"
	ObjectTypeItemVariation = "ITEM_VARIATION"
	ObjectTypeCategory      = "CATEGORY"
	ObjectTypeImage         = "IMAGE"

	OrderStateCompleted = "COMPLETED"

	InvoiceStatusDraft         = "DRAFT"
	InvoiceStatusUnpaid        = "UNPAID"
	InvoiceStatusScheduled     = "SCHEDULED"
	InvoiceStatusPartiallyPaid = "PARTIALLY_PAID"
)

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type ObjectRef struct {
	ID      string `json:"id"`
	Ordinal int64  `json:"ordinal,omitempty"`
}

type CatalogObject struct {
	Type                  string                     `json:"type"`
	ID                    string                     `json:"id"`
	UpdatedAt             time.Time                  `json:"updated_at"`
	Version               int64                      `json:"version"`
	IsDeleted             bool                       `json:"is_deleted"`
	PresentAtAllLocations bool                       `json:"present_at_all_locations"`
	PresentAtLocationIDs  []string                   `json:"present_at_location_ids,omitempty"`
	AbsentAtLocationIDs   []string                   `json:"absent_at_location_ids,omitempty"`
	CustomAttributeValues map[string]json.RawMessage `json:"custom_attribute_values,omitempty"`

	ItemData          *ItemData          `json:"item_data,omitempty"`
	ItemVariationData *ItemVariationData `json:"item_variation_data,omitempty"`
	CategoryData      *CategoryData      `json:"category_data,omitempty"`
	ImageData         *ImageData         `json:"image_data,omitempty"`
}

type ItemData struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// CategoryID and ReportingCategory are deprecated upstream but still
	// populated for older items.
	CategoryID        string          `json:"category_id,omitempty"`
	ReportingCategory *ObjectRef      `json:"reporting_category,omitempty"`
	Categories        []ObjectRef     `json:"categories,omitempty"`
	Variations        []CatalogObject `json:"variations,omitempty"`
	ImageIDs          []string        `json:"image_ids,omitempty"`
	ProductType       string          `json:"product_type,omitempty"`
	IsArchived        bool            `json:"is_archived,omitempty"`
	Visibility        string          `json:"visibility,omitempty"`
	EcomSEOData       *SEOData        `json:"ecom_seo_data,omitempty"`
}

type SEOData struct {
	PageTitle       string `json:"page_title,omitempty"`
	PageDescription string `json:"page_description,omitempty"`
	Permalink       string `json:"permalink,omitempty"`
}

type ItemVariationData struct {
	ItemID                   string             `json:"item_id"`
	Name                     string             `json:"name"`
	SKU                      string             `json:"sku,omitempty"`
	UPC                      string             `json:"upc,omitempty"`
	Ordinal                  int                `json:"ordinal"`
	PricingType              string             `json:"pricing_type,omitempty"`
	PriceMoney               *Money             `json:"price_money,omitempty"`
	TrackInventory           *bool              `json:"track_inventory,omitempty"`
	InventoryAlertType       string             `json:"inventory_alert_type,omitempty"`
	InventoryAlertThreshold  *int64             `json:"inventory_alert_threshold,omitempty"`
	Sellable                 *bool              `json:"sellable,omitempty"`
	Stockable                *bool              `json:"stockable,omitempty"`
	ItemVariationVendorInfos []VendorInfoObject `json:"item_variation_vendor_infos,omitempty"`
}

type VendorInfoObject struct {
	ID                      string                  `json:"id,omitempty"`
	Type                    string                  `json:"type,omitempty"`
	ItemVariationVendorInfo ItemVariationVendorInfo `json:"item_variation_vendor_info_data"`
}

type ItemVariationVendorInfo struct {
	VendorID   string `json:"vendor_id"`
	VendorCode string `json:"vendor_code,omitempty"`
	PriceMoney *Money `json:"price_money,omitempty"`
}

type CategoryData struct {
	Name           string     `json:"name"`
	ParentCategory *ObjectRef `json:"parent_category,omitempty"`
}

type ImageData struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

type Vendor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type Location struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type Invoice struct {
	ID         string `json:"id"`
	Version    int64  `json:"version"`
	LocationID string `json:"location_id"`
	OrderID    string `json:"order_id"`
	Status     string `json:"status"`
}

// IsOpen reports whether the invoice still commits inventory.
func (i Invoice) IsOpen() bool {
	switch i.Status {
	case InvoiceStatusDraft, InvoiceStatusUnpaid, InvoiceStatusScheduled, InvoiceStatusPartiallyPaid:
		return true
	}
	return false
}

type Order struct {
	ID         string          `json:"id"`
	LocationID string          `json:"location_id"`
	State      string          `json:"state"`
	ClosedAt   *time.Time      `json:"closed_at,omitempty"`
	LineItems  []OrderLineItem `json:"line_items,omitempty"`
}

type OrderLineItem struct {
	UID             string `json:"uid"`
	CatalogObjectID string `json:"catalog_object_id,omitempty"`
	Quantity        string `json:"quantity"`
	TotalMoney      *Money `json:"total_money,omitempty"`
}

type InventoryCount struct {
	CatalogObjectID string    `json:"catalog_object_id"`
	LocationID      string    `json:"location_id"`
	State           string    `json:"state"`
	Quantity        string    `json:"quantity"`
	CalculatedAt    time.Time `json:"calculated_at"`
}

type ListCatalogRequest struct {
	Types  []string
	Cursor string
}

// SearchCatalogRequest drives delta sync: objects changed since BeginTime,
// with deletion markers when IncludeDeleted is set.
type SearchCatalogRequest struct {
	ObjectTypes    []string
	BeginTime      *time.Time
	IncludeDeleted bool
	Cursor         string
	Limit          int
}

type CatalogPage struct {
	Objects []CatalogObject
	Cursor  string
	// LatestTime is the remote watermark reported with the page, zero when absent.
	LatestTime time.Time
}

type SearchInvoicesRequest struct {
	LocationIDs []string
	Cursor      string
	Limit       int
}

type InvoicePage struct {
	Invoices []Invoice
	Cursor   string
}

type SearchOrdersRequest struct {
	LocationIDs   []string
	States        []string
	ClosedAtStart *time.Time
	ClosedAtEnd   *time.Time
	Cursor        string
	Limit         int
}

type OrderPage struct {
	Orders []Order
	Cursor string
}

type InventoryCountsRequest struct {
	LocationIDs []string
	States      []string
	Cursor      string
}

type InventoryCountPage struct {
	Counts []InventoryCount
	Cursor string
}
