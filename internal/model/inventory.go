package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StateInStock         = "IN_STOCK"
	StateReservedForSale = "RESERVED_FOR_SALE"
)

type InventoryCount struct {
	TenantID     string          `db:"tenant_id"`
	VariationID  string          `db:"variation_id"`
	LocationID   string          `db:"location_id"`
	State        string          `db:"state"`
	Quantity     decimal.Decimal `db:"quantity"`
	CalculatedAt *time.Time      `db:"calculated_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// CommittedInventory is inventory promised against one open invoice.
// One row per (invoice, variation, location).
type CommittedInventory struct {
	ID            string          `db:"id"`
	TenantID      string          `db:"tenant_id"`
	InvoiceID     string          `db:"invoice_id"`
	OrderID       string          `db:"order_id"`
	VariationID   string          `db:"variation_id"`
	LocationID    string          `db:"location_id"`
	Quantity      decimal.Decimal `db:"quantity"`
	InvoiceStatus string          `db:"invoice_status"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}
