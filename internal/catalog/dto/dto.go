package dto

// SyncStats summarizes one full or delta catalog sync. Partial failures are
// listed in Errors; the sync itself still succeeds.
type SyncStats struct {
	Items             int `json:"items"`
	Variations        int `json:"variations"`
	Categories        int `json:"categories"`
	Images            int `json:"images"`
	ItemsDeleted      int `json:"items_deleted"`
	VariationsDeleted int `json:"variations_deleted"`
	VariationsSkipped int `json:"variations_skipped"`
	VendorsFetched    int `json:"vendors_fetched"`

	DeletionSkippedReason string   `json:"deletion_skipped_reason,omitempty"`
	Warnings              []string `json:"warnings,omitempty"`
	Errors                []string `json:"errors,omitempty"`

	DeltaSync bool `json:"deltaSync,omitempty"`
}

type VendorCostInput struct {
	TenantID       string
	VariationID    string
	VendorID       string
	VendorCode     string
	UnitCostAmount int64
	Currency       string
}
