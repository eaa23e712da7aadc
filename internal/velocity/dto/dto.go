package dto

import (
	"encoding/json"
	"strconv"
)

// SyncResult reports a bulk recomputation. Periods maps period length in
// days to the number of rows written for it.
type SyncResult struct {
	OrdersProcessed   int
	Periods           map[int]int
	UnknownVariations int
	LineItemsSkipped  int
}

// MarshalJSON renders periods as "<days>d" keys next to the counters.
func (r SyncResult) MarshalJSON() ([]byte, error) {
	out := map[string]int{
		"ordersProcessed":   r.OrdersProcessed,
		"unknownVariations": r.UnknownVariations,
		"lineItemsSkipped":  r.LineItemsSkipped,
	}
	for days, n := range r.Periods {
		out[strconv.Itoa(days)+"d"] = n
	}
	return json.Marshal(out)
}

// UpdateResult reports an incremental update from one order. Updated and
// Skipped count line items; Reason explains a no-op.
type UpdateResult struct {
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Periods []int  `json:"periods"`
	Reason  string `json:"reason,omitempty"`
}
