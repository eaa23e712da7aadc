package dto

// CommittedResult summarizes one committed-inventory reconciliation pass.
// Skipped is set, with a Reason, when the tenant cannot read invoices.
type CommittedResult struct {
	InvoicesFetched  int      `json:"invoicesFetched"`
	OpenInvoices     int      `json:"openInvoices"`
	RowsDeleted      int64    `json:"rowsDeleted"`
	RowsInserted     int      `json:"rowsInserted"`
	RowsRemaining    int64    `json:"rowsRemaining"`
	LineItemsSkipped int      `json:"lineItemsSkipped"`
	ReservedRows     int64    `json:"reservedRows"`
	Errors           []string `json:"errors,omitempty"`
	Skipped          bool     `json:"skipped,omitempty"`
	Reason           string   `json:"reason,omitempty"`
}

type CountsResult struct {
	Fetched  int      `json:"fetched"`
	Upserted int      `json:"upserted"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}
