// Package remotetest provides an in-memory remote.Client for tests.
package remotetest

import (
	"context"
	"sync"

	"github.com/fekuna/omnipos-sync-service/internal/remote"
)

// Fake serves canned data. Catalog pages are returned one per call in order;
// errors set on the Err fields are returned instead of data.
type Fake struct {
	mu sync.Mutex

	CatalogPages []remote.CatalogPage
	SearchPages  []remote.CatalogPage
	Vendors      map[string]remote.Vendor
	Locations    []remote.Location
	Invoices     []remote.Invoice
	Orders       map[string]remote.Order
	Closed       []remote.Order
	Counts       []remote.InventoryCount

	// Upsert handles BatchUpsertCatalogObjects when set.
	Upsert func(objects []remote.CatalogObject) ([]remote.CatalogObject, error)
	// Retrieve handles BatchRetrieveCatalogObjects when set.
	Retrieve func(ids []string) ([]remote.CatalogObject, error)

	ListErr     error
	SearchErr   error
	VendorErr   error
	LocationErr error
	InvoiceErr  error
	OrderErr    error
	CountErr    error

	Calls map[string]int
}

func (f *Fake) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Calls == nil {
		f.Calls = map[string]int{}
	}
	f.Calls[name]++
}

// CallCount returns how many times the named method was invoked.
func (f *Fake) CallCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[name]
}

func pageAt(pages []remote.CatalogPage, cursor string) *remote.CatalogPage {
	if cursor == "" {
		if len(pages) == 0 {
			return &remote.CatalogPage{}
		}
		page := pages[0]
		return &page
	}
	for i := 1; i < len(pages); i++ {
		if pages[i-1].Cursor == cursor {
			page := pages[i]
			return &page
		}
	}
	return &remote.CatalogPage{}
}

func (f *Fake) ListCatalog(_ context.Context, req remote.ListCatalogRequest) (*remote.CatalogPage, error) {
	f.record("ListCatalog")
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return pageAt(f.CatalogPages, req.Cursor), nil
}

func (f *Fake) SearchCatalogObjects(_ context.Context, req remote.SearchCatalogRequest) (*remote.CatalogPage, error) {
	f.record("SearchCatalogObjects")
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	return pageAt(f.SearchPages, req.Cursor), nil
}

func (f *Fake) BatchRetrieveCatalogObjects(_ context.Context, ids []string) ([]remote.CatalogObject, error) {
	f.record("BatchRetrieveCatalogObjects")
	if f.Retrieve != nil {
		return f.Retrieve(ids)
	}
	return nil, nil
}

func (f *Fake) BatchUpsertCatalogObjects(_ context.Context, _ string, objects []remote.CatalogObject) ([]remote.CatalogObject, error) {
	f.record("BatchUpsertCatalogObjects")
	if f.Upsert != nil {
		return f.Upsert(objects)
	}
	return objects, nil
}

func (f *Fake) RetrieveVendor(_ context.Context, vendorID string) (*remote.Vendor, error) {
	f.record("RetrieveVendor")
	if f.VendorErr != nil {
		return nil, f.VendorErr
	}
	v, ok := f.Vendors[vendorID]
	if !ok {
		return nil, &remote.APIError{StatusCode: 404, Code: "NOT_FOUND"}
	}
	return &v, nil
}

func (f *Fake) ListLocations(context.Context) ([]remote.Location, error) {
	f.record("ListLocations")
	if f.LocationErr != nil {
		return nil, f.LocationErr
	}
	return f.Locations, nil
}

func (f *Fake) SearchInvoices(_ context.Context, req remote.SearchInvoicesRequest) (*remote.InvoicePage, error) {
	f.record("SearchInvoices")
	if f.InvoiceErr != nil {
		return nil, f.InvoiceErr
	}
	if req.Cursor != "" {
		return &remote.InvoicePage{}, nil
	}
	return &remote.InvoicePage{Invoices: f.Invoices}, nil
}

func (f *Fake) BatchRetrieveOrders(_ context.Context, _ string, orderIDs []string) ([]remote.Order, error) {
	f.record("BatchRetrieveOrders")
	if f.OrderErr != nil {
		return nil, f.OrderErr
	}
	var out []remote.Order
	for _, id := range orderIDs {
		if o, ok := f.Orders[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *Fake) SearchOrders(_ context.Context, req remote.SearchOrdersRequest) (*remote.OrderPage, error) {
	f.record("SearchOrders")
	if f.OrderErr != nil {
		return nil, f.OrderErr
	}
	if req.Cursor != "" {
		return &remote.OrderPage{}, nil
	}
	var out []remote.Order
	for _, o := range f.Closed {
		if o.ClosedAt == nil {
			continue
		}
		if req.ClosedAtStart != nil && o.ClosedAt.Before(*req.ClosedAtStart) {
			continue
		}
		if req.ClosedAtEnd != nil && o.ClosedAt.After(*req.ClosedAtEnd) {
			continue
		}
		out = append(out, o)
	}
	return &remote.OrderPage{Orders: out}, nil
}

func (f *Fake) BatchRetrieveInventoryCounts(_ context.Context, req remote.InventoryCountsRequest) (*remote.InventoryCountPage, error) {
	f.record("BatchRetrieveInventoryCounts")
	if f.CountErr != nil {
		return nil, f.CountErr
	}
	if req.Cursor != "" {
		return &remote.InventoryCountPage{}, nil
	}
	return &remote.InventoryCountPage{Counts: f.Counts}, nil
}

// Factory returns a ClientFactory that always yields f.
func (f *Fake) Factory() remote.ClientFactory {
	return remote.ClientFactoryFunc(func(context.Context, string) (remote.Client, error) {
		return f, nil
	})
}
