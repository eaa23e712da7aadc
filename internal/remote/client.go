package remote

import (
	"context"
	"errors"
)

var ErrNoCredentials = errors.New("tenant has no remote credentials")

// Client is an authenticated, tenant-bound view of the remote commerce API.
// Implementations own HTTP-level retry and rate limiting.
type Client interface {
	ListCatalog(ctx context.Context, req ListCatalogRequest) (*CatalogPage, error)
	SearchCatalogObjects(ctx context.Context, req SearchCatalogRequest) (*CatalogPage, error)
	BatchRetrieveCatalogObjects(ctx context.Context, ids []string) ([]CatalogObject, error)
	BatchUpsertCatalogObjects(ctx context.Context, idempotencyKey string, objects []CatalogObject) ([]CatalogObject, error)
	RetrieveVendor(ctx context.Context, vendorID string) (*Vendor, error)
	ListLocations(ctx context.Context) ([]Location, error)
	SearchInvoices(ctx context.Context, req SearchInvoicesRequest) (*InvoicePage, error)
	BatchRetrieveOrders(ctx context.Context, locationID string, orderIDs []string) ([]Order, error)
	SearchOrders(ctx context.Context, req SearchOrdersRequest) (*OrderPage, error)
	BatchRetrieveInventoryCounts(ctx context.Context, req InventoryCountsRequest) (*InventoryCountPage, error)
}

// ClientFactory resolves a Client for a tenant. It returns ErrNoCredentials
// when the tenant cannot be authenticated.
type ClientFactory interface {
	ForTenant(ctx context.Context, tenantID string) (Client, error)
}

// ClientFactoryFunc adapts a function to ClientFactory.
type ClientFactoryFunc func(ctx context.Context, tenantID string) (Client, error)

func (f ClientFactoryFunc) ForTenant(ctx context.Context, tenantID string) (Client, error) {
	return f(ctx, tenantID)
}

// ActiveLocationIDs lists the IDs of the tenant's active locations.
func ActiveLocationIDs(ctx context.Context, c Client) ([]string, error) {
	locations, err := c.ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(locations))
	for _, loc := range locations {
		if loc.Status == "" || loc.Status == "ACTIVE" {
			ids = append(ids, loc.ID)
		}
	}
	return ids, nil
}
