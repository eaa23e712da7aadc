package usecase

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/dedup"
	"github.com/fekuna/omnipos-sync-service/internal/inventory"
	"github.com/fekuna/omnipos-sync-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-sync-service/internal/logger"
	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/fekuna/omnipos-sync-service/internal/remote"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	invoicePageSize = 200
	orderBatchSize  = 100

	reasonUnauthorized       = "unauthorized"
	reasonUnauthorizedCached = "unauthorized_cached"
)

type inventoryUseCase struct {
	repo    inventory.Repository
	clients remote.ClientFactory
	// unauthorized remembers tenants whose invoice calls were rejected.
	unauthorized *dedup.Cache[time.Time]
	logger       logger.ZapLogger
	now          func() time.Time
}

type Option func(*inventoryUseCase)

func WithClock(now func() time.Time) Option {
	return func(uc *inventoryUseCase) { uc.now = now }
}

func NewInventoryUseCase(repo inventory.Repository, clients remote.ClientFactory, cfg inventory.Config, log logger.ZapLogger, opts ...Option) inventory.UseCase {
	if cfg.UnauthorizedTTL <= 0 {
		cfg.UnauthorizedTTL = time.Hour
	}
	uc := &inventoryUseCase{
		repo:    repo,
		clients: clients,
		logger:  log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	uc.unauthorized = dedup.NewCache[time.Time](cfg.UnauthorizedTTL).WithClock(uc.now)
	return uc
}

// SyncCommittedInventory rebuilds committed inventory from the tenant's open
// invoices and then rebuilds the RESERVED_FOR_SALE counts from those rows.
func (uc *inventoryUseCase) SyncCommittedInventory(ctx context.Context, tenantID string) (*dto.CommittedResult, error) {
	log := uc.logger.With(zap.String("tenant_id", tenantID))
	if uc.unauthorized.Has(tenantID) {
		log.Debug("skipping committed inventory, invoice access recently denied")
		return &dto.CommittedResult{Skipped: true, Reason: reasonUnauthorizedCached}, nil
	}

	client, err := uc.clients.ForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	start := uc.now()
	invoices, err := uc.fetchInvoices(ctx, client)
	if err != nil {
		if remote.IsUnauthorized(err) {
			uc.unauthorized.Set(tenantID, start)
			log.Warn("invoice access denied, skipping committed inventory", zap.Error(err))
			return &dto.CommittedResult{Skipped: true, Reason: reasonUnauthorized}, nil
		}
		return nil, fmt.Errorf("fetch invoices: %w", err)
	}

	result := &dto.CommittedResult{InvoicesFetched: len(invoices)}
	open := make(map[string]remote.Invoice)
	for _, inv := range invoices {
		if inv.IsOpen() {
			open[inv.ID] = inv
		}
	}
	result.OpenInvoices = len(open)
	openIDs := make([]string, 0, len(open))
	for id := range open {
		openIDs = append(openIDs, id)
	}
	slices.Sort(openIDs)

	deleted, err := uc.repo.DeleteRowsNotInInvoices(ctx, tenantID, openIDs)
	if err != nil {
		return nil, fmt.Errorf("delete closed invoice rows: %w", err)
	}
	result.RowsDeleted = deleted

	if len(openIDs) > 0 {
		if err := uc.reconcileInvoices(ctx, tenantID, client, open, openIDs, result); err != nil {
			return nil, err
		}
	}

	reserved, err := uc.repo.RebuildReservedCounts(ctx, tenantID, uc.now())
	if err != nil {
		return nil, fmt.Errorf("rebuild reserved counts: %w", err)
	}
	result.ReservedRows = reserved

	remaining, err := uc.repo.CountRows(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count committed rows: %w", err)
	}
	result.RowsRemaining = remaining

	log.Info("committed inventory reconciled",
		zap.Int("invoices_fetched", result.InvoicesFetched),
		zap.Int("open_invoices", result.OpenInvoices),
		zap.Int64("rows_deleted", result.RowsDeleted),
		zap.Int("rows_inserted", result.RowsInserted),
		zap.Int64("rows_remaining", result.RowsRemaining),
		zap.Int("line_items_skipped", result.LineItemsSkipped),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", uc.now().Sub(start)),
	)
	return result, nil
}

func (uc *inventoryUseCase) fetchInvoices(ctx context.Context, client remote.Client) ([]remote.Invoice, error) {
	locations, err := remote.ActiveLocationIDs(ctx, client)
	if err != nil {
		return nil, err
	}
	if len(locations) == 0 {
		return nil, nil
	}

	var out []remote.Invoice
	cursor := ""
	for {
		page, err := client.SearchInvoices(ctx, remote.SearchInvoicesRequest{
			LocationIDs: locations,
			Cursor:      cursor,
			Limit:       invoicePageSize,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, page.Invoices...)
		if page.Cursor == "" {
			return out, nil
		}
		cursor = page.Cursor
	}
}

// reconcileInvoices replaces the rows of every open invoice. A failure on one
// invoice is recorded and leaves that invoice's previous rows in place.
func (uc *inventoryUseCase) reconcileInvoices(ctx context.Context, tenantID string, client remote.Client, open map[string]remote.Invoice, openIDs []string, result *dto.CommittedResult) error {
	log := uc.logger.With(zap.String("tenant_id", tenantID))

	orderIDsByLocation := map[string][]string{}
	for _, id := range openIDs {
		inv := open[id]
		if inv.OrderID == "" {
			continue
		}
		orderIDsByLocation[inv.LocationID] = append(orderIDsByLocation[inv.LocationID], inv.OrderID)
	}

	orders := map[string]remote.Order{}
	failedLocations := map[string]error{}
	for location, ids := range orderIDsByLocation {
		for chunk := range slices.Chunk(ids, orderBatchSize) {
			fetched, err := client.BatchRetrieveOrders(ctx, location, chunk)
			if err != nil {
				failedLocations[location] = err
				break
			}
			for _, o := range fetched {
				orders[o.ID] = o
			}
		}
	}

	var refs []string
	seen := map[string]struct{}{}
	for _, o := range orders {
		for _, li := range o.LineItems {
			if li.CatalogObjectID == "" {
				continue
			}
			if _, ok := seen[li.CatalogObjectID]; !ok {
				seen[li.CatalogObjectID] = struct{}{}
				refs = append(refs, li.CatalogObjectID)
			}
		}
	}
	known := map[string]bool{}
	if len(refs) > 0 {
		ids, err := uc.repo.KnownVariationIDs(ctx, tenantID, refs)
		if err != nil {
			return fmt.Errorf("check variations: %w", err)
		}
		for _, id := range ids {
			known[id] = true
		}
	}

	now := uc.now()
	for _, id := range openIDs {
		inv := open[id]
		if err, ok := failedLocations[inv.LocationID]; ok {
			result.Errors = append(result.Errors, fmt.Sprintf("invoice %s: fetch order: %v", id, err))
			continue
		}
		var rows []model.CommittedInventory
		if inv.OrderID != "" {
			order, ok := orders[inv.OrderID]
			if !ok {
				result.Errors = append(result.Errors, fmt.Sprintf("invoice %s: order %s not found", id, inv.OrderID))
				continue
			}
			rows = uc.buildRows(tenantID, inv, order, known, now, result)
		}
		if err := uc.repo.ReplaceInvoiceRows(ctx, tenantID, id, rows); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("invoice %s: %v", id, err))
			log.Error("failed to replace committed rows", zap.String("invoice_id", id), zap.Error(err))
			continue
		}
		result.RowsInserted += len(rows)
	}
	return nil
}

type rowKey struct {
	variationID string
	locationID  string
}

// buildRows sums an order's line items into one row per variation and
// location. Line items for variations not stored locally are skipped.
func (uc *inventoryUseCase) buildRows(tenantID string, inv remote.Invoice, order remote.Order, known map[string]bool, now time.Time, result *dto.CommittedResult) []model.CommittedInventory {
	location := order.LocationID
	if location == "" {
		location = inv.LocationID
	}

	totals := map[rowKey]decimal.Decimal{}
	var keys []rowKey
	for _, li := range order.LineItems {
		if li.CatalogObjectID == "" {
			continue
		}
		if !known[li.CatalogObjectID] {
			result.LineItemsSkipped++
			uc.logger.Warn("line item references unknown variation, catalog sync required",
				zap.String("tenant_id", tenantID),
				zap.String("invoice_id", inv.ID),
				zap.String("variation_id", li.CatalogObjectID),
			)
			continue
		}
		qty, err := decimal.NewFromString(li.Quantity)
		if err != nil {
			result.LineItemsSkipped++
			result.Errors = append(result.Errors, fmt.Sprintf("invoice %s line %s: invalid quantity %q", inv.ID, li.UID, li.Quantity))
			continue
		}
		k := rowKey{variationID: li.CatalogObjectID, locationID: location}
		if _, ok := totals[k]; !ok {
			keys = append(keys, k)
		}
		totals[k] = totals[k].Add(qty)
	}

	rows := make([]model.CommittedInventory, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, model.CommittedInventory{
			ID:            uuid.NewString(),
			TenantID:      tenantID,
			InvoiceID:     inv.ID,
			OrderID:       order.ID,
			VariationID:   k.variationID,
			LocationID:    k.locationID,
			Quantity:      totals[k],
			InvoiceStatus: inv.Status,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return rows
}

// SyncInventoryCounts mirrors the remote IN_STOCK counts for known variations.
func (uc *inventoryUseCase) SyncInventoryCounts(ctx context.Context, tenantID string) (*dto.CountsResult, error) {
	client, err := uc.clients.ForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	log := uc.logger.With(zap.String("tenant_id", tenantID))

	locations, err := remote.ActiveLocationIDs(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}

	var fetched []remote.InventoryCount
	cursor := ""
	for {
		page, err := client.BatchRetrieveInventoryCounts(ctx, remote.InventoryCountsRequest{
			LocationIDs: locations,
			States:      []string{model.StateInStock},
			Cursor:      cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch inventory counts: %w", err)
		}
		fetched = append(fetched, page.Counts...)
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	result := &dto.CountsResult{Fetched: len(fetched)}
	var refs []string
	seen := make(map[string]struct{}, len(fetched))
	for _, c := range fetched {
		if _, ok := seen[c.CatalogObjectID]; !ok {
			seen[c.CatalogObjectID] = struct{}{}
			refs = append(refs, c.CatalogObjectID)
		}
	}
	known := map[string]bool{}
	if len(refs) > 0 {
		ids, err := uc.repo.KnownVariationIDs(ctx, tenantID, refs)
		if err != nil {
			return nil, fmt.Errorf("check variations: %w", err)
		}
		for _, id := range ids {
			known[id] = true
		}
	}

	now := uc.now()
	counts := make([]model.InventoryCount, 0, len(fetched))
	for _, c := range fetched {
		if c.State != "" && c.State != model.StateInStock {
			continue
		}
		if !known[c.CatalogObjectID] {
			result.Skipped++
			continue
		}
		qty, err := decimal.NewFromString(c.Quantity)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("count %s@%s: invalid quantity %q", c.CatalogObjectID, c.LocationID, c.Quantity))
			continue
		}
		count := model.InventoryCount{
			TenantID:    tenantID,
			VariationID: c.CatalogObjectID,
			LocationID:  c.LocationID,
			State:       model.StateInStock,
			Quantity:    qty,
			UpdatedAt:   now,
		}
		if !c.CalculatedAt.IsZero() {
			at := c.CalculatedAt
			count.CalculatedAt = &at
		}
		counts = append(counts, count)
	}
	if err := uc.repo.UpsertCounts(ctx, counts); err != nil {
		return nil, fmt.Errorf("store inventory counts: %w", err)
	}
	result.Upserted = len(counts)

	if result.Skipped > 0 {
		log.Warn("inventory counts reference unknown variations", zap.Int("skipped", result.Skipped))
	}
	log.Info("inventory counts synced", zap.Int("fetched", result.Fetched), zap.Int("upserted", result.Upserted))
	return result, nil
}
