package usecase

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/dedup"
	"github.com/fekuna/omnipos-sync-service/internal/logger"
	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/fekuna/omnipos-sync-service/internal/remote"
	"github.com/fekuna/omnipos-sync-service/internal/velocity"
	"github.com/fekuna/omnipos-sync-service/internal/velocity/dto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	orderPageSize = 500
	day           = 24 * time.Hour

	ReasonDedup          = "dedup_recently_processed"
	ReasonNotCompleted   = "order_not_completed"
	ReasonNoLineItems    = "no_line_items"
	ReasonMissingClosed  = "missing_closed_at"
	ReasonOutsidePeriods = "order_outside_periods"
)

type velocityUseCase struct {
	repo    velocity.Repository
	clients remote.ClientFactory
	claimer dedup.Claimer
	logger  logger.ZapLogger
	now     func() time.Time
}

type Option func(*velocityUseCase)

func WithClock(now func() time.Time) Option {
	return func(uc *velocityUseCase) { uc.now = now }
}

func NewVelocityUseCase(repo velocity.Repository, clients remote.ClientFactory, claimer dedup.Claimer, log logger.ZapLogger, opts ...Option) velocity.UseCase {
	uc := &velocityUseCase{
		repo:    repo,
		clients: clients,
		claimer: claimer,
		logger:  log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type bucketKey struct {
	variationID string
	locationID  string
}

type bucket struct {
	quantity decimal.Decimal
	revenue  int64
}

func (b *bucket) add(qty decimal.Decimal, money *remote.Money) {
	b.quantity = b.quantity.Add(qty)
	if money != nil {
		b.revenue += money.Amount
	}
}

// SyncSalesVelocityAllPeriods recomputes every standard period up to
// maxPeriodDays from a single fetch of the longest window.
func (uc *velocityUseCase) SyncSalesVelocityAllPeriods(ctx context.Context, tenantID string, maxPeriodDays int) (*dto.SyncResult, error) {
	var periods []int
	for _, p := range velocity.StandardPeriods {
		if maxPeriodDays <= 0 || p <= maxPeriodDays {
			periods = append(periods, p)
		}
	}
	if len(periods) == 0 {
		return nil, fmt.Errorf("%w: no standard period fits within %d days", velocity.ErrInvalidInput, maxPeriodDays)
	}

	client, err := uc.clients.ForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	log := uc.logger.With(zap.String("tenant_id", tenantID))

	end := uc.now()
	longest := slices.Max(periods)
	start := end.Add(-time.Duration(longest) * day)

	orders, err := uc.fetchCompletedOrders(ctx, client, start, end)
	if err != nil {
		return nil, err
	}

	result := &dto.SyncResult{OrdersProcessed: len(orders), Periods: map[int]int{}}
	buckets := make(map[int]map[bucketKey]*bucket, len(periods))
	for _, p := range periods {
		buckets[p] = map[bucketKey]*bucket{}
	}
	var refs []string
	seen := map[string]struct{}{}
	for _, o := range orders {
		if o.ClosedAt == nil {
			continue
		}
		for _, li := range o.LineItems {
			if li.CatalogObjectID == "" {
				continue
			}
			qty, err := decimal.NewFromString(li.Quantity)
			if err != nil {
				result.LineItemsSkipped++
				continue
			}
			if _, ok := seen[li.CatalogObjectID]; !ok {
				seen[li.CatalogObjectID] = struct{}{}
				refs = append(refs, li.CatalogObjectID)
			}
			k := bucketKey{variationID: li.CatalogObjectID, locationID: o.LocationID}
			for _, p := range periods {
				if o.ClosedAt.Before(end.Add(-time.Duration(p) * day)) {
					continue
				}
				b, ok := buckets[p][k]
				if !ok {
					b = &bucket{}
					buckets[p][k] = b
				}
				b.add(qty, li.TotalMoney)
			}
		}
	}

	known, err := uc.knownVariations(ctx, tenantID, refs)
	if err != nil {
		return nil, err
	}
	for _, id := range refs {
		if !known[id] {
			result.UnknownVariations++
		}
	}
	if result.UnknownVariations > 0 {
		log.Warn("orders reference variations missing locally, catalog sync required",
			zap.Int("unknown_variations", result.UnknownVariations))
	}

	for _, p := range periods {
		rows := make([]model.SalesVelocity, 0, len(buckets[p]))
		for k, b := range buckets[p] {
			if !known[k.variationID] {
				continue
			}
			rows = append(rows, uc.newRow(tenantID, k, p, b, end))
		}
		if err := uc.repo.ReplacePeriod(ctx, tenantID, p, rows); err != nil {
			return nil, fmt.Errorf("store %dd velocity: %w", p, err)
		}
		result.Periods[p] = len(rows)
	}

	log.Info("sales velocity recomputed",
		zap.Int("orders_processed", result.OrdersProcessed),
		zap.Any("periods", result.Periods),
		zap.Duration("duration", uc.now().Sub(end)),
	)
	return result, nil
}

func (uc *velocityUseCase) fetchCompletedOrders(ctx context.Context, client remote.Client, start, end time.Time) ([]remote.Order, error) {
	locations, err := remote.ActiveLocationIDs(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	if len(locations) == 0 {
		return nil, nil
	}

	var out []remote.Order
	cursor := ""
	for {
		page, err := client.SearchOrders(ctx, remote.SearchOrdersRequest{
			LocationIDs:   locations,
			States:        []string{remote.OrderStateCompleted},
			ClosedAtStart: &start,
			ClosedAtEnd:   &end,
			Cursor:        cursor,
			Limit:         orderPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("search orders: %w", err)
		}
		out = append(out, page.Orders...)
		if page.Cursor == "" {
			return out, nil
		}
		cursor = page.Cursor
	}
}

func (uc *velocityUseCase) knownVariations(ctx context.Context, tenantID string, refs []string) (map[string]bool, error) {
	known := make(map[string]bool, len(refs))
	if len(refs) == 0 {
		return known, nil
	}
	ids, err := uc.repo.KnownVariationIDs(ctx, tenantID, refs)
	if err != nil {
		return nil, fmt.Errorf("check variations: %w", err)
	}
	for _, id := range ids {
		known[id] = true
	}
	return known, nil
}

func (uc *velocityUseCase) newRow(tenantID string, k bucketKey, periodDays int, b *bucket, end time.Time) model.SalesVelocity {
	row := model.SalesVelocity{
		TenantID:           tenantID,
		VariationID:        k.variationID,
		LocationID:         k.locationID,
		PeriodDays:         periodDays,
		TotalQuantitySold:  b.quantity,
		TotalRevenueAmount: b.revenue,
		PeriodStartDate:    end.Add(-time.Duration(periodDays) * day),
		PeriodEndDate:      end,
		UpdatedAt:          uc.now(),
	}
	row.ApplyAverages()
	return row
}

// applicablePeriods returns the standard periods an order closed age ago
// still falls within. The boundary matches the bulk recompute window.
func applicablePeriods(age time.Duration) []int {
	var out []int
	for _, p := range velocity.StandardPeriods {
		if age <= time.Duration(p)*day {
			out = append(out, p)
		}
	}
	return out
}

func claimKey(orderID, tenantID string) string {
	return "velocity:" + orderID + ":" + tenantID
}

// UpdateSalesVelocityFromOrder adds one completed order to every period it
// falls within. Repeated calls for the same order inside the dedup window
// are no-ops.
func (uc *velocityUseCase) UpdateSalesVelocityFromOrder(ctx context.Context, order remote.Order, tenantID string) (*dto.UpdateResult, error) {
	if tenantID == "" || order.ID == "" {
		return nil, fmt.Errorf("%w: tenant id and order id are required", velocity.ErrInvalidInput)
	}
	log := uc.logger.With(zap.String("tenant_id", tenantID), zap.String("order_id", order.ID))

	switch {
	case order.State != remote.OrderStateCompleted:
		return &dto.UpdateResult{Reason: ReasonNotCompleted}, nil
	case len(order.LineItems) == 0:
		return &dto.UpdateResult{Reason: ReasonNoLineItems}, nil
	case order.ClosedAt == nil:
		return &dto.UpdateResult{Reason: ReasonMissingClosed}, nil
	}

	now := uc.now()
	periods := applicablePeriods(now.Sub(*order.ClosedAt))
	if len(periods) == 0 {
		log.Debug("order older than every velocity period")
		return &dto.UpdateResult{Reason: ReasonOutsidePeriods}, nil
	}

	key := claimKey(order.ID, tenantID)
	claimed, err := uc.claimer.Claim(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("claim order: %w", err)
	}
	if !claimed {
		log.Info("velocity update skipped", zap.String("reason", ReasonDedup))
		return &dto.UpdateResult{Reason: ReasonDedup}, nil
	}

	result, err := uc.applyOrder(ctx, order, tenantID, periods, now)
	if err != nil {
		if relErr := uc.claimer.Release(ctx, key); relErr != nil {
			log.Warn("failed to release velocity claim", zap.Error(relErr))
		}
		return nil, err
	}
	log.Debug("velocity updated from order",
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Ints("periods", result.Periods),
	)
	return result, nil
}

func (uc *velocityUseCase) applyOrder(ctx context.Context, order remote.Order, tenantID string, periods []int, now time.Time) (*dto.UpdateResult, error) {
	result := &dto.UpdateResult{Periods: periods}

	var refs []string
	seen := map[string]struct{}{}
	for _, li := range order.LineItems {
		if li.CatalogObjectID == "" {
			continue
		}
		if _, ok := seen[li.CatalogObjectID]; !ok {
			seen[li.CatalogObjectID] = struct{}{}
			refs = append(refs, li.CatalogObjectID)
		}
	}
	known, err := uc.knownVariations(ctx, tenantID, refs)
	if err != nil {
		return nil, err
	}

	totals := map[bucketKey]*bucket{}
	var keys []bucketKey
	for _, li := range order.LineItems {
		if !known[li.CatalogObjectID] {
			result.Skipped++
			continue
		}
		qty, err := decimal.NewFromString(li.Quantity)
		if err != nil {
			result.Skipped++
			continue
		}
		k := bucketKey{variationID: li.CatalogObjectID, locationID: order.LocationID}
		b, ok := totals[k]
		if !ok {
			b = &bucket{}
			totals[k] = b
			keys = append(keys, k)
		}
		b.add(qty, li.TotalMoney)
		result.Updated++
	}

	rows := make([]model.SalesVelocity, 0, len(keys)*len(periods))
	for _, k := range keys {
		for _, p := range periods {
			rows = append(rows, uc.newRow(tenantID, k, p, totals[k], now))
		}
	}
	if err := uc.repo.IncrementFromOrder(ctx, rows); err != nil {
		return nil, fmt.Errorf("increment velocity: %w", err)
	}
	return result, nil
}
