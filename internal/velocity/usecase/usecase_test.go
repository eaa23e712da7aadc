package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/dedup"
	"github.com/fekuna/omnipos-sync-service/internal/logger"
	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/fekuna/omnipos-sync-service/internal/remote"
	"github.com/fekuna/omnipos-sync-service/internal/remote/remotetest"
	"github.com/fekuna/omnipos-sync-service/internal/velocity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenantID = "tenant-1"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type memRepo struct {
	mu           sync.Mutex
	rows         map[string]model.SalesVelocity
	variations   map[string]bool
	replaced     []int
	increments   int
	incrementErr error
	lookups      [][]string
}

func newMemRepo(variations ...string) *memRepo {
	m := &memRepo{rows: map[string]model.SalesVelocity{}, variations: map[string]bool{}}
	for _, v := range variations {
		m.variations[v] = true
	}
	return m
}

func rowKey(variationID, locationID string, period int) string {
	return fmt.Sprintf("%s|%s|%d", variationID, locationID, period)
}

func (m *memRepo) ReplacePeriod(_ context.Context, _ string, periodDays int, rows []model.SalesVelocity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.rows {
		if r.PeriodDays == periodDays {
			delete(m.rows, k)
		}
	}
	for _, r := range rows {
		m.rows[rowKey(r.VariationID, r.LocationID, r.PeriodDays)] = r
	}
	m.replaced = append(m.replaced, periodDays)
	return nil
}

func (m *memRepo) IncrementFromOrder(_ context.Context, rows []model.SalesVelocity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrementErr != nil {
		return m.incrementErr
	}
	m.increments++
	for _, r := range rows {
		k := rowKey(r.VariationID, r.LocationID, r.PeriodDays)
		if existing, ok := m.rows[k]; ok {
			existing.TotalQuantitySold = existing.TotalQuantitySold.Add(r.TotalQuantitySold)
			existing.TotalRevenueAmount += r.TotalRevenueAmount
			existing.ApplyAverages()
			m.rows[k] = existing
			continue
		}
		m.rows[k] = r
	}
	return nil
}

func (m *memRepo) ListByPeriod(_ context.Context, _ string, periodDays int) ([]model.SalesVelocity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SalesVelocity
	for _, r := range m.rows {
		if r.PeriodDays == periodDays {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) KnownVariationIDs(_ context.Context, _ string, ids []string) ([]string, error) {
	m.mu.Lock()
	m.lookups = append(m.lookups, ids)
	m.mu.Unlock()
	var out []string
	for _, id := range ids {
		if m.variations[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func newTestUseCase(repo *memRepo, fake *remotetest.Fake) velocity.UseCase {
	claims := dedup.NewCache[struct{}](dedup.DefaultTTL).WithClock(func() time.Time { return fixedNow })
	return NewVelocityUseCase(repo, fake.Factory(), dedup.NewMemoryClaimerWithCache(claims), logger.NewNop(),
		WithClock(func() time.Time { return fixedNow }))
}

func completedOrder(id string, age time.Duration, items ...remote.OrderLineItem) remote.Order {
	closed := fixedNow.Add(-age)
	return remote.Order{ID: id, LocationID: "L1", State: remote.OrderStateCompleted, ClosedAt: &closed, LineItems: items}
}

func lineItem(variationID, qty string, amount int64) remote.OrderLineItem {
	return remote.OrderLineItem{UID: variationID + qty, CatalogObjectID: variationID, Quantity: qty, TotalMoney: &remote.Money{Amount: amount, Currency: "USD"}}
}

func TestUpdateSalesVelocityFromOrderIsIdempotentWithinWindow(t *testing.T) {
	repo := newMemRepo("var-a")
	uc := newTestUseCase(repo, &remotetest.Fake{})
	order := completedOrder("o-1", 10*day, lineItem("var-a", "2", 1000))

	first, err := uc.UpdateSalesVelocityFromOrder(context.Background(), order, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Updated)
	assert.Equal(t, []int{91, 182, 365}, first.Periods)

	second, err := uc.UpdateSalesVelocityFromOrder(context.Background(), order, tenantID)
	require.NoError(t, err)
	assert.Zero(t, second.Updated)
	assert.Zero(t, second.Skipped)
	assert.Contains(t, second.Reason, "dedup")

	assert.Equal(t, 1, repo.increments)
	row := repo.rows[rowKey("var-a", "L1", 91)]
	assert.True(t, decimal.NewFromInt(2).Equal(row.TotalQuantitySold))
	assert.Equal(t, int64(1000), row.TotalRevenueAmount)
}

func TestUpdateSalesVelocityFromOrderDedupIsPerTenant(t *testing.T) {
	repo := newMemRepo("var-a")
	uc := newTestUseCase(repo, &remotetest.Fake{})
	order := completedOrder("o-1", day, lineItem("var-a", "1", 100))

	_, err := uc.UpdateSalesVelocityFromOrder(context.Background(), order, tenantID)
	require.NoError(t, err)
	res, err := uc.UpdateSalesVelocityFromOrder(context.Background(), order, "tenant-2")
	require.NoError(t, err)
	assert.Empty(t, res.Reason)
	assert.Equal(t, 2, repo.increments)
}

func TestUpdateSalesVelocityFromOrderSkipsExpiredPeriods(t *testing.T) {
	repo := newMemRepo("var-a")
	res, err := newTestUseCase(repo, &remotetest.Fake{}).UpdateSalesVelocityFromOrder(context.Background(),
		completedOrder("o-1", 100*day, lineItem("var-a", "3", 300)), tenantID)
	require.NoError(t, err)

	assert.Equal(t, []int{182, 365}, res.Periods)
	assert.NotContains(t, repo.rows, rowKey("var-a", "L1", 91))
	assert.Contains(t, repo.rows, rowKey("var-a", "L1", 182))
	assert.Contains(t, repo.rows, rowKey("var-a", "L1", 365))
}

func TestUpdateSalesVelocityFromOrderNoOps(t *testing.T) {
	repo := newMemRepo("var-a")
	uc := newTestUseCase(repo, &remotetest.Fake{})

	old := completedOrder("o-old", 400*day, lineItem("var-a", "1", 1))
	res, err := uc.UpdateSalesVelocityFromOrder(context.Background(), old, tenantID)
	require.NoError(t, err)
	assert.Equal(t, ReasonOutsidePeriods, res.Reason)

	open := completedOrder("o-open", day, lineItem("var-a", "1", 1))
	open.State = "OPEN"
	res, err = uc.UpdateSalesVelocityFromOrder(context.Background(), open, tenantID)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotCompleted, res.Reason)

	empty := completedOrder("o-empty", day)
	res, err = uc.UpdateSalesVelocityFromOrder(context.Background(), empty, tenantID)
	require.NoError(t, err)
	assert.Equal(t, ReasonNoLineItems, res.Reason)

	unclosed := completedOrder("o-unclosed", day, lineItem("var-a", "1", 1))
	unclosed.ClosedAt = nil
	res, err = uc.UpdateSalesVelocityFromOrder(context.Background(), unclosed, tenantID)
	require.NoError(t, err)
	assert.Equal(t, ReasonMissingClosed, res.Reason)

	_, err = uc.UpdateSalesVelocityFromOrder(context.Background(), remote.Order{}, tenantID)
	assert.ErrorIs(t, err, velocity.ErrInvalidInput)

	assert.Zero(t, repo.increments)

	// A no-op must not consume the dedup window.
	open.State = remote.OrderStateCompleted
	res, err = uc.UpdateSalesVelocityFromOrder(context.Background(), open, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
}

func TestUpdateSalesVelocityFromOrderReleasesClaimOnFailure(t *testing.T) {
	repo := newMemRepo("var-a")
	repo.incrementErr = errors.New("connection refused")
	uc := newTestUseCase(repo, &remotetest.Fake{})
	order := completedOrder("o-1", day, lineItem("var-a", "1", 100))

	_, err := uc.UpdateSalesVelocityFromOrder(context.Background(), order, tenantID)
	require.Error(t, err)

	repo.incrementErr = nil
	res, err := uc.UpdateSalesVelocityFromOrder(context.Background(), order, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, repo.increments)
}

func TestUpdateSalesVelocityFromOrderAddsToExistingTotals(t *testing.T) {
	repo := newMemRepo("var-a", "var-b")
	existing := model.SalesVelocity{
		TenantID: tenantID, VariationID: "var-a", LocationID: "L1", PeriodDays: 91,
		TotalQuantitySold: decimal.NewFromInt(89), TotalRevenueAmount: 8900,
	}
	existing.ApplyAverages()
	repo.rows[rowKey("var-a", "L1", 91)] = existing

	res, err := newTestUseCase(repo, &remotetest.Fake{}).UpdateSalesVelocityFromOrder(context.Background(),
		completedOrder("o-1", day,
			lineItem("var-a", "1", 100),
			lineItem("var-a", "1", 100),
			lineItem("var-x", "4", 400),
			lineItem("var-b", "bad", 1),
		), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 2, res.Skipped)

	row := repo.rows[rowKey("var-a", "L1", 91)]
	assert.True(t, decimal.NewFromInt(91).Equal(row.TotalQuantitySold))
	assert.Equal(t, int64(9100), row.TotalRevenueAmount)
	assert.True(t, decimal.NewFromInt(1).Equal(row.DailyAvgQuantity), row.DailyAvgQuantity.String())
	assert.True(t, decimal.NewFromInt(7).Equal(row.WeeklyAvgQuantity), row.WeeklyAvgQuantity.String())
}

func bulkFixture() (*memRepo, *remotetest.Fake) {
	repo := newMemRepo("var-a", "var-b")
	repo.rows[rowKey("var-old", "L1", 91)] = model.SalesVelocity{VariationID: "var-old", LocationID: "L1", PeriodDays: 91}
	fake := &remotetest.Fake{
		Locations: []remote.Location{{ID: "L1"}},
		Closed: []remote.Order{
			completedOrder("o-1", 10*day, lineItem("var-a", "1", 100), lineItem("var-x", "5", 500)),
			completedOrder("o-2", 100*day, lineItem("var-a", "2", 200)),
			completedOrder("o-3", 200*day, lineItem("var-b", "3", 300)),
			completedOrder("o-4", 400*day, lineItem("var-b", "9", 900)),
		},
	}
	return repo, fake
}

func TestSyncSalesVelocityAllPeriodsBucketsOneFetch(t *testing.T) {
	repo, fake := bulkFixture()

	res, err := newTestUseCase(repo, fake).SyncSalesVelocityAllPeriods(context.Background(), tenantID, 365)
	require.NoError(t, err)

	assert.Equal(t, 3, res.OrdersProcessed)
	assert.Equal(t, map[int]int{91: 1, 182: 1, 365: 2}, res.Periods)
	assert.Equal(t, 1, res.UnknownVariations)
	assert.Equal(t, 1, fake.CallCount("SearchOrders"))

	assert.NotContains(t, repo.rows, rowKey("var-old", "L1", 91))
	assert.NotContains(t, repo.rows, rowKey("var-x", "L1", 91))
	assert.True(t, decimal.NewFromInt(1).Equal(repo.rows[rowKey("var-a", "L1", 91)].TotalQuantitySold))
	a182 := repo.rows[rowKey("var-a", "L1", 182)]
	assert.True(t, decimal.NewFromInt(3).Equal(a182.TotalQuantitySold))
	assert.Equal(t, int64(300), a182.TotalRevenueAmount)
	assert.Equal(t, fixedNow.Add(-182*day), a182.PeriodStartDate)
	assert.True(t, decimal.NewFromInt(3).Equal(repo.rows[rowKey("var-b", "L1", 365)].TotalQuantitySold))
}

func TestSyncSalesVelocityAllPeriodsHonoursMaxPeriod(t *testing.T) {
	repo, fake := bulkFixture()

	res, err := newTestUseCase(repo, fake).SyncSalesVelocityAllPeriods(context.Background(), tenantID, 182)
	require.NoError(t, err)
	assert.Equal(t, []int{91, 182}, repo.replaced)
	assert.Equal(t, 2, res.OrdersProcessed)

	_, err = newTestUseCase(repo, fake).SyncSalesVelocityAllPeriods(context.Background(), tenantID, 30)
	assert.ErrorIs(t, err, velocity.ErrInvalidInput)
}

func TestSyncSalesVelocityAllPeriodsReturnsFetchError(t *testing.T) {
	repo, fake := bulkFixture()
	fake.OrderErr = &remote.APIError{StatusCode: 500}

	_, err := newTestUseCase(repo, fake).SyncSalesVelocityAllPeriods(context.Background(), tenantID, 365)
	require.Error(t, err)
	assert.Empty(t, repo.replaced)
}

func TestSyncResultJSON(t *testing.T) {
	repo, fake := bulkFixture()
	res, err := newTestUseCase(repo, fake).SyncSalesVelocityAllPeriods(context.Background(), tenantID, 365)
	require.NoError(t, err)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	var decoded map[string]int
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, 3, decoded["ordersProcessed"])
	assert.Equal(t, 1, decoded["91d"])
	assert.Equal(t, 2, decoded["365d"])
}

func TestApplicablePeriods(t *testing.T) {
	assert.Equal(t, []int{91, 182, 365}, applicablePeriods(0))
	assert.Equal(t, []int{91, 182, 365}, applicablePeriods(91*day))
	assert.Equal(t, []int{182, 365}, applicablePeriods(100*day))
	assert.Equal(t, []int{365}, applicablePeriods(200*day))
	assert.Empty(t, applicablePeriods(366*day))

	assert.Equal(t, []int{182, 365}, applicablePeriods(91*day+20*time.Hour))
	assert.Equal(t, []int{182, 365}, applicablePeriods(91*day+time.Second))
	assert.Equal(t, []int{365}, applicablePeriods(365*day))
	assert.Empty(t, applicablePeriods(365*day+time.Hour))
	assert.Empty(t, applicablePeriods(365*day+23*time.Hour))
}

func TestIncrementalAndBulkShareWindowBoundary(t *testing.T) {
	order := completedOrder("o-edge", 91*day+20*time.Hour, lineItem("var-a", "2", 200))

	incRepo := newMemRepo("var-a")
	res, err := newTestUseCase(incRepo, &remotetest.Fake{}).UpdateSalesVelocityFromOrder(context.Background(), order, tenantID)
	require.NoError(t, err)
	assert.Equal(t, []int{182, 365}, res.Periods)
	assert.NotContains(t, incRepo.rows, rowKey("var-a", "L1", 91))

	bulkRepo := newMemRepo("var-a")
	fake := &remotetest.Fake{Locations: []remote.Location{{ID: "L1"}}, Closed: []remote.Order{order}}
	bulk, err := newTestUseCase(bulkRepo, fake).SyncSalesVelocityAllPeriods(context.Background(), tenantID, 365)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{91: 0, 182: 1, 365: 1}, bulk.Periods)
	assert.NotContains(t, bulkRepo.rows, rowKey("var-a", "L1", 91))

	stale := completedOrder("o-stale", 365*day+time.Hour, lineItem("var-a", "1", 100))
	res, err = newTestUseCase(newMemRepo("var-a"), &remotetest.Fake{}).UpdateSalesVelocityFromOrder(context.Background(), stale, tenantID)
	require.NoError(t, err)
	assert.Equal(t, ReasonOutsidePeriods, res.Reason)
}

func TestSyncSalesVelocityAllPeriodsLooksUpEachVariationOnce(t *testing.T) {
	repo := newMemRepo("var-a", "var-b")
	fake := &remotetest.Fake{
		Locations: []remote.Location{{ID: "L1"}},
		Closed: []remote.Order{
			completedOrder("o-1", 2*day, lineItem("var-b", "1", 100), lineItem("var-a", "1", 100)),
			completedOrder("o-2", 3*day, lineItem("var-a", "1", 100), lineItem("var-b", "1", 100)),
			completedOrder("o-3", 4*day, lineItem("var-a", "1", 100), lineItem("var-a", "1", 100)),
		},
	}

	_, err := newTestUseCase(repo, fake).SyncSalesVelocityAllPeriods(context.Background(), tenantID, 91)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"var-b", "var-a"}}, repo.lookups)
	assert.True(t, decimal.NewFromInt(4).Equal(repo.rows[rowKey("var-a", "L1", 91)].TotalQuantitySold))
}
