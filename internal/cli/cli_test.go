package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	catalogdto "github.com/fekuna/omnipos-sync-service/internal/catalog/dto"
	inventorydto "github.com/fekuna/omnipos-sync-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-sync-service/internal/logger"
	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/fekuna/omnipos-sync-service/internal/remote"
	"github.com/fekuna/omnipos-sync-service/internal/retry"
	retrydto "github.com/fekuna/omnipos-sync-service/internal/retry/dto"
	"github.com/fekuna/omnipos-sync-service/internal/syncqueue"
	velocitydto "github.com/fekuna/omnipos-sync-service/internal/velocity/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopStateRepo struct{}

func (nopStateRepo) MarkRunning(context.Context, string, syncqueue.Kind, time.Time) error {
	return nil
}

func (nopStateRepo) MarkFinished(context.Context, string, syncqueue.Kind, model.SyncStatus, time.Time, int64, *string) error {
	return nil
}

func (nopStateRepo) MarkInterrupted(context.Context, string, syncqueue.Kind, time.Time) error {
	return nil
}

func (nopStateRepo) ListByStatus(context.Context, model.SyncStatus) ([]model.SyncState, error) {
	return nil, nil
}

func (nopStateRepo) Get(context.Context, string, syncqueue.Kind) (*model.SyncState, error) {
	return nil, nil
}

// fakeEngine records calls across every use case the commands drive.
type fakeEngine struct {
	calls      []string
	tenant     string
	maxDays    int
	vendorCost *catalogdto.VendorCostInput
	cleanup    [2]int
	err        error
}

func (f *fakeEngine) SyncCatalog(_ context.Context, tenantID string) (*catalogdto.SyncStats, error) {
	f.calls, f.tenant = append(f.calls, "SyncCatalog"), tenantID
	return &catalogdto.SyncStats{Items: 5}, f.err
}

func (f *fakeEngine) DeltaSyncCatalog(_ context.Context, tenantID string) (*catalogdto.SyncStats, error) {
	f.calls, f.tenant = append(f.calls, "DeltaSyncCatalog"), tenantID
	return &catalogdto.SyncStats{DeltaSync: true}, f.err
}

func (f *fakeEngine) UpdateVariationVendorCost(_ context.Context, input *catalogdto.VendorCostInput) error {
	f.calls = append(f.calls, "UpdateVariationVendorCost")
	cp := *input
	f.vendorCost = &cp
	return f.err
}

func (f *fakeEngine) SyncCommittedInventory(_ context.Context, tenantID string) (*inventorydto.CommittedResult, error) {
	f.calls, f.tenant = append(f.calls, "SyncCommittedInventory"), tenantID
	return &inventorydto.CommittedResult{OpenInvoices: 3}, f.err
}

func (f *fakeEngine) SyncInventoryCounts(_ context.Context, tenantID string) (*inventorydto.CountsResult, error) {
	f.calls, f.tenant = append(f.calls, "SyncInventoryCounts"), tenantID
	return &inventorydto.CountsResult{Upserted: 8}, f.err
}

func (f *fakeEngine) SyncSalesVelocityAllPeriods(_ context.Context, tenantID string, maxPeriodDays int) (*velocitydto.SyncResult, error) {
	f.calls, f.tenant, f.maxDays = append(f.calls, "SyncSalesVelocityAllPeriods"), tenantID, maxPeriodDays
	return &velocitydto.SyncResult{OrdersProcessed: 2, Periods: map[int]int{91: 1}}, f.err
}

func (f *fakeEngine) UpdateSalesVelocityFromOrder(context.Context, remote.Order, string) (*velocitydto.UpdateResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeEngine) RecordEvent(context.Context, *retrydto.RecordEventInput) (*model.RetryableEvent, error) {
	return nil, errors.New("not used")
}

func (f *fakeEngine) MarkRunning(context.Context, string) error { return nil }

func (f *fakeEngine) MarkForRetry(context.Context, string, error, int) (*model.RetryableEvent, error) {
	return nil, nil
}

func (f *fakeEngine) IncrementRetry(context.Context, string, error) (*model.RetryableEvent, error) {
	return nil, nil
}

func (f *fakeEngine) MarkFailed(context.Context, string, error) (*model.RetryableEvent, error) {
	return nil, nil
}

func (f *fakeEngine) MarkSuccess(context.Context, string, any, int64) error { return nil }

func (f *fakeEngine) GetEventsForRetry(context.Context, int) ([]model.RetryableEvent, error) {
	return nil, nil
}

func (f *fakeEngine) CleanupOldEvents(_ context.Context, retentionDays, failedRetentionDays int) (*retrydto.CleanupResult, error) {
	f.calls = append(f.calls, "CleanupOldEvents")
	f.cleanup = [2]int{retentionDays, failedRetentionDays}
	return &retrydto.CleanupResult{CompletedDeleted: 4, FailedDeleted: 1}, f.err
}

func (f *fakeEngine) ResetForRetry(_ context.Context, id string) (*model.RetryableEvent, error) {
	f.calls = append(f.calls, "ResetForRetry")
	if id != "ev-1" {
		return nil, retry.ErrEventNotFound
	}
	return &model.RetryableEvent{ID: id, Status: model.EventStatusPendingRetry}, nil
}

func execute(t *testing.T, engine *fakeEngine, args ...string) (string, error) {
	t.Helper()
	released := false
	load := func(context.Context) (*Services, func(), error) {
		return &Services{
			Coordinator:           syncqueue.NewCoordinator(nopStateRepo{}, syncqueue.Config{}, logger.NewNop()),
			Catalog:               engine,
			Inventory:             engine,
			Velocity:              engine,
			Retry:                 engine,
			VelocityMaxPeriodDays: 182,
			RetentionDays:         7,
			FailedRetentionDays:   30,
		}, func() { released = true }, nil
	}

	cmd := NewRootCommand(load)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		assert.True(t, released, "services not released")
	}
	return out.String(), err
}

func TestCatalogCommands(t *testing.T) {
	engine := &fakeEngine{}
	out, err := execute(t, engine, "catalog", "full", "--tenant", "T1")
	require.NoError(t, err)

	var got struct {
		Result catalogdto.SyncStats `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 5, got.Result.Items)
	assert.Equal(t, "T1", engine.tenant)

	_, err = execute(t, engine, "catalog", "delta", "-t", "T1")
	require.NoError(t, err)
	assert.Equal(t, []string{"SyncCatalog", "DeltaSyncCatalog"}, engine.calls)
}

func TestTenantIsRequired(t *testing.T) {
	engine := &fakeEngine{}
	_, err := execute(t, engine, "committed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--tenant")
	assert.Empty(t, engine.calls)
}

func TestInventoryCommands(t *testing.T) {
	engine := &fakeEngine{}
	_, err := execute(t, engine, "committed", "-t", "T1")
	require.NoError(t, err)
	_, err = execute(t, engine, "counts", "-t", "T1")
	require.NoError(t, err)
	assert.Equal(t, []string{"SyncCommittedInventory", "SyncInventoryCounts"}, engine.calls)
}

func TestVelocityMaxDays(t *testing.T) {
	engine := &fakeEngine{}
	out, err := execute(t, engine, "velocity", "-t", "T1", "--compact")
	require.NoError(t, err)
	assert.Equal(t, 182, engine.maxDays)
	assert.Contains(t, out, `"91d":1`)

	_, err = execute(t, engine, "velocity", "-t", "T1", "--max-days", "91")
	require.NoError(t, err)
	assert.Equal(t, 91, engine.maxDays)

	_, err = execute(t, engine, "velocity", "-t", "T1", "--max-days", "-1")
	assert.Error(t, err)
}

func TestVendorCostCommand(t *testing.T) {
	engine := &fakeEngine{}
	_, err := execute(t, engine, "catalog", "vendor-cost", "-t", "T1",
		"--variation", "VAR1", "--vendor", "V1", "--amount", "1250", "--currency", "usd")
	require.NoError(t, err)

	require.NotNil(t, engine.vendorCost)
	assert.Equal(t, catalogdto.VendorCostInput{
		TenantID: "T1", VariationID: "VAR1", VendorID: "V1", UnitCostAmount: 1250, Currency: "usd",
	}, *engine.vendorCost)
}

func TestRetryCommands(t *testing.T) {
	engine := &fakeEngine{}
	out, err := execute(t, engine, "retry", "reset", "ev-1")
	require.NoError(t, err)
	assert.Contains(t, out, string(model.EventStatusPendingRetry))

	_, err = execute(t, engine, "retry", "reset", "missing")
	assert.ErrorIs(t, err, retry.ErrEventNotFound)

	_, err = execute(t, engine, "retry", "cleanup")
	require.NoError(t, err)
	assert.Equal(t, [2]int{7, 30}, engine.cleanup)

	out, err = execute(t, engine, "retry", "cleanup", "--retention-days", "1", "--compact")
	require.NoError(t, err)
	assert.Equal(t, [2]int{1, 30}, engine.cleanup)
	assert.JSONEq(t, `{"completedDeleted":4,"failedDeleted":1}`, out)
}

func TestRecoverCommand(t *testing.T) {
	out, err := execute(t, &fakeEngine{}, "recover", "--compact")
	require.NoError(t, err)
	assert.JSONEq(t, `{"interrupted":0,"restored":0}`, out)
}

func TestLoaderFailure(t *testing.T) {
	cmd := NewRootCommand(func(context.Context) (*Services, func(), error) {
		return nil, nil, errors.New("db unreachable")
	})
	cmd.SetArgs([]string{"recover"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db unreachable")
}
