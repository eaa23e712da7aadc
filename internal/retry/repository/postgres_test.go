package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/database/dbtest"
	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvent(tenantID, key string, now time.Time) *model.RetryableEvent {
	return &model.RetryableEvent{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		EventKey:   key,
		EventType:  "invoice.updated",
		Payload:    types.JSONText(`{"id":"inv-1"}`),
		Status:     model.EventStatusPending,
		MaxRetries: 5,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestPGRepositoryLifecycle(t *testing.T) {
	db := dbtest.DB(t)
	tenantID := dbtest.Tenant(t, db)
	repo := NewPGRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	ev := newEvent(tenantID, tenantID+":evt-1", now)
	inserted, err := repo.Insert(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := newEvent(tenantID, ev.EventKey, now)
	inserted, err = repo.Insert(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	due := now.Add(-time.Minute)
	_, err = repo.Update(ctx, ev.ID, func(e *model.RetryableEvent) error {
		e.Status = model.EventStatusFailed
		e.NextRetryAt = &due
		return nil
	})
	require.NoError(t, err)

	events, err := repo.ListDue(ctx, now, now.Add(-30*time.Minute), 10)
	require.NoError(t, err)
	var found bool
	for _, e := range events {
		if e.ID == ev.ID {
			found = true
		}
	}
	assert.True(t, found)

	got, err := repo.GetByKey(ctx, ev.EventKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.EventStatusFailed, got.Status)

	missing, err := repo.GetByID(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
