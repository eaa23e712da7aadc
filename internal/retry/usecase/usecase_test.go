package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/logger"
	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/fekuna/omnipos-sync-service/internal/retry"
	"github.com/fekuna/omnipos-sync-service/internal/retry/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu     sync.Mutex
	events map[string]*model.RetryableEvent
}

func newMemRepo() *memRepo {
	return &memRepo{events: map[string]*model.RetryableEvent{}}
}

func (m *memRepo) Insert(_ context.Context, ev *model.RetryableEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.events {
		if existing.EventKey == ev.EventKey {
			return false, nil
		}
	}
	cp := *ev
	m.events[ev.ID] = &cp
	return true, nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*model.RetryableEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (m *memRepo) GetByKey(_ context.Context, key string) (*model.RetryableEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.EventKey == key {
			cp := *ev
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) Update(_ context.Context, id string, fn func(*model.RetryableEvent) error) (*model.RetryableEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, retry.ErrEventNotFound
	}
	cp := *ev
	if err := fn(&cp); err != nil {
		return nil, err
	}
	m.events[id] = &cp
	out := cp
	return &out, nil
}

func (m *memRepo) ListDue(_ context.Context, now, staleBefore time.Time, limit int) ([]model.RetryableEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RetryableEvent
	for _, ev := range m.events {
		due := (ev.Status == model.EventStatusFailed || ev.Status == model.EventStatusPendingRetry) &&
			ev.NextRetryAt != nil && !ev.NextRetryAt.After(now) && ev.RetryCount < ev.MaxRetries
		stale := ev.Status == model.EventStatusRunning && !ev.UpdatedAt.After(staleBefore)
		if due || stale {
			out = append(out, *ev)
		}
	}
	dueAt := func(ev model.RetryableEvent) time.Time {
		if ev.NextRetryAt != nil {
			return *ev.NextRetryAt
		}
		return ev.UpdatedAt
	}
	sort.Slice(out, func(i, j int) bool { return dueAt(out[i]).Before(dueAt(out[j])) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) DeleteCompletedBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, ev := range m.events {
		if ev.Status == model.EventStatusCompleted && ev.CompletedAt != nil && ev.CompletedAt.Before(before) {
			delete(m.events, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) DeleteExhaustedBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, ev := range m.events {
		if ev.Status == model.EventStatusFailed && (ev.NextRetryAt == nil || ev.RetryCount >= ev.MaxRetries) && ev.UpdatedAt.Before(before) {
			delete(m.events, id)
			n++
		}
	}
	return n, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(t *testing.T) (*memRepo, *clock, retry.UseCase) {
	t.Helper()
	repo := newMemRepo()
	clk := &clock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	uc := NewRetryUseCase(repo, retry.Config{}, logger.NewNop(), WithClock(clk.now))
	return repo, clk, uc
}

func record(t *testing.T, uc retry.UseCase, key string) *model.RetryableEvent {
	t.Helper()
	ev, err := uc.RecordEvent(context.Background(), &dto.RecordEventInput{
		TenantID:  "t1",
		EventKey:  key,
		EventType: "order.updated",
		Payload:   []byte(`{"id":"o1"}`),
	})
	require.NoError(t, err)
	return ev
}

func TestRecordEventIsIdempotent(t *testing.T) {
	_, _, uc := setup(t)
	ctx := context.Background()

	first := record(t, uc, "evt-1")
	assert.Equal(t, model.EventStatusPending, first.Status)
	assert.Equal(t, retry.DefaultMaxRetries, first.MaxRetries)

	require.NoError(t, uc.MarkSuccess(ctx, first.ID, map[string]int{"updated": 2}, 15))

	again := record(t, uc, "evt-1")
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, model.EventStatusCompleted, again.Status)
	assert.JSONEq(t, `{"updated":2}`, string(again.Result.JSONText))
}

func TestMarkForRetryUsesCountBeforeFailure(t *testing.T) {
	_, clk, uc := setup(t)
	ctx := context.Background()
	ev := record(t, uc, "evt-1")

	got, err := uc.MarkForRetry(ctx, ev.ID, errors.New("timeout"), 5)
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	require.NotNil(t, got.NextRetryAt)
	assert.Equal(t, clk.t.Add(60*time.Second), *got.NextRetryAt)
	assert.Equal(t, "timeout", *got.LastError)
}

func TestIncrementRetryWalksBackoffUntilExhausted(t *testing.T) {
	_, clk, uc := setup(t)
	ctx := context.Background()
	ev := record(t, uc, "evt-1")
	_, err := uc.MarkForRetry(ctx, ev.ID, errors.New("boom"), 3)
	require.NoError(t, err)

	got, err := uc.IncrementRetry(ctx, ev.ID, errors.New("boom"))
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusPendingRetry, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, clk.t.Add(120*time.Second), *got.NextRetryAt)

	got, err = uc.IncrementRetry(ctx, ev.ID, errors.New("boom"))
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, clk.t.Add(240*time.Second), *got.NextRetryAt)

	got, err = uc.IncrementRetry(ctx, ev.ID, errors.New("boom"))
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusFailed, got.Status)
	assert.Equal(t, 3, got.RetryCount)
	assert.Nil(t, got.NextRetryAt)
	assert.True(t, got.Exhausted())
}

func TestGetEventsForRetryReturnsDueOldestFirst(t *testing.T) {
	_, clk, uc := setup(t)
	ctx := context.Background()

	a := record(t, uc, "evt-a")
	b := record(t, uc, "evt-b")
	c := record(t, uc, "evt-c")

	_, err := uc.MarkForRetry(ctx, a.ID, errors.New("x"), 5)
	require.NoError(t, err)
	clk.advance(10 * time.Second)
	_, err = uc.MarkForRetry(ctx, b.ID, errors.New("x"), 5)
	require.NoError(t, err)
	_, err = uc.MarkFailed(ctx, c.ID, errors.New("bad request"))
	require.NoError(t, err)

	due, err := uc.GetEventsForRetry(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	clk.advance(2 * time.Minute)
	due, err = uc.GetEventsForRetry(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, a.ID, due[0].ID)
	assert.Equal(t, b.ID, due[1].ID)

	due, err = uc.GetEventsForRetry(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestStaleRunningEventsAreReplayed(t *testing.T) {
	_, clk, uc := setup(t)
	ctx := context.Background()
	ev := record(t, uc, "evt-1")
	require.NoError(t, uc.MarkRunning(ctx, ev.ID))

	due, err := uc.GetEventsForRetry(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	clk.advance(31 * time.Minute)
	due, err = uc.GetEventsForRetry(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, ev.ID, due[0].ID)
}

func TestResetForRetry(t *testing.T) {
	_, clk, uc := setup(t)
	ctx := context.Background()
	ev := record(t, uc, "evt-1")
	_, err := uc.MarkForRetry(ctx, ev.ID, errors.New("x"), 1)
	require.NoError(t, err)
	got, err := uc.IncrementRetry(ctx, ev.ID, errors.New("x"))
	require.NoError(t, err)
	require.True(t, got.Exhausted())

	got, err = uc.ResetForRetry(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RetryCount)
	assert.Equal(t, clk.t, *got.NextRetryAt)

	due, err := uc.GetEventsForRetry(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestCleanupOldEvents(t *testing.T) {
	repo, clk, uc := setup(t)
	ctx := context.Background()

	done := record(t, uc, "done")
	require.NoError(t, uc.MarkSuccess(ctx, done.ID, nil, 1))
	dead := record(t, uc, "dead")
	_, err := uc.MarkFailed(ctx, dead.ID, errors.New("x"))
	require.NoError(t, err)
	waiting := record(t, uc, "waiting")
	_, err = uc.MarkForRetry(ctx, waiting.ID, errors.New("x"), 5)
	require.NoError(t, err)

	clk.advance(8 * 24 * time.Hour)
	res, err := uc.CleanupOldEvents(ctx, 7, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.CompletedDeleted)
	assert.Equal(t, int64(0), res.FailedDeleted)

	clk.advance(30 * 24 * time.Hour)
	res, err = uc.CleanupOldEvents(ctx, 7, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.FailedDeleted)

	assert.Len(t, repo.events, 1)
}

func TestUpdateUnknownEvent(t *testing.T) {
	_, _, uc := setup(t)
	err := uc.MarkRunning(context.Background(), "missing")
	assert.ErrorIs(t, err, retry.ErrEventNotFound)
}
