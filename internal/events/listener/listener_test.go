package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/logger"
	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/fekuna/omnipos-sync-service/internal/retry"
	"github.com/fekuna/omnipos-sync-service/internal/retry/dto"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetry struct {
	mu        sync.Mutex
	byKey     map[string]*model.RetryableEvent
	recordErr error
	calls     []string
}

func newFakeRetry() *fakeRetry {
	return &fakeRetry{byKey: map[string]*model.RetryableEvent{}}
}

func (f *fakeRetry) find(id string) *model.RetryableEvent {
	for _, ev := range f.byKey {
		if ev.ID == id {
			return ev
		}
	}
	return nil
}

func (f *fakeRetry) mark(call, id string, status model.EventStatus) (*model.RetryableEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	ev := f.find(id)
	if ev == nil {
		return nil, retry.ErrEventNotFound
	}
	ev.Status = status
	cp := *ev
	return &cp, nil
}

func (f *fakeRetry) RecordEvent(_ context.Context, input *dto.RecordEventInput) (*model.RetryableEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "RecordEvent")
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	if ev, ok := f.byKey[input.EventKey]; ok {
		cp := *ev
		return &cp, nil
	}
	ev := &model.RetryableEvent{
		ID:        fmt.Sprintf("ev-%d", len(f.byKey)+1),
		TenantID:  input.TenantID,
		EventKey:  input.EventKey,
		EventType: input.EventType,
		Status:    model.EventStatusPending,
	}
	f.byKey[input.EventKey] = ev
	cp := *ev
	return &cp, nil
}

func (f *fakeRetry) MarkRunning(_ context.Context, id string) error {
	_, err := f.mark("MarkRunning", id, model.EventStatusRunning)
	return err
}

func (f *fakeRetry) MarkForRetry(_ context.Context, id string, _ error, _ int) (*model.RetryableEvent, error) {
	return f.mark("MarkForRetry", id, model.EventStatusFailed)
}

func (f *fakeRetry) IncrementRetry(_ context.Context, id string, _ error) (*model.RetryableEvent, error) {
	return f.mark("IncrementRetry", id, model.EventStatusPendingRetry)
}

func (f *fakeRetry) MarkFailed(_ context.Context, id string, _ error) (*model.RetryableEvent, error) {
	return f.mark("MarkFailed", id, model.EventStatusFailed)
}

func (f *fakeRetry) MarkSuccess(_ context.Context, id string, _ any, _ int64) error {
	_, err := f.mark("MarkSuccess", id, model.EventStatusCompleted)
	return err
}

func (f *fakeRetry) GetEventsForRetry(context.Context, int) ([]model.RetryableEvent, error) {
	return nil, nil
}

func (f *fakeRetry) CleanupOldEvents(context.Context, int, int) (*dto.CleanupResult, error) {
	return &dto.CleanupResult{}, nil
}

func (f *fakeRetry) ResetForRetry(_ context.Context, id string) (*model.RetryableEvent, error) {
	return f.mark("ResetForRetry", id, model.EventStatusPendingRetry)
}

func (f *fakeRetry) status(key string) model.EventStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev, ok := f.byKey[key]; ok {
		return ev.Status
	}
	return ""
}

type stubRouter struct {
	mu      sync.Mutex
	handled map[string]bool
	err     error
	panics  bool
	calls   int
}

func (s *stubRouter) Handles(eventType string) bool {
	return s.handled[eventType]
}

func (s *stubRouter) Dispatch(context.Context, string, []byte) (any, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.panics {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	return map[string]int{"items": 1}, nil
}

func (s *stubRouter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newStubRouter() *stubRouter {
	return &stubRouter{handled: map[string]bool{TypeCatalogVersionUpdated: true}}
}

const catalogEvent = `{"event_id":"evt-1","type":"catalog.version.updated","merchant_id":"tenant-1","data":{"type":"catalog","id":"c"}}`

func TestProcessMessageTracksSuccess(t *testing.T) {
	rt := newFakeRetry()
	router := newStubRouter()
	l := NewWebhookListener(nil, router, rt, logger.NewNop())

	l.processMessage(context.Background(), []byte(catalogEvent))

	assert.Equal(t, 1, router.count())
	assert.Equal(t, []string{"RecordEvent", "MarkRunning", "MarkSuccess"}, rt.calls)
	assert.Equal(t, model.EventStatusCompleted, rt.status("webhook:evt-1"))
}

func TestProcessMessageSkipsCompletedDuplicate(t *testing.T) {
	rt := newFakeRetry()
	router := newStubRouter()
	l := NewWebhookListener(nil, router, rt, logger.NewNop())

	l.processMessage(context.Background(), []byte(catalogEvent))
	l.processMessage(context.Background(), []byte(catalogEvent))

	assert.Equal(t, 1, router.count())
}

func TestProcessMessageSkipsEventOwnedByReplayer(t *testing.T) {
	rt := newFakeRetry()
	router := newStubRouter()
	router.err = errors.New("remote timeout")
	l := NewWebhookListener(nil, router, rt, logger.NewNop())

	l.processMessage(context.Background(), []byte(catalogEvent))
	assert.Equal(t, model.EventStatusFailed, rt.status("webhook:evt-1"))

	router.err = nil
	l.processMessage(context.Background(), []byte(catalogEvent))
	assert.Equal(t, 1, router.count())
}

func TestProcessMessageFailures(t *testing.T) {
	t.Run("transient schedules retry", func(t *testing.T) {
		rt := newFakeRetry()
		router := newStubRouter()
		router.err = errors.New("remote timeout")
		l := NewWebhookListener(nil, router, rt, logger.NewNop())

		l.processMessage(context.Background(), []byte(catalogEvent))
		assert.Equal(t, []string{"RecordEvent", "MarkRunning", "MarkForRetry"}, rt.calls)
	})

	t.Run("permanent is marked failed", func(t *testing.T) {
		rt := newFakeRetry()
		router := newStubRouter()
		router.err = fmt.Errorf("%w: bad payload", retry.ErrPermanent)
		l := NewWebhookListener(nil, router, rt, logger.NewNop())

		l.processMessage(context.Background(), []byte(catalogEvent))
		assert.Equal(t, []string{"RecordEvent", "MarkRunning", "MarkFailed"}, rt.calls)
	})

	t.Run("panic is marked failed", func(t *testing.T) {
		rt := newFakeRetry()
		router := newStubRouter()
		router.panics = true
		l := NewWebhookListener(nil, router, rt, logger.NewNop())

		assert.NotPanics(t, func() {
			l.processMessage(context.Background(), []byte(catalogEvent))
		})
		assert.Equal(t, []string{"RecordEvent", "MarkRunning", "MarkFailed"}, rt.calls)
	})
}

func TestProcessMessageIgnoresUnhandledAndMalformed(t *testing.T) {
	rt := newFakeRetry()
	router := newStubRouter()
	l := NewWebhookListener(nil, router, rt, logger.NewNop())

	l.processMessage(context.Background(), []byte(`{"event_id":"e2","type":"customer.created","merchant_id":"t"}`))
	l.processMessage(context.Background(), []byte(`not json`))

	assert.Zero(t, router.count())
	assert.Empty(t, rt.calls)
}

func TestProcessMessageWithoutTracking(t *testing.T) {
	t.Run("record failure", func(t *testing.T) {
		rt := newFakeRetry()
		rt.recordErr = errors.New("db down")
		router := newStubRouter()
		l := NewWebhookListener(nil, router, rt, logger.NewNop())

		l.processMessage(context.Background(), []byte(catalogEvent))
		assert.Equal(t, 1, router.count())
		assert.Equal(t, []string{"RecordEvent"}, rt.calls)
	})

	t.Run("missing event id", func(t *testing.T) {
		rt := newFakeRetry()
		router := newStubRouter()
		l := NewWebhookListener(nil, router, rt, logger.NewNop())

		l.processMessage(context.Background(), []byte(`{"type":"catalog.version.updated","merchant_id":"t"}`))
		assert.Equal(t, 1, router.count())
		assert.Empty(t, rt.calls)
	})
}

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestStartCommitsEveryMessage(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Offset: 1, Value: []byte(catalogEvent)},
		{Offset: 2, Value: []byte(`garbage`)},
	}}
	router := newStubRouter()
	l := NewWebhookListener(reader, router, newFakeRetry(), logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
	assert.Equal(t, []int64{1, 2}, reader.commits())
	assert.Equal(t, 1, router.count())
}
