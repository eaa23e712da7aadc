package retry

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/model"
)

type Repository interface {
	// Insert stores a new event. It reports false when an event with the
	// same key already exists.
	Insert(ctx context.Context, ev *model.RetryableEvent) (bool, error)
	GetByID(ctx context.Context, id string) (*model.RetryableEvent, error)
	GetByKey(ctx context.Context, eventKey string) (*model.RetryableEvent, error)

	// Update locks the row, applies fn and persists the result atomically.
	Update(ctx context.Context, id string, fn func(ev *model.RetryableEvent) error) (*model.RetryableEvent, error)

	// ListDue returns FAILED or PENDING_RETRY events due at now with retries
	// left, plus RUNNING events not touched since staleBefore.
	ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]model.RetryableEvent, error)

	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteExhaustedBefore(ctx context.Context, before time.Time) (int64, error)
}
