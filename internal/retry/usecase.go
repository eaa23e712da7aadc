package retry

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/fekuna/omnipos-sync-service/internal/retry/dto"
)

type Config struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	// StaleRunningAfter makes RUNNING events replayable again after a crash.
	StaleRunningAfter time.Duration
}

type UseCase interface {
	RecordEvent(ctx context.Context, input *dto.RecordEventInput) (*model.RetryableEvent, error)
	MarkRunning(ctx context.Context, id string) error
	MarkForRetry(ctx context.Context, id string, cause error, maxRetries int) (*model.RetryableEvent, error)
	IncrementRetry(ctx context.Context, id string, cause error) (*model.RetryableEvent, error)
	MarkFailed(ctx context.Context, id string, cause error) (*model.RetryableEvent, error)
	MarkSuccess(ctx context.Context, id string, result any, durationMs int64) error
	GetEventsForRetry(ctx context.Context, limit int) ([]model.RetryableEvent, error)
	CleanupOldEvents(ctx context.Context, retentionDays, failedRetentionDays int) (*dto.CleanupResult, error)
	ResetForRetry(ctx context.Context, id string) (*model.RetryableEvent, error)
}
