package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/logger"
	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/fekuna/omnipos-sync-service/internal/retry"
	"github.com/fekuna/omnipos-sync-service/internal/retry/dto"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"
)

const maxErrorLength = 2000

type retryUseCase struct {
	repo   retry.Repository
	cfg    retry.Config
	logger logger.ZapLogger
	now    func() time.Time
}

type Option func(*retryUseCase)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(uc *retryUseCase) { uc.now = now }
}

func NewRetryUseCase(repo retry.Repository, cfg retry.Config, log logger.ZapLogger, opts ...Option) retry.UseCase {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = retry.DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = retry.DefaultMaxDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = retry.DefaultMaxRetries
	}
	if cfg.StaleRunningAfter <= 0 {
		cfg.StaleRunningAfter = 30 * time.Minute
	}
	uc := &retryUseCase{
		repo:   repo,
		cfg:    cfg,
		logger: log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *retryUseCase) RecordEvent(ctx context.Context, input *dto.RecordEventInput) (*model.RetryableEvent, error) {
	if input.EventKey == "" || input.EventType == "" {
		return nil, fmt.Errorf("record event: key and type are required")
	}
	maxRetries := input.MaxRetries
	if maxRetries <= 0 {
		maxRetries = uc.cfg.MaxRetries
	}
	payload := types.JSONText(input.Payload)
	if len(payload) == 0 {
		payload = types.JSONText("{}")
	}

	now := uc.now()
	ev := &model.RetryableEvent{
		ID:         uuid.NewString(),
		TenantID:   input.TenantID,
		EventKey:   input.EventKey,
		EventType:  input.EventType,
		Payload:    payload,
		Status:     model.EventStatusPending,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	inserted, err := uc.repo.Insert(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("insert event %s: %w", input.EventKey, err)
	}
	if inserted {
		return ev, nil
	}

	existing, err := uc.repo.GetByKey(ctx, input.EventKey)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, retry.ErrEventNotFound
	}
	uc.logger.Debug("event already recorded",
		zap.String("event_key", input.EventKey),
		zap.String("status", string(existing.Status)),
	)
	return existing, nil
}

func (uc *retryUseCase) MarkRunning(ctx context.Context, id string) error {
	_, err := uc.repo.Update(ctx, id, func(ev *model.RetryableEvent) error {
		ev.Status = model.EventStatusRunning
		ev.UpdatedAt = uc.now()
		return nil
	})
	return err
}

// MarkForRetry records a failure and schedules the next attempt from the
// retry count before this failure.
func (uc *retryUseCase) MarkForRetry(ctx context.Context, id string, cause error, maxRetries int) (*model.RetryableEvent, error) {
	if maxRetries <= 0 {
		maxRetries = uc.cfg.MaxRetries
	}
	ev, err := uc.repo.Update(ctx, id, func(ev *model.RetryableEvent) error {
		now := uc.now()
		ev.Status = model.EventStatusFailed
		ev.MaxRetries = maxRetries
		ev.LastError = errorText(cause)
		ev.UpdatedAt = now
		if ev.RetryCount >= maxRetries {
			ev.NextRetryAt = nil
			return nil
		}
		next := now.Add(retry.Delay(ev.RetryCount, uc.cfg.BaseDelay, uc.cfg.MaxDelay))
		ev.NextRetryAt = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.logEscalation("event scheduled for retry", ev)
	return ev, nil
}

func (uc *retryUseCase) IncrementRetry(ctx context.Context, id string, cause error) (*model.RetryableEvent, error) {
	ev, err := uc.repo.Update(ctx, id, func(ev *model.RetryableEvent) error {
		now := uc.now()
		ev.RetryCount++
		ev.LastError = errorText(cause)
		ev.UpdatedAt = now
		if ev.RetryCount >= ev.MaxRetries {
			ev.Status = model.EventStatusFailed
			ev.NextRetryAt = nil
			return nil
		}
		next := now.Add(retry.Delay(ev.RetryCount, uc.cfg.BaseDelay, uc.cfg.MaxDelay))
		ev.Status = model.EventStatusPendingRetry
		ev.NextRetryAt = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.logEscalation("event retry incremented", ev)
	return ev, nil
}

// MarkFailed exhausts the event immediately.
func (uc *retryUseCase) MarkFailed(ctx context.Context, id string, cause error) (*model.RetryableEvent, error) {
	ev, err := uc.repo.Update(ctx, id, func(ev *model.RetryableEvent) error {
		ev.Status = model.EventStatusFailed
		ev.NextRetryAt = nil
		ev.LastError = errorText(cause)
		ev.UpdatedAt = uc.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.logger.Warn("event failed permanently",
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.EventType),
		zap.Error(cause),
	)
	return ev, nil
}

func (uc *retryUseCase) MarkSuccess(ctx context.Context, id string, result any, durationMs int64) error {
	var encoded types.NullJSONText
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		encoded = types.NullJSONText{JSONText: b, Valid: true}
	}
	_, err := uc.repo.Update(ctx, id, func(ev *model.RetryableEvent) error {
		now := uc.now()
		ev.Status = model.EventStatusCompleted
		ev.NextRetryAt = nil
		ev.LastError = nil
		ev.Result = encoded
		ev.DurationMs = &durationMs
		ev.UpdatedAt = now
		ev.CompletedAt = &now
		return nil
	})
	return err
}

func (uc *retryUseCase) GetEventsForRetry(ctx context.Context, limit int) ([]model.RetryableEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	now := uc.now()
	return uc.repo.ListDue(ctx, now, now.Add(-uc.cfg.StaleRunningAfter), limit)
}

func (uc *retryUseCase) CleanupOldEvents(ctx context.Context, retentionDays, failedRetentionDays int) (*dto.CleanupResult, error) {
	now := uc.now()
	completed, err := uc.repo.DeleteCompletedBefore(ctx, now.AddDate(0, 0, -retentionDays))
	if err != nil {
		return nil, fmt.Errorf("delete completed events: %w", err)
	}
	failed, err := uc.repo.DeleteExhaustedBefore(ctx, now.AddDate(0, 0, -failedRetentionDays))
	if err != nil {
		return nil, fmt.Errorf("delete exhausted events: %w", err)
	}
	if completed > 0 || failed > 0 {
		uc.logger.Info("retry events cleaned up",
			zap.Int64("completed_deleted", completed),
			zap.Int64("failed_deleted", failed),
		)
	}
	return &dto.CleanupResult{CompletedDeleted: completed, FailedDeleted: failed}, nil
}

func (uc *retryUseCase) ResetForRetry(ctx context.Context, id string) (*model.RetryableEvent, error) {
	ev, err := uc.repo.Update(ctx, id, func(ev *model.RetryableEvent) error {
		now := uc.now()
		ev.RetryCount = 0
		ev.Status = model.EventStatusFailed
		ev.NextRetryAt = &now
		ev.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.logger.Info("event reset for retry", zap.String("event_id", ev.ID), zap.String("event_key", ev.EventKey))
	return ev, nil
}

func (uc *retryUseCase) logEscalation(msg string, ev *model.RetryableEvent) {
	fields := []zap.Field{
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.EventType),
		zap.String("tenant_id", ev.TenantID),
		zap.Int("retry_count", ev.RetryCount),
		zap.Int("max_retries", ev.MaxRetries),
	}
	if ev.NextRetryAt == nil {
		uc.logger.Error("event retries exhausted", fields...)
		return
	}
	uc.logger.Warn(msg, append(fields, zap.Time("next_retry_at", *ev.NextRetryAt))...)
}

func errorText(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	if len(s) > maxErrorLength {
		s = s[:maxErrorLength]
	}
	return &s
}
