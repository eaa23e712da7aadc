package replayer

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/logger"
	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/fekuna/omnipos-sync-service/internal/retry"
	"go.uber.org/zap"
)

// Dispatcher re-executes a recorded event by its type.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload []byte) (any, error)
}

type Config struct {
	Interval            time.Duration
	BatchSize           int
	CleanupInterval     time.Duration
	RetentionDays       int
	FailedRetentionDays int
}

// Replayer polls for due events and re-dispatches them.
type Replayer struct {
	uc         retry.UseCase
	dispatcher Dispatcher
	cfg        Config
	logger     logger.ZapLogger
}

func NewReplayer(uc retry.UseCase, dispatcher Dispatcher, cfg Config, log logger.ZapLogger) *Replayer {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 6 * time.Hour
	}
	return &Replayer{
		uc:         uc,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     log.With(zap.String("component", "RetryReplayer")),
	}
}

// Start blocks until ctx is cancelled.
func (r *Replayer) Start(ctx context.Context) {
	r.logger.Info("Starting retry replayer", zap.Duration("interval", r.cfg.Interval))
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	cleanup := time.NewTicker(r.cfg.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping retry replayer")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("retry replay pass failed", zap.Error(err))
			}
		case <-cleanup.C:
			if _, err := r.uc.CleanupOldEvents(ctx, r.cfg.RetentionDays, r.cfg.FailedRetentionDays); err != nil && ctx.Err() == nil {
				r.logger.Warn("retry cleanup failed", zap.Error(err))
			}
		}
	}
}

// RunOnce replays one batch of due events and returns how many succeeded.
func (r *Replayer) RunOnce(ctx context.Context) (int, error) {
	events, err := r.uc.GetEventsForRetry(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	succeeded := 0
	for i := range events {
		if ctx.Err() != nil {
			return succeeded, ctx.Err()
		}
		if r.replay(ctx, &events[i]) {
			succeeded++
		}
	}
	return succeeded, nil
}

func (r *Replayer) replay(ctx context.Context, ev *model.RetryableEvent) bool {
	log := r.logger.With(
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.EventType),
		zap.String("tenant_id", ev.TenantID),
		zap.Int("retry_count", ev.RetryCount),
	)
	if err := r.uc.MarkRunning(ctx, ev.ID); err != nil {
		log.Warn("failed to mark event running", zap.Error(err))
		return false
	}

	start := time.Now()
	result, err := r.dispatch(ctx, ev)
	if err == nil {
		if err := r.uc.MarkSuccess(ctx, ev.ID, result, time.Since(start).Milliseconds()); err != nil {
			log.Error("failed to mark event completed", zap.Error(err))
			return false
		}
		log.Info("event replayed")
		return true
	}

	if retry.IsPermanent(err) {
		if _, markErr := r.uc.MarkFailed(ctx, ev.ID, err); markErr != nil {
			log.Error("failed to mark event failed", zap.Error(markErr))
		}
		return false
	}
	if _, markErr := r.uc.IncrementRetry(ctx, ev.ID, err); markErr != nil {
		log.Error("failed to increment retry", zap.Error(markErr), zap.NamedError("cause", err))
	}
	return false
}

func (r *Replayer) dispatch(ctx context.Context, ev *model.RetryableEvent) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: handler panic: %v", retry.ErrPermanent, rec)
		}
	}()
	return r.dispatcher.Dispatch(ctx, ev.EventType, ev.Payload)
}
