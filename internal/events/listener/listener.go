package listener

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/logger"
	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/fekuna/omnipos-sync-service/internal/retry"
	"github.com/fekuna/omnipos-sync-service/internal/retry/dto"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const eventKeyPrefix = "webhook:"

// MessageReader is the subset of *kafka.Reader the listener consumes.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// EventRouter dispatches envelopes by type.
type EventRouter interface {
	Handles(eventType string) bool
	Dispatch(ctx context.Context, eventType string, payload []byte) (any, error)
}

type ReaderConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

func NewKafkaReader(cfg ReaderConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
}

// WebhookListener consumes webhook envelopes and tracks each one as a
// retryable event so failures are replayed later.
type WebhookListener struct {
	reader MessageReader
	router EventRouter
	retry  retry.UseCase
	logger logger.ZapLogger
}

func NewWebhookListener(reader MessageReader, router EventRouter, retryUC retry.UseCase, log logger.ZapLogger) *WebhookListener {
	return &WebhookListener{
		reader: reader,
		router: router,
		retry:  retryUC,
		logger: log.With(zap.String("component", "WebhookListener")),
	}
}

func (l *WebhookListener) Start(ctx context.Context) {
	l.logger.Info("Starting webhook Kafka listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping webhook Kafka listener")
			return
		default:
			msg, err := l.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			l.processMessage(ctx, msg.Value)
			if err := l.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				l.logger.Warn("Failed to commit kafka message",
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
		}
	}
}

func (l *WebhookListener) processMessage(ctx context.Context, value []byte) {
	env, err := DecodeEnvelope(value)
	if err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}
	log := l.logger.With(
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.Type),
		zap.String("tenant_id", env.MerchantID),
	)
	if !l.router.Handles(env.Type) {
		log.Debug("ignoring unhandled event type")
		return
	}
	if env.EventID == "" {
		log.Warn("event has no id, processing without tracking")
		l.dispatchUntracked(ctx, log, env.Type, value)
		return
	}

	ev, err := l.retry.RecordEvent(ctx, &dto.RecordEventInput{
		TenantID:  env.MerchantID,
		EventKey:  eventKeyPrefix + env.EventID,
		EventType: env.Type,
		Payload:   value,
	})
	if err != nil {
		log.Warn("failed to record event, processing without tracking", zap.Error(err))
		l.dispatchUntracked(ctx, log, env.Type, value)
		return
	}

	switch ev.Status {
	case model.EventStatusPending:
	case model.EventStatusCompleted:
		log.Debug("event already processed")
		return
	default:
		// Running or scheduled for replay.
		log.Info("duplicate delivery of tracked event", zap.String("status", string(ev.Status)))
		return
	}

	if err := l.retry.MarkRunning(ctx, ev.ID); err != nil {
		log.Warn("failed to mark event running", zap.Error(err))
	}
	start := time.Now()
	result, err := l.dispatch(ctx, env.Type, value)
	if err == nil {
		if err := l.retry.MarkSuccess(ctx, ev.ID, result, time.Since(start).Milliseconds()); err != nil {
			log.Error("failed to mark event completed", zap.Error(err))
		}
		log.Info("event processed", zap.Int64("duration_ms", time.Since(start).Milliseconds()))
		return
	}

	if retry.IsPermanent(err) {
		if _, markErr := l.retry.MarkFailed(ctx, ev.ID, err); markErr != nil {
			log.Error("failed to mark event failed", zap.Error(markErr), zap.NamedError("cause", err))
		}
		return
	}
	if _, markErr := l.retry.MarkForRetry(ctx, ev.ID, err, 0); markErr != nil {
		log.Error("failed to schedule event retry", zap.Error(markErr), zap.NamedError("cause", err))
	}
}

func (l *WebhookListener) dispatchUntracked(ctx context.Context, log logger.ZapLogger, eventType string, value []byte) {
	if _, err := l.dispatch(ctx, eventType, value); err != nil {
		log.Error("event processing failed", zap.Error(err))
	}
}

func (l *WebhookListener) dispatch(ctx context.Context, eventType string, value []byte) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: handler panic: %v", retry.ErrPermanent, rec)
		}
	}()
	return l.router.Dispatch(ctx, eventType, value)
}
