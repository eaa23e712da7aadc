package model

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

type EventStatus string

const (
	EventStatusPending      EventStatus = "PENDING"
	EventStatusRunning      EventStatus = "RUNNING"
	EventStatusFailed       EventStatus = "FAILED"
	EventStatusPendingRetry EventStatus = "PENDING_RETRY"
	EventStatusCompleted    EventStatus = "COMPLETED"
)

type RetryableEvent struct {
	ID          string             `db:"id"`
	TenantID    string             `db:"tenant_id"`
	EventKey    string             `db:"event_key"`
	EventType   string             `db:"event_type"`
	Payload     types.JSONText     `db:"payload"`
	Status      EventStatus        `db:"status"`
	RetryCount  int                `db:"retry_count"`
	MaxRetries  int                `db:"max_retries"`
	NextRetryAt *time.Time         `db:"next_retry_at"`
	LastError   *string            `db:"last_error"`
	Result      types.NullJSONText `db:"result"`
	DurationMs  *int64             `db:"duration_ms"`
	CreatedAt   time.Time          `db:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at"`
	CompletedAt *time.Time         `db:"completed_at"`
}

// Exhausted reports whether the event will never be picked for retry again.
func (e *RetryableEvent) Exhausted() bool {
	return e.Status == EventStatusFailed && (e.NextRetryAt == nil || e.RetryCount >= e.MaxRetries)
}
