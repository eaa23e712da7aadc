package syncqueue

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/model"
)

// StateRepository persists SyncState rows, the source of truth for crash
// recovery.
type StateRepository interface {
	MarkRunning(ctx context.Context, tenantID string, kind Kind, startedAt time.Time) error
	MarkFinished(ctx context.Context, tenantID string, kind Kind, status model.SyncStatus, completedAt time.Time, durationMs int64, errMsg *string) error
	MarkInterrupted(ctx context.Context, tenantID string, kind Kind, at time.Time) error
	ListByStatus(ctx context.Context, status model.SyncStatus) ([]model.SyncState, error)
	Get(ctx context.Context, tenantID string, kind Kind) (*model.SyncState, error)
}
