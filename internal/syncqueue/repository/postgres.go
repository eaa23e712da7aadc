package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/fekuna/omnipos-sync-service/internal/syncqueue"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) MarkRunning(ctx context.Context, tenantID string, kind syncqueue.Kind, startedAt time.Time) error {
	query := `
		INSERT INTO sync_state (tenant_id, sync_kind, status, started_at, completed_at, duration_ms, error, updated_at)
		VALUES ($1, $2, 'RUNNING', $3, NULL, NULL, NULL, $3)
		ON CONFLICT (tenant_id, sync_kind) DO UPDATE SET
			status = 'RUNNING',
			started_at = EXCLUDED.started_at,
			completed_at = NULL,
			duration_ms = NULL,
			error = NULL,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.DB.ExecContext(ctx, query, tenantID, string(kind), startedAt)
	return err
}

func (r *PGRepository) MarkFinished(ctx context.Context, tenantID string, kind syncqueue.Kind, status model.SyncStatus, completedAt time.Time, durationMs int64, errMsg *string) error {
	query := `
		INSERT INTO sync_state (tenant_id, sync_kind, status, completed_at, duration_ms, error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $4)
		ON CONFLICT (tenant_id, sync_kind) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			duration_ms = EXCLUDED.duration_ms,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.DB.ExecContext(ctx, query, tenantID, string(kind), string(status), completedAt, durationMs, errMsg)
	return err
}

func (r *PGRepository) MarkInterrupted(ctx context.Context, tenantID string, kind syncqueue.Kind, at time.Time) error {
	query := `
		UPDATE sync_state
		SET status = 'INTERRUPTED', completed_at = $3, error = 'process exited while sync was running', updated_at = $3
		WHERE tenant_id = $1 AND sync_kind = $2 AND status = 'RUNNING'
	`
	_, err := r.DB.ExecContext(ctx, query, tenantID, string(kind), at)
	return err
}

func (r *PGRepository) ListByStatus(ctx context.Context, status model.SyncStatus) ([]model.SyncState, error) {
	var rows []model.SyncState
	err := r.DB.SelectContext(ctx, &rows, `SELECT * FROM sync_state WHERE status = $1 ORDER BY started_at`, string(status))
	return rows, err
}

func (r *PGRepository) Get(ctx context.Context, tenantID string, kind syncqueue.Kind) (*model.SyncState, error) {
	var st model.SyncState
	err := r.DB.GetContext(ctx, &st, `SELECT * FROM sync_state WHERE tenant_id = $1 AND sync_kind = $2`, tenantID, string(kind))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}
