package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/fekuna/omnipos-sync-service/internal/retry"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

const eventColumns = `id, tenant_id, event_key, event_type, payload, status, retry_count, max_retries,
	next_retry_at, last_error, result, duration_ms, created_at, updated_at, completed_at`

func (r *PGRepository) Insert(ctx context.Context, ev *model.RetryableEvent) (bool, error) {
	query := `
		INSERT INTO retryable_events (
			id, tenant_id, event_key, event_type, payload, status, retry_count, max_retries,
			next_retry_at, created_at, updated_at
		) VALUES (
			:id, :tenant_id, :event_key, :event_type, :payload, :status, :retry_count, :max_retries,
			:next_retry_at, :created_at, :updated_at
		)
		ON CONFLICT (event_key) DO NOTHING
	`
	res, err := r.DB.NamedExecContext(ctx, query, ev)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (*model.RetryableEvent, error) {
	var ev model.RetryableEvent
	err := r.DB.GetContext(ctx, &ev, `SELECT `+eventColumns+` FROM retryable_events WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

func (r *PGRepository) GetByKey(ctx context.Context, eventKey string) (*model.RetryableEvent, error) {
	var ev model.RetryableEvent
	err := r.DB.GetContext(ctx, &ev, `SELECT `+eventColumns+` FROM retryable_events WHERE event_key = $1`, eventKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

func (r *PGRepository) Update(ctx context.Context, id string, fn func(ev *model.RetryableEvent) error) (*model.RetryableEvent, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var ev model.RetryableEvent
	err = tx.GetContext(ctx, &ev, `SELECT `+eventColumns+` FROM retryable_events WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, retry.ErrEventNotFound
		}
		return nil, err
	}

	if err := fn(&ev); err != nil {
		return nil, err
	}

	query := `
		UPDATE retryable_events SET
			status = :status,
			retry_count = :retry_count,
			max_retries = :max_retries,
			next_retry_at = :next_retry_at,
			last_error = :last_error,
			result = :result,
			duration_ms = :duration_ms,
			updated_at = :updated_at,
			completed_at = :completed_at
		WHERE id = :id
	`
	if _, err := tx.NamedExecContext(ctx, query, &ev); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *PGRepository) ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]model.RetryableEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM retryable_events
		WHERE (
			status IN ('FAILED', 'PENDING_RETRY')
			AND next_retry_at IS NOT NULL
			AND next_retry_at <= $1
			AND retry_count < max_retries
		) OR (
			status = 'RUNNING' AND updated_at <= $2
		)
		ORDER BY COALESCE(next_retry_at, updated_at) ASC
		LIMIT $3
	`
	var events []model.RetryableEvent
	if err := r.DB.SelectContext(ctx, &events, query, now, staleBefore, limit); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *PGRepository) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM retryable_events WHERE status = 'COMPLETED' AND COALESCE(completed_at, updated_at) < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PGRepository) DeleteExhaustedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM retryable_events
		WHERE status = 'FAILED'
		  AND (next_retry_at IS NULL OR retry_count >= max_retries)
		  AND updated_at < $1
	`
	res, err := r.DB.ExecContext(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
