package model

import "time"

type SyncStatus string

const (
	SyncStatusRunning     SyncStatus = "RUNNING"
	SyncStatusSuccess     SyncStatus = "SUCCESS"
	SyncStatusFailed      SyncStatus = "FAILED"
	SyncStatusInterrupted SyncStatus = "INTERRUPTED"
)

type SyncState struct {
	TenantID        string     `db:"tenant_id"`
	SyncKind        string     `db:"sync_kind"`
	Status          SyncStatus `db:"status"`
	StartedAt       *time.Time `db:"started_at"`
	CompletedAt     *time.Time `db:"completed_at"`
	DurationMs      *int64     `db:"duration_ms"`
	LastDeltaCursor *time.Time `db:"last_delta_cursor"`
	Error           *string    `db:"error"`
	UpdatedAt       time.Time  `db:"updated_at"`
}
