package syncqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/model"
	"go.uber.org/zap"
)

type RecoverResult struct {
	Interrupted int `json:"interrupted"`
	Restored    int `json:"restored"`
}

// Recover reconciles persisted RUNNING rows at startup. Rows older than the
// staleness threshold belonged to a crashed process and become INTERRUPTED.
// Younger rows block new runs here until they would become stale.
func (c *Coordinator) Recover(ctx context.Context) (*RecoverResult, error) {
	rows, err := c.repo.ListByStatus(ctx, model.SyncStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("list running sync states: %w", err)
	}

	now := c.now()
	res := &RecoverResult{}
	for _, row := range rows {
		kind := Kind(row.SyncKind)
		log := c.logger.With(zap.String("tenant_id", row.TenantID), zap.String("kind", row.SyncKind))

		started := row.UpdatedAt
		if row.StartedAt != nil {
			started = *row.StartedAt
		}
		if now.Sub(started) >= c.staleAfter {
			if err := c.repo.MarkInterrupted(ctx, row.TenantID, kind, now); err != nil {
				log.Warn("failed to mark sync interrupted", zap.Error(err))
				continue
			}
			log.Warn("stale running sync marked interrupted", zap.Time("started_at", started))
			res.Interrupted++
			continue
		}

		c.restore(kind, row.TenantID, started.Add(c.staleAfter))
		log.Info("restored in-progress sync flag", zap.Time("started_at", started))
		res.Restored++
	}
	return res, nil
}

func (c *Coordinator) restore(kind Kind, tenantID string, until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	st := c.state(key{kind, tenantID})
	st.restoredUntil = until
	if st.restoreTimer != nil {
		st.restoreTimer.Stop()
	}
	st.restoreTimer = time.AfterFunc(until.Sub(c.now()), func() {
		c.expireRestored(kind, tenantID)
	})
}

// expireRestored lifts a restored flag and starts a follow-up queued while
// it was held.
func (c *Coordinator) expireRestored(kind Kind, tenantID string) {
	c.mu.Lock()
	st := c.state(key{kind, tenantID})
	st.restoredUntil = time.Time{}
	if st.restoreTimer != nil {
		st.restoreTimer.Stop()
		st.restoreTimer = nil
	}
	if c.closed || st.inProgress || !st.pending || st.followUp == nil {
		c.mu.Unlock()
		return
	}
	next := st.followUp
	st.inProgress = true
	st.pending = false
	st.followUp = nil
	c.mu.Unlock()

	c.spawnFollowUp(context.Background(), kind, tenantID, next)
}
