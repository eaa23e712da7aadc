// Package syncqueue serializes syncs per tenant and kind. A trigger that
// arrives while a sync is running is queued as a single follow-up run.
package syncqueue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/logger"
	"github.com/fekuna/omnipos-sync-service/internal/model"
	"go.uber.org/zap"
)

type Kind string

const (
	KindCatalog            Kind = "catalog"
	KindInventory          Kind = "inventory"
	KindCommittedInventory Kind = "committed_inventory"
	KindSalesVelocity      Kind = "sales_velocity"
)

const DefaultStaleAfter = 30 * time.Minute

// Outcome is the result of ExecuteWithQueue. Queued is set when the call
// only registered a follow-up; Result is then the zero value.
type Outcome[T any] struct {
	Queued bool `json:"queued,omitempty"`
	Result T    `json:"result,omitempty"`
}

type runFunc func(ctx context.Context) error

type key struct {
	kind     Kind
	tenantID string
}

type flags struct {
	inProgress bool
	pending    bool
	// restoredUntil blocks new runs started by another process moments
	// before this one came up.
	restoredUntil time.Time
	restoreTimer  *time.Timer
	// followUp is the most recently queued run.
	followUp runFunc
}

type Config struct {
	StaleAfter time.Duration
}

type Coordinator struct {
	repo       StateRepository
	logger     logger.ZapLogger
	staleAfter time.Duration
	now        func() time.Time

	mu     sync.Mutex
	states map[key]*flags
	closed bool
	wg     sync.WaitGroup

	// OnFollowUpError is called when a background follow-up run fails.
	OnFollowUpError func(kind Kind, tenantID string, err error)
}

func NewCoordinator(repo StateRepository, cfg Config, log logger.ZapLogger) *Coordinator {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	return &Coordinator{
		repo:       repo,
		logger:     log.With(zap.String("component", "SyncCoordinator")),
		staleAfter: cfg.StaleAfter,
		now:        time.Now,
		states:     make(map[key]*flags),
	}
}

// SetClock replaces the time source.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// ExecuteWithQueue runs fn unless a sync of the same kind is already running
// for the tenant. In that case it returns immediately with Queued set and fn
// runs once more after the current run finishes.
func ExecuteWithQueue[T any](ctx context.Context, c *Coordinator, kind Kind, tenantID string, fn func(ctx context.Context) (T, error)) (Outcome[T], error) {
	rerun := func(ctx context.Context) error {
		_, err := fn(ctx)
		return err
	}
	if !c.tryStart(kind, tenantID, rerun) {
		c.logger.Info("sync already in progress, queued follow-up",
			zap.String("tenant_id", tenantID),
			zap.String("kind", string(kind)),
		)
		return Outcome[T]{Queued: true}, nil
	}

	var result T
	err := c.run(ctx, kind, tenantID, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	c.finish(ctx, kind, tenantID)
	if err != nil {
		return Outcome[T]{}, err
	}
	return Outcome[T]{Result: result}, nil
}

// Status reports the in-memory flags of a tenant and kind.
func (c *Coordinator) Status(kind Kind, tenantID string) (inProgress, pending bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[key{kind, tenantID}]
	if !ok {
		return false, false
	}
	return st.inProgress || c.now().Before(st.restoredUntil), st.pending
}

// Wait blocks until every background follow-up run has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close stops restore timers and waits for follow-up runs. Restored flags
// that expire after Close no longer start queued follow-ups.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	for _, st := range c.states {
		if st.restoreTimer != nil {
			st.restoreTimer.Stop()
			st.restoreTimer = nil
		}
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Coordinator) state(k key) *flags {
	st, ok := c.states[k]
	if !ok {
		st = &flags{}
		c.states[k] = st
	}
	return st
}

func (c *Coordinator) tryStart(kind Kind, tenantID string, rerun runFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state(key{kind, tenantID})
	if st.inProgress || c.now().Before(st.restoredUntil) {
		st.pending = true
		st.followUp = rerun
		return false
	}
	st.inProgress = true
	st.pending = false
	st.followUp = nil
	return true
}

// takeFollowUp releases the slot, or keeps it and returns the queued run.
func (c *Coordinator) takeFollowUp(kind Kind, tenantID string) runFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state(key{kind, tenantID})
	if !st.pending || st.followUp == nil {
		st.inProgress = false
		st.pending = false
		st.followUp = nil
		return nil
	}
	next := st.followUp
	st.pending = false
	st.followUp = nil
	return next
}

func (c *Coordinator) finish(ctx context.Context, kind Kind, tenantID string) {
	next := c.takeFollowUp(kind, tenantID)
	if next == nil {
		return
	}
	c.spawnFollowUp(context.WithoutCancel(ctx), kind, tenantID, next)
}

func (c *Coordinator) spawnFollowUp(ctx context.Context, kind Kind, tenantID string, next runFunc) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.logger.Info("running queued follow-up sync",
			zap.String("tenant_id", tenantID),
			zap.String("kind", string(kind)),
		)
		if err := c.run(ctx, kind, tenantID, next); err != nil {
			c.logger.Error("follow-up sync failed",
				zap.String("tenant_id", tenantID),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			if c.OnFollowUpError != nil {
				c.OnFollowUpError(kind, tenantID, err)
			}
		}
		c.finish(ctx, kind, tenantID)
	}()
}

// run executes fn with persisted RUNNING/SUCCESS/FAILED bookkeeping.
// Persistence failures are logged and never abort the sync.
func (c *Coordinator) run(ctx context.Context, kind Kind, tenantID string, fn runFunc) (err error) {
	log := c.logger.With(zap.String("tenant_id", tenantID), zap.String("kind", string(kind)))
	start := c.now()
	if perr := c.repo.MarkRunning(ctx, tenantID, kind, start); perr != nil {
		log.Warn("failed to persist running sync state", zap.Error(perr))
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("sync panicked", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("sync %s panicked: %v", kind, rec)
		}

		end := c.now()
		duration := end.Sub(start).Milliseconds()
		status := model.SyncStatusSuccess
		var errMsg *string
		if err != nil {
			status = model.SyncStatusFailed
			msg := err.Error()
			errMsg = &msg
		}
		if perr := c.repo.MarkFinished(ctx, tenantID, kind, status, end, duration, errMsg); perr != nil {
			log.Warn("failed to persist finished sync state", zap.Error(perr))
		}
		log.Info("sync finished", zap.String("status", string(status)), zap.Int64("duration_ms", duration))
	}()

	return fn(ctx)
}
