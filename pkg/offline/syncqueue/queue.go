package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/logger"
	"github.com/fitlife/fitlife-sync/pkg/metrics"
)

const maxLastErrorLen = 1024

// Executor replays one action. A SERVER_REJECTED error dead-letters the
// action; any other error schedules a retry.
type Executor interface {
	Execute(ctx context.Context, action QueuedAction) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, action QueuedAction) error

func (f ExecutorFunc) Execute(ctx context.Context, action QueuedAction) error { return f(ctx, action) }

// Config tunes retry behaviour.
type Config struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// ReplayRate limits replayed actions per second; 0 means unlimited.
	ReplayRate float64
}

// Option configures a Queue.
type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// Queue is a durable FIFO-within-priority queue of actions.
type Queue struct {
	db        *gorm.DB
	cfg       Config
	logg      *logger.Logger
	metrics   *metrics.SyncMetrics
	limiter   *rate.Limiter
	now       func() time.Time
	executors map[string]Executor

	replayMu sync.Mutex
	flight   singleflight.Group
}

// New migrates the queued_actions table and returns a queue over db.
func New(ctx context.Context, db *gorm.DB, cfg Config, logg *logger.Logger, opts ...Option) (*Queue, error) {
	if err := db.WithContext(ctx).AutoMigrate(&QueuedAction{}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "migrating queued_actions")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	q := &Queue{
		db:        db,
		cfg:       cfg,
		logg:      logg,
		now:       time.Now,
		executors: make(map[string]Executor),
	}
	if cfg.ReplayRate > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(cfg.ReplayRate), 1)
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Register sets the executor for an action kind.
func (q *Queue) Register(kind string, exec Executor) {
	q.replayMu.Lock()
	defer q.replayMu.Unlock()
	q.executors[kind] = exec
}

// Enqueue persists an action. payload is stored as-is when it is []byte or
// json.RawMessage and JSON-encoded otherwise.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any, priority int) (*QueuedAction, error) {
	if kind == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "action kind is required")
	}
	var raw []byte
	switch p := payload.(type) {
	case []byte:
		raw = p
	case json.RawMessage:
		raw = p
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encoding action payload")
		}
		raw = encoded
	}

	action := &QueuedAction{
		Kind:       kind,
		Payload:    raw,
		Priority:   priority,
		Status:     StatusPending,
		EnqueuedAt: q.now().UTC(),
	}
	if err := q.db.WithContext(ctx).Create(action).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "enqueueing action")
	}
	q.logg.Debug(q.logg.WithFields(ctx, map[string]any{
		"action_id": action.ID,
		"kind":      kind,
	}), "action queued")
	return action, nil
}

func (q *Queue) ordered(ctx context.Context, status Status) *gorm.DB {
	return q.db.WithContext(ctx).
		Where("status = ?", status).
		Order("priority ASC").
		Order("enqueued_at ASC").
		Order("id ASC")
}

// Pending lists actions awaiting replay in replay order.
func (q *Queue) Pending(ctx context.Context) ([]QueuedAction, error) {
	var actions []QueuedAction
	if err := q.ordered(ctx, StatusPending).Find(&actions).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "listing pending actions")
	}
	return actions, nil
}

// DeadLetters lists actions that gave up.
func (q *Queue) DeadLetters(ctx context.Context) ([]QueuedAction, error) {
	var actions []QueuedAction
	if err := q.ordered(ctx, StatusDead).Find(&actions).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "listing dead letters")
	}
	return actions, nil
}

// Len counts pending actions.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	var count int64
	if err := q.db.WithContext(ctx).Model(&QueuedAction{}).Where("status = ?", StatusPending).Count(&count).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "counting actions")
	}
	return count, nil
}

// Remove deletes an acknowledged action.
func (q *Queue) Remove(ctx context.Context, id uint) error {
	res := q.db.WithContext(ctx).Delete(&QueuedAction{}, id)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, res.Error, "removing action")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "action %d not found", id)
	}
	return nil
}

func (q *Queue) get(ctx context.Context, id uint) (*QueuedAction, error) {
	var action QueuedAction
	err := q.db.WithContext(ctx).Take(&action, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "action %d not found", id)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "loading action")
	}
	return &action, nil
}

// BumpRetry records a failed attempt and schedules the next one.
func (q *Queue) BumpRetry(ctx context.Context, id uint, cause error) (*QueuedAction, error) {
	action, err := q.get(ctx, id)
	if err != nil {
		return nil, err
	}
	action.RetryCount++
	next := q.now().UTC().Add(Backoff(q.cfg.BackoffBase, q.cfg.BackoffMax, action.RetryCount))
	action.NextAttemptAt = &next
	action.LastError = errorText(cause)

	err = q.db.WithContext(ctx).Model(&QueuedAction{}).Where("id = ?", id).Updates(map[string]any{
		"retry_count":     action.RetryCount,
		"next_attempt_at": action.NextAttemptAt,
		"last_error":      action.LastError,
	}).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "recording retry")
	}
	return action, nil
}

func (q *Queue) deadLetter(ctx context.Context, action *QueuedAction, cause error) error {
	action.Status = StatusDead
	action.LastError = errorText(cause)
	action.NextAttemptAt = nil
	err := q.db.WithContext(ctx).Model(&QueuedAction{}).Where("id = ?", action.ID).Updates(map[string]any{
		"status":          StatusDead,
		"retry_count":     action.RetryCount,
		"next_attempt_at": nil,
		"last_error":      action.LastError,
	}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "dead-lettering action")
	}
	return nil
}

// Requeue moves a dead action back to the queue with a fresh retry budget.
func (q *Queue) Requeue(ctx context.Context, id uint) error {
	res := q.db.WithContext(ctx).Model(&QueuedAction{}).
		Where("id = ? AND status = ?", id, StatusDead).
		Updates(map[string]any{
			"status":          StatusPending,
			"retry_count":     0,
			"next_attempt_at": nil,
			"last_error":      "",
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, res.Error, "requeueing action")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "dead action %d not found", id)
	}
	return nil
}

// Trigger runs a replay pass. Concurrent triggers share the pass in flight.
func (q *Queue) Trigger(ctx context.Context) (ReplayResult, error) {
	v, err, _ := q.flight.Do("replay", func() (any, error) {
		return q.ReplayAll(ctx)
	})
	result, _ := v.(ReplayResult)
	return result, err
}

// ReplayAll replays pending actions one at a time in order. The pass stops
// at the first failure, dead-lettered or not, or at an action whose retry
// time has not come. A dead action leaves the order, so the next pass starts
// behind it. Only storage problems are returned as errors.
func (q *Queue) ReplayAll(ctx context.Context) (ReplayResult, error) {
	q.replayMu.Lock()
	defer q.replayMu.Unlock()

	var result ReplayResult
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var head QueuedAction
		err := q.ordered(ctx, StatusPending).Limit(1).Find(&head).Error
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "loading queue head")
		}
		if head.ID == 0 {
			return result, nil
		}
		if head.NextAttemptAt != nil && head.NextAttemptAt.After(q.now()) {
			result.Deferred = true
			return result, nil
		}

		if q.limiter != nil {
			if err := q.limiter.Wait(ctx); err != nil {
				return result, err
			}
		}

		actionCtx := q.logg.WithFields(ctx, map[string]any{
			"action_id": head.ID,
			"kind":      head.Kind,
			"attempt":   head.RetryCount + 1,
		})

		execErr := q.execute(ctx, head)
		if execErr == nil {
			if err := q.Remove(ctx, head.ID); err != nil {
				return result, err
			}
			result.Succeeded++
			q.metrics.IncReplay("succeeded")
			q.logg.Debug(actionCtx, "action replayed")
			continue
		}

		if pkgerrors.Is(execErr, pkgerrors.CodeServerRejected) || head.RetryCount+1 >= q.cfg.MaxRetries {
			head.RetryCount++
			if err := q.deadLetter(ctx, &head, execErr); err != nil {
				return result, err
			}
			result.DeadLettered++
			q.metrics.IncReplay("dead_lettered")
			q.logg.Error(actionCtx, "action moved to dead letters", execErr)
			return result, nil
		}

		if _, err := q.BumpRetry(ctx, head.ID, execErr); err != nil {
			return result, err
		}
		result.Failed++
		q.metrics.IncReplay("failed")
		q.logg.Warn(actionCtx, "action replay failed: "+execErr.Error())
		return result, nil
	}
}

func (q *Queue) execute(ctx context.Context, action QueuedAction) error {
	exec, ok := q.executors[action.Kind]
	if !ok {
		return pkgerrors.Newf(pkgerrors.CodeServerRejected, "no executor for action kind %q", action.Kind)
	}
	return exec.Execute(ctx, action)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToValidUTF8(err.Error(), "\uFFFD")
	if len(msg) <= maxLastErrorLen {
		return msg
	}
	cut := maxLastErrorLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// String renders an action for CLI listings.
func (a QueuedAction) String() string {
	return fmt.Sprintf("#%d %s priority=%d retries=%d status=%s", a.ID, a.Kind, a.Priority, a.RetryCount, a.Status)
}
