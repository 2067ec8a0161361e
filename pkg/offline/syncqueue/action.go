// Package syncqueue persists mutations made while offline and replays them
// in order once the network is back.
package syncqueue

import (
	"time"
)

// Status is the lifecycle state of a queued action.
type Status string

const (
	StatusPending Status = "pending"
	// StatusDead marks an action that will not be replayed again until it
	// is requeued by hand.
	StatusDead Status = "dead"
)

// QueuedAction is a deferred mutation. Replay order is priority ascending,
// then enqueue time, then ID.
type QueuedAction struct {
	ID            uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind          string     `gorm:"size:64;not null" json:"kind"`
	Payload       []byte     `gorm:"not null" json:"payload"`
	Priority      int        `gorm:"not null;default:0;index:idx_queued_actions_order,priority:2" json:"priority"`
	Status        Status     `gorm:"size:16;not null;index:idx_queued_actions_order,priority:1" json:"status"`
	EnqueuedAt    time.Time  `gorm:"not null;index:idx_queued_actions_order,priority:3" json:"enqueuedAt"`
	RetryCount    int        `gorm:"not null;default:0" json:"retryCount"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
	LastError     string     `gorm:"size:1024" json:"lastError,omitempty"`
}

func (QueuedAction) TableName() string {
	return "queued_actions"
}

// ReplayResult summarizes one replay pass.
type ReplayResult struct {
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"deadLettered"`
	// Deferred is set when the pass stopped at an action still inside its
	// backoff window.
	Deferred bool `json:"deferred"`
}

// Backoff returns the wait before attempt n+1 after n failures:
// base * 2^(n-1), capped at max.
func Backoff(base, max time.Duration, n int) time.Duration {
	if n <= 0 || base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
