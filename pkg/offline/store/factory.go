package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Config selects a store backend.
type Config struct {
	Type       string // "sqlite", "postgres" or "memory"
	MaxEntries int    // memory only; 0 means unlimited
}

// New creates a store for the configured backend. SQL backends use conn,
// which the caller keeps ownership of.
func New(ctx context.Context, cfg Config, conn *gorm.DB, opts ...Option) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.MaxEntries, opts...), nil

	case "sqlite", "postgres", "":
		if conn == nil {
			return nil, fmt.Errorf("%s store requires a database connection", cfg.Type)
		}
		return NewSQLStore(ctx, conn, opts...)

	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
