// Package store is the client's local persistent key/value store. Entries
// live in namespaces, may carry an expiry, and are never returned once
// expired.
package store

import (
	"context"
	"encoding/json"
	"time"

	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/logger"
)

// Namespaces used by the offline runtime.
const (
	NamespaceAPICache = "api_cache"
	NamespaceUserData = "user_data"
	NamespaceInbox    = "inbox"
	NamespacePages    = "pages"
)

// DefaultPagesTTL is the default lifetime of cached pages.
const DefaultPagesTTL = 24 * time.Hour

// Index selects the ordering of ListByIndex.
type Index string

const (
	IndexKey       Index = "key"
	IndexStoredAt  Index = "stored_at"
	IndexExpiresAt Index = "expires_at"
)

// Entry is one cached value.
type Entry struct {
	Namespace string
	Key       string
	Payload   []byte
	StoredAt  time.Time
	ExpiresAt *time.Time
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// Store defines the local persistence operations. Get returns nil, nil for
// missing or expired entries. Every backend failure is a
// STORAGE_UNAVAILABLE error.
type Store interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	// Put overwrites any existing entry. A ttl <= 0 means no expiry.
	Put(ctx context.Context, namespace, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
	ListByIndex(ctx context.Context, namespace string, index Index) ([]Entry, error)
	// Cleanup deletes every expired entry in every namespace and returns
	// how many were removed.
	Cleanup(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

// Option configures a store backend.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func expiry(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := now.Add(ttl).UTC()
	return &t
}

func unavailable(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, msg)
}

// IsUnavailable reports whether err means the store could not be used.
// Callers treat it as an empty cache.
func IsUnavailable(err error) bool {
	return pkgerrors.Is(err, pkgerrors.CodeStorageUnavailable)
}

// GetJSON loads and decodes a JSON entry. It returns nil, nil when the entry
// is missing or expired.
func GetJSON[T any](ctx context.Context, s Store, namespace, key string) (*T, error) {
	raw, err := s.Get(ctx, namespace, key)
	if err != nil || raw == nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, unavailable(err, "decoding cached entry")
	}
	return &v, nil
}

// PutJSON encodes v as JSON and stores it.
func PutJSON(ctx context.Context, s Store, namespace, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return unavailable(err, "encoding cache entry")
	}
	return s.Put(ctx, namespace, key, raw, ttl)
}

// StartCleanup runs Cleanup every interval until ctx is done.
func StartCleanup(ctx context.Context, s Store, interval time.Duration, logg *logger.Logger) {
	if interval <= 0 {
		return
	}
	if logg == nil {
		logg = logger.Nop()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.Cleanup(ctx)
				if err != nil {
					logg.Warn(ctx, "store cleanup failed: "+err.Error())
					continue
				}
				if removed > 0 {
					logg.Debug(logg.WithField(ctx, "removed", removed), "expired entries removed")
				}
			}
		}
	}()
}
