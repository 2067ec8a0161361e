package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type entryRecord struct {
	Namespace string     `gorm:"primaryKey;size:64"`
	Key       string     `gorm:"column:entry_key;primaryKey;size:1024"`
	Payload   []byte     `gorm:"not null"`
	StoredAt  time.Time  `gorm:"not null;index:idx_offline_entries_stored_at"`
	ExpiresAt *time.Time `gorm:"index:idx_offline_entries_expires_at"`
}

func (entryRecord) TableName() string {
	return "offline_entries"
}

func (r entryRecord) toEntry() Entry {
	e := Entry{
		Namespace: r.Namespace,
		Key:       r.Key,
		Payload:   r.Payload,
		StoredAt:  r.StoredAt.UTC(),
	}
	if r.ExpiresAt != nil {
		t := r.ExpiresAt.UTC()
		e.ExpiresAt = &t
	}
	return e
}

// SQLStore persists entries in the offline_entries table through gorm.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQLStore migrates the entries table on db and returns a store using it.
// Closing the store does not close db.
func NewSQLStore(ctx context.Context, db *gorm.DB, opts ...Option) (*SQLStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&entryRecord{}); err != nil {
		return nil, unavailable(fmt.Errorf("migrate offline_entries: %w", err), "opening store")
	}
	o := buildOptions(opts)
	return &SQLStore{db: db, now: o.now}, nil
}

func (s *SQLStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var rec entryRecord
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND entry_key = ?", namespace, key).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err, "reading entry")
	}

	now := s.now().UTC()
	if rec.toEntry().Expired(now) {
		// Conditional on expiry so a concurrent fresh Put survives.
		err := s.db.WithContext(ctx).
			Where("namespace = ? AND entry_key = ? AND expires_at IS NOT NULL AND expires_at <= ?", namespace, key, now).
			Delete(&entryRecord{}).Error
		if err != nil {
			return nil, unavailable(err, "removing expired entry")
		}
		return nil, nil
	}
	return rec.Payload, nil
}

func (s *SQLStore) Put(ctx context.Context, namespace, key string, payload []byte, ttl time.Duration) error {
	now := s.now().UTC()
	if payload == nil {
		payload = []byte{}
	}
	rec := entryRecord{
		Namespace: namespace,
		Key:       key,
		Payload:   payload,
		StoredAt:  now,
		ExpiresAt: expiry(now, ttl),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "stored_at", "expires_at"}),
	}).Create(&rec).Error
	return unavailable(err, "storing entry")
}

func (s *SQLStore) Delete(ctx context.Context, namespace, key string) error {
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND entry_key = ?", namespace, key).
		Delete(&entryRecord{}).Error
	return unavailable(err, "deleting entry")
}

func (s *SQLStore) ListByIndex(ctx context.Context, namespace string, index Index) ([]Entry, error) {
	query := s.db.WithContext(ctx).
		Where("namespace = ?", namespace).
		Where("expires_at IS NULL OR expires_at > ?", s.now().UTC())

	switch index {
	case IndexKey:
		query = query.Order("entry_key ASC")
	case IndexStoredAt:
		query = query.Order("stored_at ASC").Order("entry_key ASC")
	case IndexExpiresAt:
		query = query.Order("expires_at IS NULL").Order("expires_at ASC").Order("entry_key ASC")
	default:
		return nil, unavailable(errors.New("unknown index "+string(index)), "listing entries")
	}

	var records []entryRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, unavailable(err, "listing entries")
	}
	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, r.toEntry())
	}
	return entries, nil
}

func (s *SQLStore) Cleanup(ctx context.Context) (int, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now().UTC()).
		Delete(&entryRecord{})
	if res.Error != nil {
		return 0, unavailable(res.Error, "sweeping expired entries")
	}
	return int(res.RowsAffected), nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&entryRecord{}).Error
	return unavailable(err, "clearing store")
}

func (s *SQLStore) Close() error {
	return nil
}
