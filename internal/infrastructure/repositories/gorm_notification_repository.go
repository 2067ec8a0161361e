package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitlife/fitlife-sync/internal/domain/entities"
	"github.com/fitlife/fitlife-sync/internal/usecases/ports/repositories"
	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"gorm.io/gorm"
)

// visibleStatuses are the statuses a member can see in the inbox.
// Scheduled notifications stay hidden until they are dispatched.
var visibleStatuses = []string{
	string(entities.NotificationStatusSent),
	string(entities.NotificationStatusFailed),
}

// GormNotificationRepository implements NotificationRepository on top of gorm.
type GormNotificationRepository struct {
	db *gorm.DB
}

func NewGormNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *GormNotificationRepository) WithTx(tx *gorm.DB) *GormNotificationRepository {
	if tx == nil {
		return r
	}
	return &GormNotificationRepository{db: tx}
}

func (r *GormNotificationRepository) Save(ctx context.Context, notification *entities.Notification) error {
	rec, err := toNotificationRecord(notification)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *GormNotificationRepository) Update(ctx context.Context, notification *entities.Notification) error {
	rec, err := toNotificationRecord(notification)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	result := r.db.WithContext(ctx).
		Model(&notificationRecord{}).
		Where("id = ?", rec.ID).
		Updates(map[string]any{
			"status":        rec.Status,
			"dispatched_at": rec.DispatchedAt,
			"sent_at":       rec.SentAt,
			"read_at":       rec.ReadAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (r *GormNotificationRepository) FindByID(ctx context.Context, id entities.NotificationID) (*entities.Notification, error) {
	var rec notificationRecord
	err := r.db.WithContext(ctx).Where("id = ?", string(id)).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	if err != nil {
		return nil, err
	}
	return rec.toEntity()
}

func (r *GormNotificationRepository) FindByMember(ctx context.Context, memberID entities.MemberID, filters repositories.NotificationFilters) ([]*entities.Notification, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&notificationRecord{}).
		Where("member_id = ?", string(memberID))
	if filters.Status != nil {
		query = query.Where("status = ?", string(*filters.Status))
	} else {
		query = query.Where("status IN ?", visibleStatuses)
	}
	if filters.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recs []notificationRecord
	q := query.Order("created_at DESC, id DESC").Offset(filters.Offset)
	if filters.Limit > 0 {
		q = q.Limit(filters.Limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, 0, err
	}
	out, err := toNotifications(recs)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *GormNotificationRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*entities.Notification, error) {
	var recs []notificationRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND dispatched_at IS NULL AND scheduled_at IS NOT NULL AND scheduled_at <= ?",
			string(entities.NotificationStatusCreated), now.UTC()).
		Order("scheduled_at ASC, id ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return toNotifications(recs)
}

func (r *GormNotificationRepository) ClaimForDelivery(ctx context.Context, id entities.NotificationID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&notificationRecord{}).
		Where("id = ? AND dispatched_at IS NULL", string(id)).
		UpdateColumn("dispatched_at", at.UTC())
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&notificationRecord{}).Where("id = ?", string(id)).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return false, nil
}

func (r *GormNotificationRepository) MarkRead(ctx context.Context, memberID entities.MemberID, ids []entities.NotificationID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	result := r.db.WithContext(ctx).
		Model(&notificationRecord{}).
		Where("member_id = ? AND id IN ? AND read_at IS NULL AND status IN ?", string(memberID), raw, visibleStatuses).
		UpdateColumn("read_at", at.UTC())
	return result.RowsAffected, result.Error
}

func (r *GormNotificationRepository) MarkAllRead(ctx context.Context, memberID entities.MemberID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&notificationRecord{}).
		Where("member_id = ? AND read_at IS NULL AND status IN ?", string(memberID), visibleStatuses).
		UpdateColumn("read_at", at.UTC())
	return result.RowsAffected, result.Error
}

func (r *GormNotificationRepository) CountUnread(ctx context.Context, memberID entities.MemberID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&notificationRecord{}).
		Where("member_id = ? AND read_at IS NULL AND status IN ?", string(memberID), visibleStatuses).
		Count(&count).Error
	return count, err
}

func toNotifications(recs []notificationRecord) ([]*entities.Notification, error) {
	out := make([]*entities.Notification, 0, len(recs))
	for i := range recs {
		n, err := recs[i].toEntity()
		if err != nil {
			return nil, fmt.Errorf("decoding notification %s: %w", recs[i].ID, err)
		}
		out = append(out, n)
	}
	return out, nil
}
