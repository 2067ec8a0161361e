package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitlife/fitlife-sync/internal/domain/entities"
	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSubscriptionRepository implements SubscriptionRepository on top of gorm.
type GormSubscriptionRepository struct {
	db *gorm.DB
}

func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// Save inserts the subscription or, when the member already registered the
// endpoint, refreshes keys, device info and the active flag in place.
func (r *GormSubscriptionRepository) Save(ctx context.Context, subscription *entities.PushSubscription) error {
	rec, err := toSubscriptionRecord(subscription)
	if err != nil {
		return fmt.Errorf("encoding subscription: %w", err)
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "member_id"}, {Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "device_info", "active", "updated_at"}),
		}).
		Create(rec).Error
}

func (r *GormSubscriptionRepository) FindByMemberAndEndpoint(ctx context.Context, memberID entities.MemberID, endpoint string) (*entities.PushSubscription, error) {
	var rec subscriptionRecord
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND endpoint = ?", string(memberID), endpoint).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	if err != nil {
		return nil, err
	}
	return rec.toEntity()
}

func (r *GormSubscriptionRepository) FindActiveByMember(ctx context.Context, memberID entities.MemberID) ([]*entities.PushSubscription, error) {
	var recs []subscriptionRecord
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND active = ?", string(memberID), true).
		Order("created_at ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*entities.PushSubscription, 0, len(recs))
	for i := range recs {
		sub, err := recs[i].toEntity()
		if err != nil {
			return nil, fmt.Errorf("decoding subscription %s: %w", recs[i].ID, err)
		}
		out = append(out, sub)
	}
	return out, nil
}

func (r *GormSubscriptionRepository) Deactivate(ctx context.Context, memberID entities.MemberID, endpoint string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&subscriptionRecord{}).
		Where("member_id = ? AND endpoint = ?", string(memberID), endpoint).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}
	err := r.db.WithContext(ctx).
		Model(&subscriptionRecord{}).
		Where("member_id = ? AND endpoint = ?", string(memberID), endpoint).
		Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()}).Error
	return err == nil, err
}

func (r *GormSubscriptionRepository) DeactivateByID(ctx context.Context, id entities.SubscriptionID) error {
	return r.db.WithContext(ctx).
		Model(&subscriptionRecord{}).
		Where("id = ?", string(id)).
		Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()}).Error
}
