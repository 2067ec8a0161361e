package repositories

import (
	"encoding/json"
	"time"

	"github.com/fitlife/fitlife-sync/internal/domain/entities"
)

// notificationRecord is the gorm row for a notification. The payload
// variant is stored as its kind plus the JSON of its data.
type notificationRecord struct {
	ID           string     `gorm:"type:varchar(64);primaryKey"`
	MemberID     string     `gorm:"type:varchar(64);not null;index:idx_notifications_member_created,priority:1"`
	Kind         string     `gorm:"type:varchar(32);not null"`
	Title        string     `gorm:"type:text;not null"`
	Message      string     `gorm:"type:text;not null"`
	Payload      string     `gorm:"type:text"`
	Status       string     `gorm:"type:varchar(16);not null;index"`
	ScheduledAt  *time.Time `gorm:"index"`
	DispatchedAt *time.Time
	SentAt       *time.Time
	ReadAt       *time.Time
	CreatedAt    time.Time `gorm:"not null;index:idx_notifications_member_created,priority:2"`
}

func (notificationRecord) TableName() string { return "notifications" }

type subscriptionRecord struct {
	ID         string `gorm:"type:varchar(64);primaryKey"`
	MemberID   string `gorm:"type:varchar(64);not null;uniqueIndex:idx_push_subscriptions_member_endpoint,priority:1"`
	Endpoint   string `gorm:"type:varchar(1024);not null;uniqueIndex:idx_push_subscriptions_member_endpoint,priority:2"`
	P256dh     string `gorm:"type:text;not null"`
	Auth       string `gorm:"type:text;not null"`
	DeviceInfo string `gorm:"type:text"`
	Active     bool   `gorm:"not null;default:true;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (subscriptionRecord) TableName() string { return "push_subscriptions" }

// Models lists every table owned by this package, for migrations.
func Models() []any {
	return []any{&notificationRecord{}, &subscriptionRecord{}}
}

func toNotificationRecord(n *entities.Notification) (*notificationRecord, error) {
	s := n.Snapshot()
	data, err := json.Marshal(s.Payload.Data())
	if err != nil {
		return nil, err
	}
	return &notificationRecord{
		ID:           string(s.ID),
		MemberID:     string(s.MemberID),
		Kind:         string(s.Payload.Kind()),
		Title:        s.Title,
		Message:      s.Message,
		Payload:      string(data),
		Status:       string(s.Status),
		ScheduledAt:  utc(s.ScheduledAt),
		DispatchedAt: utc(s.DispatchedAt),
		SentAt:       utc(s.SentAt),
		ReadAt:       utc(s.ReadAt),
		CreatedAt:    s.CreatedAt.UTC(),
	}, nil
}

func (r *notificationRecord) toEntity() (*entities.Notification, error) {
	kind, err := entities.ParseNotificationKind(r.Kind)
	if err != nil {
		return nil, err
	}
	data := map[string]any{}
	if r.Payload != "" {
		if err := json.Unmarshal([]byte(r.Payload), &data); err != nil {
			return nil, err
		}
	}
	payload, err := entities.DecodePayload(kind, data)
	if err != nil {
		return nil, err
	}
	return entities.RestoreNotification(entities.NotificationSnapshot{
		ID:           entities.NotificationID(r.ID),
		MemberID:     entities.MemberID(r.MemberID),
		Title:        r.Title,
		Message:      r.Message,
		Payload:      payload,
		Status:       entities.NotificationStatus(r.Status),
		ScheduledAt:  r.ScheduledAt,
		SentAt:       r.SentAt,
		ReadAt:       r.ReadAt,
		DispatchedAt: r.DispatchedAt,
		CreatedAt:    r.CreatedAt,
	}), nil
}

func toSubscriptionRecord(sub *entities.PushSubscription) (*subscriptionRecord, error) {
	s := sub.Snapshot()
	var device string
	if s.DeviceInfo != nil {
		b, err := json.Marshal(s.DeviceInfo)
		if err != nil {
			return nil, err
		}
		device = string(b)
	}
	return &subscriptionRecord{
		ID:         string(s.ID),
		MemberID:   string(s.MemberID),
		Endpoint:   s.Endpoint,
		P256dh:     s.Keys.P256dh,
		Auth:       s.Keys.Auth,
		DeviceInfo: device,
		Active:     s.Active,
		CreatedAt:  s.CreatedAt.UTC(),
		UpdatedAt:  s.UpdatedAt.UTC(),
	}, nil
}

func (r *subscriptionRecord) toEntity() (*entities.PushSubscription, error) {
	var device *entities.DeviceInfo
	if r.DeviceInfo != "" {
		device = &entities.DeviceInfo{}
		if err := json.Unmarshal([]byte(r.DeviceInfo), device); err != nil {
			return nil, err
		}
	}
	return entities.RestorePushSubscription(entities.SubscriptionSnapshot{
		ID:         entities.SubscriptionID(r.ID),
		MemberID:   entities.MemberID(r.MemberID),
		Endpoint:   r.Endpoint,
		Keys:       entities.PushKeys{P256dh: r.P256dh, Auth: r.Auth},
		DeviceInfo: device,
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}), nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
