package repositories

import (
	"context"
	"time"

	"github.com/fitlife/fitlife-sync/internal/domain/entities"
)

// NotificationRepository defines the interface for notification persistence
type NotificationRepository interface {
	// Save persists a new notification
	Save(ctx context.Context, notification *entities.Notification) error

	// Update writes status, timestamps and read state of an existing notification
	Update(ctx context.Context, notification *entities.Notification) error

	// FindByID retrieves a notification by its ID
	FindByID(ctx context.Context, id entities.NotificationID) (*entities.Notification, error)

	// FindByMember lists a member's notifications newest first and returns
	// the total count matching the filters
	FindByMember(ctx context.Context, memberID entities.MemberID, filters NotificationFilters) ([]*entities.Notification, int64, error)

	// FindDue returns undispatched notifications whose schedule has passed
	FindDue(ctx context.Context, now time.Time, limit int) ([]*entities.Notification, error)

	// ClaimForDelivery marks a notification dispatched if nobody has yet.
	// It returns false when another caller already claimed it.
	ClaimForDelivery(ctx context.Context, id entities.NotificationID, at time.Time) (bool, error)

	// MarkRead sets read_at on the member's unread notifications among ids
	MarkRead(ctx context.Context, memberID entities.MemberID, ids []entities.NotificationID, at time.Time) (int64, error)

	// MarkAllRead sets read_at on every unread notification of the member
	MarkAllRead(ctx context.Context, memberID entities.MemberID, at time.Time) (int64, error)

	// CountUnread counts delivered notifications without read_at
	CountUnread(ctx context.Context, memberID entities.MemberID) (int64, error)
}

// SubscriptionRepository defines the interface for push subscription persistence
type SubscriptionRepository interface {
	// Save inserts the subscription or, when (member, endpoint) already
	// exists, overwrites its keys, device info and active flag
	Save(ctx context.Context, subscription *entities.PushSubscription) error

	// FindByMemberAndEndpoint returns the subscription for the pair
	FindByMemberAndEndpoint(ctx context.Context, memberID entities.MemberID, endpoint string) (*entities.PushSubscription, error)

	// FindActiveByMember returns the member's active subscriptions
	FindActiveByMember(ctx context.Context, memberID entities.MemberID) ([]*entities.PushSubscription, error)

	// Deactivate turns off the member's subscription for endpoint. It
	// returns false when no such subscription exists.
	Deactivate(ctx context.Context, memberID entities.MemberID, endpoint string) (bool, error)

	// DeactivateByID turns off a subscription by ID
	DeactivateByID(ctx context.Context, id entities.SubscriptionID) error
}

// NotificationFilters defines filtering options for notification queries
type NotificationFilters struct {
	Status     *entities.NotificationStatus
	UnreadOnly bool
	Limit      int
	Offset     int
}
