package services

import (
	"context"
	"time"

	"github.com/fitlife/fitlife-sync/internal/domain/entities"
	"github.com/fitlife/fitlife-sync/pkg/serviceworker"
)

// PushService delivers a push message to one subscription
type PushService interface {
	// Send delivers the message. A subscription the push service no longer
	// knows yields an error with code SUBSCRIPTION_EXPIRED.
	Send(ctx context.Context, message serviceworker.PushMessage, subscription *entities.PushSubscription) error

	// PublicKey returns the VAPID application server key
	PublicKey() string
}

// DeliveryResult represents the outcome for one subscription
type DeliveryResult struct {
	SubscriptionID entities.SubscriptionID
	Endpoint       string
	Success        bool
	Expired        bool
	Error          error
	DeliveredAt    *time.Time
}
