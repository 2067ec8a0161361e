package services

import (
	"context"

	"github.com/fitlife/fitlife-sync/internal/domain/entities"
	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/serviceworker"
)

// NoopPushService stands in when VAPID keys are not configured. It exposes
// no public key and fails every delivery, so notifications end up failed
// instead of silently disappearing.
type NoopPushService struct{}

func NewNoopPushService() *NoopPushService {
	return &NoopPushService{}
}

func (s *NoopPushService) Send(ctx context.Context, msg serviceworker.PushMessage, sub *entities.PushSubscription) error {
	return pkgerrors.New(pkgerrors.CodeKeyFetchFailed, "push notifications are not configured")
}

func (s *NoopPushService) PublicKey() string {
	return ""
}
