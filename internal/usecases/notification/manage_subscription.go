package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/fitlife/fitlife-sync/internal/domain/entities"
	"github.com/fitlife/fitlife-sync/internal/usecases/ports/repositories"
	"github.com/fitlife/fitlife-sync/internal/usecases/ports/services"
	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/logger"
	"github.com/google/uuid"
)

// ManageSubscriptionUseCase handles push subscription management
type ManageSubscriptionUseCase struct {
	subscriptionRepo repositories.SubscriptionRepository
	pushSvc          services.PushService
	logger           *logger.Logger
	newID            func() string
}

// NewManageSubscriptionUseCase creates a new ManageSubscriptionUseCase
func NewManageSubscriptionUseCase(
	subscriptionRepo repositories.SubscriptionRepository,
	pushSvc services.PushService,
	log *logger.Logger,
) *ManageSubscriptionUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &ManageSubscriptionUseCase{
		subscriptionRepo: subscriptionRepo,
		pushSvc:          pushSvc,
		logger:           log,
		newID:            uuid.NewString,
	}
}

// SubscribeRequest represents the input for registering a device
type SubscribeRequest struct {
	MemberID   entities.MemberID
	Endpoint   string
	Keys       entities.PushKeys
	DeviceInfo *entities.DeviceInfo
}

// SubscribeResponse represents the output of registering a device
type SubscribeResponse struct {
	Subscription *entities.PushSubscription
	Created      bool
}

// PublicKey returns the VAPID key clients need to register with the push
// service.
func (uc *ManageSubscriptionUseCase) PublicKey() (string, error) {
	key := uc.pushSvc.PublicKey()
	if key == "" {
		return "", pkgerrors.New(pkgerrors.CodeKeyFetchFailed, "push notifications are not configured")
	}
	return key, nil
}

// Subscribe registers the endpoint for the member. Registering an endpoint
// again refreshes its keys and reactivates it instead of adding a record.
func (uc *ManageSubscriptionUseCase) Subscribe(ctx context.Context, req *SubscribeRequest) (*SubscribeResponse, error) {
	if err := uc.validateSubscribeRequest(req); err != nil {
		return nil, err
	}

	created := false
	subscription, err := uc.subscriptionRepo.FindByMemberAndEndpoint(ctx, req.MemberID, req.Endpoint)
	switch {
	case err == nil:
		subscription.Refresh(req.Keys, req.DeviceInfo)
	case pkgerrors.Is(err, pkgerrors.CodeNotFound):
		created = true
		subscription = entities.NewPushSubscription(
			entities.SubscriptionID(uc.newID()),
			req.MemberID,
			req.Endpoint,
			req.Keys,
			req.DeviceInfo,
		)
	default:
		return nil, fmt.Errorf("failed to look up subscription: %w", err)
	}

	if err := subscription.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subscription")
	}

	if err := uc.subscriptionRepo.Save(ctx, subscription); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	uc.logger.Info(uc.logger.WithFields(ctx, map[string]any{
		"member_id":       req.MemberID,
		"subscription_id": subscription.ID(),
		"created":         created,
	}), "push subscription saved")

	return &SubscribeResponse{Subscription: subscription, Created: created}, nil
}

// Unsubscribe deactivates the member's subscription for the endpoint. The
// record is kept. It reports whether a subscription was found.
func (uc *ManageSubscriptionUseCase) Unsubscribe(ctx context.Context, memberID entities.MemberID, endpoint string) (bool, error) {
	if memberID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "member ID cannot be empty")
	}
	if strings.TrimSpace(endpoint) == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "endpoint cannot be empty")
	}

	found, err := uc.subscriptionRepo.Deactivate(ctx, memberID, endpoint)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate subscription: %w", err)
	}
	if !found {
		uc.logger.Debug(uc.logger.WithMemberID(ctx, string(memberID)), "unsubscribe for unknown endpoint")
	}
	return found, nil
}

func (uc *ManageSubscriptionUseCase) validateSubscribeRequest(req *SubscribeRequest) error {
	if req == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "request cannot be nil")
	}
	if req.MemberID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "member ID cannot be empty")
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "endpoint cannot be empty")
	}
	return nil
}
