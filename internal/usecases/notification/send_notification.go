package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fitlife/fitlife-sync/internal/domain/entities"
	"github.com/fitlife/fitlife-sync/internal/usecases/ports/repositories"
	"github.com/fitlife/fitlife-sync/internal/usecases/ports/services"
	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/logger"
	"github.com/fitlife/fitlife-sync/pkg/metrics"
	"github.com/fitlife/fitlife-sync/pkg/serviceworker"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 8
	dueBatchSize       = 100

	defaultTestTitle   = "Test notification"
	defaultTestMessage = "This is a test notification from FitLife."
)

// SendNotificationUseCase creates notifications and fans them out to every
// active push subscription of the addressed member.
type SendNotificationUseCase struct {
	notificationRepo repositories.NotificationRepository
	subscriptionRepo repositories.SubscriptionRepository
	pushSvc          services.PushService
	logger           *logger.Logger
	metrics          *metrics.DeliveryMetrics
	concurrency      int
	now              func() time.Time
	newID            func() string
}

// Option customizes a SendNotificationUseCase.
type Option func(*SendNotificationUseCase)

func WithConcurrency(n int) Option {
	return func(uc *SendNotificationUseCase) {
		if n > 0 {
			uc.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(uc *SendNotificationUseCase) { uc.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(uc *SendNotificationUseCase) { uc.newID = fn }
}

func WithMetrics(m *metrics.DeliveryMetrics) Option {
	return func(uc *SendNotificationUseCase) { uc.metrics = m }
}

// NewSendNotificationUseCase creates a new SendNotificationUseCase
func NewSendNotificationUseCase(
	notificationRepo repositories.NotificationRepository,
	subscriptionRepo repositories.SubscriptionRepository,
	pushSvc services.PushService,
	log *logger.Logger,
	opts ...Option,
) *SendNotificationUseCase {
	if log == nil {
		log = logger.Nop()
	}
	uc := &SendNotificationUseCase{
		notificationRepo: notificationRepo,
		subscriptionRepo: subscriptionRepo,
		pushSvc:          pushSvc,
		logger:           log,
		concurrency:      defaultConcurrency,
		now:              time.Now,
		newID:            uuid.NewString,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// SendNotificationRequest represents the input for sending a notification
type SendNotificationRequest struct {
	MemberID    entities.MemberID
	Title       string
	Message     string
	Payload     entities.Payload
	ScheduledAt *time.Time
}

// DeliveryReport summarizes one fan-out.
type DeliveryReport struct {
	Notification *entities.Notification
	Results      []*services.DeliveryResult
	SuccessCount int
	FailedCount  int
	// Skipped is set when another caller already dispatched the notification.
	Skipped bool
}

// SendNotificationResponse represents the output of sending a notification
type SendNotificationResponse struct {
	Notification *entities.Notification
	// Report is nil for scheduled notifications.
	Report *DeliveryReport
}

// Execute persists the notification and, unless it is scheduled, delivers
// it immediately.
func (uc *SendNotificationUseCase) Execute(ctx context.Context, req *SendNotificationRequest) (*SendNotificationResponse, error) {
	if err := uc.validateRequest(req); err != nil {
		return nil, err
	}

	notification := entities.NewNotification(
		entities.NotificationID(uc.newID()),
		req.MemberID,
		strings.TrimSpace(req.Title),
		strings.TrimSpace(req.Message),
		req.Payload,
		req.ScheduledAt,
	)
	if err := notification.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification")
	}

	if err := uc.notificationRepo.Save(ctx, notification); err != nil {
		return nil, fmt.Errorf("failed to save notification: %w", err)
	}

	if !notification.IsImmediate() {
		uc.logger.Info(uc.logger.WithFields(ctx, map[string]any{
			"notification_id": notification.ID(),
			"member_id":       notification.MemberID(),
			"scheduled_at":    notification.ScheduledAt(),
		}), "notification scheduled")
		return &SendNotificationResponse{Notification: notification}, nil
	}

	report, err := uc.deliver(ctx, notification)
	if err != nil {
		return nil, err
	}
	return &SendNotificationResponse{Notification: report.Notification, Report: report}, nil
}

// Schedule stores a notification that is delivered by DeliverDue once
// scheduledAt has passed.
func (uc *SendNotificationUseCase) Schedule(ctx context.Context, req *SendNotificationRequest) (*SendNotificationResponse, error) {
	if req == nil || req.ScheduledAt == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scheduled time is required")
	}
	return uc.Execute(ctx, req)
}

// Deliver fans out an existing notification.
func (uc *SendNotificationUseCase) Deliver(ctx context.Context, id entities.NotificationID) (*DeliveryReport, error) {
	notification, err := uc.notificationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find notification: %w", err)
	}
	return uc.deliver(ctx, notification)
}

func (uc *SendNotificationUseCase) deliver(ctx context.Context, notification *entities.Notification) (*DeliveryReport, error) {
	ctx = uc.logger.WithFields(ctx, map[string]any{
		"notification_id": notification.ID(),
		"member_id":       notification.MemberID(),
	})

	claimedAt := uc.now()
	claimed, err := uc.notificationRepo.ClaimForDelivery(ctx, notification.ID(), claimedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to claim notification: %w", err)
	}
	if !claimed {
		uc.logger.Info(ctx, "notification already dispatched, skipping")
		return &DeliveryReport{Notification: notification, Skipped: true}, nil
	}
	notification.MarkDispatched(claimedAt)

	subscriptions, err := uc.subscriptionRepo.FindActiveByMember(ctx, notification.MemberID())
	if err != nil {
		notification.CompleteDelivery(0, uc.now())
		if updateErr := uc.notificationRepo.Update(ctx, notification); updateErr != nil {
			uc.logger.Error(ctx, "failed to record failed delivery", updateErr)
		}
		return nil, fmt.Errorf("failed to find member subscriptions: %w", err)
	}

	started := time.Now()
	results := uc.fanOut(ctx, notification, subscriptions)
	uc.metrics.ObserveFanout(time.Since(started))

	report := &DeliveryReport{Notification: notification, Results: results}
	for _, r := range results {
		if r.Success {
			report.SuccessCount++
		} else {
			report.FailedCount++
		}
	}

	notification.CompleteDelivery(report.SuccessCount, uc.now())
	if err := uc.notificationRepo.Update(ctx, notification); err != nil {
		return nil, fmt.Errorf("failed to update notification status: %w", err)
	}

	if len(subscriptions) == 0 {
		uc.logger.Warn(ctx, "member has no active push subscriptions")
	} else {
		uc.logger.Info(uc.logger.WithFields(ctx, map[string]any{
			"success": report.SuccessCount,
			"failed":  report.FailedCount,
		}), "notification delivered")
	}
	return report, nil
}

// fanOut sends to every subscription concurrently and waits for all of
// them. A failing subscription never cancels its siblings.
func (uc *SendNotificationUseCase) fanOut(ctx context.Context, notification *entities.Notification, subscriptions []*entities.PushSubscription) []*services.DeliveryResult {
	results := make([]*services.DeliveryResult, len(subscriptions))
	if len(subscriptions) == 0 {
		return results
	}

	message := notification.PushMessage()
	var g errgroup.Group
	g.SetLimit(uc.concurrency)
	for i, sub := range subscriptions {
		g.Go(func() error {
			results[i] = uc.deliverOne(ctx, message, sub)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (uc *SendNotificationUseCase) deliverOne(ctx context.Context, message serviceworker.PushMessage, sub *entities.PushSubscription) *services.DeliveryResult {
	result := &services.DeliveryResult{
		SubscriptionID: sub.ID(),
		Endpoint:       sub.Endpoint(),
	}

	err := uc.pushSvc.Send(ctx, message, sub)
	if err == nil {
		at := uc.now()
		result.Success = true
		result.DeliveredAt = &at
		uc.metrics.IncOutcome("sent")
		return result
	}

	result.Error = err
	subCtx := uc.logger.WithField(ctx, "subscription_id", sub.ID())
	if pkgerrors.Is(err, pkgerrors.CodeSubscriptionExpired) {
		result.Expired = true
		uc.metrics.IncOutcome("expired")
		uc.logger.Info(subCtx, "push subscription expired, deactivating")
		if err := uc.subscriptionRepo.DeactivateByID(ctx, sub.ID()); err != nil {
			uc.logger.Error(subCtx, "failed to deactivate expired subscription", err)
		}
		return result
	}

	uc.metrics.IncOutcome("failed")
	uc.logger.Warn(uc.logger.WithField(subCtx, "error", err.Error()), "push delivery failed")
	return result
}

// SendBulkRequest addresses the same notification to several members.
type SendBulkRequest struct {
	MemberIDs   []entities.MemberID
	Title       string
	Message     string
	Payload     entities.Payload
	ScheduledAt *time.Time
}

// SendBulkResponse counts members whose notification was created and
// dispatched without error.
type SendBulkResponse struct {
	Successful int
	Failed     int
	Total      int
}

// SendBulk sends one notification per member and settles all of them.
func (uc *SendNotificationUseCase) SendBulk(ctx context.Context, req *SendBulkRequest) (*SendBulkResponse, error) {
	if req == nil || len(req.MemberIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one member is required")
	}

	outcomes := make([]error, len(req.MemberIDs))
	var g errgroup.Group
	g.SetLimit(uc.concurrency)
	for i, memberID := range req.MemberIDs {
		g.Go(func() error {
			_, outcomes[i] = uc.Execute(ctx, &SendNotificationRequest{
				MemberID:    memberID,
				Title:       req.Title,
				Message:     req.Message,
				Payload:     req.Payload,
				ScheduledAt: req.ScheduledAt,
			})
			return nil
		})
	}
	_ = g.Wait()

	resp := &SendBulkResponse{Total: len(req.MemberIDs)}
	for i, err := range outcomes {
		if err != nil {
			resp.Failed++
			uc.logger.Warn(uc.logger.WithFields(ctx, map[string]any{
				"member_id": req.MemberIDs[i],
				"error":     err.Error(),
			}), "bulk notification failed for member")
			continue
		}
		resp.Successful++
	}
	return resp, nil
}

// DeliverDueResponse summarizes one DeliverDue pass.
type DeliverDueResponse struct {
	Delivered int
	Sent      int
	Failed    int
}

// DeliverDue delivers every scheduled notification whose time has passed.
// It is the entry point for whatever scheduler drives delivery.
func (uc *SendNotificationUseCase) DeliverDue(ctx context.Context, now time.Time) (*DeliverDueResponse, error) {
	resp := &DeliverDueResponse{}
	for {
		due, err := uc.notificationRepo.FindDue(ctx, now, dueBatchSize)
		if err != nil {
			return resp, fmt.Errorf("failed to find due notifications: %w", err)
		}

		progressed := false
		for _, n := range due {
			report, err := uc.deliver(ctx, n)
			if err != nil {
				uc.logger.Error(uc.logger.WithField(ctx, "notification_id", n.ID()), "failed to deliver due notification", err)
				resp.Failed++
				continue
			}
			if report.Skipped {
				continue
			}
			progressed = true
			resp.Delivered++
			if report.Notification.Status() == entities.NotificationStatusSent {
				resp.Sent++
			} else {
				resp.Failed++
			}
		}

		if len(due) < dueBatchSize || !progressed {
			return resp, nil
		}
	}
}

// SendTest delivers a generic notification to the member right away.
func (uc *SendNotificationUseCase) SendTest(ctx context.Context, memberID entities.MemberID, title, message string) (*SendNotificationResponse, error) {
	if strings.TrimSpace(title) == "" {
		title = defaultTestTitle
	}
	if strings.TrimSpace(message) == "" {
		message = defaultTestMessage
	}
	return uc.Execute(ctx, &SendNotificationRequest{
		MemberID: memberID,
		Title:    title,
		Message:  message,
		Payload:  entities.GenericPayload{Extra: map[string]any{"test": true}},
	})
}

// validateRequest validates the send notification request
func (uc *SendNotificationUseCase) validateRequest(req *SendNotificationRequest) error {
	if req == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "request cannot be nil")
	}
	if req.MemberID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "member ID cannot be empty")
	}
	if strings.TrimSpace(req.Title) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification title cannot be empty")
	}
	if strings.TrimSpace(req.Message) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification message cannot be empty")
	}
	return nil
}
