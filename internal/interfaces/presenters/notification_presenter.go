package presenters

import (
	"time"

	"github.com/fitlife/fitlife-sync/internal/domain/entities"
	"github.com/fitlife/fitlife-sync/internal/usecases/notification"
)

// NotificationResponse represents a notification in HTTP responses
type NotificationResponse struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data"`
	URL         string         `json:"url"`
	Status      string         `json:"status"`
	IsRead      bool           `json:"isRead"`
	ScheduledAt *string        `json:"scheduledAt,omitempty"`
	SentAt      *string        `json:"sentAt,omitempty"`
	ReadAt      *string        `json:"readAt,omitempty"`
	CreatedAt   string         `json:"createdAt"`
}

// SubscriptionResponse represents a push subscription in HTTP responses
type SubscriptionResponse struct {
	ID         string               `json:"id"`
	Endpoint   string               `json:"endpoint"`
	IsActive   bool                 `json:"isActive"`
	DeviceInfo *entities.DeviceInfo `json:"deviceInfo,omitempty"`
	CreatedAt  string               `json:"createdAt"`
	UpdatedAt  string               `json:"updatedAt"`
}

type SubscribeResponse struct {
	Subscription *SubscriptionResponse `json:"subscription"`
	Created      bool                  `json:"created"`
}

type ListNotificationsResponse struct {
	Notifications []*NotificationResponse `json:"notifications"`
	Page          int                     `json:"page"`
	Limit         int                     `json:"limit"`
	Total         int64                   `json:"total"`
}

// DeliveryResponse is returned when a notification was pushed right away.
type DeliveryResponse struct {
	Notification *NotificationResponse `json:"notification"`
	SuccessCount int                   `json:"successCount"`
	FailedCount  int                   `json:"failedCount"`
}

type BulkSendResponse struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

type DeliverDueResponse struct {
	Delivered int `json:"delivered"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

func NotificationToResponse(n *entities.Notification) *NotificationResponse {
	if n == nil {
		return nil
	}
	return &NotificationResponse{
		ID:          string(n.ID()),
		Type:        string(n.Kind()),
		Title:       n.Title(),
		Message:     n.Message(),
		Data:        n.Payload().Data(),
		URL:         n.DeepLink(),
		Status:      string(n.Status()),
		IsRead:      n.IsRead(),
		ScheduledAt: formatTime(n.ScheduledAt()),
		SentAt:      formatTime(n.SentAt()),
		ReadAt:      formatTime(n.ReadAt()),
		CreatedAt:   n.CreatedAt().UTC().Format(time.RFC3339),
	}
}

func SubscriptionToResponse(s *entities.PushSubscription) *SubscriptionResponse {
	if s == nil {
		return nil
	}
	return &SubscriptionResponse{
		ID:         string(s.ID()),
		Endpoint:   s.Endpoint(),
		IsActive:   s.IsActive(),
		DeviceInfo: s.DeviceInfo(),
		CreatedAt:  s.CreatedAt().UTC().Format(time.RFC3339),
		UpdatedAt:  s.UpdatedAt().UTC().Format(time.RFC3339),
	}
}

func PresentSubscribe(resp *notification.SubscribeResponse) *SubscribeResponse {
	return &SubscribeResponse{
		Subscription: SubscriptionToResponse(resp.Subscription),
		Created:      resp.Created,
	}
}

func PresentList(resp *notification.ListResponse) *ListNotificationsResponse {
	items := make([]*NotificationResponse, 0, len(resp.Notifications))
	for _, n := range resp.Notifications {
		items = append(items, NotificationToResponse(n))
	}
	return &ListNotificationsResponse{
		Notifications: items,
		Page:          resp.Page,
		Limit:         resp.Limit,
		Total:         resp.Total,
	}
}

func PresentDelivery(resp *notification.SendNotificationResponse) *DeliveryResponse {
	out := &DeliveryResponse{Notification: NotificationToResponse(resp.Notification)}
	if resp.Report != nil {
		out.SuccessCount = resp.Report.SuccessCount
		out.FailedCount = resp.Report.FailedCount
	}
	return out
}

func PresentBulk(resp *notification.SendBulkResponse) *BulkSendResponse {
	return &BulkSendResponse{Successful: resp.Successful, Failed: resp.Failed, Total: resp.Total}
}

func PresentDeliverDue(resp *notification.DeliverDueResponse) *DeliverDueResponse {
	return &DeliverDueResponse{Delivered: resp.Delivered, Sent: resp.Sent, Failed: resp.Failed}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
