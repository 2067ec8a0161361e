package entities

import (
	"errors"
	"strings"
	"time"

	"github.com/fitlife/fitlife-sync/pkg/serviceworker"
)

// MemberID identifies a gym member.
type MemberID string

// NotificationID represents a unique notification identifier
type NotificationID string

// NotificationStatus represents the delivery status of a notification
type NotificationStatus string

const (
	NotificationStatusCreated NotificationStatus = "created"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// Notification is a message addressed to one member. It is delivered at most
// once; read state is tracked separately from delivery status.
type Notification struct {
	id           NotificationID
	memberID     MemberID
	title        string
	message      string
	payload      Payload
	status       NotificationStatus
	scheduledAt  *time.Time
	sentAt       *time.Time
	readAt       *time.Time
	dispatchedAt *time.Time
	createdAt    time.Time
}

// NewNotification creates a notification in the created state. A nil
// scheduledAt means the notification should be delivered right away.
func NewNotification(id NotificationID, memberID MemberID, title, message string, payload Payload, scheduledAt *time.Time) *Notification {
	if payload == nil {
		payload = GenericPayload{}
	}
	return &Notification{
		id:          id,
		memberID:    memberID,
		title:       title,
		message:     message,
		payload:     payload,
		status:      NotificationStatusCreated,
		scheduledAt: copyTime(scheduledAt),
		createdAt:   time.Now(),
	}
}

// NotificationSnapshot carries persisted notification state.
type NotificationSnapshot struct {
	ID           NotificationID
	MemberID     MemberID
	Title        string
	Message      string
	Payload      Payload
	Status       NotificationStatus
	ScheduledAt  *time.Time
	SentAt       *time.Time
	ReadAt       *time.Time
	DispatchedAt *time.Time
	CreatedAt    time.Time
}

// RestoreNotification rebuilds a notification from storage.
func RestoreNotification(s NotificationSnapshot) *Notification {
	payload := s.Payload
	if payload == nil {
		payload = GenericPayload{}
	}
	return &Notification{
		id:           s.ID,
		memberID:     s.MemberID,
		title:        s.Title,
		message:      s.Message,
		payload:      payload,
		status:       s.Status,
		scheduledAt:  copyTime(s.ScheduledAt),
		sentAt:       copyTime(s.SentAt),
		readAt:       copyTime(s.ReadAt),
		dispatchedAt: copyTime(s.DispatchedAt),
		createdAt:    s.CreatedAt,
	}
}

func (n *Notification) Snapshot() NotificationSnapshot {
	return NotificationSnapshot{
		ID:           n.id,
		MemberID:     n.memberID,
		Title:        n.title,
		Message:      n.message,
		Payload:      n.payload,
		Status:       n.status,
		ScheduledAt:  copyTime(n.scheduledAt),
		SentAt:       copyTime(n.sentAt),
		ReadAt:       copyTime(n.readAt),
		DispatchedAt: copyTime(n.dispatchedAt),
		CreatedAt:    n.createdAt,
	}
}

func (n *Notification) ID() NotificationID { return n.id }
func (n *Notification) MemberID() MemberID { return n.memberID }
func (n *Notification) Title() string { return n.title }
func (n *Notification) Message() string { return n.message }
func (n *Notification) Payload() Payload { return n.payload }
func (n *Notification) Kind() NotificationKind { return n.payload.Kind() }
func (n *Notification) Status() NotificationStatus { return n.status }
func (n *Notification) ScheduledAt() *time.Time { return copyTime(n.scheduledAt) }
func (n *Notification) SentAt() *time.Time { return copyTime(n.sentAt) }
func (n *Notification) ReadAt() *time.Time { return copyTime(n.readAt) }
func (n *Notification) DispatchedAt() *time.Time { return copyTime(n.dispatchedAt) }
func (n *Notification) CreatedAt() time.Time { return n.createdAt }
func (n *Notification) DeepLink() string { return DeepLink(n.payload) }
func (n *Notification) IsRead() bool { return n.readAt != nil }
func (n *Notification) IsImmediate() bool { return n.scheduledAt == nil }

// IsDue reports whether a scheduled notification is waiting and its time
// has come.
func (n *Notification) IsDue(now time.Time) bool {
	return n.status == NotificationStatusCreated &&
		n.dispatchedAt == nil &&
		n.scheduledAt != nil &&
		!n.scheduledAt.After(now)
}

// MarkDispatched records that a fan-out has started. It returns false when
// the notification was already dispatched.
func (n *Notification) MarkDispatched(at time.Time) bool {
	if n.dispatchedAt != nil {
		return false
	}
	n.dispatchedAt = &at
	return true
}

// CompleteDelivery sets the final status from the number of subscriptions
// that accepted the push.
func (n *Notification) CompleteDelivery(successCount int, at time.Time) {
	if successCount > 0 {
		n.status = NotificationStatusSent
	} else {
		n.status = NotificationStatusFailed
	}
	n.sentAt = &at
}

// MarkRead sets readAt once. Later calls keep the first timestamp.
func (n *Notification) MarkRead(at time.Time) bool {
	if n.readAt != nil {
		return false
	}
	n.readAt = &at
	return true
}

// PushMessage builds the payload sent through the push service.
func (n *Notification) PushMessage() serviceworker.PushMessage {
	return serviceworker.PushMessage{
		Title: n.title,
		Body:  n.message,
		Icon:  serviceworker.DefaultIcon,
		Badge: serviceworker.DefaultBadge,
		Data: serviceworker.PushData{
			NotificationID: string(n.id),
			Type:           string(n.Kind()),
			URL:            n.DeepLink(),
			Extra:          n.payload.Data(),
		},
		Actions: serviceworker.DefaultActions(),
	}
}

// Validate validates the notification
func (n *Notification) Validate() error {
	if n.id == "" {
		return errors.New("notification ID cannot be empty")
	}
	if n.memberID == "" {
		return errors.New("member ID cannot be empty")
	}
	if strings.TrimSpace(n.title) == "" {
		return errors.New("title cannot be empty")
	}
	if strings.TrimSpace(n.message) == "" {
		return errors.New("message cannot be empty")
	}
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
