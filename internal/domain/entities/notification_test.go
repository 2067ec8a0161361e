package entities

import (
	"testing"
	"time"

	"github.com/fitlife/fitlife-sync/pkg/serviceworker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepLink(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		want    string
	}{
		{"membership", MembershipPayload{MembershipID: "m-1"}, "/dashboard/membership"},
		{"appointment", AppointmentPayload{AppointmentID: "42"}, "/dashboard/appointments/42"},
		{"promotion", PromotionPayload{PromoID: "SUMMER25"}, "/packages?promo=SUMMER25"},
		{"workout", WorkoutPayload{ScheduleID: "w-9"}, "/dashboard/workout-schedule"},
		{"generic", GenericPayload{}, "/dashboard"},
		{"nil payload", nil, "/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeepLink(tt.payload))
		})
	}
}

func TestDecodePayloadRoundTrip(t *testing.T) {
	payloads := []Payload{
		MembershipPayload{MembershipID: "m-1"},
		AppointmentPayload{AppointmentID: "42"},
		PromotionPayload{PromoID: "SUMMER25"},
		WorkoutPayload{ScheduleID: "w-9"},
		GenericPayload{Extra: map[string]any{"source": "admin"}},
	}

	for _, p := range payloads {
		decoded, err := DecodePayload(p.Kind(), p.Data())
		require.NoError(t, err)
		assert.Equal(t, p, decoded)
	}

	_, err := DecodePayload("billing", nil)
	assert.Error(t, err)
}

func TestParseNotificationKind(t *testing.T) {
	k, err := ParseNotificationKind("")
	require.NoError(t, err)
	assert.Equal(t, NotificationKindGeneric, k)

	k, err = ParseNotificationKind("promotion")
	require.NoError(t, err)
	assert.Equal(t, NotificationKindPromotion, k)

	_, err = ParseNotificationKind("billing")
	assert.Error(t, err)
}

func TestNewNotificationDefaults(t *testing.T) {
	n := NewNotification("n-1", "member-1", "Hello", "World", nil, nil)

	assert.Equal(t, NotificationStatusCreated, n.Status())
	assert.Equal(t, NotificationKindGeneric, n.Kind())
	assert.True(t, n.IsImmediate())
	assert.Nil(t, n.SentAt())
	assert.NoError(t, n.Validate())
}

func TestNotificationValidate(t *testing.T) {
	tests := []struct {
		name string
		n    *Notification
	}{
		{"missing id", NewNotification("", "m", "t", "b", nil, nil)},
		{"missing member", NewNotification("n", "", "t", "b", nil, nil)},
		{"blank title", NewNotification("n", "m", "  ", "b", nil, nil)},
		{"blank message", NewNotification("n", "m", "t", "", nil, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.n.Validate())
		})
	}
}

func TestNotificationDeliveryLifecycle(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	scheduled := at.Add(time.Hour)
	n := NewNotification("n-1", "member-1", "Reminder", "Class soon", WorkoutPayload{}, &scheduled)

	assert.False(t, n.IsImmediate())
	assert.False(t, n.IsDue(at))
	assert.True(t, n.IsDue(scheduled))

	assert.True(t, n.MarkDispatched(scheduled))
	assert.False(t, n.MarkDispatched(scheduled.Add(time.Minute)))
	assert.False(t, n.IsDue(scheduled), "dispatched notifications are not due again")

	n.CompleteDelivery(1, scheduled)
	assert.Equal(t, NotificationStatusSent, n.Status())
	require.NotNil(t, n.SentAt())
	assert.Equal(t, scheduled, *n.SentAt())

	failed := NewNotification("n-2", "member-1", "t", "b", nil, nil)
	failed.CompleteDelivery(0, at)
	assert.Equal(t, NotificationStatusFailed, failed.Status())
	assert.NotNil(t, failed.SentAt())
}

func TestMarkReadIsMonotonic(t *testing.T) {
	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := NewNotification("n-1", "member-1", "t", "b", nil, nil)

	assert.True(t, n.MarkRead(first))
	assert.False(t, n.MarkRead(first.Add(time.Hour)))
	require.NotNil(t, n.ReadAt())
	assert.Equal(t, first, *n.ReadAt())
	assert.True(t, n.IsRead())
}

func TestPushMessage(t *testing.T) {
	n := NewNotification("n-1", "member-1", "Appointment", "See you at 9", AppointmentPayload{AppointmentID: "42"}, nil)

	msg := n.PushMessage()
	assert.Equal(t, "Appointment", msg.Title)
	assert.Equal(t, "See you at 9", msg.Body)
	assert.Equal(t, serviceworker.DefaultIcon, msg.Icon)
	assert.Equal(t, serviceworker.DefaultBadge, msg.Badge)
	assert.Equal(t, "n-1", msg.Data.NotificationID)
	assert.Equal(t, "appointment", msg.Data.Type)
	assert.Equal(t, "/dashboard/appointments/42", msg.Data.URL)
	assert.Equal(t, "42", msg.Data.Extra["appointmentId"])
	assert.Len(t, msg.Actions, 2)
}

func TestRestoreNotificationCopiesTimes(t *testing.T) {
	read := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := RestoreNotification(NotificationSnapshot{
		ID: "n-1", MemberID: "m", Title: "t", Message: "b",
		Status: NotificationStatusSent, ReadAt: &read,
	})
	read = read.Add(time.Hour)

	require.NotNil(t, n.ReadAt())
	assert.NotEqual(t, read, *n.ReadAt())
	assert.Equal(t, NotificationKindGeneric, n.Kind())
}
