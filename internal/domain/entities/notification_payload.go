package entities

import (
	"fmt"
	"net/url"
)

// NotificationKind tags the variant carried by a notification.
type NotificationKind string

const (
	NotificationKindMembership  NotificationKind = "membership"
	NotificationKindAppointment NotificationKind = "appointment"
	NotificationKindPromotion   NotificationKind = "promotion"
	NotificationKindWorkout     NotificationKind = "workout"
	NotificationKindGeneric     NotificationKind = "generic"
)

// Payload is the closed set of notification variants. Each variant carries
// exactly the identifiers its deep link needs.
type Payload interface {
	Kind() NotificationKind
	// Data returns the variant's fields as wire data.
	Data() map[string]any
	payload()
}

type MembershipPayload struct {
	MembershipID string
}

type AppointmentPayload struct {
	AppointmentID string
}

type PromotionPayload struct {
	PromoID string
}

type WorkoutPayload struct {
	ScheduleID string
}

type GenericPayload struct {
	Extra map[string]any
}

func (MembershipPayload) Kind() NotificationKind { return NotificationKindMembership }
func (AppointmentPayload) Kind() NotificationKind { return NotificationKindAppointment }
func (PromotionPayload) Kind() NotificationKind { return NotificationKindPromotion }
func (WorkoutPayload) Kind() NotificationKind { return NotificationKindWorkout }
func (GenericPayload) Kind() NotificationKind { return NotificationKindGeneric }

func (MembershipPayload) payload()  {}
func (AppointmentPayload) payload() {}
func (PromotionPayload) payload()   {}
func (WorkoutPayload) payload()     {}
func (GenericPayload) payload()     {}

func (p MembershipPayload) Data() map[string]any {
	return optionalField("membershipId", p.MembershipID)
}

func (p AppointmentPayload) Data() map[string]any {
	return optionalField("appointmentId", p.AppointmentID)
}

func (p PromotionPayload) Data() map[string]any {
	return optionalField("promoId", p.PromoID)
}

func (p WorkoutPayload) Data() map[string]any {
	return optionalField("scheduleId", p.ScheduleID)
}

func (p GenericPayload) Data() map[string]any {
	out := make(map[string]any, len(p.Extra))
	for k, v := range p.Extra {
		out[k] = v
	}
	return out
}

func optionalField(key, value string) map[string]any {
	if value == "" {
		return map[string]any{}
	}
	return map[string]any{key: value}
}

// DeepLink maps a payload to the in-app route a click should open.
func DeepLink(p Payload) string {
	switch v := p.(type) {
	case MembershipPayload:
		return "/dashboard/membership"
	case AppointmentPayload:
		return "/dashboard/appointments/" + url.PathEscape(v.AppointmentID)
	case PromotionPayload:
		return "/packages?promo=" + url.QueryEscape(v.PromoID)
	case WorkoutPayload:
		return "/dashboard/workout-schedule"
	default:
		return "/dashboard"
	}
}

// ParseNotificationKind validates a kind string. Empty means generic.
func ParseNotificationKind(s string) (NotificationKind, error) {
	switch k := NotificationKind(s); k {
	case NotificationKindMembership, NotificationKindAppointment, NotificationKindPromotion,
		NotificationKindWorkout, NotificationKindGeneric:
		return k, nil
	case "":
		return NotificationKindGeneric, nil
	default:
		return "", fmt.Errorf("unknown notification type %q", s)
	}
}

// DecodePayload rebuilds a payload variant from its kind and wire data.
func DecodePayload(kind NotificationKind, data map[string]any) (Payload, error) {
	str := func(key string) string {
		if v, ok := data[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if v != nil {
				return fmt.Sprint(v)
			}
		}
		return ""
	}

	switch kind {
	case NotificationKindMembership:
		return MembershipPayload{MembershipID: str("membershipId")}, nil
	case NotificationKindAppointment:
		return AppointmentPayload{AppointmentID: str("appointmentId")}, nil
	case NotificationKindPromotion:
		return PromotionPayload{PromoID: str("promoId")}, nil
	case NotificationKindWorkout:
		return WorkoutPayload{ScheduleID: str("scheduleId")}, nil
	case NotificationKindGeneric, "":
		return GenericPayload{Extra: data}, nil
	default:
		return nil, fmt.Errorf("unknown notification type %q", kind)
	}
}
