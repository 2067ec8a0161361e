package entities

import (
	"errors"
	"net"
	"net/url"
	"time"
)

// SubscriptionID represents a unique subscription identifier
type SubscriptionID string

// PushKeys are the client encryption keys of a push subscription.
type PushKeys struct {
	P256dh string
	Auth   string
}

// PushSubscription binds a member to one browser push endpoint. The pair
// (memberID, endpoint) is unique; an expired subscription is deactivated,
// never removed.
type PushSubscription struct {
	id         SubscriptionID
	memberID   MemberID
	endpoint   string
	keys       PushKeys
	deviceInfo *DeviceInfo
	active     bool
	createdAt  time.Time
	updatedAt  time.Time
}

// NewPushSubscription creates an active subscription
func NewPushSubscription(id SubscriptionID, memberID MemberID, endpoint string, keys PushKeys, deviceInfo *DeviceInfo) *PushSubscription {
	now := time.Now()
	return &PushSubscription{
		id:         id,
		memberID:   memberID,
		endpoint:   endpoint,
		keys:       keys,
		deviceInfo: deviceInfo.Clone(),
		active:     true,
		createdAt:  now,
		updatedAt:  now,
	}
}

// SubscriptionSnapshot carries persisted subscription state.
type SubscriptionSnapshot struct {
	ID         SubscriptionID
	MemberID   MemberID
	Endpoint   string
	Keys       PushKeys
	DeviceInfo *DeviceInfo
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RestorePushSubscription rebuilds a subscription from storage.
func RestorePushSubscription(s SubscriptionSnapshot) *PushSubscription {
	return &PushSubscription{
		id:         s.ID,
		memberID:   s.MemberID,
		endpoint:   s.Endpoint,
		keys:       s.Keys,
		deviceInfo: s.DeviceInfo.Clone(),
		active:     s.Active,
		createdAt:  s.CreatedAt,
		updatedAt:  s.UpdatedAt,
	}
}

func (s *PushSubscription) Snapshot() SubscriptionSnapshot {
	return SubscriptionSnapshot{
		ID:         s.id,
		MemberID:   s.memberID,
		Endpoint:   s.endpoint,
		Keys:       s.keys,
		DeviceInfo: s.deviceInfo.Clone(),
		Active:     s.active,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
}

// ID returns the subscription ID
func (s *PushSubscription) ID() SubscriptionID {
	return s.id
}

// MemberID returns the owning member
func (s *PushSubscription) MemberID() MemberID {
	return s.memberID
}

// Endpoint returns the push endpoint
func (s *PushSubscription) Endpoint() string {
	return s.endpoint
}

func (s *PushSubscription) Keys() PushKeys {
	return s.keys
}

func (s *PushSubscription) DeviceInfo() *DeviceInfo {
	return s.deviceInfo.Clone()
}

// IsActive returns whether the subscription receives pushes
func (s *PushSubscription) IsActive() bool {
	return s.active
}

func (s *PushSubscription) CreatedAt() time.Time {
	return s.createdAt
}

func (s *PushSubscription) UpdatedAt() time.Time {
	return s.updatedAt
}

// Refresh replaces the keys and device info of a re-registered endpoint and
// activates it again.
func (s *PushSubscription) Refresh(keys PushKeys, deviceInfo *DeviceInfo) {
	s.keys = keys
	if deviceInfo != nil {
		s.deviceInfo = deviceInfo.Clone()
	}
	s.active = true
	s.updatedAt = time.Now()
}

// Deactivate deactivates the subscription
func (s *PushSubscription) Deactivate() {
	s.active = false
	s.updatedAt = time.Now()
}

// Validate validates the subscription
func (s *PushSubscription) Validate() error {
	if s.id == "" {
		return errors.New("subscription ID cannot be empty")
	}
	if s.memberID == "" {
		return errors.New("member ID cannot be empty")
	}
	if err := validateEndpoint(s.endpoint); err != nil {
		return err
	}
	if s.keys.P256dh == "" {
		return errors.New("push subscription missing p256dh key")
	}
	if s.keys.Auth == "" {
		return errors.New("push subscription missing auth key")
	}
	return nil
}

// validateEndpoint requires HTTPS, except for loopback hosts used in local
// development.
func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return errors.New("endpoint cannot be empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return errors.New("endpoint must be an absolute URL")
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host == "localhost" {
			return nil
		}
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			return nil
		}
	}
	return errors.New("push endpoint must use HTTPS")
}
