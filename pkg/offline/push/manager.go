package push

import (
	"context"
	"sync"

	"go.uber.org/multierr"

	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/logger"
)

// Status is the observable subscription state.
type Status struct {
	Supported  bool       `json:"supported"`
	Permission Permission `json:"permission"`
	Subscribed bool       `json:"subscribed"`
	Endpoint   string     `json:"endpoint,omitempty"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithDeviceInfo sets the device details sent with subscriptions.
func WithDeviceInfo(info DeviceInfo) Option {
	return func(m *Manager) { m.device = &info }
}

// Manager drives the subscription lifecycle. Every failure leaves the
// manager unsubscribed.
type Manager struct {
	platform Platform
	server   Server
	logg     *logger.Logger
	device   *DeviceInfo

	mu        sync.Mutex
	status    Status
	observers map[int]func(Status)
	nextID    int
}

func NewManager(platform Platform, server Server, logg *logger.Logger, opts ...Option) *Manager {
	if logg == nil {
		logg = logger.Nop()
	}
	m := &Manager{
		platform:  platform,
		server:    server,
		logg:      logg,
		status:    Status{Supported: platform.Supported(), Permission: PermissionUnknown},
		observers: make(map[int]func(Status)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Observe calls fn with every status change and returns a function that
// stops observing.
func (m *Manager) Observe(fn func(Status)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.observers[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

func (m *Manager) update(fn func(*Status)) Status {
	m.mu.Lock()
	fn(&m.status)
	status := m.status
	observers := make([]func(Status), 0, len(m.observers))
	for _, o := range m.observers {
		observers = append(observers, o)
	}
	m.mu.Unlock()

	for _, o := range observers {
		o(status)
	}
	return status
}

func unsupported() error {
	return pkgerrors.New(pkgerrors.CodePermissionDenied, "push notifications are not supported on this device").
		WithDetails(map[string]bool{"unsupported": true})
}

// Refresh reads the platform permission and existing registration.
func (m *Manager) Refresh(ctx context.Context) (Status, error) {
	if !m.platform.Supported() {
		return m.update(func(s *Status) { *s = Status{} }), nil
	}
	perm, err := m.platform.Permission(ctx)
	if err != nil {
		return m.Status(), pkgerrors.Wrap(pkgerrors.CodePermissionDenied, err, "reading notification permission")
	}
	reg, err := m.platform.Registration(ctx)
	if err != nil {
		return m.Status(), pkgerrors.Wrap(pkgerrors.CodeRegistrationFailed, err, "reading push registration")
	}
	return m.update(func(s *Status) {
		s.Supported = true
		s.Permission = perm
		s.Subscribed = reg != nil
		s.Endpoint = ""
		if reg != nil {
			s.Endpoint = reg.Endpoint
		}
	}), nil
}

// RequestPermission prompts the user every time it is called.
func (m *Manager) RequestPermission(ctx context.Context) (Permission, error) {
	if !m.platform.Supported() {
		return PermissionDenied, unsupported()
	}
	perm, err := m.platform.RequestPermission(ctx)
	if err != nil {
		return PermissionDenied, pkgerrors.Wrap(pkgerrors.CodePermissionDenied, err, "requesting notification permission")
	}
	m.update(func(s *Status) { s.Permission = perm })
	return perm, nil
}

// Subscribe registers the device and records the subscription on the
// server. It needs permission to have been granted, possibly in an earlier
// session, and never prompts.
func (m *Manager) Subscribe(ctx context.Context) (Status, error) {
	if !m.platform.Supported() {
		return m.Status(), unsupported()
	}
	if m.Status().Permission != PermissionGranted {
		perm, err := m.platform.Permission(ctx)
		if err != nil {
			return m.markUnsubscribed(), pkgerrors.Wrap(pkgerrors.CodePermissionDenied, err, "reading notification permission")
		}
		m.update(func(s *Status) { s.Permission = perm })
		if perm != PermissionGranted {
			return m.markUnsubscribed(), pkgerrors.New(pkgerrors.CodePermissionDenied, "notification permission not granted")
		}
	}

	key, err := m.server.GetVAPIDPublicKey(ctx)
	if err != nil {
		return m.markUnsubscribed(), pkgerrors.Wrap(pkgerrors.CodeKeyFetchFailed, err, "fetching VAPID public key")
	}
	if key == "" {
		return m.markUnsubscribed(), pkgerrors.New(pkgerrors.CodeKeyFetchFailed, "server has no VAPID public key")
	}

	existing, err := m.platform.Registration(ctx)
	if err != nil {
		return m.markUnsubscribed(), pkgerrors.Wrap(pkgerrors.CodeRegistrationFailed, err, "reading push registration")
	}
	if existing != nil {
		if err := m.platform.Unregister(ctx); err != nil {
			return m.markUnsubscribed(), pkgerrors.Wrap(pkgerrors.CodeRegistrationFailed, err, "removing previous registration")
		}
	}

	reg, err := m.platform.Register(ctx, key)
	if err != nil {
		return m.markUnsubscribed(), pkgerrors.Wrap(pkgerrors.CodeRegistrationFailed, err, "registering for push")
	}

	err = m.server.Subscribe(ctx, SubscribeRequest{
		Endpoint:   reg.Endpoint,
		Keys:       Keys{P256dh: reg.P256dh, Auth: reg.Auth},
		DeviceInfo: m.device,
	})
	if err != nil {
		if uerr := m.platform.Unregister(ctx); uerr != nil {
			m.logg.Warn(ctx, "failed to remove registration after server error: "+uerr.Error())
		}
		if !pkgerrors.Is(err, pkgerrors.CodeNetworkUnavailable) {
			err = pkgerrors.Wrap(pkgerrors.CodeServerRejected, err, "saving subscription")
		}
		return m.markUnsubscribed(), err
	}

	m.logg.Info(ctx, "push subscription created")
	return m.update(func(s *Status) {
		s.Subscribed = true
		s.Endpoint = reg.Endpoint
	}), nil
}

// Unsubscribe removes the device registration and deactivates the server
// record. Both steps run even if one fails.
func (m *Manager) Unsubscribe(ctx context.Context) (Status, error) {
	endpoint := m.Status().Endpoint
	reg, err := m.platform.Registration(ctx)
	if err != nil {
		err = pkgerrors.Wrap(pkgerrors.CodeRegistrationFailed, err, "reading push registration")
	} else if reg != nil {
		endpoint = reg.Endpoint
		if uerr := m.platform.Unregister(ctx); uerr != nil {
			err = pkgerrors.Wrap(pkgerrors.CodeRegistrationFailed, uerr, "removing registration")
		}
	}

	if endpoint != "" {
		if serr := m.server.Unsubscribe(ctx, endpoint); serr != nil {
			err = multierr.Append(err, serr)
		}
	}
	return m.markUnsubscribed(), err
}

func (m *Manager) markUnsubscribed() Status {
	return m.update(func(s *Status) {
		s.Subscribed = false
		s.Endpoint = ""
	})
}

var messages = map[pkgerrors.Code]string{
	pkgerrors.CodePermissionDenied:    "Notifications are blocked. Allow them in your browser settings to get class and membership reminders.",
	pkgerrors.CodeKeyFetchFailed:      "Could not reach the notification service. Check your connection and try again.",
	pkgerrors.CodeRegistrationFailed:  "This device could not be registered for notifications. Please try again later.",
	pkgerrors.CodeServerRejected:      "The server did not accept this device. Please try again.",
	pkgerrors.CodeNetworkUnavailable:  "You are offline. Try again once you are connected.",
	pkgerrors.CodeSubscriptionExpired: "Your notification subscription has expired. Turn notifications on again.",
	pkgerrors.CodeStorageUnavailable:  "Local storage is unavailable. Free up space and try again.",
}

// Message returns a user-facing message for err. For combined errors the
// first typed cause decides.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for _, e := range multierr.Errors(err) {
		if typed := pkgerrors.As(e); typed != nil {
			if typed.Code() == pkgerrors.CodePermissionDenied {
				if d, ok := typed.Details().(map[string]bool); ok && d["unsupported"] {
					return "This browser does not support push notifications."
				}
			}
			if msg, ok := messages[typed.Code()]; ok {
				return msg
			}
		}
	}
	return "Something went wrong with notifications. Please try again."
}
