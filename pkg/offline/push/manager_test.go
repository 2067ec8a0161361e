package push

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
)

type fakePlatform struct {
	supported     bool
	permission    Permission
	promptResult  Permission
	prompts       int
	registration  *Registration
	registerErr   error
	unregisterErr error
	registered    []string
	unregisters   int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{supported: true, permission: PermissionUnknown, promptResult: PermissionGranted}
}

func (p *fakePlatform) Supported() bool { return p.supported }

func (p *fakePlatform) Permission(ctx context.Context) (Permission, error) {
	return p.permission, nil
}

func (p *fakePlatform) RequestPermission(ctx context.Context) (Permission, error) {
	p.prompts++
	p.permission = p.promptResult
	return p.permission, nil
}

func (p *fakePlatform) Registration(ctx context.Context) (*Registration, error) {
	return p.registration, nil
}

func (p *fakePlatform) Register(ctx context.Context, key string) (*Registration, error) {
	if p.registerErr != nil {
		return nil, p.registerErr
	}
	p.registered = append(p.registered, key)
	p.registration = &Registration{
		Endpoint: "https://push.example/endpoint-" + key,
		P256dh:   "p256dh",
		Auth:     "auth",
	}
	return p.registration, nil
}

func (p *fakePlatform) Unregister(ctx context.Context) error {
	p.unregisters++
	if p.unregisterErr != nil {
		return p.unregisterErr
	}
	p.registration = nil
	return nil
}

type fakeServer struct {
	key            string
	keyErr         error
	subscribeErr   error
	unsubscribeErr error
	subscribed     []SubscribeRequest
	unsubscribed   []string
}

func (s *fakeServer) GetVAPIDPublicKey(ctx context.Context) (string, error) {
	return s.key, s.keyErr
}

func (s *fakeServer) Subscribe(ctx context.Context, req SubscribeRequest) error {
	if s.subscribeErr != nil {
		return s.subscribeErr
	}
	s.subscribed = append(s.subscribed, req)
	return nil
}

func (s *fakeServer) Unsubscribe(ctx context.Context, endpoint string) error {
	s.unsubscribed = append(s.unsubscribed, endpoint)
	return s.unsubscribeErr
}

func grantedManager(t *testing.T) (*Manager, *fakePlatform, *fakeServer) {
	t.Helper()
	platform := newFakePlatform()
	server := &fakeServer{key: "vapid"}
	m := NewManager(platform, server, nil, WithDeviceInfo(DeviceInfo{Browser: "firefox"}))
	perm, err := m.RequestPermission(context.Background())
	require.NoError(t, err)
	require.Equal(t, PermissionGranted, perm)
	return m, platform, server
}

func TestSubscribe(t *testing.T) {
	m, platform, server := grantedManager(t)

	var seen []Status
	m.Observe(func(s Status) { seen = append(seen, s) })

	status, err := m.Subscribe(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Subscribed)
	assert.Equal(t, "https://push.example/endpoint-vapid", status.Endpoint)

	require.Len(t, server.subscribed, 1)
	assert.Equal(t, Keys{P256dh: "p256dh", Auth: "auth"}, server.subscribed[0].Keys)
	assert.Equal(t, "firefox", server.subscribed[0].DeviceInfo.Browser)
	assert.Equal(t, []string{"vapid"}, platform.registered)
	require.NotEmpty(t, seen)
	assert.True(t, seen[len(seen)-1].Subscribed)
}

func TestSubscribeReplacesExistingRegistration(t *testing.T) {
	m, platform, _ := grantedManager(t)
	platform.registration = &Registration{Endpoint: "https://push.example/stale"}

	status, err := m.Subscribe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, platform.unregisters)
	assert.Equal(t, "https://push.example/endpoint-vapid", status.Endpoint)
}

func TestSubscribeRequiresGrantedPermission(t *testing.T) {
	platform := newFakePlatform()
	platform.promptResult = PermissionDenied
	server := &fakeServer{key: "vapid"}
	m := NewManager(platform, server, nil)

	perm, err := m.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PermissionDenied, perm)

	status, err := m.Subscribe(context.Background())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodePermissionDenied))
	assert.False(t, status.Subscribed)
	// Subscribe never prompts on its own.
	assert.Equal(t, 1, platform.prompts)
	assert.Empty(t, platform.registered)

	// An explicit request prompts again.
	_, err = m.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, platform.prompts)
}

func TestSubscribeUsesPlatformPermission(t *testing.T) {
	platform := newFakePlatform()
	platform.permission = PermissionGranted
	server := &fakeServer{key: "vapid"}
	m := NewManager(platform, server, nil)

	status, err := m.Subscribe(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Subscribed)
	assert.Equal(t, PermissionGranted, status.Permission)
	assert.Equal(t, 0, platform.prompts)
	assert.Len(t, server.subscribed, 1)
}

func TestSubscribeFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *fakePlatform, s *fakeServer)
		code  pkgerrors.Code
		// unregisters after the failure
		unregisters int
	}{
		{
			name:  "key fetch",
			setup: func(p *fakePlatform, s *fakeServer) { s.keyErr = errors.New("503") },
			code:  pkgerrors.CodeKeyFetchFailed,
		},
		{
			name:  "empty key",
			setup: func(p *fakePlatform, s *fakeServer) { s.key = "" },
			code:  pkgerrors.CodeKeyFetchFailed,
		},
		{
			name:  "registration",
			setup: func(p *fakePlatform, s *fakeServer) { p.registerErr = errors.New("AbortError") },
			code:  pkgerrors.CodeRegistrationFailed,
		},
		{
			name:        "server rejects",
			setup:       func(p *fakePlatform, s *fakeServer) { s.subscribeErr = errors.New("400 invalid endpoint") },
			code:        pkgerrors.CodeServerRejected,
			unregisters: 1,
		},
		{
			name: "server unreachable",
			setup: func(p *fakePlatform, s *fakeServer) {
				s.subscribeErr = pkgerrors.New(pkgerrors.CodeNetworkUnavailable, "offline")
			},
			code:        pkgerrors.CodeNetworkUnavailable,
			unregisters: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, platform, server := grantedManager(t)
			tt.setup(platform, server)

			status, err := m.Subscribe(context.Background())
			assert.True(t, pkgerrors.Is(err, tt.code), "got %v", err)
			assert.False(t, status.Subscribed)
			assert.Empty(t, status.Endpoint)
			assert.Equal(t, tt.unregisters, platform.unregisters)
			assert.Nil(t, platform.registration)
		})
	}
}

func TestUnsubscribe(t *testing.T) {
	m, platform, server := grantedManager(t)
	_, err := m.Subscribe(context.Background())
	require.NoError(t, err)

	status, err := m.Unsubscribe(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Subscribed)
	assert.Nil(t, platform.registration)
	assert.Equal(t, []string{"https://push.example/endpoint-vapid"}, server.unsubscribed)
}

func TestUnsubscribeAttemptsBothSteps(t *testing.T) {
	m, platform, server := grantedManager(t)
	_, err := m.Subscribe(context.Background())
	require.NoError(t, err)

	platform.unregisterErr = errors.New("InvalidStateError")
	server.unsubscribeErr = pkgerrors.New(pkgerrors.CodeNetworkUnavailable, "offline")

	status, err := m.Unsubscribe(context.Background())
	require.Error(t, err)
	assert.False(t, status.Subscribed)
	assert.Len(t, server.unsubscribed, 1)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeRegistrationFailed) || pkgerrors.Is(err, pkgerrors.CodeNetworkUnavailable))
	assert.Contains(t, err.Error(), "InvalidStateError")
	assert.Contains(t, err.Error(), "offline")
}

func TestRefresh(t *testing.T) {
	platform := newFakePlatform()
	platform.permission = PermissionGranted
	platform.registration = &Registration{Endpoint: "https://push.example/existing"}
	m := NewManager(platform, &fakeServer{}, nil)

	status, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Status{Supported: true, Permission: PermissionGranted, Subscribed: true, Endpoint: "https://push.example/existing"}, status)
}

func TestUnsupportedPlatform(t *testing.T) {
	platform := newFakePlatform()
	platform.supported = false
	m := NewManager(platform, &fakeServer{key: "vapid"}, nil)

	status, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Supported)

	_, err = m.Subscribe(context.Background())
	assert.Equal(t, "This browser does not support push notifications.", Message(err))
	_, err = m.RequestPermission(context.Background())
	assert.Error(t, err)
	assert.Zero(t, platform.prompts)
}

func TestMessage(t *testing.T) {
	assert.Empty(t, Message(nil))
	assert.Contains(t, Message(pkgerrors.New(pkgerrors.CodePermissionDenied, "x")), "blocked")
	assert.Contains(t, Message(pkgerrors.Wrap(pkgerrors.CodeKeyFetchFailed, errors.New("x"), "y")), "notification service")
	assert.Contains(t, Message(errors.New("plain")), "Something went wrong")
}
