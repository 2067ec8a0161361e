package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fitlife/fitlife-sync/internal/domain/entities"
	"github.com/fitlife/fitlife-sync/internal/usecases/ports/repositories"
	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/serviceworker"
)

// MockNotificationRepository implements NotificationRepository for testing
type MockNotificationRepository struct {
	mu            sync.Mutex
	notifications map[entities.NotificationID]*entities.Notification
	saveErr       error
	updateErr     error
	claimErr      error
	findDueErr    error
	markErr       error
	updates       int
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{
		notifications: make(map[entities.NotificationID]*entities.Notification),
	}
}

func (m *MockNotificationRepository) Save(ctx context.Context, n *entities.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.notifications[n.ID()] = entities.RestoreNotification(n.Snapshot())
	return nil
}

func (m *MockNotificationRepository) Update(ctx context.Context, n *entities.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates++
	m.notifications[n.ID()] = entities.RestoreNotification(n.Snapshot())
	return nil
}

func (m *MockNotificationRepository) FindByID(ctx context.Context, id entities.NotificationID) (*entities.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.notifications[id]; ok {
		return entities.RestoreNotification(n.Snapshot()), nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
}

func (m *MockNotificationRepository) FindByMember(ctx context.Context, memberID entities.MemberID, filters repositories.NotificationFilters) ([]*entities.Notification, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entities.Notification
	for _, n := range m.notifications {
		if n.MemberID() != memberID || n.Status() == entities.NotificationStatusCreated {
			continue
		}
		if filters.UnreadOnly && n.IsRead() {
			continue
		}
		out = append(out, entities.RestoreNotification(n.Snapshot()))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() > out[j].ID() })
	total := int64(len(out))
	if filters.Offset < len(out) {
		out = out[filters.Offset:]
	} else {
		out = nil
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, total, nil
}

func (m *MockNotificationRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*entities.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findDueErr != nil {
		return nil, m.findDueErr
	}
	var out []*entities.Notification
	for _, n := range m.notifications {
		if n.IsDue(now) {
			out = append(out, entities.RestoreNotification(n.Snapshot()))
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockNotificationRepository) ClaimForDelivery(ctx context.Context, id entities.NotificationID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return false, m.claimErr
	}
	n, ok := m.notifications[id]
	if !ok {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return n.MarkDispatched(at), nil
}

func (m *MockNotificationRepository) MarkRead(ctx context.Context, memberID entities.MemberID, ids []entities.NotificationID, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return 0, m.markErr
	}
	var updated int64
	for _, id := range ids {
		n, ok := m.notifications[id]
		if ok && n.MemberID() == memberID && n.Status() != entities.NotificationStatusCreated && n.MarkRead(at) {
			updated++
		}
	}
	return updated, nil
}

func (m *MockNotificationRepository) MarkAllRead(ctx context.Context, memberID entities.MemberID, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return 0, m.markErr
	}
	var updated int64
	for _, n := range m.notifications {
		if n.MemberID() == memberID && n.Status() != entities.NotificationStatusCreated && n.MarkRead(at) {
			updated++
		}
	}
	return updated, nil
}

func (m *MockNotificationRepository) CountUnread(ctx context.Context, memberID entities.MemberID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.notifications {
		if n.MemberID() == memberID && n.Status() != entities.NotificationStatusCreated && !n.IsRead() {
			count++
		}
	}
	return count, nil
}

func (m *MockNotificationRepository) get(id entities.NotificationID) *entities.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notifications[id]
}

// MockSubscriptionRepository implements SubscriptionRepository for testing
type MockSubscriptionRepository struct {
	mu            sync.Mutex
	subscriptions map[entities.SubscriptionID]*entities.PushSubscription
	saveErr       error
	findErr       error
	deactivateErr error
}

func NewMockSubscriptionRepository(subs ...*entities.PushSubscription) *MockSubscriptionRepository {
	m := &MockSubscriptionRepository{subscriptions: make(map[entities.SubscriptionID]*entities.PushSubscription)}
	for _, s := range subs {
		m.subscriptions[s.ID()] = s
	}
	return m
}

func (m *MockSubscriptionRepository) Save(ctx context.Context, sub *entities.PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	for id, existing := range m.subscriptions {
		if existing.MemberID() == sub.MemberID() && existing.Endpoint() == sub.Endpoint() && id != sub.ID() {
			delete(m.subscriptions, id)
		}
	}
	m.subscriptions[sub.ID()] = entities.RestorePushSubscription(sub.Snapshot())
	return nil
}

func (m *MockSubscriptionRepository) FindByMemberAndEndpoint(ctx context.Context, memberID entities.MemberID, endpoint string) (*entities.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, s := range m.subscriptions {
		if s.MemberID() == memberID && s.Endpoint() == endpoint {
			return entities.RestorePushSubscription(s.Snapshot()), nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
}

func (m *MockSubscriptionRepository) FindActiveByMember(ctx context.Context, memberID entities.MemberID) ([]*entities.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []*entities.PushSubscription
	for _, s := range m.subscriptions {
		if s.MemberID() == memberID && s.IsActive() {
			out = append(out, entities.RestorePushSubscription(s.Snapshot()))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (m *MockSubscriptionRepository) Deactivate(ctx context.Context, memberID entities.MemberID, endpoint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deactivateErr != nil {
		return false, m.deactivateErr
	}
	for _, s := range m.subscriptions {
		if s.MemberID() == memberID && s.Endpoint() == endpoint {
			s.Deactivate()
			return true, nil
		}
	}
	return false, nil
}

func (m *MockSubscriptionRepository) DeactivateByID(ctx context.Context, id entities.SubscriptionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deactivateErr != nil {
		return m.deactivateErr
	}
	if s, ok := m.subscriptions[id]; ok {
		s.Deactivate()
	}
	return nil
}

func (m *MockSubscriptionRepository) get(id entities.SubscriptionID) *entities.PushSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptions[id]
}

func (m *MockSubscriptionRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscriptions)
}

// MockPushService implements PushService for testing. errByEndpoint
// selects the error returned for a given endpoint.
type MockPushService struct {
	mu            sync.Mutex
	publicKey     string
	errByEndpoint map[string]error
	sent          []serviceworker.PushMessage
	endpoints     []string
}

func NewMockPushService() *MockPushService {
	return &MockPushService{publicKey: "BPublicKey", errByEndpoint: map[string]error{}}
}

func (m *MockPushService) Send(ctx context.Context, msg serviceworker.PushMessage, sub *entities.PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	m.endpoints = append(m.endpoints, sub.Endpoint())
	return m.errByEndpoint[sub.Endpoint()]
}

func (m *MockPushService) PublicKey() string {
	return m.publicKey
}

func (m *MockPushService) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

var testKeys = entities.PushKeys{P256dh: "p256dh-key", Auth: "auth-key"}

func activeSub(id, member, endpoint string) *entities.PushSubscription {
	return entities.NewPushSubscription(entities.SubscriptionID(id), entities.MemberID(member), endpoint, testKeys, nil)
}
