// Package inbox keeps the client's projection of the member's notifications
// and their read state.
package inbox

import (
	"context"
	"strconv"
	"sync"
	"time"

	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/logger"
	"github.com/fitlife/fitlife-sync/pkg/offline/store"
)

const (
	DefaultPageSize = 20

	readMarksKey = "read-marks"
)

// Notification is a notification as listed by the server.
type Notification struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	URL         string         `json:"url"`
	Status      string         `json:"status"`
	IsRead      bool           `json:"isRead"`
	ScheduledAt *time.Time     `json:"scheduledAt,omitempty"`
	SentAt      *time.Time     `json:"sentAt,omitempty"`
	ReadAt      *time.Time     `json:"readAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Page is one page of the notification list.
type Page struct {
	Notifications []Notification `json:"notifications"`
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
	Total         int64          `json:"total"`
}

// API is the server's read-state API.
type API interface {
	ListNotifications(ctx context.Context, page, limit int) (*Page, error)
	MarkRead(ctx context.Context, ids []string) (int64, error)
	MarkAllRead(ctx context.Context) (int64, error)
	UnreadCount(ctx context.Context) (int64, error)
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithPageSize(limit int) Option {
	return func(t *Tracker) {
		if limit > 0 {
			t.limit = limit
		}
	}
}

// Tracker holds the loaded page and the read marks made on this device.
// Read marks only move forward: a notification marked read stays read even
// if a later server listing has not caught up yet.
type Tracker struct {
	api   API
	store store.Store
	logg  *logger.Logger
	now   func() time.Time
	limit int

	mu        sync.Mutex
	items     []Notification
	marks     map[string]time.Time
	marksOK   bool
	unread    int
	observers map[int]func(int)
	nextID    int
}

func NewTracker(api API, st store.Store, logg *logger.Logger, opts ...Option) *Tracker {
	if logg == nil {
		logg = logger.Nop()
	}
	t := &Tracker{
		api:       api,
		store:     st,
		logg:      logg,
		now:       time.Now,
		limit:     DefaultPageSize,
		marks:     make(map[string]time.Time),
		observers: make(map[int]func(int)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load fetches page from the server and persists it for offline display.
// When the server cannot be reached the last persisted copy of the page is
// returned instead.
func (t *Tracker) Load(ctx context.Context, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	t.loadMarks(ctx)

	result, err := t.api.ListNotifications(ctx, page, t.limit)
	if err != nil {
		if !pkgerrors.Is(err, pkgerrors.CodeNetworkUnavailable) {
			return nil, err
		}
		cached, cerr := store.GetJSON[Page](ctx, t.store, store.NamespaceInbox, pageKey(page))
		if cerr != nil || cached == nil {
			if cerr != nil {
				t.logg.Warn(ctx, "offline inbox unavailable: "+cerr.Error())
			}
			return nil, err
		}
		t.logg.Info(ctx, "serving notifications from offline copy")
		result = cached
	}

	t.mu.Lock()
	items := make([]Notification, len(result.Notifications))
	copy(items, result.Notifications)
	for i := range items {
		t.applyMarkLocked(&items[i])
	}
	t.items = items
	snapshot := Page{Notifications: t.copyItemsLocked(), Page: result.Page, Limit: result.Limit, Total: result.Total}
	t.mu.Unlock()

	t.persistPage(ctx, page, snapshot)
	return &snapshot, nil
}

// Notifications returns the currently loaded notifications.
func (t *Tracker) Notifications() []Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copyItemsLocked()
}

// MarkAsRead marks ids read locally, tells the server and recomputes the
// unread count. It returns how many notifications became read on this
// device; marking an already read notification is a no-op.
func (t *Tracker) MarkAsRead(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	t.loadMarks(ctx)
	now := t.now().UTC()

	t.mu.Lock()
	changed := 0
	for _, id := range ids {
		if _, ok := t.marks[id]; !ok {
			t.marks[id] = now
			changed++
		}
	}
	for i := range t.items {
		t.applyMarkLocked(&t.items[i])
	}
	t.mu.Unlock()

	t.persistMarks(ctx)

	if _, err := t.api.MarkRead(ctx, ids); err != nil {
		return changed, err
	}
	_, err := t.RefreshUnreadCount(ctx)
	return changed, err
}

// MarkAllAsRead marks every loaded notification read and asks the server to
// do the same for the member.
func (t *Tracker) MarkAllAsRead(ctx context.Context) (int, error) {
	t.loadMarks(ctx)
	now := t.now().UTC()

	t.mu.Lock()
	changed := 0
	for i := range t.items {
		if t.items[i].IsRead {
			continue
		}
		if _, ok := t.marks[t.items[i].ID]; !ok {
			t.marks[t.items[i].ID] = now
		}
		t.applyMarkLocked(&t.items[i])
		changed++
	}
	t.mu.Unlock()

	t.persistMarks(ctx)

	if _, err := t.api.MarkAllRead(ctx); err != nil {
		return changed, err
	}
	_, err := t.RefreshUnreadCount(ctx)
	return changed, err
}

// RefreshUnreadCount asks the server for the unread count. Offline it
// counts the loaded notifications that are still unread.
func (t *Tracker) RefreshUnreadCount(ctx context.Context) (int, error) {
	count, err := t.api.UnreadCount(ctx)
	if err != nil {
		if !pkgerrors.Is(err, pkgerrors.CodeNetworkUnavailable) {
			return t.UnreadCount(), err
		}
		t.mu.Lock()
		local := 0
		for _, n := range t.items {
			if !n.IsRead {
				local++
			}
		}
		t.mu.Unlock()
		t.setUnread(local)
		return local, nil
	}
	t.setUnread(int(count))
	return int(count), nil
}

func (t *Tracker) UnreadCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unread
}

// Observe calls fn whenever the unread count changes and returns a function
// that stops observing.
func (t *Tracker) Observe(fn func(int)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.observers[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.observers, id)
		t.mu.Unlock()
	}
}

func (t *Tracker) setUnread(n int) {
	t.mu.Lock()
	if t.unread == n {
		t.mu.Unlock()
		return
	}
	t.unread = n
	observers := make([]func(int), 0, len(t.observers))
	for _, o := range t.observers {
		observers = append(observers, o)
	}
	t.mu.Unlock()

	for _, o := range observers {
		o(n)
	}
}

func (t *Tracker) applyMarkLocked(n *Notification) {
	at, ok := t.marks[n.ID]
	if !ok {
		return
	}
	n.IsRead = true
	if n.ReadAt == nil {
		n.ReadAt = &at
	}
}

func (t *Tracker) copyItemsLocked() []Notification {
	out := make([]Notification, len(t.items))
	copy(out, t.items)
	return out
}

// loadMarks restores read marks persisted by an earlier session once.
func (t *Tracker) loadMarks(ctx context.Context) {
	t.mu.Lock()
	done := t.marksOK
	t.mu.Unlock()
	if done {
		return
	}

	saved, err := store.GetJSON[map[string]time.Time](ctx, t.store, store.NamespaceInbox, readMarksKey)
	if err != nil {
		t.logg.Warn(ctx, "failed to restore read marks: "+err.Error())
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if saved != nil {
		for id, at := range *saved {
			if _, ok := t.marks[id]; !ok {
				t.marks[id] = at
			}
		}
	}
	t.marksOK = true
}

func (t *Tracker) persistMarks(ctx context.Context) {
	t.mu.Lock()
	marks := make(map[string]time.Time, len(t.marks))
	for id, at := range t.marks {
		marks[id] = at
	}
	t.mu.Unlock()

	if err := store.PutJSON(ctx, t.store, store.NamespaceInbox, readMarksKey, marks, 0); err != nil {
		t.logg.Warn(ctx, "failed to persist read marks: "+err.Error())
	}
}

func (t *Tracker) persistPage(ctx context.Context, page int, p Page) {
	if err := store.PutJSON(ctx, t.store, store.NamespaceInbox, pageKey(page), p, 0); err != nil {
		t.logg.Warn(ctx, "failed to persist notifications: "+err.Error())
	}
}

func pageKey(page int) string {
	return "page:" + strconv.Itoa(page)
}
