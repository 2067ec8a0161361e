package offline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitlife/fitlife-sync/pkg/config"
	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/offline/push"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type fakeAPIServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

func newFakeAPIServer(t *testing.T) *fakeAPIServer {
	t.Helper()
	s := &fakeAPIServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		s.mu.Lock()
		s.requests = append(s.requests, rec)
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/notifications/mark-read":
			_, _ = w.Write([]byte(`{"updated":1}`))
		case "/notifications/mark-all-read":
			_, _ = w.Write([]byte(`{"updated":2}`))
		case "/api/user/my-package/pause":
			_, _ = w.Write([]byte(`{"success":true}`))
		case "/notifications/unread-count":
			_, _ = w.Write([]byte(`{"count":1}`))
		case "/notifications":
			_, _ = w.Write([]byte(`{"notifications":[
				{"id":"n1","type":"membership","title":"Renewed","message":"Thanks","url":"/dashboard/membership","status":"sent","isRead":false,"createdAt":"2026-03-01T08:00:00Z"},
				{"id":"n2","type":"workout","title":"New plan","message":"Check it","url":"/dashboard/workout-schedule","status":"sent","isRead":false,"createdAt":"2026-03-01T07:00:00Z"}
			],"page":1,"limit":20,"total":2}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *fakeAPIServer) requestsTo(path string) []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recordedRequest
	for _, r := range s.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func testConfig(baseURL string) config.ClientConfig {
	return config.ClientConfig{
		BaseURL:     baseURL,
		Token:       "member-jwt",
		StoreType:   "memory",
		MaxRetries:  5,
		BackoffBase: time.Second,
		BackoffMax:  time.Minute,
	}
}

func newTestRuntime(t *testing.T, cfg config.ClientConfig, online bool) *Runtime {
	t.Helper()
	rt, err := New(context.Background(), Params{Config: cfg, Online: online})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestOfflineMutationReplaysOnReconnect(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPIServer(t)
	rt := newTestRuntime(t, testConfig(api.URL), false)

	updated, err := rt.Client.MarkRead(ctx, []string{"n1"})
	require.NoError(t, err)
	assert.Zero(t, updated)
	assert.Empty(t, api.requestsTo("/notifications/mark-read"))

	pending, err := rt.Queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	rt.Monitor.SetOnline(ctx, true)

	calls := api.requestsTo("/notifications/mark-read")
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "Bearer member-jwt", calls[0].Auth)
	assert.Equal(t, []any{"n1"}, calls[0].Body["ids"])

	pending, err = rt.Queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestPauseMembershipQueuedOffline(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPIServer(t)
	rt := newTestRuntime(t, testConfig(api.URL), false)

	hc := &http.Client{Transport: rt.Router}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api.URL+"/api/user/my-package/pause", strings.NewReader(`{"membershipId":"m1"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["accepted"])
	assert.Equal(t, true, body["pending"])

	pending, err := rt.Queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	rt.Monitor.SetOnline(ctx, true)

	calls := api.requestsTo("/api/user/my-package/pause")
	require.Len(t, calls, 1)
	assert.Equal(t, "m1", calls[0].Body["membershipId"])
	pending, err = rt.Queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestInboxServedFromCacheWhileOffline(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPIServer(t)
	rt := newTestRuntime(t, testConfig(api.URL), true)

	page, err := rt.Inbox.Load(ctx, 1)
	require.NoError(t, err)
	require.Len(t, page.Notifications, 2)

	rt.Monitor.SetOnline(ctx, false)

	page, err = rt.Inbox.Load(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, page.Notifications, 2)
	assert.Len(t, api.requestsTo("/notifications"), 1)

	changed, err := rt.Inbox.MarkAsRead(ctx, []string{"n2"})
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	status, err := rt.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Online)
	assert.Equal(t, int64(1), status.Pending)
}

func TestUnreadCountFollowsOfflineMarkAllRead(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPIServer(t)
	rt := newTestRuntime(t, testConfig(api.URL), true)

	_, err := rt.Inbox.Load(ctx, 1)
	require.NoError(t, err)
	count, err := rt.Inbox.RefreshUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rt.Monitor.SetOnline(ctx, false)

	changed, err := rt.Inbox.MarkAllAsRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	assert.Zero(t, rt.Inbox.UnreadCount())
	for _, n := range rt.Inbox.Notifications() {
		assert.True(t, n.IsRead, n.ID)
	}
	assert.Empty(t, api.requestsTo("/notifications/mark-all-read"))

	rt.Monitor.SetOnline(ctx, true)
	assert.Len(t, api.requestsTo("/notifications/mark-all-read"), 1)
}

func TestHandleBackgroundSync(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPIServer(t)
	rt := newTestRuntime(t, testConfig(api.URL), false)

	_, err := rt.Client.MarkRead(ctx, []string{"n1"})
	require.NoError(t, err)

	_, err = rt.HandleBackgroundSync(ctx, "periodic-refresh")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	// The replay talks to the network directly, so it succeeds even though
	// the monitor has not seen the connection come back.
	result, err := rt.HandleBackgroundSync(ctx, SyncTagBackground)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Len(t, api.requestsTo("/notifications/mark-read"), 1)
}

func TestPushUnsupportedWithoutPlatform(t *testing.T) {
	api := newFakeAPIServer(t)
	rt := newTestRuntime(t, testConfig(api.URL), true)

	assert.False(t, rt.Push.Status().Supported)
	_, err := rt.Push.Subscribe(context.Background())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodePermissionDenied))
	assert.Equal(t, "This browser does not support push notifications.", push.Message(err))
}

func TestSQLiteStoreAndRoutesFile(t *testing.T) {
	dir := t.TempDir()
	routesFile := filepath.Join(dir, "routes.yaml")
	require.NoError(t, os.WriteFile(routesFile, []byte(`routes:
  - name: mark-read
    methods: [POST]
    pathPrefix: /notifications/mark-read
    strategy: sync-required
`), 0o600))

	api := newFakeAPIServer(t)
	cfg := testConfig(api.URL)
	cfg.StoreType = "sqlite"
	cfg.StoreDSN = filepath.Join(dir, "offline.db")
	cfg.RoutesFile = routesFile
	rt := newTestRuntime(t, cfg, false)

	ctx := context.Background()
	_, err := rt.Client.MarkRead(ctx, []string{"n1"})
	require.NoError(t, err)

	pending, err := rt.Queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	// Unread count is not in the loaded table, so it is not cached or queued.
	_, err = rt.Client.UnreadCount(ctx)
	require.NoError(t, err)
}

func TestNewRejectsBadRoutesFile(t *testing.T) {
	cfg := testConfig("http://api.test")
	cfg.RoutesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(context.Background(), Params{Config: cfg})
	assert.Error(t, err)
}
