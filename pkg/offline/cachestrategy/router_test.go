package cachestrategy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/offline/store"
	"github.com/fitlife/fitlife-sync/pkg/offline/syncqueue"
)

// fakeTransport answers with a canned status and body, or fails with err.
type fakeTransport struct {
	mu     sync.Mutex
	status int
	body   string
	err    error
	calls  int32
	bodies []string
	block  chan struct{}
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	var sent string
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		sent = string(b)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, sent)
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: f.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(f.body)),
		Request:    req,
	}, nil
}

func (f *fakeTransport) set(status int, body string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.body, f.err = status, body, err
}

func (f *fakeTransport) count() int {
	return int(atomic.LoadInt32(&f.calls))
}

type fakeMonitor struct{ online atomic.Bool }

func (m *fakeMonitor) IsOnline() bool { return m.online.Load() }

type fakeQueue struct {
	mu      sync.Mutex
	actions []syncqueue.QueuedAction
	err     error
}

func (q *fakeQueue) Enqueue(ctx context.Context, kind string, payload any, priority int) (*syncqueue.QueuedAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	raw, _ := json.Marshal(payload)
	action := syncqueue.QueuedAction{ID: uint(len(q.actions) + 1), Kind: kind, Payload: raw, Priority: priority}
	q.actions = append(q.actions, action)
	return &action, nil
}

// brokenStore fails every operation.
type brokenStore struct{ store.Store }

func (brokenStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	return nil, pkgerrors.New(pkgerrors.CodeStorageUnavailable, "disk full")
}

func (brokenStore) Put(ctx context.Context, namespace, key string, payload []byte, ttl time.Duration) error {
	return pkgerrors.New(pkgerrors.CodeStorageUnavailable, "disk full")
}

type routerFixture struct {
	router    *Router
	transport *fakeTransport
	store     *store.MemoryStore
	queue     *fakeQueue
	monitor   *fakeMonitor
	now       time.Time
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		transport: &fakeTransport{status: http.StatusOK, body: `{"ok":true}`},
		queue:     &fakeQueue{},
		monitor:   &fakeMonitor{},
		now:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.monitor.online.Store(true)
	clock := func() time.Time { return f.now }
	f.store = store.NewMemoryStore(0, store.WithClock(clock))
	f.router = NewRouter(Params{
		Base:    f.transport,
		Store:   f.store,
		Queue:   f.queue,
		Monitor: f.monitor,
		Now:     clock,
	})
	return f
}

func (f *routerFixture) do(t *testing.T, method, url, body string) (*http.Response, string, error) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := f.router.RoundTrip(req)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b), nil
}

const membershipURL = "http://gym.local/api/user/my-package/infor-membership"

func TestNetworkFirstFallsBackToCache(t *testing.T) {
	f := newRouterFixture(t)
	f.transport.set(http.StatusOK, `{"plan":"gold"}`, nil)

	resp, body, err := f.do(t, http.MethodGet, membershipURL, "")
	require.NoError(t, err)
	assert.Equal(t, `{"plan":"gold"}`, body)
	assert.Empty(t, resp.Header.Get(HeaderCache))

	f.transport.set(0, "", errors.New("dial tcp: connection refused"))
	resp, body, err = f.do(t, http.MethodGet, membershipURL, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"plan":"gold"}`, body)
	assert.Equal(t, CacheHit, resp.Header.Get(HeaderCache))
}

func TestNetworkFirstWithoutCacheReturnsNetworkError(t *testing.T) {
	f := newRouterFixture(t)
	f.transport.set(0, "", errors.New("dial tcp: connection refused"))

	_, _, err := f.do(t, http.MethodGet, membershipURL, "")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNetworkUnavailable))
}

func TestNetworkFirstIgnoresExpiredEntries(t *testing.T) {
	f := newRouterFixture(t)
	_, _, err := f.do(t, http.MethodGet, membershipURL, "")
	require.NoError(t, err)

	f.now = f.now.Add(defaultAPITTL)
	f.transport.set(0, "", errors.New("offline"))
	_, _, err = f.do(t, http.MethodGet, membershipURL, "")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNetworkUnavailable))
}

func TestOnlyOKResponsesAreCached(t *testing.T) {
	f := newRouterFixture(t)
	f.transport.set(http.StatusInternalServerError, `{"error":"boom"}`, nil)

	resp, _, err := f.do(t, http.MethodGet, membershipURL, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Zero(t, f.store.Len())
}

func TestOfflineMonitorShortCircuits(t *testing.T) {
	f := newRouterFixture(t)
	_, _, err := f.do(t, http.MethodGet, membershipURL, "")
	require.NoError(t, err)
	require.Equal(t, 1, f.transport.count())

	f.monitor.online.Store(false)
	resp, _, err := f.do(t, http.MethodGet, membershipURL, "")
	require.NoError(t, err)
	assert.Equal(t, CacheHit, resp.Header.Get(HeaderCache))
	assert.Equal(t, 1, f.transport.count())
}

func TestPostReadsAreKeyedByBody(t *testing.T) {
	f := newRouterFixture(t)
	url := "http://gym.local/api/user/my-package/detail"

	f.transport.set(http.StatusOK, `{"package":"A"}`, nil)
	_, _, err := f.do(t, http.MethodPost, url, `{"id":"A"}`)
	require.NoError(t, err)
	f.transport.set(http.StatusOK, `{"package":"B"}`, nil)
	_, _, err = f.do(t, http.MethodPost, url, `{"id":"B"}`)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"id":"A"}`, `{"id":"B"}`}, f.transport.bodies)

	f.transport.set(0, "", errors.New("offline"))
	_, body, err := f.do(t, http.MethodPost, url, `{"id":"A"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"package":"A"}`, body)
}

func TestSyncRequiredQueuesWhenOffline(t *testing.T) {
	f := newRouterFixture(t)
	f.monitor.online.Store(false)

	req, err := http.NewRequest(http.MethodPost, "http://gym.local/api/user/my-package/pause", strings.NewReader(`{"days":7}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer member-token")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Transfer-Encoding", "chunked")

	resp, err := f.router.RoundTrip(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get(HeaderSyncPending))
	var pending PendingResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pending))
	assert.True(t, pending.Accepted)
	assert.True(t, pending.Pending)
	assert.Equal(t, uint(1), pending.ActionID)
	assert.NotEmpty(t, pending.Message)
	assert.Zero(t, f.transport.count())

	require.Len(t, f.queue.actions, 1)
	assert.Equal(t, syncqueue.KindHTTP, f.queue.actions[0].Kind)
	var rec syncqueue.RequestRecord
	require.NoError(t, json.Unmarshal(f.queue.actions[0].Payload, &rec))
	assert.Equal(t, http.MethodPost, rec.Method)
	assert.Equal(t, `{"days":7}`, string(rec.Body))
	assert.Equal(t, "Bearer member-token", rec.Header.Get("Authorization"))
	assert.Empty(t, rec.Header.Get("Connection"))
	assert.Empty(t, rec.Header.Get("Transfer-Encoding"))
}

func TestCacheIsPerMember(t *testing.T) {
	f := newRouterFixture(t)
	get := func(token string) (*http.Response, string, error) {
		req, err := http.NewRequest(http.MethodGet, membershipURL, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := f.router.RoundTrip(req)
		if err != nil {
			return nil, "", err
		}
		defer func() { _ = resp.Body.Close() }()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(b), nil
	}

	f.transport.set(http.StatusOK, `{"plan":"gold"}`, nil)
	_, _, err := get("member-a")
	require.NoError(t, err)

	f.monitor.online.Store(false)
	_, _, err = get("member-b")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNetworkUnavailable))

	resp, body, err := get("member-a")
	require.NoError(t, err)
	assert.Equal(t, CacheHit, resp.Header.Get(HeaderCache))
	assert.Equal(t, `{"plan":"gold"}`, body)
}

func TestSyncRequiredOnlineAndRejected(t *testing.T) {
	f := newRouterFixture(t)
	url := "http://gym.local/api/payment/register"

	f.transport.set(http.StatusOK, `{"redirectUrl":"https://pay.example/123"}`, nil)
	resp, body, err := f.do(t, http.MethodPost, url, `{"packageId":"p1"}`)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "redirectUrl")

	// A server answer, even an error, is not a network failure.
	f.transport.set(http.StatusConflict, `{"error":"duplicate"}`, nil)
	resp, _, err = f.do(t, http.MethodPost, url, `{"packageId":"p1"}`)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Empty(t, f.queue.actions)
}

func TestSyncRequiredQueueFailure(t *testing.T) {
	f := newRouterFixture(t)
	f.transport.set(0, "", errors.New("offline"))
	f.queue.err = pkgerrors.New(pkgerrors.CodeStorageUnavailable, "quota exceeded")

	_, _, err := f.do(t, http.MethodPost, "http://gym.local/api/user/my-package/resume", "{}")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStorageUnavailable))
}

func TestCacheFirstHonoursMaxAge(t *testing.T) {
	f := newRouterFixture(t)
	url := "http://gym.local/images/trainer.png"
	f.transport.set(http.StatusOK, "png-v1", nil)

	_, body, err := f.do(t, http.MethodGet, url, "")
	require.NoError(t, err)
	assert.Equal(t, "png-v1", body)

	f.transport.set(http.StatusOK, "png-v2", nil)
	resp, body, err := f.do(t, http.MethodGet, url, "")
	require.NoError(t, err)
	assert.Equal(t, "png-v1", body)
	assert.Equal(t, CacheHit, resp.Header.Get(HeaderCache))
	assert.Equal(t, 1, f.transport.count())

	f.now = f.now.Add(defaultImageAge)
	_, body, err = f.do(t, http.MethodGet, url, "")
	require.NoError(t, err)
	assert.Equal(t, "png-v2", body)

	// Past max age and offline: the old copy is still better than nothing.
	f.now = f.now.Add(defaultImageAge)
	f.transport.set(0, "", errors.New("offline"))
	resp, body, err = f.do(t, http.MethodGet, url, "")
	require.NoError(t, err)
	assert.Equal(t, "png-v2", body)
	assert.Equal(t, CacheStale, resp.Header.Get(HeaderCache))
}

func TestStaleWhileRevalidate(t *testing.T) {
	f := newRouterFixture(t)
	f.router.routes = []Route{{Name: "promotions", PathPrefix: "/api/public/promotions", Strategy: StaleWhileRevalidate, TTL: time.Hour}}
	url := "http://gym.local/api/public/promotions"

	f.transport.set(http.StatusOK, "v1", nil)
	_, body, err := f.do(t, http.MethodGet, url, "")
	require.NoError(t, err)
	assert.Equal(t, "v1", body)

	f.transport.set(http.StatusOK, "v2", nil)
	block := make(chan struct{})
	f.transport.block = block

	for i := 0; i < 3; i++ {
		resp, body, err := f.do(t, http.MethodGet, url, "")
		require.NoError(t, err)
		assert.Equal(t, "v1", body)
		assert.Equal(t, CacheStale, resp.Header.Get(HeaderCache))
	}
	close(block)
	f.router.Wait()
	f.transport.block = nil

	// One coalesced refresh at most per key in flight.
	assert.LessOrEqual(t, f.transport.count(), 1+3)
	assert.GreaterOrEqual(t, f.transport.count(), 2)

	_, body, err = f.do(t, http.MethodGet, url, "")
	require.NoError(t, err)
	assert.Equal(t, "v2", body)
}

func TestUnavailableStoreDegradesToNetwork(t *testing.T) {
	f := newRouterFixture(t)
	f.router.store = brokenStore{}

	_, body, err := f.do(t, http.MethodGet, membershipURL, "")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, body)

	f.transport.set(0, "", errors.New("offline"))
	_, _, err = f.do(t, http.MethodGet, membershipURL, "")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNetworkUnavailable))
}

func TestUnmatchedRequestsPassThrough(t *testing.T) {
	f := newRouterFixture(t)
	f.monitor.online.Store(false)

	resp, _, err := f.do(t, http.MethodGet, "http://gym.local/api/admin/report", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, f.transport.count())
	assert.Zero(t, f.store.Len())
}
