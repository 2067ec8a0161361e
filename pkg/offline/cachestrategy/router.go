package cachestrategy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/logger"
	"github.com/fitlife/fitlife-sync/pkg/metrics"
	"github.com/fitlife/fitlife-sync/pkg/offline/store"
	"github.com/fitlife/fitlife-sync/pkg/offline/syncqueue"
	"github.com/fitlife/fitlife-sync/pkg/utils"
)

const (
	HeaderCache       = "X-Cache"
	HeaderSyncPending = "X-Sync-Pending"

	CacheHit   = "HIT"
	CacheStale = "STALE"

	pendingMessage = "No network connection. The action will be sent when the connection is back."
)

// Enqueuer stores requests for later replay.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any, priority int) (*syncqueue.QueuedAction, error)
}

// Connectivity reports the current network state.
type Connectivity interface {
	IsOnline() bool
}

// PendingResponse is the body of the synthetic 202 returned for a queued
// mutation.
type PendingResponse struct {
	Accepted bool   `json:"accepted"`
	Pending  bool   `json:"pending"`
	ActionID uint   `json:"actionId"`
	Message  string `json:"message"`
}

type cachedResponse struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`
}

// Params configure a Router.
type Params struct {
	// Base sends requests to the network. Defaults to http.DefaultTransport.
	Base    http.RoundTripper
	Store   store.Store
	Queue   Enqueuer
	Monitor Connectivity
	Routes  []Route
	Logger  *logger.Logger
	Metrics *metrics.SyncMetrics
	Now     func() time.Time
}

// Router is an http.RoundTripper that applies the route table.
type Router struct {
	base    http.RoundTripper
	store   store.Store
	queue   Enqueuer
	monitor Connectivity
	routes  []Route
	logg    *logger.Logger
	metrics *metrics.SyncMetrics
	now     func() time.Time

	flight singleflight.Group
	wg     sync.WaitGroup
}

func NewRouter(p Params) *Router {
	r := &Router{
		base:    p.Base,
		store:   p.Store,
		queue:   p.Queue,
		monitor: p.Monitor,
		routes:  p.Routes,
		logg:    p.Logger,
		metrics: p.Metrics,
		now:     p.Now,
	}
	if r.base == nil {
		r.base = http.DefaultTransport
	}
	if r.routes == nil {
		r.routes = DefaultRoutes()
	}
	if r.logg == nil {
		r.logg = logger.Nop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Wait blocks until background revalidations finish.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) match(req *http.Request) (Route, bool) {
	for _, route := range r.routes {
		if route.Matches(req) {
			return route, true
		}
	}
	return Route{}, false
}

func (r *Router) RoundTrip(req *http.Request) (*http.Response, error) {
	route, ok := r.match(req)
	if !ok {
		return r.base.RoundTrip(req)
	}

	body, err := readBody(req)
	if err != nil {
		return nil, err
	}
	ctx := r.logg.WithFields(req.Context(), map[string]any{
		"route":    route.Name,
		"strategy": string(route.Strategy),
	})

	switch route.Strategy {
	case SyncRequired:
		return r.syncRequired(ctx, req, body)
	case CacheFirst:
		return r.cacheFirst(ctx, req, body, route)
	case StaleWhileRevalidate:
		return r.staleWhileRevalidate(ctx, req, body, route)
	default:
		return r.networkFirst(ctx, req, body, route)
	}
}

func (r *Router) networkFirst(ctx context.Context, req *http.Request, body []byte, route Route) (*http.Response, error) {
	key := cacheKey(req, body)
	resp, err := r.fetchAndCache(ctx, req, body, route, key)
	if err == nil {
		r.metrics.IncCache(string(route.Strategy), "network")
		return resp, nil
	}

	if cached := r.load(ctx, key); cached != nil {
		r.metrics.IncCache(string(route.Strategy), "hit")
		return cached.toResponse(req, CacheHit), nil
	}
	r.metrics.IncCache(string(route.Strategy), "miss")
	return nil, err
}

func (r *Router) cacheFirst(ctx context.Context, req *http.Request, body []byte, route Route) (*http.Response, error) {
	key := cacheKey(req, body)
	cached := r.load(ctx, key)
	if cached != nil && r.fresh(cached, route) {
		r.metrics.IncCache(string(route.Strategy), "hit")
		return cached.toResponse(req, CacheHit), nil
	}

	resp, err := r.fetchAndCache(ctx, req, body, route, key)
	if err == nil {
		r.metrics.IncCache(string(route.Strategy), "network")
		return resp, nil
	}
	if cached != nil {
		r.metrics.IncCache(string(route.Strategy), "stale")
		return cached.toResponse(req, CacheStale), nil
	}
	r.metrics.IncCache(string(route.Strategy), "miss")
	return nil, err
}

func (r *Router) staleWhileRevalidate(ctx context.Context, req *http.Request, body []byte, route Route) (*http.Response, error) {
	key := cacheKey(req, body)
	cached := r.load(ctx, key)
	if cached == nil {
		return r.networkFirst(ctx, req, body, route)
	}

	r.metrics.IncCache(string(route.Strategy), "stale")
	r.revalidate(ctx, req, body, route, key)
	return cached.toResponse(req, CacheStale), nil
}

// revalidate refreshes key in the background. Concurrent refreshes of one
// key share a single request.
func (r *Router) revalidate(ctx context.Context, req *http.Request, body []byte, route Route, key string) {
	bgCtx := context.WithoutCancel(ctx)
	bgReq := req.Clone(bgCtx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, err, _ := r.flight.Do(key, func() (any, error) {
			resp, err := r.fetchAndCache(bgCtx, bgReq, body, route, key)
			if err != nil {
				return nil, err
			}
			utils.SafeCloseResponse(resp)
			return nil, nil
		})
		if err != nil {
			r.logg.Warn(bgCtx, "background revalidation failed: "+err.Error())
		}
	}()
}

func (r *Router) syncRequired(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	resp, err := r.fetch(ctx, req, body)
	if err == nil {
		return resp, nil
	}
	if !pkgerrors.Is(err, pkgerrors.CodeNetworkUnavailable) || r.queue == nil {
		return nil, err
	}

	action, qerr := r.queue.Enqueue(ctx, syncqueue.KindHTTP, syncqueue.RecordRequest(req, body), 0)
	if qerr != nil {
		r.logg.Error(ctx, "failed to queue offline request", qerr)
		return nil, qerr
	}
	r.metrics.IncCache(string(SyncRequired), "queued")
	r.logg.Info(r.logg.WithField(ctx, "action_id", action.ID), "request queued for background sync")
	return pendingResponse(req, action.ID), nil
}

// fetch sends req to the network. An offline monitor short-circuits without
// an attempt.
func (r *Router) fetch(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	if r.monitor != nil && !r.monitor.IsOnline() {
		return nil, pkgerrors.Newf(pkgerrors.CodeNetworkUnavailable, "%s %s: offline", req.Method, req.URL.Redacted())
	}
	out := req.Clone(ctx)
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.ContentLength = int64(len(body))
	}
	resp, err := r.base.RoundTrip(out)
	if err != nil {
		return nil, utils.TransportError(err, req.Method, req.URL.Redacted())
	}
	return resp, nil
}

// fetchAndCache fetches and stores 200 responses. The returned response
// body is always readable.
func (r *Router) fetchAndCache(ctx context.Context, req *http.Request, body []byte, route Route, key string) (*http.Response, error) {
	resp, err := r.fetch(ctx, req, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	payload, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, utils.TransportError(err, req.Method, req.URL.Redacted())
	}
	resp.Body = io.NopCloser(bytes.NewReader(payload))

	entry := cachedResponse{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     payload,
		StoredAt: r.now().UTC(),
	}
	if r.store != nil {
		if err := store.PutJSON(ctx, r.store, store.NamespaceAPICache, key, entry, route.TTL); err != nil {
			r.logg.Warn(ctx, "response not cached: "+err.Error())
		}
	}
	return resp, nil
}

func (r *Router) load(ctx context.Context, key string) *cachedResponse {
	if r.store == nil {
		return nil
	}
	cached, err := store.GetJSON[cachedResponse](ctx, r.store, store.NamespaceAPICache, key)
	if err != nil {
		r.logg.Warn(ctx, "cache unavailable, using network only: "+err.Error())
		return nil
	}
	return cached
}

func (r *Router) fresh(c *cachedResponse, route Route) bool {
	if route.MaxAge <= 0 {
		return true
	}
	return r.now().Sub(c.StoredAt) < route.MaxAge
}

func (c *cachedResponse) toResponse(req *http.Request, state string) *http.Response {
	header := c.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(HeaderCache, state)
	header.Set("Content-Length", strconv.Itoa(len(c.Body)))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", c.Status, http.StatusText(c.Status)),
		StatusCode:    c.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(c.Body)),
		ContentLength: int64(len(c.Body)),
		Request:       req,
	}
}

func pendingResponse(req *http.Request, actionID uint) *http.Response {
	body, _ := json.Marshal(PendingResponse{
		Accepted: true,
		Pending:  true,
		ActionID: actionID,
		Message:  pendingMessage,
	})
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set(HeaderSyncPending, "true")
	return &http.Response{
		Status:        "202 Accepted",
		StatusCode:    http.StatusAccepted,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// cacheKey is "METHOD url", plus a body hash for requests with a body and
// a hash of the Authorization header when there is one. Members sharing a
// device get separate entries.
func cacheKey(req *http.Request, body []byte) string {
	key := req.Method + " " + req.URL.String()
	if req.Method != http.MethodGet && len(body) > 0 {
		sum := sha256.Sum256(body)
		key += "#" + hex.EncodeToString(sum[:])
	}
	if auth := req.Header.Get("Authorization"); auth != "" {
		sum := sha256.Sum256([]byte(auth))
		key += "@" + hex.EncodeToString(sum[:8])
	}
	return key
}

func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return body, nil
}
