// Package offline composes the client-side offline runtime: the local store,
// the sync queue, the connectivity monitor, the cache-strategy router and
// the push and inbox features that sit on top of them.
package offline

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/fitlife/fitlife-sync/pkg/client"
	"github.com/fitlife/fitlife-sync/pkg/config"
	"github.com/fitlife/fitlife-sync/pkg/db"
	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/logger"
	"github.com/fitlife/fitlife-sync/pkg/metrics"
	"github.com/fitlife/fitlife-sync/pkg/offline/cachestrategy"
	"github.com/fitlife/fitlife-sync/pkg/offline/connectivity"
	"github.com/fitlife/fitlife-sync/pkg/offline/inbox"
	"github.com/fitlife/fitlife-sync/pkg/offline/push"
	"github.com/fitlife/fitlife-sync/pkg/offline/store"
	"github.com/fitlife/fitlife-sync/pkg/offline/syncqueue"
	"github.com/fitlife/fitlife-sync/pkg/utils"
)

// Background sync tags registered by the web app.
const (
	SyncTagBackground = "background-sync"
	SyncTagDashboard  = "dashboard-sync"
)

// Params configure a Runtime.
type Params struct {
	Config config.ClientConfig
	// Base sends requests to the network. Defaults to http.DefaultTransport.
	Base http.RoundTripper
	// Platform is the device push integration. Nil means push is not
	// supported.
	Platform   push.Platform
	DeviceInfo *push.DeviceInfo
	// Online is the connectivity state at startup.
	Online     bool
	Logger     *logger.Logger
	Registerer prometheus.Registerer
	Now        func() time.Time
}

// Runtime owns every offline component. Components are built once and
// shared; there are no package-level singletons.
type Runtime struct {
	DB      *db.Client
	Store   store.Store
	Queue   *syncqueue.Queue
	Monitor *connectivity.Monitor
	Router  *cachestrategy.Router
	Client  *client.Client
	Push    *push.Manager
	Inbox   *inbox.Tracker

	cfg  config.ClientConfig
	logg *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New builds a runtime from p. Close releases what it opened.
func New(ctx context.Context, p Params) (*Runtime, error) {
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	base := p.Base
	if base == nil {
		base = http.DefaultTransport
	}
	cfg := p.Config

	dbc, err := db.New(ctx, storageDBConfig(cfg), logg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "opening offline database")
	}
	r := &Runtime{DB: dbc, cfg: cfg, logg: logg}

	if err := r.init(ctx, p, base, now); err != nil {
		return nil, multierr.Append(err, r.Close())
	}
	return r, nil
}

func (r *Runtime) init(ctx context.Context, p Params, base http.RoundTripper, now func() time.Time) error {
	cfg := p.Config
	syncMetrics := metrics.NewSyncMetrics(p.Registerer)

	st, err := store.New(ctx, store.Config{Type: storeType(cfg.StoreType)}, r.DB.DB(), store.WithClock(now))
	if err != nil {
		return err
	}
	r.Store = st

	queue, err := syncqueue.New(ctx, r.DB.DB(), syncqueue.Config{
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.BackoffBase,
		BackoffMax:  cfg.BackoffMax,
		ReplayRate:  cfg.ReplayRate,
	}, r.logg, syncqueue.WithClock(now), syncqueue.WithMetrics(syncMetrics))
	if err != nil {
		return err
	}
	// Replays go straight to the network, never back through the router.
	queue.Register(syncqueue.KindHTTP, syncqueue.NewHTTPExecutor(utils.NewHTTPClient(utils.HTTPClientConfig{
		Timeout:   utils.DefaultHTTPClientConfig().Timeout,
		Transport: base,
	})))
	r.Queue = queue

	r.Monitor = connectivity.NewMonitor(p.Online, connectivity.ReplayerFunc(func(ctx context.Context) error {
		_, err := queue.Trigger(ctx)
		return err
	}), r.logg)

	routes, err := loadRoutes(cfg.RoutesFile)
	if err != nil {
		return err
	}
	r.Router = cachestrategy.NewRouter(cachestrategy.Params{
		Base:    base,
		Store:   st,
		Queue:   queue,
		Monitor: r.Monitor,
		Routes:  routes,
		Logger:  r.logg,
		Metrics: syncMetrics,
		Now:     now,
	})

	r.Client = client.NewClientFromConfig(cfg, client.WithHTTPClient(utils.NewHTTPClient(utils.HTTPClientConfig{
		Timeout:   utils.DefaultHTTPClientConfig().Timeout,
		Transport: r.Router,
	})))

	platform := p.Platform
	if platform == nil {
		platform = unsupportedPlatform{}
	}
	var pushOpts []push.Option
	if p.DeviceInfo != nil {
		pushOpts = append(pushOpts, push.WithDeviceInfo(*p.DeviceInfo))
	}
	r.Push = push.NewManager(platform, r.Client, r.logg, pushOpts...)
	r.Inbox = inbox.NewTracker(r.Client, st, r.logg, inbox.WithClock(now))
	return nil
}

// Start runs the periodic store cleanup until Close or ctx is done.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	store.StartCleanup(ctx, r.Store, r.cfg.CleanupInterval, r.logg)
}

// WatchConnectivity feeds platform online/offline signals to the monitor
// until ch is closed or ctx is done.
func (r *Runtime) WatchConnectivity(ctx context.Context, ch <-chan bool) {
	go r.Monitor.Watch(ctx, ch)
}

// Replay runs a replay pass now.
func (r *Runtime) Replay(ctx context.Context) (syncqueue.ReplayResult, error) {
	return r.Queue.Trigger(ctx)
}

// HandleBackgroundSync handles a platform background-sync event.
func (r *Runtime) HandleBackgroundSync(ctx context.Context, tag string) (syncqueue.ReplayResult, error) {
	switch tag {
	case SyncTagBackground, SyncTagDashboard:
	default:
		return syncqueue.ReplayResult{}, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown sync tag %q", tag)
	}
	r.logg.Debug(r.logg.WithField(ctx, "tag", tag), "background sync")
	return r.Queue.Trigger(ctx)
}

// Status summarizes the runtime for diagnostics.
type Status struct {
	Online      bool        `json:"online"`
	Pending     int64       `json:"pending"`
	DeadLetters int         `json:"deadLetters"`
	Push        push.Status `json:"push"`
}

func (r *Runtime) Status(ctx context.Context) (Status, error) {
	pending, err := r.Queue.Len(ctx)
	if err != nil {
		return Status{}, err
	}
	dead, err := r.Queue.DeadLetters(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Online:      r.Monitor.IsOnline(),
		Pending:     pending,
		DeadLetters: len(dead),
		Push:        r.Push.Status(),
	}, nil
}

// Close stops background work and closes the store and database.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()

	if r.Router != nil {
		r.Router.Wait()
	}
	var err error
	if r.Store != nil {
		err = multierr.Append(err, r.Store.Close())
	}
	if r.DB != nil {
		err = multierr.Append(err, r.DB.Close())
	}
	return err
}

func storeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// storageDBConfig picks the database backing the queue and the SQL store.
// A memory store still needs a database for the queue, so it gets a private
// in-memory sqlite database.
func storageDBConfig(cfg config.ClientConfig) config.DBConfig {
	switch storeType(cfg.StoreType) {
	case "postgres":
		return config.DBConfig{Driver: "postgres", DSN: cfg.StoreDSN}
	case "memory":
		return config.DBConfig{
			Driver: "sqlite",
			DSN:    fmt.Sprintf("file:fitlife-offline-%s?mode=memory&cache=shared", uuid.NewString()),
		}
	}
	return config.DBConfig{Driver: "sqlite", DSN: cfg.StoreDSN}
}

func loadRoutes(path string) ([]cachestrategy.Route, error) {
	if path == "" {
		return cachestrategy.DefaultRoutes(), nil
	}
	cfgs, err := config.LoadRoutes(path)
	if err != nil {
		return nil, err
	}
	return cachestrategy.RoutesFromConfig(cfgs)
}

type unsupportedPlatform struct{}

func (unsupportedPlatform) Supported() bool { return false }

func (unsupportedPlatform) Permission(context.Context) (push.Permission, error) {
	return push.PermissionDenied, nil
}

func (unsupportedPlatform) RequestPermission(context.Context) (push.Permission, error) {
	return push.PermissionDenied, nil
}

func (unsupportedPlatform) Registration(context.Context) (*push.Registration, error) {
	return nil, nil
}

func (unsupportedPlatform) Register(context.Context, string) (*push.Registration, error) {
	return nil, pkgerrors.New(pkgerrors.CodeRegistrationFailed, "push is not supported")
}

func (unsupportedPlatform) Unregister(context.Context) error {
	return nil
}
