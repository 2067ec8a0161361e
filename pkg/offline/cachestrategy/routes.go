// Package cachestrategy routes client HTTP requests through a cache
// strategy chosen per route, queueing mutations that cannot reach the
// network.
package cachestrategy

import (
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/fitlife/fitlife-sync/pkg/config"
)

// Strategy decides how a matched request uses the network and the cache.
type Strategy string

const (
	NetworkFirst         Strategy = "network-first"
	CacheFirst           Strategy = "cache-first"
	StaleWhileRevalidate Strategy = "stale-while-revalidate"
	SyncRequired         Strategy = "sync-required"
)

func (s Strategy) IsValid() bool {
	switch s {
	case NetworkFirst, CacheFirst, StaleWhileRevalidate, SyncRequired:
		return true
	}
	return false
}

const (
	defaultAPITTL   = 24 * time.Hour
	defaultImageTTL = 30 * 24 * time.Hour
	defaultImageAge = 7 * 24 * time.Hour
)

// Route binds requests to a strategy. Empty Methods, PathPrefix or
// Extensions match anything.
type Route struct {
	Name       string
	Methods    []string
	PathPrefix string
	Extensions []string
	Strategy   Strategy
	// TTL is how long a cached response is kept at all.
	TTL time.Duration
	// MaxAge is how long a cached response counts as fresh for cache-first.
	// Zero means fresh for the whole TTL.
	MaxAge time.Duration
}

// Matches reports whether req falls under the route.
func (r Route) Matches(req *http.Request) bool {
	if len(r.Methods) > 0 {
		found := false
		for _, m := range r.Methods {
			if strings.EqualFold(m, req.Method) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.PathPrefix != "" && !strings.HasPrefix(req.URL.Path, r.PathPrefix) {
		return false
	}
	if len(r.Extensions) > 0 {
		ext := strings.ToLower(path.Ext(req.URL.Path))
		for _, e := range r.Extensions {
			if strings.EqualFold(e, ext) {
				return true
			}
		}
		return false
	}
	return true
}

func apiRoute(name, method, prefix string) Route {
	return Route{Name: name, Methods: []string{method}, PathPrefix: prefix, Strategy: NetworkFirst, TTL: defaultAPITTL}
}

func syncRoute(name, prefix string) Route {
	return Route{Name: name, Methods: []string{http.MethodPost}, PathPrefix: prefix, Strategy: SyncRequired}
}

// DefaultRoutes is the gym app route table.
func DefaultRoutes() []Route {
	return []Route{
		syncRoute("pause-membership", "/api/user/my-package/pause"),
		syncRoute("resume-membership", "/api/user/my-package/resume"),
		syncRoute("register-payment", "/api/payment/register"),
		syncRoute("mark-read", "/notifications/mark-read"),
		syncRoute("mark-all-read", "/notifications/mark-all-read"),

		apiRoute("membership-info", http.MethodGet, "/api/user/my-package/infor-membership"),
		apiRoute("package-detail", http.MethodPost, "/api/user/my-package/detail"),
		apiRoute("recent-transactions", http.MethodGet, "/api/user/transaction/success"),
		apiRoute("appointments-next-week", http.MethodGet, "/api/user/appointments/next-week"),
		apiRoute("promotions", http.MethodGet, "/api/public/promotions"),
		apiRoute("weekly-workout", http.MethodGet, "/api/user/workout/weekly"),
		apiRoute("upcoming-workouts", http.MethodGet, "/api/user/workout/next-week"),
		apiRoute("notifications", http.MethodGet, "/notifications"),

		{
			Name:       "images",
			Methods:    []string{http.MethodGet},
			Extensions: []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico"},
			Strategy:   CacheFirst,
			TTL:        defaultImageTTL,
			MaxAge:     defaultImageAge,
		},
	}
}

// RoutesFromConfig converts a loaded route table.
func RoutesFromConfig(cfgs []config.RouteConfig) ([]Route, error) {
	routes := make([]Route, 0, len(cfgs))
	for i, c := range cfgs {
		strategy := Strategy(strings.ToLower(c.Strategy))
		if !strategy.IsValid() {
			return nil, fmt.Errorf("route %d (%s): unknown strategy %q", i, c.Name, c.Strategy)
		}
		ttl, err := parseDuration(c.TTL, defaultAPITTL)
		if err != nil {
			return nil, fmt.Errorf("route %d (%s): ttl: %w", i, c.Name, err)
		}
		maxAge, err := parseDuration(c.MaxAge, 0)
		if err != nil {
			return nil, fmt.Errorf("route %d (%s): maxAge: %w", i, c.Name, err)
		}
		routes = append(routes, Route{
			Name:       c.Name,
			Methods:    c.Methods,
			PathPrefix: c.PathPrefix,
			Extensions: c.Extensions,
			Strategy:   strategy,
			TTL:        ttl,
			MaxAge:     maxAge,
		})
	}
	return routes, nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}
