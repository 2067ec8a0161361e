// Package connectivity tracks whether the client is online and reacts to
// transitions. A Monitor is constructed once per runtime and shared by
// reference.
package connectivity

import (
	"context"
	"fmt"
	"sync"

	"github.com/fitlife/fitlife-sync/pkg/logger"
)

// Replayer is triggered when the client comes back online.
type Replayer interface {
	Trigger(ctx context.Context) error
}

// ReplayerFunc adapts a function to Replayer.
type ReplayerFunc func(ctx context.Context) error

func (f ReplayerFunc) Trigger(ctx context.Context) error { return f(ctx) }

// Listener receives the new state after every transition.
type Listener func(online bool)

type subscription struct {
	id int
	fn Listener
}

// Monitor holds the current online state. It never polls: the platform
// adapter reports changes through SetOnline or Watch.
type Monitor struct {
	logg     *logger.Logger
	replayer Replayer

	mu        sync.Mutex
	online    bool
	nextID    int
	listeners []subscription
}

// NewMonitor creates a monitor with an initial state. replayer may be nil.
func NewMonitor(initial bool, replayer Replayer, logg *logger.Logger) *Monitor {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Monitor{online: initial, replayer: replayer, logg: logg}
}

// SetReplayer sets the replayer triggered on reconnect.
func (m *Monitor) SetReplayer(r Replayer) {
	m.mu.Lock()
	m.replayer = r
	m.mu.Unlock()
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn and returns a function that removes it.
func (m *Monitor) Subscribe(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, subscription{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.listeners {
			if s.id == id {
				m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// SetOnline records a platform signal. Repeated signals for the current
// state are ignored. Going online notifies listeners in subscription order
// and then triggers a replay; going offline only notifies.
func (m *Monitor) SetOnline(ctx context.Context, online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]subscription, len(m.listeners))
	copy(listeners, m.listeners)
	replayer := m.replayer
	m.mu.Unlock()

	m.logg.Info(m.logg.WithField(ctx, "online", online), "connectivity changed")

	for _, s := range listeners {
		m.notify(ctx, s.fn, online)
	}

	if online && replayer != nil {
		if err := replayer.Trigger(ctx); err != nil {
			m.logg.Error(ctx, "replay after reconnect failed", err)
		}
	}
}

func (m *Monitor) notify(ctx context.Context, fn Listener, online bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logg.Error(ctx, "connectivity listener panicked", fmt.Errorf("%v", r))
		}
	}()
	fn(online)
}

// Watch applies signals from ch until ctx is done or ch is closed.
func (m *Monitor) Watch(ctx context.Context, ch <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-ch:
			if !ok {
				return
			}
			m.SetOnline(ctx, online)
		}
	}
}
