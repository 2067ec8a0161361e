package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingReplayer struct {
	mu    sync.Mutex
	calls int
	err   error
	order *[]string
}

func (r *recordingReplayer) Trigger(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.order != nil {
		*r.order = append(*r.order, "replay")
	}
	return r.err
}

func (r *recordingReplayer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestReconnectNotifiesThenReplays(t *testing.T) {
	var order []string
	replayer := &recordingReplayer{order: &order}
	m := NewMonitor(false, replayer, nil)

	m.Subscribe(func(online bool) { order = append(order, "first") })
	m.Subscribe(func(online bool) { order = append(order, "second") })

	m.SetOnline(context.Background(), true)

	assert.True(t, m.IsOnline())
	assert.Equal(t, []string{"first", "second", "replay"}, order)
}

func TestGoingOfflineDoesNotReplay(t *testing.T) {
	replayer := &recordingReplayer{}
	m := NewMonitor(true, replayer, nil)

	var got []bool
	m.Subscribe(func(online bool) { got = append(got, online) })

	m.SetOnline(context.Background(), false)

	assert.False(t, m.IsOnline())
	assert.Equal(t, []bool{false}, got)
	assert.Zero(t, replayer.count())
}

func TestSameStateSignalsAreIgnored(t *testing.T) {
	replayer := &recordingReplayer{}
	m := NewMonitor(true, replayer, nil)

	calls := 0
	m.Subscribe(func(bool) { calls++ })

	m.SetOnline(context.Background(), true)
	m.SetOnline(context.Background(), true)

	assert.Zero(t, calls)
	assert.Zero(t, replayer.count())
}

func TestUnsubscribe(t *testing.T) {
	m := NewMonitor(false, nil, nil)

	calls := 0
	unsubscribe := m.Subscribe(func(bool) { calls++ })
	m.SetOnline(context.Background(), true)
	unsubscribe()
	unsubscribe()
	m.SetOnline(context.Background(), false)

	assert.Equal(t, 1, calls)
}

func TestPanickingListenerDoesNotStopOthers(t *testing.T) {
	replayer := &recordingReplayer{err: errors.New("queue busy")}
	m := NewMonitor(false, replayer, nil)

	reached := false
	m.Subscribe(func(bool) { panic("listener bug") })
	m.Subscribe(func(bool) { reached = true })

	assert.NotPanics(t, func() { m.SetOnline(context.Background(), true) })
	assert.True(t, reached)
	assert.Equal(t, 1, replayer.count())
}

func TestWatch(t *testing.T) {
	replayer := &recordingReplayer{}
	m := NewMonitor(false, nil, nil)
	m.SetReplayer(replayer)

	ch := make(chan bool)
	done := make(chan struct{})
	go func() {
		m.Watch(context.Background(), ch)
		close(done)
	}()

	ch <- true
	ch <- false
	ch <- true
	close(ch)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after the channel closed")
	}
	assert.True(t, m.IsOnline())
	assert.Equal(t, 2, replayer.count())
}
