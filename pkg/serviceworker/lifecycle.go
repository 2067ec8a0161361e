package serviceworker

import "sync"

type WorkerState string

const (
	WorkerInstalling WorkerState = "installing"
	WorkerWaiting    WorkerState = "waiting"
	WorkerActive     WorkerState = "active"
)

// Lifecycle tracks a worker update: a newly installed worker waits until
// the page sends SKIP_WAITING, then becomes active.
type Lifecycle struct {
	mu       sync.Mutex
	state    WorkerState
	onActive []func()
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: WorkerInstalling}
}

func (l *Lifecycle) State() WorkerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Installed moves an installing worker to waiting.
func (l *Lifecycle) Installed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == WorkerInstalling {
		l.state = WorkerWaiting
	}
}

// OnActivate registers fn to run when the worker becomes active.
func (l *Lifecycle) OnActivate(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onActive = append(l.onActive, fn)
}

// HandleMessage applies a channel message and reports whether it changed
// the worker state.
func (l *Lifecycle) HandleMessage(msg Message) bool {
	if msg.Type != MessageSkipWaiting {
		return false
	}
	l.mu.Lock()
	if l.state != WorkerWaiting {
		l.mu.Unlock()
		return false
	}
	l.state = WorkerActive
	callbacks := append([]func(){}, l.onActive...)
	l.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	return true
}
