package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var errQuotaExceeded = errors.New("quota exceeded")

// MemoryStore is a thread-safe in-process Store.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Entry
	size       int
	maxEntries int
	now        func() time.Time
}

// NewMemoryStore creates a memory store holding at most maxEntries entries
// (0 means unlimited).
func NewMemoryStore(maxEntries int, opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		namespaces: make(map[string]map[string]Entry),
		maxEntries: maxEntries,
		now:        o.now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.namespaces[namespace][key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	now := m.now()
	if entry.Expired(now) {
		m.deleteIfExpired(namespace, key, now)
		return nil, nil
	}
	return append([]byte(nil), entry.Payload...), nil
}

// deleteIfExpired removes the entry only if it is still expired, so a
// concurrent Put is kept.
func (m *MemoryStore) deleteIfExpired(namespace, key string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.namespaces[namespace][key]; ok && entry.Expired(now) {
		m.remove(namespace, key)
	}
}

func (m *MemoryStore) Put(ctx context.Context, namespace, key string, payload []byte, ttl time.Duration) error {
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]Entry)
		m.namespaces[namespace] = ns
	}
	if _, exists := ns[key]; !exists {
		if m.maxEntries > 0 && m.size >= m.maxEntries {
			return unavailable(errQuotaExceeded, "storing entry")
		}
		m.size++
	}
	ns[key] = Entry{
		Namespace: namespace,
		Key:       key,
		Payload:   append([]byte(nil), payload...),
		StoredAt:  now,
		ExpiresAt: expiry(now, ttl),
	}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(namespace, key)
	return nil
}

func (m *MemoryStore) remove(namespace, key string) {
	ns, ok := m.namespaces[namespace]
	if !ok {
		return
	}
	if _, exists := ns[key]; exists {
		delete(ns, key)
		m.size--
	}
}

func (m *MemoryStore) ListByIndex(ctx context.Context, namespace string, index Index) ([]Entry, error) {
	now := m.now()

	m.mu.RLock()
	entries := make([]Entry, 0, len(m.namespaces[namespace]))
	for _, e := range m.namespaces[namespace] {
		if e.Expired(now) {
			continue
		}
		e.Payload = append([]byte(nil), e.Payload...)
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	var less func(a, b Entry) bool
	switch index {
	case IndexKey:
		less = func(a, b Entry) bool { return a.Key < b.Key }
	case IndexStoredAt:
		less = func(a, b Entry) bool {
			if !a.StoredAt.Equal(b.StoredAt) {
				return a.StoredAt.Before(b.StoredAt)
			}
			return a.Key < b.Key
		}
	case IndexExpiresAt:
		less = func(a, b Entry) bool {
			switch {
			case a.ExpiresAt == nil && b.ExpiresAt == nil:
				return a.Key < b.Key
			case a.ExpiresAt == nil:
				return false
			case b.ExpiresAt == nil:
				return true
			case !a.ExpiresAt.Equal(*b.ExpiresAt):
				return a.ExpiresAt.Before(*b.ExpiresAt)
			}
			return a.Key < b.Key
		}
	default:
		return nil, unavailable(errors.New("unknown index "+string(index)), "listing entries")
	}
	sort.Slice(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
	return entries, nil
}

func (m *MemoryStore) Cleanup(ctx context.Context) (int, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for namespace, ns := range m.namespaces {
		for key, e := range ns {
			if e.Expired(now) {
				m.remove(namespace, key)
				count++
			}
		}
	}
	return count, nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.namespaces = make(map[string]map[string]Entry)
	m.size = 0
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// swept.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryStore) Close() error {
	return nil
}
