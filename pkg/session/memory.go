package session

import (
	"context"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often the memory store sweeps expired
// sessions.
const DefaultCleanupInterval = time.Minute

// MemoryStore keeps sessions in process. Expired sessions are removed when
// they are next read and by a background sweep, so sessions that are never
// read again do not accumulate.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore creates a store and starts its cleanup goroutine; ttl <= 0
// selects DefaultTTL. Close stops the goroutine.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return newMemoryStore(ttl, DefaultCleanupInterval, time.Now)
}

func newMemoryStore(ttl, cleanupInterval time.Duration, now func() time.Time) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      now,
		done:     make(chan struct{}),
	}
	go m.cleanupLoop(cleanupInterval)
	return m
}

// Create implements Store.
func (m *MemoryStore) Create(ctx context.Context, userID, role string) (*Session, error) {
	s, err := newSession(userID, role, m.now(), m.ttl)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	out := *s
	return &out, nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Expired(m.now()) {
		delete(m.sessions, id)
		return nil, ErrExpired
	}
	out := *s
	return &out, nil
}

// Revoke implements Store.
func (m *MemoryStore) Revoke(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Cleanup removes every expired session and returns how many were removed.
func (m *MemoryStore) Cleanup(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close implements Store. It stops the cleanup goroutine.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = m.Cleanup(context.Background())
		case <-m.done:
			return
		}
	}
}
