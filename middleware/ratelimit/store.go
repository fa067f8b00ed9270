package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Entry is the per-key counter state. BlockedUntil is the zero time when the
// key is not blocked.
type Entry struct {
	Count        int       `json:"count"`
	WindowStart  time.Time `json:"window_start"`
	BlockedUntil time.Time `json:"blocked_until"`
	LastAttempt  time.Time `json:"last_attempt"`
}

func (e Entry) Blocked(now time.Time) bool {
	return !e.BlockedUntil.IsZero() && now.Before(e.BlockedUntil)
}

// Store holds rate-limit entries. The in-memory implementation is
// process-local; multi-process deployments should use the redis-backed one
// so counters are meaningful cluster-wide.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
}

type MemoryStore struct {
	mu            sync.RWMutex
	data          map[string]Entry
	sweepInterval time.Duration
	idleEviction  time.Duration
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithOptions(5*time.Minute, time.Hour)
}

func NewMemoryStoreWithOptions(sweepInterval, idleEviction time.Duration) *MemoryStore {
	store := &MemoryStore{
		data:          make(map[string]Entry),
		sweepInterval: sweepInterval,
		idleEviction:  idleEviction,
	}

	go store.sweepLoop()

	return store
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, exists := s.data[key]; exists {
		return &e, nil
	}

	return nil, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.sweep(time.Now())
	}
}

// sweep removes entries untouched for longer than the idle eviction age,
// except keys still serving a block. Bounds memory growth on a long-running
// process.
func (s *MemoryStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.data {
		if entry.Blocked(now) {
			continue
		}
		if now.Sub(entry.LastAttempt) > s.idleEviction {
			delete(s.data, key)
			removed++
		}
	}

	return removed
}

func (s *MemoryStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}
