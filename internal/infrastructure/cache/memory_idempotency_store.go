package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
)

// MemoryIdempotencyStore implements shared.IdempotencyStore in process
// memory. Suitable for single-instance deployments and tests; state is lost
// on restart.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry
	done    chan struct{}
	once    sync.Once
}

// NewMemoryIdempotencyStore creates an in-memory idempotency store with a
// background sweeper that drops expired keys
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	s := &MemoryIdempotencyStore{
		entries: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

// MarkProcessed marks a key as processed with a TTL
func (s *MemoryIdempotencyStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expiry, ok := s.entries[key]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	s.entries[key] = time.Now().Add(ttl)
	return true, nil
}

// IsProcessed checks if a key has already been processed
func (s *MemoryIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(s.entries, key)
		return false, nil
	}
	return true, nil
}

// Close stops the background sweeper
func (s *MemoryIdempotencyStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryIdempotencyStore) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, expiry := range s.entries {
				if now.After(expiry) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

var _ shared.IdempotencyStore = (*MemoryIdempotencyStore)(nil)
