package sessionsvc

import (
	"context"
	"sync"
	"time"

	"github.com/classnote/classnote/core"
)

type memoryItem struct {
	value     []byte
	fields    map[string][]byte
	expiresAt time.Time
}

// MemoryStore is the SessionStore used when no Redis server is configured, and by the tests.
// Expired items are dropped when read.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

var _ core.SessionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem), now: time.Now}
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := memoryItem{value: append([]byte{}, value...)}
	s.items[key] = s.expire(item, ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.live(key)
	if !ok || item.fields != nil {
		return nil, core.ErrSessionMissing
	}
	return append([]byte{}, item.value...), nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.items, key)
	}
	return nil
}

func (s *MemoryStore) SetField(_ context.Context, key, field string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.live(key)
	if !ok || item.fields == nil {
		item = memoryItem{fields: make(map[string][]byte)}
	}
	item.fields[field] = append([]byte{}, value...)
	s.items[key] = s.expire(item, ttl)
	return nil
}

func (s *MemoryStore) Fields(_ context.Context, key string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, _ := s.live(key)
	fields := make(map[string][]byte, len(item.fields))
	for field, val := range item.fields {
		fields[field] = append([]byte{}, val...)
	}
	return fields, nil
}

// live returns the item at key unless it has expired. The caller holds the lock.
func (s *MemoryStore) live(key string) (memoryItem, bool) {
	item, ok := s.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !item.expiresAt.IsZero() && !s.now().Before(item.expiresAt) {
		delete(s.items, key)
		return memoryItem{}, false
	}
	return item, true
}

func (s *MemoryStore) expire(item memoryItem, ttl time.Duration) memoryItem {
	item.expiresAt = time.Time{}
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}
	return item
}
