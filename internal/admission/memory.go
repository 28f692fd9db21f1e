package admission

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
)

type memoryKey struct {
	room domain.RoomID
	user domain.UserID
}

// MemoryStore is the single-process store used when no redis is configured,
// and in tests. Entries expire after the same bounded wait the redis store
// applies via TTL.
type MemoryStore struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[memoryKey]Entry
	putAt   map[memoryKey]time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[memoryKey]Entry),
		putAt:   make(map[memoryKey]time.Time),
	}
}

func (s *MemoryStore) Put(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memoryKey{e.Room, e.User}
	s.entries[k] = e
	s.putAt[k] = time.Now()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, room domain.RoomID, user domain.UserID) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memoryKey{room, user}
	e, ok := s.entries[k]
	if !ok || s.expired(k) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (s *MemoryStore) List(ctx context.Context, room domain.RoomID) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for k, e := range s.entries {
		if k.room == room && !s.expired(k) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memoryKey{room, user}
	delete(s.entries, k)
	delete(s.putAt, k)
	return nil
}

func (s *MemoryStore) DeleteRoom(ctx context.Context, room domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if k.room == room {
			delete(s.entries, k)
			delete(s.putAt, k)
		}
	}
	return nil
}

// expired is callable only with mu held.
func (s *MemoryStore) expired(k memoryKey) bool {
	if s.ttl <= 0 {
		return false
	}
	return time.Since(s.putAt[k]) > s.ttl
}
