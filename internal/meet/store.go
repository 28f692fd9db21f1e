// Package meet persists the meet records rooms are created from. The join
// flow resolves meet id to owner here; everything else about a meet lives in
// the live room.
package meet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
)

var ErrNotFound = errors.New("meet not found")

type Store interface {
	Create(ctx context.Context, creator domain.UserID) (domain.Meet, error)
	Get(ctx context.Context, id domain.RoomID) (domain.Meet, error)
}

// MemoryStore backs single-process runs and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	meets map[domain.RoomID]domain.Meet
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{meets: make(map[domain.RoomID]domain.Meet)}
}

func (s *MemoryStore) Create(ctx context.Context, creator domain.UserID) (domain.Meet, error) {
	m := domain.Meet{
		ID:        domain.RoomID(uuid.NewString()),
		Creator:   creator,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.meets[m.ID] = m
	s.mu.Unlock()
	return m, nil
}

func (s *MemoryStore) Get(ctx context.Context, id domain.RoomID) (domain.Meet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meets[id]
	if !ok {
		return domain.Meet{}, ErrNotFound
	}
	return m, nil
}
