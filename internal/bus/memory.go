package bus

import (
	"context"
	"sync"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
)

// MemoryBus is the single-process bus: events loop straight back to the
// local subscribers. Used when no redis address is configured, and in tests.
type MemoryBus struct {
	mu       sync.Mutex
	handlers []Handler
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Publish(ctx context.Context, ev domain.Event) error {
	b.mu.Lock()
	hs := make([]Handler, len(b.handlers))
	copy(hs, b.handlers)
	b.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, h Handler) error {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (b *MemoryBus) Close() error { return nil }
