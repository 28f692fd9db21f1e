package admission

import (
	"context"
	"sync"
	"time"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
)

// Waiters holds the joins of this process that are parked on an owner
// decision. The bus subscriber calls Resolve when an admissionDecided event
// arrives, which may have been published by any gateway process.
type Waiters struct {
	mu sync.Mutex
	m  map[memoryKey]chan Status
}

func NewWaiters() *Waiters {
	return &Waiters{m: make(map[memoryKey]chan Status)}
}

// Register parks a join for (room, user) and returns its decision channel.
// Registering over a live waiter replaces it; the old channel is closed so
// its Wait returns as cancelled.
func (w *Waiters) Register(room domain.RoomID, user domain.UserID) chan Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := memoryKey{room, user}
	if old, ok := w.m[k]; ok {
		close(old)
	}
	ch := make(chan Status, 1)
	w.m[k] = ch
	return ch
}

// Remove drops the waiter, unless ch was already replaced by a newer one.
func (w *Waiters) Remove(room domain.RoomID, user domain.UserID, ch chan Status) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := memoryKey{room, user}
	if w.m[k] == ch {
		delete(w.m, k)
	}
}

// Resolve unblocks a parked join, if this process has one for (room, user).
// Resolving an absent key is a no-op, so replayed events are harmless.
func (w *Waiters) Resolve(room domain.RoomID, user domain.UserID, st Status) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := memoryKey{room, user}
	ch, ok := w.m[k]
	if !ok {
		return
	}
	delete(w.m, k)
	ch <- st
	close(ch)
}

// Wait blocks on a registered channel until the decision arrives, the
// timeout elapses (ErrTimeout), or ctx is cancelled (the client
// disconnected). It never blocks other connections; each join waits on its
// own channel.
func (w *Waiters) Wait(ctx context.Context, ch <-chan Status, timeout time.Duration) (Status, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case st, ok := <-ch:
		if !ok {
			return "", context.Canceled
		}
		return st, nil
	case <-timer.C:
		return "", ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Await is Register + Wait for callers with no work to do in between.
// Callers that must not miss a decision published before the waiter existed
// use the pieces and re-read the store after Register.
func (w *Waiters) Await(ctx context.Context, room domain.RoomID, user domain.UserID, timeout time.Duration) (Status, error) {
	ch := w.Register(room, user)
	defer w.Remove(room, user, ch)
	return w.Wait(ctx, ch, timeout)
}
