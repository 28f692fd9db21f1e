package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
)

func TestMemoryBusDeliversToAllSubscribers(t *testing.T) {
	b := NewMemoryBus()

	reg := func(h Handler) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, b.Subscribe(ctx, h), context.Canceled)
	}

	var first, second []domain.Event
	reg(func(ev domain.Event) { first = append(first, ev) })
	reg(func(ev domain.Event) { second = append(second, ev) })

	ev := domain.Event{Type: domain.EventUserJoined, Room: "room-1", User: "alice", Origin: "a"}
	require.NoError(t, b.Publish(context.Background(), ev))

	require.Equal(t, []domain.Event{ev}, first)
	require.Equal(t, []domain.Event{ev}, second)
}

func TestMemoryBusSubscribeBlocksUntilDone(t *testing.T) {
	b := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Subscribe(ctx, func(domain.Event) {}) }()

	select {
	case err := <-done:
		t.Fatalf("subscribe returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("subscribe did not return after cancel")
	}

	// shutdown order in main: cancel the subscriber, then close the bus
	require.NoError(t, b.Close())
}
