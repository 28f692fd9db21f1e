package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/bus"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
)

const testRoom = domain.RoomID("room-1")

var guest = domain.User{ID: "guest", Name: "Guest"}

// subscribe registers h on the memory bus without blocking the test.
// MemoryBus registers before it parks on the context, so a cancelled
// context gives a synchronous registration.
func subscribe(b *bus.MemoryBus, h bus.Handler) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = b.Subscribe(ctx, h)
}

func newTestQueue() (*Queue, *bus.MemoryBus) {
	b := bus.NewMemoryBus()
	return NewQueue(NewMemoryStore(time.Minute), b, "instance-a"), b
}

func TestRequestIsIdempotent(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	first, err := q.Request(ctx, testRoom, guest)
	require.NoError(t, err)
	require.Equal(t, StatusPending, first.Status)

	second, err := q.Request(ctx, testRoom, guest)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDecideIsTerminalOnce(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	_, err := q.Request(ctx, testRoom, guest)
	require.NoError(t, err)

	e, err := q.Decide(ctx, testRoom, guest.ID, true)
	require.NoError(t, err)
	require.Equal(t, StatusAdmitted, e.Status)

	// a repeated or reversed decision does not disturb the terminal state
	_, err = q.Decide(ctx, testRoom, guest.ID, false)
	require.ErrorIs(t, err, ErrAlreadyDecided)

	st, ok, err := q.Status(ctx, testRoom, guest.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusAdmitted, st)
}

func TestDecideWithoutRequest(t *testing.T) {
	q, _ := newTestQueue()
	_, err := q.Decide(context.Background(), testRoom, "stranger", true)
	require.ErrorIs(t, err, ErrNotWaiting)
}

func TestDecidePublishesEvent(t *testing.T) {
	q, b := newTestQueue()
	ctx := context.Background()

	var mu sync.Mutex
	var got []domain.Event
	subscribe(b, func(ev domain.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	_, err := q.Request(ctx, testRoom, guest)
	require.NoError(t, err)
	_, err = q.Decide(ctx, testRoom, guest.ID, false)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	require.Equal(t, domain.EventAdmissionDecided, got[0].Type)
	require.Equal(t, testRoom, got[0].Room)
	require.Equal(t, guest.ID, got[0].User)
	require.Equal(t, string(StatusRejected), got[0].Decision)
	require.Equal(t, "instance-a", got[0].Origin)
}

func TestListWaitingOrderAndFilter(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	users := []domain.User{
		{ID: "u1", Name: "One"},
		{ID: "u2", Name: "Two"},
		{ID: "u3", Name: "Three"},
	}
	for _, u := range users {
		_, err := q.Request(ctx, testRoom, u)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
	_, err := q.Decide(ctx, testRoom, "u2", true)
	require.NoError(t, err)

	waiting, err := q.ListWaiting(ctx, testRoom)
	require.NoError(t, err)
	require.Len(t, waiting, 2)
	require.Equal(t, domain.UserID("u1"), waiting[0].User)
	require.Equal(t, domain.UserID("u3"), waiting[1].User)
}

func TestPurgeRoomDropsEverything(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	_, err := q.Request(ctx, testRoom, guest)
	require.NoError(t, err)
	_, err = q.Request(ctx, "other-room", guest)
	require.NoError(t, err)

	require.NoError(t, q.PurgeRoom(ctx, testRoom))

	_, ok, err := q.Status(ctx, testRoom, guest.ID)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = q.Status(ctx, "other-room", guest.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryStoreEntryExpiry(t *testing.T) {
	s := NewMemoryStore(10 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Entry{Room: testRoom, User: guest.ID, Status: StatusPending, RequestedAt: time.Now()}))
	_, ok, err := s.Get(ctx, testRoom, guest.ID)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(25 * time.Millisecond)
	_, ok, err = s.Get(ctx, testRoom, guest.ID)
	require.NoError(t, err)
	require.False(t, ok)

	list, err := s.List(ctx, testRoom)
	require.NoError(t, err)
	require.Empty(t, list)
}
