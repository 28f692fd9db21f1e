package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAwaitResolves(t *testing.T) {
	w := NewWaiters()
	go func() {
		time.Sleep(10 * time.Millisecond)
		w.Resolve(testRoom, guest.ID, StatusAdmitted)
	}()

	st, err := w.Await(context.Background(), testRoom, guest.ID, time.Second)
	require.NoError(t, err)
	require.Equal(t, StatusAdmitted, st)
}

func TestAwaitTimesOut(t *testing.T) {
	w := NewWaiters()
	start := time.Now()
	_, err := w.Await(context.Background(), testRoom, guest.ID, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.Less(t, time.Since(start), time.Second)
}

func TestAwaitCancelledOnDisconnect(t *testing.T) {
	w := NewWaiters()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := w.Await(ctx, testRoom, guest.ID, time.Second)
	require.ErrorIs(t, err, context.Canceled)

	// the waiter deregistered itself, so a late decision is a no-op
	w.Resolve(testRoom, guest.ID, StatusAdmitted)
}

func TestResolveBetweenRegisterAndWait(t *testing.T) {
	w := NewWaiters()
	ch := w.Register(testRoom, guest.ID)
	defer w.Remove(testRoom, guest.ID, ch)

	// the decision lands before anyone blocks on the channel
	w.Resolve(testRoom, guest.ID, StatusAdmitted)

	st, err := w.Wait(context.Background(), ch, time.Second)
	require.NoError(t, err)
	require.Equal(t, StatusAdmitted, st)
}

func TestResolveWithoutWaiter(t *testing.T) {
	w := NewWaiters()
	w.Resolve(testRoom, "nobody", StatusRejected)
}
