package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/admission"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/bus"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/core"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/engine/localengine"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/meet"
)

var (
	owner = domain.User{ID: "owner", Name: "Owner"}
	guest = domain.User{ID: "guest", Name: "Guest"}
)

// harness is a single-process deployment of the orchestrator with the memory
// stores and bus, plus an event recorder playing the bus subscriber's role of
// resolving parked joins on admission decisions.
type harness struct {
	o *Orchestrator
	m domain.Meet

	mu     sync.Mutex
	events []domain.Event
}

func newHarness(t *testing.T, mutate func(*Orchestrator)) *harness {
	t.Helper()
	b := bus.NewMemoryBus()
	o := &Orchestrator{
		Meets:       meet.NewMemoryStore(),
		Rooms:       core.NewRegistry(localengine.New()),
		Admission:   admission.NewQueue(admission.NewMemoryStore(time.Minute), b, "gw-1"),
		Waiters:     admission.NewWaiters(),
		Bus:         b,
		Instance:    "gw-1",
		WaitTimeout: time.Second,
	}
	if mutate != nil {
		mutate(o)
	}

	h := &harness{o: o}
	// MemoryBus registers before it parks on the context, so a cancelled
	// context gives a synchronous registration.
	regCtx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = b.Subscribe(regCtx, func(ev domain.Event) {
		h.mu.Lock()
		h.events = append(h.events, ev)
		h.mu.Unlock()
		if ev.Type == domain.EventAdmissionDecided {
			o.Waiters.Resolve(ev.Room, ev.User, admission.Status(ev.Decision))
		}
	})

	m, err := o.Meets.Create(context.Background(), owner.ID)
	require.NoError(t, err)
	h.m = m
	return h
}

func (h *harness) eventsOfType(typ domain.EventType) []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.Event
	for _, ev := range h.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (h *harness) participants(t *testing.T) []core.ParticipantInfo {
	t.Helper()
	users, err := h.o.Rooms.ListParticipants(h.m.ID)
	require.NoError(t, err)
	return users
}

func testDTLS() webrtc.DTLSParameters {
	return webrtc.DTLSParameters{
		Fingerprints: []webrtc.DTLSFingerprint{{Algorithm: "sha-256", Value: "AA:BB:CC"}},
	}
}

func audioParams() webrtc.RTPParameters {
	return webrtc.RTPParameters{
		Codecs: []webrtc.RTPCodecParameters{{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			PayloadType:        111,
		}},
	}
}

// admitGuest walks the non-owner path end to end: request, owner decision,
// re-join against the now-admitted status.
func (h *harness) admitGuest(t *testing.T, u domain.User) {
	t.Helper()
	ctx := context.Background()
	res, err := h.o.Join(ctx, h.m.ID, u)
	require.NoError(t, err)
	require.Equal(t, JoinWaiting, res.Status)

	require.NoError(t, h.o.Decide(ctx, h.m.ID, owner.ID, u.ID, true))

	res, err = h.o.Join(ctx, h.m.ID, u)
	require.NoError(t, err)
	require.Equal(t, JoinJoined, res.Status)
}

func TestOwnerJoinsDirectly(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.o.Join(context.Background(), h.m.ID, owner)
	require.NoError(t, err)
	require.Equal(t, JoinJoined, res.Status)

	users := h.participants(t)
	require.Len(t, users, 1)
	require.Equal(t, owner.ID, users[0].ID)
	require.Len(t, h.eventsOfType(domain.EventUserJoined), 1)
}

func TestJoinUnknownMeet(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.o.Join(context.Background(), "no-such-meet", guest)
	require.ErrorIs(t, err, core.ErrRoomNotFound)
}

func TestGuestAdmittedAndJoined(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.o.Join(ctx, h.m.ID, owner)
	require.NoError(t, err)

	h.admitGuest(t, guest)

	users := h.participants(t)
	require.Len(t, users, 2)
	require.Equal(t, guest.ID, users[1].ID)

	// the consumed entry is purged, not left in the waiting list
	waiting, err := h.o.Waiting(ctx, h.m.ID, owner.ID)
	require.NoError(t, err)
	require.Empty(t, waiting)
}

func TestGuestRejectedNeverJoins(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.o.Join(ctx, h.m.ID, owner)
	require.NoError(t, err)

	res, err := h.o.Join(ctx, h.m.ID, guest)
	require.NoError(t, err)
	require.Equal(t, JoinWaiting, res.Status)

	require.NoError(t, h.o.Decide(ctx, h.m.ID, owner.ID, guest.ID, false))

	_, err = h.o.Join(ctx, h.m.ID, guest)
	require.ErrorIs(t, err, admission.ErrDenied)

	users := h.participants(t)
	require.Len(t, users, 1)
}

func TestAwaitAdmissionAdmitted(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.o.Join(ctx, h.m.ID, owner)
	require.NoError(t, err)
	res, err := h.o.Join(ctx, h.m.ID, guest)
	require.NoError(t, err)
	require.Equal(t, JoinWaiting, res.Status)

	type outcome struct {
		res JoinResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := h.o.AwaitAdmission(ctx, h.m.ID, guest)
		done <- outcome{r, err}
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, h.o.Decide(ctx, h.m.ID, owner.ID, guest.ID, true))

	select {
	case out := <-done:
		require.NoError(t, out.err)
		require.Equal(t, JoinJoined, out.res.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("await did not resolve")
	}
	require.Len(t, h.participants(t), 2)
}

func TestAwaitAdmissionRejected(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.o.Join(ctx, h.m.ID, owner)
	require.NoError(t, err)
	_, err = h.o.Join(ctx, h.m.ID, guest)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.o.AwaitAdmission(ctx, h.m.ID, guest)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, h.o.Decide(ctx, h.m.ID, owner.ID, guest.ID, false))

	select {
	case err := <-done:
		require.ErrorIs(t, err, admission.ErrDenied)
	case <-time.After(2 * time.Second):
		t.Fatal("await did not resolve")
	}
	require.Len(t, h.participants(t), 1)
}

func TestAwaitAdmissionSeesEarlierDecision(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.o.Join(ctx, h.m.ID, owner)
	require.NoError(t, err)
	res, err := h.o.Join(ctx, h.m.ID, guest)
	require.NoError(t, err)
	require.Equal(t, JoinWaiting, res.Status)

	// the owner decides before the guest starts waiting; the decision event
	// found no waiter to resolve
	require.NoError(t, h.o.Decide(ctx, h.m.ID, owner.ID, guest.ID, true))

	got, err := h.o.AwaitAdmission(ctx, h.m.ID, guest)
	require.NoError(t, err)
	require.Equal(t, JoinJoined, got.Status)
	require.Len(t, h.participants(t), 2)
}

func TestAwaitAdmissionSeesEarlierRejection(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.o.Join(ctx, h.m.ID, owner)
	require.NoError(t, err)
	_, err = h.o.Join(ctx, h.m.ID, guest)
	require.NoError(t, err)

	require.NoError(t, h.o.Decide(ctx, h.m.ID, owner.ID, guest.ID, false))

	_, err = h.o.AwaitAdmission(ctx, h.m.ID, guest)
	require.ErrorIs(t, err, admission.ErrDenied)
	require.Len(t, h.participants(t), 1)
}

func TestAwaitAdmissionTimesOut(t *testing.T) {
	h := newHarness(t, func(o *Orchestrator) { o.WaitTimeout = 30 * time.Millisecond })
	ctx := context.Background()
	_, err := h.o.Join(ctx, h.m.ID, guest)
	require.NoError(t, err)

	_, err = h.o.AwaitAdmission(ctx, h.m.ID, guest)
	require.ErrorIs(t, err, admission.ErrTimeout)
}

func TestAwaitAdmissionPurgeOnDisconnect(t *testing.T) {
	h := newHarness(t, func(o *Orchestrator) { o.PurgeOnDisconnect = true })
	ctx := context.Background()
	_, err := h.o.Join(ctx, h.m.ID, guest)
	require.NoError(t, err)

	connCtx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = h.o.AwaitAdmission(connCtx, h.m.ID, guest)
	require.ErrorIs(t, err, context.Canceled)

	_, ok, err := h.o.Admission.Status(ctx, h.m.ID, guest.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDecideRequiresOwner(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.o.Join(ctx, h.m.ID, guest)
	require.NoError(t, err)

	err = h.o.Decide(ctx, h.m.ID, guest.ID, guest.ID, true)
	require.ErrorIs(t, err, ErrNotOwner)

	_, err = h.o.Waiting(ctx, h.m.ID, guest.ID)
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestProduceAnnouncesToRoom(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.o.Join(ctx, h.m.ID, owner)
	require.NoError(t, err)

	tr, err := h.o.Rooms.CreateTransport(ctx, h.m.ID, owner.ID, core.DirectionSend)
	require.NoError(t, err)
	require.NoError(t, h.o.Rooms.ConnectTransport(ctx, h.m.ID, owner.ID, tr.ID, testDTLS()))

	info, err := h.o.Produce(ctx, h.m.ID, owner.ID, tr.ID, webrtc.RTPCodecTypeAudio, audioParams())
	require.NoError(t, err)

	evs := h.eventsOfType(domain.EventNewProducer)
	require.Len(t, evs, 1)
	require.Equal(t, info.ID, evs[0].ProducerID)
	require.Equal(t, "audio", evs[0].Kind)
	require.Equal(t, "gw-1", evs[0].Origin)
}

func TestLeaveCascadesAndClosesRoom(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.o.Join(ctx, h.m.ID, owner)
	require.NoError(t, err)
	h.admitGuest(t, guest)

	tr, err := h.o.Rooms.CreateTransport(ctx, h.m.ID, guest.ID, core.DirectionSend)
	require.NoError(t, err)
	require.NoError(t, h.o.Rooms.ConnectTransport(ctx, h.m.ID, guest.ID, tr.ID, testDTLS()))
	prod, err := h.o.Produce(ctx, h.m.ID, guest.ID, tr.ID, webrtc.RTPCodecTypeAudio, audioParams())
	require.NoError(t, err)

	closed, err := h.o.Leave(ctx, h.m.ID, guest)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	require.Equal(t, prod.ID, closed[0].ID)

	closedEvs := h.eventsOfType(domain.EventProducerClosed)
	require.Len(t, closedEvs, 1)
	require.Equal(t, prod.ID, closedEvs[0].ProducerID)
	require.Len(t, h.eventsOfType(domain.EventUserLeft), 1)
	require.Empty(t, h.eventsOfType(domain.EventRoomClosed))
	require.Len(t, h.participants(t), 1)

	_, err = h.o.Leave(ctx, h.m.ID, owner)
	require.NoError(t, err)
	require.Len(t, h.eventsOfType(domain.EventRoomClosed), 1)
	require.False(t, h.o.Rooms.Member(h.m.ID, owner.ID))
}
