package signal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/admission"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/app"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
)

func eventController() *Controller {
	orch := &app.Orchestrator{Waiters: admission.NewWaiters(), Instance: "gw-1"}
	return NewController(orch, 0, time.Minute)
}

func TestHandleEventSkipsLocalOrigin(t *testing.T) {
	ctl := eventController()
	room := domain.RoomID("room-1")
	c := &client{sid: "c1", send: make(chan []byte, 4)}
	ctl.hub.Add(room, c)

	ctl.HandleEvent(domain.Event{Type: domain.EventNewProducer, Room: room, User: "u1", Origin: "gw-1"})
	require.Len(t, c.send, 0)

	ctl.HandleEvent(domain.Event{Type: domain.EventNewProducer, Room: room, User: "u1", ProducerID: "p1", Kind: "audio", Origin: "gw-2"})
	require.Len(t, c.send, 1)

	var frame push
	require.NoError(t, json.Unmarshal(<-c.send, &frame))
	require.Equal(t, "newProducer", frame.Type)
}

func TestHandleEventBroadcastsRemoteLifecycle(t *testing.T) {
	ctl := eventController()
	room := domain.RoomID("room-1")
	c := &client{sid: "c1", send: make(chan []byte, 8)}
	ctl.hub.Add(room, c)

	events := []domain.Event{
		{Type: domain.EventUserJoined, Room: room, User: "u1", Name: "One", Origin: "gw-2"},
		{Type: domain.EventUserLeft, Room: room, User: "u1", Name: "One", Origin: "gw-2"},
		{Type: domain.EventProducerClosed, Room: room, User: "u1", ProducerID: "p1", Origin: "gw-2"},
		{Type: domain.EventRoomClosed, Room: room, Origin: "gw-2"},
	}
	for _, ev := range events {
		ctl.HandleEvent(ev)
	}

	types := make([]string, 0, len(events))
	for range events {
		var frame push
		require.NoError(t, json.Unmarshal(<-c.send, &frame))
		types = append(types, frame.Type)
	}
	require.Equal(t, []string{"newUserJoined", "userLeft", "producerClosed", "roomClosed"}, types)
}

func TestHandleEventResolvesWaitersRegardlessOfOrigin(t *testing.T) {
	ctl := eventController()
	room := domain.RoomID("room-1")

	done := make(chan admission.Status, 1)
	go func() {
		st, err := ctl.orch.Waiters.Await(context.Background(), room, "guest", time.Second)
		if err != nil {
			close(done)
			return
		}
		done <- st
	}()
	time.Sleep(20 * time.Millisecond)

	// decided on this very instance: still resolves the parked join
	ctl.HandleEvent(domain.Event{
		Type:     domain.EventAdmissionDecided,
		Room:     room,
		User:     "guest",
		Decision: string(admission.StatusAdmitted),
		Origin:   "gw-1",
	})

	select {
	case st, ok := <-done:
		require.True(t, ok)
		require.Equal(t, admission.StatusAdmitted, st)
	case <-time.After(time.Second):
		t.Fatal("waiter was not resolved")
	}
}
