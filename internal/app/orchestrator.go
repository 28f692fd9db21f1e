// Package app wires the meet records, room registry, admission queue and
// event bus into the flows the signaling layer drives.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/admission"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/bus"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/core"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/meet"
)

var ErrNotOwner = errors.New("only the room owner may do this")

type JoinStatus string

const (
	// JoinJoined means the participant is in the room and may negotiate media.
	JoinJoined JoinStatus = "joined"
	// JoinWaiting means a waiting entry exists and the join is parked on the
	// owner's decision.
	JoinWaiting JoinStatus = "waiting"
)

type JoinResult struct {
	Status JoinStatus
}

type Orchestrator struct {
	Meets     meet.Store
	Rooms     *core.Registry
	Admission *admission.Queue
	Waiters   *admission.Waiters
	Bus       bus.Bus

	// Instance identifies this gateway process on the bus.
	Instance string

	WaitTimeout       time.Duration
	PurgeOnDisconnect bool
}

// Join runs the admission-gated join algorithm. The owner joins directly;
// anyone else needs an admitted status in the shared store. A pending or
// fresh request parks the join (JoinWaiting) for AwaitAdmission; a rejected
// status fails with admission.ErrDenied.
func (o *Orchestrator) Join(ctx context.Context, roomID domain.RoomID, user domain.User) (JoinResult, error) {
	m, err := o.Meets.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, meet.ErrNotFound) {
			return JoinResult{}, core.ErrRoomNotFound
		}
		return JoinResult{}, fmt.Errorf("resolve meet: %w", err)
	}

	if user.ID == m.Creator {
		if err := o.completeJoin(ctx, m, user); err != nil {
			return JoinResult{}, err
		}
		return JoinResult{Status: JoinJoined}, nil
	}

	st, ok, err := o.Admission.Status(ctx, roomID, user.ID)
	if err != nil {
		return JoinResult{}, fmt.Errorf("admission status: %w", err)
	}
	switch {
	case ok && st == admission.StatusAdmitted:
		if err := o.completeJoin(ctx, m, user); err != nil {
			return JoinResult{}, err
		}
		_ = o.Admission.Purge(ctx, roomID, user.ID)
		return JoinResult{Status: JoinJoined}, nil
	case ok && st == admission.StatusRejected:
		return JoinResult{}, admission.ErrDenied
	default:
		if _, err := o.Admission.Request(ctx, roomID, user); err != nil {
			return JoinResult{}, fmt.Errorf("request admission: %w", err)
		}
		return JoinResult{Status: JoinWaiting}, nil
	}
}

// AwaitAdmission parks until the owner decides, then finishes the join on
// admission. ctx is the connection's context: a disconnect cancels the wait,
// and the purge-on-disconnect policy decides whether the entry survives for
// the owner to act on.
func (o *Orchestrator) AwaitAdmission(ctx context.Context, roomID domain.RoomID, user domain.User) (JoinResult, error) {
	ch := o.Waiters.Register(roomID, user.ID)
	defer o.Waiters.Remove(roomID, user.ID, ch)

	// A decision published before the waiter existed never reaches the
	// channel, so read the store once after registering.
	if st, ok, err := o.Admission.Status(ctx, roomID, user.ID); err == nil && ok && st != admission.StatusPending {
		o.Waiters.Resolve(roomID, user.ID, st)
	}

	st, err := o.Waiters.Wait(ctx, ch, o.WaitTimeout)
	if err != nil {
		if errors.Is(err, context.Canceled) && o.PurgeOnDisconnect {
			purgeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = o.Admission.Purge(purgeCtx, roomID, user.ID)
		}
		return JoinResult{}, err
	}
	if st != admission.StatusAdmitted {
		return JoinResult{}, admission.ErrDenied
	}

	m, err := o.Meets.Get(ctx, roomID)
	if err != nil {
		return JoinResult{}, fmt.Errorf("resolve meet: %w", err)
	}
	if err := o.completeJoin(ctx, m, user); err != nil {
		return JoinResult{}, err
	}
	_ = o.Admission.Purge(ctx, roomID, user.ID)
	return JoinResult{Status: JoinJoined}, nil
}

func (o *Orchestrator) completeJoin(ctx context.Context, m domain.Meet, user domain.User) error {
	if err := o.Rooms.EnsureRoom(ctx, m.ID, m.Creator); err != nil {
		return err
	}
	if err := o.Rooms.AddParticipant(ctx, m.ID, user); err != nil {
		return err
	}
	o.publish(ctx, domain.Event{
		Type:   domain.EventUserJoined,
		Room:   m.ID,
		User:   user.ID,
		Name:   user.Name,
		Avatar: user.Avatar,
	})
	return nil
}

// Leave removes the participant and everything they own, then publishes the
// derived facts: one producerClosed per producer that went down, one
// userLeft, and a roomClosed if the room emptied out. The closed producers
// are returned so the caller can fan the same facts out to its own sockets.
func (o *Orchestrator) Leave(ctx context.Context, roomID domain.RoomID, user domain.User) ([]core.ClosedProducer, error) {
	closed, roomClosed, err := o.Rooms.RemoveParticipant(ctx, roomID, user.ID)
	if err != nil {
		return nil, err
	}
	for _, cp := range closed {
		o.publish(ctx, domain.Event{
			Type:        domain.EventProducerClosed,
			Room:        roomID,
			User:        cp.Owner,
			ProducerID:  cp.ID,
			Kind:        cp.Kind,
			ConsumerIDs: cp.ConsumerIDs,
		})
	}
	o.publish(ctx, domain.Event{
		Type: domain.EventUserLeft,
		Room: roomID,
		User: user.ID,
		Name: user.Name,
	})
	if roomClosed {
		_ = o.Admission.PurgeRoom(ctx, roomID)
		o.publish(ctx, domain.Event{Type: domain.EventRoomClosed, Room: roomID})
	}
	return closed, nil
}

// Produce creates the producer and announces it to the room.
func (o *Orchestrator) Produce(ctx context.Context, roomID domain.RoomID, userID domain.UserID, transportID string, kind webrtc.RTPCodecType, params webrtc.RTPParameters) (core.ProducerInfo, error) {
	info, err := o.Rooms.CreateProducer(ctx, roomID, userID, transportID, kind, params)
	if err != nil {
		return core.ProducerInfo{}, err
	}
	o.publish(ctx, domain.Event{
		Type:       domain.EventNewProducer,
		Room:       roomID,
		User:       userID,
		ProducerID: info.ID,
		Kind:       info.Kind,
	})
	return info, nil
}

// CloseProducer cascades per the registry rules and announces the closure.
func (o *Orchestrator) CloseProducer(ctx context.Context, roomID domain.RoomID, userID domain.UserID, producerID string) (core.ClosedProducer, error) {
	out, err := o.Rooms.CloseProducer(ctx, roomID, userID, producerID)
	if err != nil {
		return core.ClosedProducer{}, err
	}
	o.publish(ctx, domain.Event{
		Type:        domain.EventProducerClosed,
		Room:        roomID,
		User:        out.Owner,
		ProducerID:  out.ID,
		Kind:        out.Kind,
		ConsumerIDs: out.ConsumerIDs,
	})
	return out, nil
}

// Decide is the owner's admit/reject call, reached through the HTTP surface.
func (o *Orchestrator) Decide(ctx context.Context, roomID domain.RoomID, actor domain.UserID, target domain.UserID, admit bool) error {
	if err := o.requireOwner(ctx, roomID, actor); err != nil {
		return err
	}
	_, err := o.Admission.Decide(ctx, roomID, target, admit)
	return err
}

// Waiting lists the pending queue for the owner's UI.
func (o *Orchestrator) Waiting(ctx context.Context, roomID domain.RoomID, actor domain.UserID) ([]admission.Entry, error) {
	if err := o.requireOwner(ctx, roomID, actor); err != nil {
		return nil, err
	}
	return o.Admission.ListWaiting(ctx, roomID)
}

func (o *Orchestrator) requireOwner(ctx context.Context, roomID domain.RoomID, actor domain.UserID) error {
	m, err := o.Meets.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, meet.ErrNotFound) {
			return core.ErrRoomNotFound
		}
		return fmt.Errorf("resolve meet: %w", err)
	}
	if m.Creator != actor {
		return ErrNotOwner
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, ev domain.Event) {
	ev.Origin = o.Instance
	ev.At = time.Now()
	if err := o.Bus.Publish(ctx, ev); err != nil {
		log.Error().Err(err).Str("module", "app").Str("type", string(ev.Type)).Str("room", string(ev.Room)).Msg("publish event")
	}
}
