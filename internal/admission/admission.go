// Package admission gates room entry for non-owners. Status lives in a
// shared store so any gateway process can answer "is this user admitted?",
// and decisions travel over the bus to unblock waiting joins wherever their
// socket is attached.
package admission

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/bus"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAdmitted Status = "admitted"
	StatusRejected Status = "rejected"
)

var (
	ErrDenied         = errors.New("admission denied")
	ErrTimeout        = errors.New("admission timed out")
	ErrNotWaiting     = errors.New("no waiting entry")
	ErrAlreadyDecided = errors.New("admission already decided")
)

// Entry is the shared-store record of one join attempt.
type Entry struct {
	Room        domain.RoomID `json:"room"`
	User        domain.UserID `json:"user"`
	Name        string        `json:"name"`
	Avatar      string        `json:"imgSrc"`
	Status      Status        `json:"status"`
	RequestedAt time.Time     `json:"requestedAt"`
}

// Store is the shared admission state. Implementations must be safe for use
// from several processes at once; List returns entries in request order.
type Store interface {
	Put(ctx context.Context, e Entry) error
	Get(ctx context.Context, room domain.RoomID, user domain.UserID) (Entry, bool, error)
	List(ctx context.Context, room domain.RoomID) ([]Entry, error)
	Delete(ctx context.Context, room domain.RoomID, user domain.UserID) error
	DeleteRoom(ctx context.Context, room domain.RoomID) error
}

// Queue is the admission-control service on top of the store.
type Queue struct {
	store  Store
	bus    bus.Bus
	origin string
}

func NewQueue(store Store, b bus.Bus, origin string) *Queue {
	return &Queue{store: store, bus: b, origin: origin}
}

// Request records a pending join. Idempotent: a second request while the
// first is still pending returns the existing entry unchanged.
func (q *Queue) Request(ctx context.Context, room domain.RoomID, user domain.User) (Entry, error) {
	if e, ok, err := q.store.Get(ctx, room, user.ID); err != nil {
		return Entry{}, err
	} else if ok {
		return e, nil
	}
	e := Entry{
		Room:        room,
		User:        user.ID,
		Name:        user.Name,
		Avatar:      user.Avatar,
		Status:      StatusPending,
		RequestedAt: time.Now(),
	}
	if err := q.store.Put(ctx, e); err != nil {
		return Entry{}, err
	}
	log.Info().Str("module", "admission").Str("room", string(room)).Str("user", string(user.ID)).Msg("admission requested")
	return e, nil
}

// Decide moves a pending entry to its terminal state and publishes the fact.
// Terminal-once: deciding a decided entry fails with ErrAlreadyDecided.
// Authorization (only the room owner may decide) is the caller's job.
func (q *Queue) Decide(ctx context.Context, room domain.RoomID, user domain.UserID, admit bool) (Entry, error) {
	e, ok, err := q.store.Get(ctx, room, user)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, ErrNotWaiting
	}
	if e.Status != StatusPending {
		return e, ErrAlreadyDecided
	}
	if admit {
		e.Status = StatusAdmitted
	} else {
		e.Status = StatusRejected
	}
	if err := q.store.Put(ctx, e); err != nil {
		return Entry{}, err
	}
	ev := domain.Event{
		Type:     domain.EventAdmissionDecided,
		Room:     room,
		User:     user,
		Decision: string(e.Status),
		Origin:   q.origin,
		At:       time.Now(),
	}
	if err := q.bus.Publish(ctx, ev); err != nil {
		log.Error().Err(err).Str("module", "admission").Str("room", string(room)).Str("user", string(user)).Msg("publish decision")
	}
	log.Info().Str("module", "admission").Str("room", string(room)).Str("user", string(user)).Str("decision", string(e.Status)).Msg("admission decided")
	return e, nil
}

// Status is the join flow's read path, always fresh from the shared store.
func (q *Queue) Status(ctx context.Context, room domain.RoomID, user domain.UserID) (Status, bool, error) {
	e, ok, err := q.store.Get(ctx, room, user)
	if err != nil || !ok {
		return "", false, err
	}
	return e.Status, true, nil
}

// ListWaiting returns the still-pending entries in request-arrival order.
func (q *Queue) ListWaiting(ctx context.Context, room domain.RoomID) ([]Entry, error) {
	all, err := q.store.List(ctx, room)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if e.Status == StatusPending {
			out = append(out, e)
		}
	}
	return out, nil
}

// Purge drops one entry, e.g. when its requester disconnected before a
// decision and the purge-on-disconnect policy is on.
func (q *Queue) Purge(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	return q.store.Delete(ctx, room, user)
}

// PurgeRoom drops every entry of a torn-down room.
func (q *Queue) PurgeRoom(ctx context.Context, room domain.RoomID) error {
	return q.store.DeleteRoom(ctx, room)
}
