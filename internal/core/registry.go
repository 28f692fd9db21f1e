// Package core owns the room/participant registry: the single source of
// truth for which transports, producers and consumers currently exist.
// Media-object allocation is delegated to the engine adapter; the registry
// keeps the bookkeeping and the cascade rules.
package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/engine"
)

// roomEntry pairs a room with its lock. The entry mutex serializes every
// mutation of that room, including the engine calls inside check-then-act
// sequences. Rooms never share an entry, so distinct rooms run concurrently.
type roomEntry struct {
	mu sync.Mutex
	r  *room
}

type Registry struct {
	eng       engine.Engine
	keepEmpty bool

	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomEntry
}

type Option func(*Registry)

// WithKeepEmpty keeps a room (and its router) alive after the last
// participant leaves, so it can be rejoined without renegotiating.
func WithKeepEmpty(keep bool) Option {
	return func(r *Registry) { r.keepEmpty = keep }
}

func NewRegistry(eng engine.Engine, opts ...Option) *Registry {
	reg := &Registry{
		eng:   eng,
		rooms: make(map[domain.RoomID]*roomEntry),
	}
	for _, opt := range opts {
		opt(reg)
	}
	return reg
}

// EnsureRoom is idempotent: the first call allocates the engine router, later
// calls are no-ops. A failed allocation removes the placeholder entry again,
// so a retry starts clean and failed joins never grow the map.
func (reg *Registry) EnsureRoom(ctx context.Context, roomID domain.RoomID, owner domain.UserID) error {
	for {
		reg.mu.Lock()
		e, ok := reg.rooms[roomID]
		if !ok {
			e = &roomEntry{}
			reg.rooms[roomID] = e
		}
		reg.mu.Unlock()

		e.mu.Lock()
		// the entry may have been removed (teardown, failed create) while
		// this goroutine waited for its lock
		reg.mu.RLock()
		stale := reg.rooms[roomID] != e
		reg.mu.RUnlock()
		if stale {
			e.mu.Unlock()
			continue
		}
		if e.r != nil {
			e.mu.Unlock()
			return nil
		}

		router, err := reg.eng.CreateRouter(ctx, string(roomID))
		if err != nil {
			reg.mu.Lock()
			if reg.rooms[roomID] == e {
				delete(reg.rooms, roomID)
			}
			reg.mu.Unlock()
			e.mu.Unlock()
			return fmt.Errorf("%w: create router: %v", engine.ErrUnavailable, err)
		}
		e.r = &room{
			id:      roomID,
			owner:   owner,
			router:  router,
			members: make(map[domain.UserID]*Participant),
		}
		log.Info().Str("module", "core").Str("room", string(roomID)).Str("router", router.ID()).Msg("room created")
		e.mu.Unlock()
		return nil
	}
}

func (reg *Registry) withRoom(roomID domain.RoomID, fn func(*room) error) error {
	reg.mu.RLock()
	e, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if !ok {
		return ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.r == nil {
		return ErrRoomNotFound
	}
	return fn(e.r)
}

func (reg *Registry) AddParticipant(ctx context.Context, roomID domain.RoomID, user domain.User) error {
	return reg.withRoom(roomID, func(r *room) error {
		if _, ok := r.members[user.ID]; ok {
			return ErrAlreadyJoined
		}
		r.members[user.ID] = newParticipant(user)
		r.order = append(r.order, user.ID)
		log.Info().Str("module", "core").Str("room", string(roomID)).Str("user", string(user.ID)).Msg("participant added")
		return nil
	})
}

// RemoveParticipant closes everything the participant owns, cascading through
// the engine, and reports the producers (with their dependent consumers) that
// went down so the caller can notify the rest of the room. The second return
// is true when the room itself was torn down because it became empty.
func (reg *Registry) RemoveParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) ([]ClosedProducer, bool, error) {
	reg.mu.RLock()
	e, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if !ok {
		return nil, false, ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.r == nil {
		return nil, false, ErrRoomNotFound
	}
	r := e.r

	p, ok := r.member(userID)
	if !ok {
		return nil, false, ErrNotAMember
	}

	closed := make([]ClosedProducer, 0, len(p.producers))
	for _, prod := range p.producers {
		closed = append(closed, closeProducerCascade(r, p, prod))
	}
	for cid, c := range p.consumers {
		_ = c.handle.Close()
		delete(p.consumers, cid)
	}
	if p.send != nil {
		_ = p.send.handle.Close()
	}
	if p.recv != nil {
		_ = p.recv.handle.Close()
	}

	delete(r.members, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "core").Str("room", string(roomID)).Str("user", string(userID)).Int("producers_closed", len(closed)).Msg("participant removed")

	if len(r.members) > 0 || reg.keepEmpty {
		return closed, false, nil
	}

	_ = r.router.Close()
	e.r = nil
	reg.mu.Lock()
	if reg.rooms[roomID] == e {
		delete(reg.rooms, roomID)
	}
	reg.mu.Unlock()
	log.Info().Str("module", "core").Str("room", string(roomID)).Msg("room torn down")
	return closed, true, nil
}

// closeProducerCascade closes one producer plus every consumer in the room
// referencing it. Caller holds the room lock.
func closeProducerCascade(r *room, owner *Participant, prod *Producer) ClosedProducer {
	out := ClosedProducer{ID: prod.ID, Owner: owner.User.ID, Kind: prod.Kind.String()}
	for _, m := range r.members {
		for cid, c := range m.consumers {
			if c.ProducerID != prod.ID {
				continue
			}
			_ = c.handle.Close()
			delete(m.consumers, cid)
			out.ConsumerIDs = append(out.ConsumerIDs, cid)
		}
	}
	_ = prod.handle.Close()
	delete(owner.producers, prod.ID)
	return out
}

func (reg *Registry) CreateTransport(ctx context.Context, roomID domain.RoomID, userID domain.UserID, dir Direction) (TransportInfo, error) {
	var info TransportInfo
	err := reg.withRoom(roomID, func(r *room) error {
		p, ok := r.member(userID)
		if !ok {
			return ErrNotAMember
		}
		if p.transport(dir) != nil {
			return ErrTransportExists
		}
		handle, err := r.router.CreateTransport(ctx)
		if err != nil {
			return fmt.Errorf("create transport: %w", err)
		}
		t := &Transport{
			ID:        handle.ID(),
			Room:      roomID,
			Owner:     userID,
			Direction: dir,
			handle:    handle,
		}
		p.setTransport(dir, t)
		info = TransportInfo{ID: t.ID, Direction: dir, Options: handle.Options()}
		return nil
	})
	return info, err
}

func (reg *Registry) ConnectTransport(ctx context.Context, roomID domain.RoomID, userID domain.UserID, transportID string, dtls webrtc.DTLSParameters) error {
	return reg.withRoom(roomID, func(r *room) error {
		p, ok := r.member(userID)
		if !ok {
			return ErrNotAMember
		}
		t, ok := findTransport(p, transportID)
		if !ok {
			return ErrTransportNotFound
		}
		if err := t.handle.Connect(ctx, dtls); err != nil {
			return fmt.Errorf("connect transport: %w", err)
		}
		t.Connected = true
		return nil
	})
}

func (reg *Registry) CreateProducer(ctx context.Context, roomID domain.RoomID, userID domain.UserID, transportID string, kind webrtc.RTPCodecType, params webrtc.RTPParameters) (ProducerInfo, error) {
	var info ProducerInfo
	err := reg.withRoom(roomID, func(r *room) error {
		p, ok := r.member(userID)
		if !ok {
			return ErrNotAMember
		}
		t, ok := findTransport(p, transportID)
		if !ok {
			return ErrTransportNotFound
		}
		if t.Direction != DirectionSend {
			return ErrNotSendTransport
		}
		handle, err := t.handle.Produce(ctx, kind, params)
		if err != nil {
			return fmt.Errorf("produce: %w", err)
		}
		prod := &Producer{ID: handle.ID(), TransportID: t.ID, Owner: userID, Kind: kind, handle: handle}
		p.producers[prod.ID] = prod
		info = ProducerInfo{ID: prod.ID, Kind: kind.String()}
		return nil
	})
	return info, err
}

func (reg *Registry) CreateConsumer(ctx context.Context, roomID domain.RoomID, userID domain.UserID, transportID, producerID string, caps webrtc.RTPCapabilities) (ConsumerInfo, error) {
	var info ConsumerInfo
	err := reg.withRoom(roomID, func(r *room) error {
		p, ok := r.member(userID)
		if !ok {
			return ErrNotAMember
		}
		t, ok := findTransport(p, transportID)
		if !ok {
			return ErrTransportNotFound
		}
		if t.Direction != DirectionRecv {
			return ErrNotRecvTransport
		}
		prod, prodOwner, ok := findProducer(r, producerID)
		if !ok {
			return ErrProducerNotFound
		}
		c, err := consumeLocked(ctx, t, p, prod, prodOwner, caps)
		if err != nil {
			return err
		}
		info = c
		return nil
	})
	return info, err
}

// consumeLocked attaches one consumer to the requester's recv transport.
// Compatibility is the engine's call. Caller holds the room lock.
func consumeLocked(ctx context.Context, t *Transport, requester *Participant, prod *Producer, prodOwner domain.UserID, caps webrtc.RTPCapabilities) (ConsumerInfo, error) {
	handle, err := t.handle.Consume(ctx, prod.handle, caps)
	if err != nil {
		return ConsumerInfo{}, fmt.Errorf("consume: %w", err)
	}
	c := &Consumer{ID: handle.ID(), TransportID: t.ID, Owner: requester.User.ID, ProducerID: prod.ID, handle: handle}
	requester.consumers[c.ID] = c
	return ConsumerInfo{
		ID:            c.ID,
		ProducerID:    prod.ID,
		ProducerOwner: prodOwner,
		Kind:          handle.Kind().String(),
		RTPParameters: handle.RTPParameters(),
		Paused:        handle.Paused(),
	}, nil
}

// ConsumeUser creates one consumer per live producer of the target user, on
// the requester's recv transport. Used by the consumeNewUser flow when a
// participant wants everything a newly visible user publishes.
func (reg *Registry) ConsumeUser(ctx context.Context, roomID domain.RoomID, requesterID, targetID domain.UserID, caps webrtc.RTPCapabilities) ([]ConsumerInfo, error) {
	var out []ConsumerInfo
	err := reg.withRoom(roomID, func(r *room) error {
		requester, ok := r.member(requesterID)
		if !ok {
			return ErrNotAMember
		}
		target, ok := r.member(targetID)
		if !ok {
			return ErrNotAMember
		}
		if requester.recv == nil {
			return ErrTransportNotFound
		}
		for _, prod := range target.producers {
			c, err := consumeLocked(ctx, requester.recv, requester, prod, targetID, caps)
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return nil
	})
	return out, err
}

func (reg *Registry) ResumeConsumer(ctx context.Context, roomID domain.RoomID, userID domain.UserID, consumerID string) error {
	return reg.withRoom(roomID, func(r *room) error {
		p, ok := r.member(userID)
		if !ok {
			return ErrNotAMember
		}
		c, ok := p.consumers[consumerID]
		if !ok {
			return ErrConsumerNotFound
		}
		if err := c.handle.Resume(ctx); err != nil {
			return fmt.Errorf("resume consumer: %w", err)
		}
		return nil
	})
}

func (reg *Registry) CloseProducer(ctx context.Context, roomID domain.RoomID, userID domain.UserID, producerID string) (ClosedProducer, error) {
	var out ClosedProducer
	err := reg.withRoom(roomID, func(r *room) error {
		p, ok := r.member(userID)
		if !ok {
			return ErrNotAMember
		}
		prod, ok := p.producers[producerID]
		if !ok {
			return ErrProducerNotFound
		}
		out = closeProducerCascade(r, p, prod)
		return nil
	})
	return out, err
}

func (reg *Registry) ListParticipants(roomID domain.RoomID) ([]ParticipantInfo, error) {
	var out []ParticipantInfo
	err := reg.withRoom(roomID, func(r *room) error {
		out = make([]ParticipantInfo, 0, len(r.order))
		for _, id := range r.order {
			p := r.members[id]
			info := ParticipantInfo{
				ID:        p.User.ID,
				Name:      p.User.Name,
				Avatar:    p.User.Avatar,
				Producers: make([]ProducerInfo, 0, len(p.producers)),
			}
			for _, prod := range p.producers {
				info.Producers = append(info.Producers, ProducerInfo{ID: prod.ID, Kind: prod.Kind.String()})
			}
			out = append(out, info)
		}
		return nil
	})
	return out, err
}

func (reg *Registry) RouterCapabilities(roomID domain.RoomID) (webrtc.RTPCapabilities, error) {
	var caps webrtc.RTPCapabilities
	err := reg.withRoom(roomID, func(r *room) error {
		caps = r.router.RTPCapabilities()
		return nil
	})
	return caps, err
}

// Member reports whether the user currently holds state in the room.
func (reg *Registry) Member(roomID domain.RoomID, userID domain.UserID) bool {
	joined := false
	_ = reg.withRoom(roomID, func(r *room) error {
		_, joined = r.member(userID)
		return nil
	})
	return joined
}

func findTransport(p *Participant, id string) (*Transport, bool) {
	if p.send != nil && p.send.ID == id {
		return p.send, true
	}
	if p.recv != nil && p.recv.ID == id {
		return p.recv, true
	}
	return nil, false
}

func findProducer(r *room, id string) (*Producer, domain.UserID, bool) {
	for uid, m := range r.members {
		if prod, ok := m.producers[id]; ok {
			return prod, uid, true
		}
	}
	return nil, "", false
}
