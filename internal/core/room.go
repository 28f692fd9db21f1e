package core

import (
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/engine"
)

type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

// Transport is the registry's record of one engine transport. Exactly one
// send and one recv transport may exist per (room, participant).
type Transport struct {
	ID        string
	Room      domain.RoomID
	Owner     domain.UserID
	Direction Direction
	Connected bool

	handle engine.Transport
}

type Producer struct {
	ID          string
	TransportID string
	Owner       domain.UserID
	Kind        webrtc.RTPCodecType

	handle engine.Producer
}

type Consumer struct {
	ID          string
	TransportID string
	Owner       domain.UserID
	ProducerID  string

	handle engine.Consumer
}

type Participant struct {
	User     domain.User
	JoinedAt time.Time

	send      *Transport
	recv      *Transport
	producers map[string]*Producer
	consumers map[string]*Consumer
}

func newParticipant(user domain.User) *Participant {
	return &Participant{
		User:      user,
		JoinedAt:  time.Now(),
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
	}
}

func (p *Participant) transport(dir Direction) *Transport {
	if dir == DirectionSend {
		return p.send
	}
	return p.recv
}

func (p *Participant) setTransport(dir Direction, t *Transport) {
	if dir == DirectionSend {
		p.send = t
	} else {
		p.recv = t
	}
}

// room is one live signaling session. All mutations go through the registry
// while holding mu, so check-then-act sequences stay atomic per room.
type room struct {
	id     domain.RoomID
	owner  domain.UserID
	router engine.Router

	members map[domain.UserID]*Participant
	order   []domain.UserID
}

func (r *room) member(userID domain.UserID) (*Participant, bool) {
	p, ok := r.members[userID]
	return p, ok
}

// ParticipantInfo is the wire summary of a member and their live producers.
type ParticipantInfo struct {
	ID        domain.UserID  `json:"id"`
	Name      string         `json:"name"`
	Avatar    string         `json:"imgSrc"`
	Producers []ProducerInfo `json:"producers"`
}

type ProducerInfo struct {
	ID   string `json:"producerId"`
	Kind string `json:"kind"`
}

// TransportInfo carries the engine's dialing parameters back to the client.
type TransportInfo struct {
	ID        string                  `json:"id"`
	Direction Direction               `json:"direction"`
	Options   engine.TransportOptions `json:"options"`
}

type ConsumerInfo struct {
	ID            string               `json:"id"`
	ProducerID    string               `json:"producerId"`
	ProducerOwner domain.UserID        `json:"userId"`
	Kind          string               `json:"kind"`
	RTPParameters webrtc.RTPParameters `json:"rtpParameters"`
	Paused        bool                 `json:"paused"`
}

// ClosedProducer reports one producer closed by a cascade, with every
// consumer id that went down with it.
type ClosedProducer struct {
	ID          string        `json:"producerId"`
	Owner       domain.UserID `json:"userId"`
	Kind        string        `json:"kind"`
	ConsumerIDs []string      `json:"consumerIds"`
}
