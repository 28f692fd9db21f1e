package domain

import "time"

type EventType string

// Room facts published on the cross-instance bus. Every subscriber applies
// them idempotently: re-applying a fact about an already-gone object is a
// no-op.
const (
	EventUserJoined       EventType = "userJoined"
	EventUserLeft         EventType = "userLeft"
	EventNewProducer      EventType = "newProducer"
	EventProducerClosed   EventType = "producerClosed"
	EventAdmissionDecided EventType = "admissionDecided"
	EventRoomClosed       EventType = "roomClosed"
)

// Event is an immutable room fact. Origin carries the id of the publishing
// process so a subscriber can tell local mutations (already fanned out to
// its sockets) from remote ones.
type Event struct {
	Type   EventType `json:"type"`
	Room   RoomID    `json:"room"`
	User   UserID    `json:"user,omitempty"`
	Name   string    `json:"name,omitempty"`
	Avatar string    `json:"imgSrc,omitempty"`

	ProducerID  string   `json:"producerId,omitempty"`
	Kind        string   `json:"kind,omitempty"`
	ConsumerIDs []string `json:"consumerIds,omitempty"`
	Decision    string   `json:"decision,omitempty"`

	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}
