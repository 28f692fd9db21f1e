package core

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrNotAMember        = errors.New("not a member of the room")
	ErrAlreadyJoined     = errors.New("participant already joined")
	ErrTransportExists   = errors.New("transport already exists for this direction")
	ErrTransportNotFound = errors.New("transport not found")
	ErrProducerNotFound  = errors.New("producer not found")
	ErrConsumerNotFound  = errors.New("consumer not found")
	ErrNotSendTransport  = errors.New("transport cannot produce")
	ErrNotRecvTransport  = errors.New("transport cannot consume")
)
