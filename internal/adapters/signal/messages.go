package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// envelope is the inbound frame: a type tag, the caller's sequence number
// echoed back on the response, and the event-specific payload.
type envelope struct {
	Type string          `json:"type"`
	Seq  int64           `json:"seq"`
	Data json.RawMessage `json:"data"`
}

type response struct {
	Type  string `json:"type"`
	Seq   int64  `json:"seq"`
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// push is a server-initiated frame.
type push struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type initializeReq struct {
	ID string `json:"id" validate:"required"`
}

type createTransportReq struct {
	Consumer bool `json:"consumer"`
}

type transportConnectReq struct {
	TransportID    string                `json:"transportId" validate:"required"`
	DTLSParameters webrtc.DTLSParameters `json:"dtlsParameters"`
	Consumer       bool                  `json:"consumer"`
}

type transportProduceReq struct {
	TransportID   string               `json:"transportId" validate:"required"`
	Kind          string               `json:"kind" validate:"required,oneof=audio video"`
	RTPParameters webrtc.RTPParameters `json:"rtpParameters"`
}

type transportConsumeReq struct {
	TransportID     string                 `json:"transportId" validate:"required"`
	ProducerID      string                 `json:"producerId" validate:"required"`
	RTPCapabilities webrtc.RTPCapabilities `json:"rtpCapabilities"`
}

type resumeConsumerReq struct {
	ConsumerID string `json:"consumerId" validate:"required"`
}

// consumeUserReq carries the requester's own capabilities; the engine's
// decode check runs against these, never the router's.
type consumeUserReq struct {
	UserID          string                 `json:"userId" validate:"required"`
	RTPCapabilities webrtc.RTPCapabilities `json:"rtpCapabilities"`
}

type closeProducerReq struct {
	ProducerID string `json:"producerId" validate:"required"`
}
