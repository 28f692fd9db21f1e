// Package engine defines the control-plane contract this service drives the
// external SFU media engine through. The media plane itself (codecs, ICE,
// DTLS, forwarding) lives behind these interfaces and is never touched here.
package engine

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

var (
	// ErrUnavailable means the engine could not allocate the object at all.
	ErrUnavailable = errors.New("media engine unavailable")
	// ErrRejected means the engine refused the supplied parameters.
	ErrRejected = errors.New("media engine rejected parameters")
)

// Engine allocates one Router per room.
type Engine interface {
	CreateRouter(ctx context.Context, roomID string) (Router, error)
}

// Router is the per-room media-routing context. All transports, producers
// and consumers of a room hang off its router.
type Router interface {
	ID() string
	RTPCapabilities() webrtc.RTPCapabilities
	CreateTransport(ctx context.Context) (Transport, error)
	// CanConsume reports whether caps suffice to decode the producer's media.
	CanConsume(producer Producer, caps webrtc.RTPCapabilities) bool
	Close() error
}

// TransportOptions is what a client needs to dial the transport.
type TransportOptions struct {
	ID             string                    `json:"id"`
	ICEParameters  webrtc.ICEParameters      `json:"iceParameters"`
	DTLSParameters webrtc.DTLSParameters     `json:"dtlsParameters"`
	ICECandidates  []webrtc.ICECandidateInit `json:"iceCandidates"`
}

type Transport interface {
	ID() string
	Options() TransportOptions
	// Connect applies the client's DTLS parameters. Fails with ErrRejected
	// on malformed parameters and is not retryable after success.
	Connect(ctx context.Context, dtls webrtc.DTLSParameters) error
	Produce(ctx context.Context, kind webrtc.RTPCodecType, params webrtc.RTPParameters) (Producer, error)
	// Consume attaches a consumer for the given producer. The consumer
	// starts paused.
	Consume(ctx context.Context, producer Producer, caps webrtc.RTPCapabilities) (Consumer, error)
	Close() error
}

type Producer interface {
	ID() string
	Kind() webrtc.RTPCodecType
	RTPParameters() webrtc.RTPParameters
	Close() error
}

type Consumer interface {
	ID() string
	ProducerID() string
	Kind() webrtc.RTPCodecType
	RTPParameters() webrtc.RTPParameters
	Paused() bool
	Resume(ctx context.Context) error
	Pause(ctx context.Context) error
	Close() error
}
