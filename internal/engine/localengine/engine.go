// Package localengine is an in-process implementation of the engine
// contract. It manages the control-plane object graph (routers, transports,
// producers, consumers) and parameter negotiation, while the media plane is
// left to the deployment's SFU workers.
package localengine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/engine"
)

type Engine struct {
	caps webrtc.RTPCapabilities
}

func New() *Engine {
	return &Engine{caps: defaultCapabilities()}
}

func defaultCapabilities() webrtc.RTPCapabilities {
	return webrtc.RTPCapabilities{
		Codecs: []webrtc.RTPCodecCapability{
			{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
		},
	}
}

func (e *Engine) CreateRouter(ctx context.Context, roomID string) (engine.Router, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
	}
	r := &router{id: uuid.NewString(), caps: e.caps}
	log.Debug().Str("module", "engine").Str("router", r.id).Str("room", roomID).Msg("router created")
	return r, nil
}

type router struct {
	id   string
	caps webrtc.RTPCapabilities

	mu     sync.Mutex
	closed bool
}

func (r *router) ID() string { return r.id }

func (r *router) RTPCapabilities() webrtc.RTPCapabilities { return r.caps }

func (r *router) CreateTransport(ctx context.Context) (engine.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("%w: router closed", engine.ErrUnavailable)
	}
	t := &transport{
		id:     uuid.NewString(),
		router: r,
		opts: engine.TransportOptions{
			ICEParameters: webrtc.ICEParameters{
				UsernameFragment: randomToken(8),
				Password:         randomToken(24),
			},
			DTLSParameters: webrtc.DTLSParameters{
				Role: webrtc.DTLSRoleAuto,
				Fingerprints: []webrtc.DTLSFingerprint{
					{Algorithm: "sha-256", Value: randomFingerprint()},
				},
			},
		},
	}
	t.opts.ID = t.id
	return t, nil
}

// CanConsume mirrors mediasoup's semantics: the consuming endpoint must
// advertise at least one codec matching the producer's media.
func (r *router) CanConsume(producer engine.Producer, caps webrtc.RTPCapabilities) bool {
	if producer == nil {
		return false
	}
	for _, pc := range producer.RTPParameters().Codecs {
		for _, cc := range caps.Codecs {
			if strings.EqualFold(pc.MimeType, cc.MimeType) {
				return true
			}
		}
	}
	return false
}

func (r *router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type transport struct {
	id     string
	router *router
	opts   engine.TransportOptions

	mu        sync.Mutex
	connected bool
	closed    bool
}

func (t *transport) ID() string { return t.id }

func (t *transport) Options() engine.TransportOptions { return t.opts }

func (t *transport) Connect(ctx context.Context, dtls webrtc.DTLSParameters) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("%w: transport closed", engine.ErrUnavailable)
	}
	if len(dtls.Fingerprints) == 0 {
		return fmt.Errorf("%w: missing DTLS fingerprints", engine.ErrRejected)
	}
	for _, fp := range dtls.Fingerprints {
		if fp.Value == "" {
			return fmt.Errorf("%w: empty DTLS fingerprint", engine.ErrRejected)
		}
	}
	t.connected = true
	return nil
}

func (t *transport) Produce(ctx context.Context, kind webrtc.RTPCodecType, params webrtc.RTPParameters) (engine.Producer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("%w: transport closed", engine.ErrUnavailable)
	}
	if !t.connected {
		return nil, fmt.Errorf("%w: transport not connected", engine.ErrRejected)
	}
	if kind != webrtc.RTPCodecTypeAudio && kind != webrtc.RTPCodecTypeVideo {
		return nil, fmt.Errorf("%w: unsupported kind %q", engine.ErrRejected, kind.String())
	}
	if len(params.Codecs) == 0 {
		return nil, fmt.Errorf("%w: no codecs in rtp parameters", engine.ErrRejected)
	}
	for _, c := range params.Codecs {
		if !strings.HasPrefix(strings.ToLower(c.MimeType), kind.String()+"/") {
			return nil, fmt.Errorf("%w: codec %q does not match kind %q", engine.ErrRejected, c.MimeType, kind.String())
		}
	}
	return &producer{id: uuid.NewString(), kind: kind, params: params}, nil
}

func (t *transport) Consume(ctx context.Context, p engine.Producer, caps webrtc.RTPCapabilities) (engine.Consumer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("%w: transport closed", engine.ErrUnavailable)
	}
	if !t.connected {
		return nil, fmt.Errorf("%w: transport not connected", engine.ErrRejected)
	}
	if !t.router.CanConsume(p, caps) {
		return nil, fmt.Errorf("%w: capabilities cannot consume producer %s", engine.ErrRejected, p.ID())
	}
	return &consumer{
		id:         uuid.NewString(),
		producerID: p.ID(),
		kind:       p.Kind(),
		params:     p.RTPParameters(),
		paused:     true,
	}, nil
}

func (t *transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

type producer struct {
	id     string
	kind   webrtc.RTPCodecType
	params webrtc.RTPParameters

	mu     sync.Mutex
	closed bool
}

func (p *producer) ID() string                          { return p.id }
func (p *producer) Kind() webrtc.RTPCodecType           { return p.kind }
func (p *producer) RTPParameters() webrtc.RTPParameters { return p.params }

func (p *producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type consumer struct {
	id         string
	producerID string
	kind       webrtc.RTPCodecType
	params     webrtc.RTPParameters

	mu     sync.Mutex
	paused bool
	closed bool
}

func (c *consumer) ID() string                          { return c.id }
func (c *consumer) ProducerID() string                  { return c.producerID }
func (c *consumer) Kind() webrtc.RTPCodecType           { return c.kind }
func (c *consumer) RTPParameters() webrtc.RTPParameters { return c.params }

func (c *consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *consumer) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: consumer closed", engine.ErrUnavailable)
	}
	c.paused = false
	return nil
}

func (c *consumer) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: consumer closed", engine.ErrUnavailable)
	}
	c.paused = true
	return nil
}

func (c *consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func randomToken(n int) string {
	s := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}

func randomFingerprint() string {
	raw := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	parts := make([]string, 0, len(raw)/2)
	for i := 0; i+2 <= len(raw); i += 2 {
		parts = append(parts, strings.ToUpper(raw[i:i+2]))
	}
	return strings.Join(parts, ":")
}
