// Package bus fans room events out to every gateway process. Delivery is
// at-least-once; consumers must apply events idempotently.
package bus

import (
	"context"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
)

type Handler func(domain.Event)

type Bus interface {
	// Publish is fire-and-forget from the caller's point of view: an error
	// means the event may not reach remote processes, never that local
	// state is wrong.
	Publish(ctx context.Context, ev domain.Event) error
	// Subscribe blocks dispatching events to h until ctx is cancelled.
	// Each process subscribes exactly once at startup.
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}
