package signal

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
)

// Hub maps rooms to the sockets of this process. Remote-origin events are
// re-broadcast into it by the bus subscriber.
type Hub struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[domain.RoomID]map[*client]struct{})}
}

func (h *Hub) Add(room domain.RoomID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[room]
	if !ok {
		set = make(map[*client]struct{})
		h.rooms[room] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Remove(room domain.RoomID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.rooms, room)
	}
}

// Broadcast sends msg to every socket of the room except the given one.
// A slow socket drops the frame rather than stalling the room.
func (h *Hub) Broadcast(room domain.RoomID, except *client, msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c == except {
			continue
		}
		if err := c.TrySend(b); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("sid", c.sid).Msg("broadcast drop")
		}
	}
}
