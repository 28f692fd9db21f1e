package signal

import (
	"github.com/gin-gonic/gin"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/admission"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
)

// HandleEvent is the bus subscriber entry point. Admission decisions always
// resolve local waiters, wherever they were decided. Everything else was
// already fanned out at mutate time by the originating process, so only
// remote-origin events are re-broadcast here. Applying a fact twice is
// harmless: clients treat these as idempotent notifications.
func (ctl *Controller) HandleEvent(ev domain.Event) {
	if ev.Type == domain.EventAdmissionDecided {
		ctl.orch.Waiters.Resolve(ev.Room, ev.User, admission.Status(ev.Decision))
		return
	}
	if ev.Origin == ctl.orch.Instance {
		return
	}

	switch ev.Type {
	case domain.EventUserJoined:
		ctl.hub.Broadcast(ev.Room, nil, push{Type: "newUserJoined", Data: gin.H{
			"userId": ev.User,
			"name":   ev.Name,
			"imgSrc": ev.Avatar,
		}})
	case domain.EventUserLeft:
		ctl.hub.Broadcast(ev.Room, nil, push{Type: "userLeft", Data: gin.H{
			"id":   ev.User,
			"name": ev.Name,
		}})
	case domain.EventNewProducer:
		ctl.hub.Broadcast(ev.Room, nil, push{Type: "newProducer", Data: gin.H{
			"userId":     ev.User,
			"producerId": ev.ProducerID,
			"kind":       ev.Kind,
		}})
	case domain.EventProducerClosed:
		ctl.hub.Broadcast(ev.Room, nil, push{Type: "producerClosed", Data: gin.H{
			"userId":      ev.User,
			"producerId":  ev.ProducerID,
			"kind":        ev.Kind,
			"consumerIds": ev.ConsumerIDs,
		}})
	case domain.EventRoomClosed:
		ctl.hub.Broadcast(ev.Room, nil, push{Type: "roomClosed", Data: gin.H{"room": ev.Room}})
	}
}
