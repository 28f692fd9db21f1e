package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/admission"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/app"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/core"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/engine"
)

func (ctl *Controller) handle(ctx context.Context, c *client, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", c.sid).Msg("bad frame")
		ctl.fail(c, 0, ErrInvalidPayload)
		return
	}

	switch env.Type {
	case "initialize":
		ctl.handleInitialize(ctx, c, env)
	case "getRTPCapabilities":
		ctl.handleGetRTPCapabilities(c, env)
	case "createTransport":
		ctl.handleCreateTransport(ctx, c, env)
	case "transportConnect":
		ctl.handleTransportConnect(ctx, c, env)
	case "transportProduce":
		ctl.handleTransportProduce(ctx, c, env)
	case "transportConsume":
		ctl.handleTransportConsume(ctx, c, env)
	case "resumeConsumeTransport":
		ctl.handleResumeConsumer(ctx, c, env)
	case "getAllUsersInRoom":
		ctl.handleListUsers(c, env)
	case "consumeNewUser":
		ctl.handleConsumeUser(ctx, c, env)
	case "closeProducer":
		ctl.handleCloseProducer(ctx, c, env)
	case "ping":
		ctl.send(c, push{Type: "pong"})
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.fail(c, env.Seq, ErrInvalidPayload)
	}
}

// decode rejects malformed payloads before any state is touched.
func (ctl *Controller) decode(env envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := ctl.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func (ctl *Controller) handleInitialize(ctx context.Context, c *client, env envelope) {
	var req initializeReq
	if err := ctl.decode(env, &req); err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	if c.Room() != "" {
		ctl.fail(c, env.Seq, core.ErrAlreadyJoined)
		return
	}
	roomID := domain.RoomID(req.ID)

	res, err := ctl.orch.Join(ctx, roomID, c.user)
	if err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	switch res.Status {
	case app.JoinJoined:
		ctl.finishJoin(c, roomID)
		ctl.reply(c, env.Seq, true)
	case app.JoinWaiting:
		ctl.reply(c, env.Seq, gin.H{"status": "waiting"})
		go ctl.awaitAdmission(ctx, c, roomID)
	}
}

// awaitAdmission parks the join off the read loop so the socket keeps
// serving other traffic while the owner decides.
func (ctl *Controller) awaitAdmission(ctx context.Context, c *client, roomID domain.RoomID) {
	_, err := ctl.orch.AwaitAdmission(ctx, roomID, c.user)
	switch {
	case err == nil:
		ctl.finishJoin(c, roomID)
		ctl.send(c, push{Type: "admitted", Data: gin.H{"room": roomID}})
	case errors.Is(err, admission.ErrDenied):
		ctl.send(c, push{Type: "rejected", Data: gin.H{"room": roomID}})
	case errors.Is(err, admission.ErrTimeout):
		ctl.send(c, push{Type: "admissionTimeout", Data: gin.H{"room": roomID}})
	case errors.Is(err, context.Canceled):
		// client went away while waiting
	default:
		log.Error().Err(err).Str("module", "signal").Str("sid", c.sid).Msg("await admission")
		ctl.send(c, push{Type: "rejected", Data: gin.H{"room": roomID}})
	}
}

func (ctl *Controller) finishJoin(c *client, roomID domain.RoomID) {
	c.setRoom(roomID)
	ctl.hub.Add(roomID, c)
	ctl.hub.Broadcast(roomID, c, push{Type: "newUserJoined", Data: gin.H{
		"userId": c.user.ID,
		"name":   c.user.Name,
		"imgSrc": c.user.Avatar,
	}})
}

func (ctl *Controller) handleGetRTPCapabilities(c *client, env envelope) {
	room, ok := ctl.requireRoom(c, env.Seq)
	if !ok {
		return
	}
	caps, err := ctl.orch.Rooms.RouterCapabilities(room)
	if err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	ctl.send(c, push{Type: "RTPCapabilities", Data: gin.H{"data": caps}})
	ctl.reply(c, env.Seq, true)
}

func (ctl *Controller) handleCreateTransport(ctx context.Context, c *client, env envelope) {
	room, ok := ctl.requireRoom(c, env.Seq)
	if !ok {
		return
	}
	var req createTransportReq
	if err := ctl.decode(env, &req); err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	dir := core.DirectionSend
	if req.Consumer {
		dir = core.DirectionRecv
	}
	info, err := ctl.orch.Rooms.CreateTransport(ctx, room, c.user.ID, dir)
	if err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	ctl.reply(c, env.Seq, info)
}

func (ctl *Controller) handleTransportConnect(ctx context.Context, c *client, env envelope) {
	room, ok := ctl.requireRoom(c, env.Seq)
	if !ok {
		return
	}
	var req transportConnectReq
	if err := ctl.decode(env, &req); err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	if err := ctl.orch.Rooms.ConnectTransport(ctx, room, c.user.ID, req.TransportID, req.DTLSParameters); err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	ctl.reply(c, env.Seq, true)
}

func (ctl *Controller) handleTransportProduce(ctx context.Context, c *client, env envelope) {
	room, ok := ctl.requireRoom(c, env.Seq)
	if !ok {
		return
	}
	var req transportProduceReq
	if err := ctl.decode(env, &req); err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	info, err := ctl.orch.Produce(ctx, room, c.user.ID, req.TransportID, webrtc.NewRTPCodecType(req.Kind), req.RTPParameters)
	if err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	ctl.reply(c, env.Seq, info)
	ctl.hub.Broadcast(room, c, push{Type: "newProducer", Data: gin.H{
		"userId":     c.user.ID,
		"producerId": info.ID,
		"kind":       info.Kind,
	}})
}

func (ctl *Controller) handleTransportConsume(ctx context.Context, c *client, env envelope) {
	room, ok := ctl.requireRoom(c, env.Seq)
	if !ok {
		return
	}
	var req transportConsumeReq
	if err := ctl.decode(env, &req); err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	info, err := ctl.orch.Rooms.CreateConsumer(ctx, room, c.user.ID, req.TransportID, req.ProducerID, req.RTPCapabilities)
	if err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	ctl.reply(c, env.Seq, info)
}

func (ctl *Controller) handleResumeConsumer(ctx context.Context, c *client, env envelope) {
	room, ok := ctl.requireRoom(c, env.Seq)
	if !ok {
		return
	}
	var req resumeConsumerReq
	if err := ctl.decode(env, &req); err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	if err := ctl.orch.Rooms.ResumeConsumer(ctx, room, c.user.ID, req.ConsumerID); err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	ctl.reply(c, env.Seq, true)
}

func (ctl *Controller) handleListUsers(c *client, env envelope) {
	room, ok := ctl.requireRoom(c, env.Seq)
	if !ok {
		return
	}
	users, err := ctl.orch.Rooms.ListParticipants(room)
	if err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	ctl.reply(c, env.Seq, users)
}

func (ctl *Controller) handleConsumeUser(ctx context.Context, c *client, env envelope) {
	room, ok := ctl.requireRoom(c, env.Seq)
	if !ok {
		return
	}
	var req consumeUserReq
	if err := ctl.decode(env, &req); err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	infos, err := ctl.orch.Rooms.ConsumeUser(ctx, room, c.user.ID, domain.UserID(req.UserID), req.RTPCapabilities)
	if err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	ctl.reply(c, env.Seq, infos)
}

func (ctl *Controller) handleCloseProducer(ctx context.Context, c *client, env envelope) {
	room, ok := ctl.requireRoom(c, env.Seq)
	if !ok {
		return
	}
	var req closeProducerReq
	if err := ctl.decode(env, &req); err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	out, err := ctl.orch.CloseProducer(ctx, room, c.user.ID, req.ProducerID)
	if err != nil {
		ctl.fail(c, env.Seq, err)
		return
	}
	ctl.reply(c, env.Seq, out)
	ctl.hub.Broadcast(room, c, push{Type: "producerClosed", Data: out})
}

func (ctl *Controller) requireRoom(c *client, seq int64) (domain.RoomID, bool) {
	room := c.Room()
	if room == "" {
		ctl.fail(c, seq, core.ErrNotAMember)
		return "", false
	}
	return room, true
}

func (ctl *Controller) reply(c *client, seq int64, data any) {
	ctl.send(c, response{Type: "response", Seq: seq, OK: true, Data: data})
}

func (ctl *Controller) fail(c *client, seq int64, err error) {
	ctl.send(c, response{Type: "response", Seq: seq, OK: false, Error: errorCode(err)})
}

func (ctl *Controller) send(c *client, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("send marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", c.sid).Msg("send drop")
	}
}

// errorCode translates internal errors into the protocol's error taxonomy.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return "InvalidPayload"
	case errors.Is(err, core.ErrRoomNotFound):
		return "RoomNotFound"
	case errors.Is(err, core.ErrNotAMember):
		return "NotAMember"
	case errors.Is(err, core.ErrAlreadyJoined):
		return "AlreadyJoined"
	case errors.Is(err, core.ErrTransportExists):
		return "TransportAlreadyExists"
	case errors.Is(err, core.ErrTransportNotFound):
		return "TransportNotFound"
	case errors.Is(err, core.ErrProducerNotFound):
		return "ProducerNotFound"
	case errors.Is(err, core.ErrConsumerNotFound):
		return "ConsumerNotFound"
	case errors.Is(err, core.ErrNotSendTransport):
		return "NotASendTransport"
	case errors.Is(err, core.ErrNotRecvTransport):
		return "NotAReceiveTransport"
	case errors.Is(err, admission.ErrDenied):
		return "AdmissionDenied"
	case errors.Is(err, admission.ErrTimeout):
		return "AdmissionTimeout"
	case errors.Is(err, engine.ErrUnavailable):
		return "EngineUnavailable"
	case errors.Is(err, engine.ErrRejected):
		return "EngineRejected"
	default:
		return "InternalError"
	}
}
