// Package signal is the message-level protocol over the client's persistent
// websocket. Requests are type-tagged envelopes with a sequence number;
// the server answers with a matching response frame and pushes
// server-initiated events as plain type-tagged frames.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/app"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
)

var (
	ErrBackpressure   = errors.New("backpressure")
	ErrInvalidPayload = errors.New("invalid payload")
)

type Controller struct {
	orch     *app.Orchestrator
	hub      *Hub
	validate *validator.Validate

	readLimit  int64
	pingPeriod time.Duration
}

func NewController(orch *app.Orchestrator, readLimit int64, pingPeriod time.Duration) *Controller {
	return &Controller{
		orch:       orch,
		hub:        NewHub(),
		validate:   validator.New(),
		readLimit:  readLimit,
		pingPeriod: pingPeriod,
	}
}

// client is one live socket. room is set once initialize succeeds and the
// connection is scoped to that room from then on.
type client struct {
	sid  string
	user domain.User
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	room   domain.RoomID
	closed bool
}

func (c *client) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *client) Room() domain.RoomID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

func (c *client) setRoom(id domain.RoomID) {
	c.mu.Lock()
	c.room = id
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the connection. Identity comes from the session the
// client established over HTTP before upgrading; without it there is no
// socket.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	sess := sessions.Default(c)
	uid, _ := sess.Get("user_id").(string)
	name, _ := sess.Get("user_name").(string)
	avatar, _ := sess.Get("user_avatar").(string)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.readLimit > 0 {
		ws.SetReadLimit(ctl.readLimit)
	}

	cl := &client{
		sid:  c.GetString("client_token"),
		user: domain.User{ID: domain.UserID(uid), Name: name, Avatar: avatar},
		conn: ws,
		send: make(chan []byte, 32),
	}
	log.Info().Str("module", "signal").Str("sid", cl.sid).Str("user", uid).Msg("new WS connection")

	connCtx, cancel := context.WithCancel(ctx)
	go ctl.writePump(connCtx, cl)
	ctl.readPump(connCtx, cl)
	cancel()
}

func (ctl *Controller) writePump(ctx context.Context, c *client) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("sid", c.sid).Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, c *client) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", c.sid).Msg("readPump closing")
		ctl.disconnect(c)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("sid", c.sid).Msg("readPump read error")
				return
			}
			ctl.handle(ctx, c, data)
		}
	}
}

// disconnect is the best-effort cleanup path: whatever fails is logged and
// swallowed so a dropped client never wedges the room for everyone else.
func (ctl *Controller) disconnect(c *client) {
	room := c.Room()
	if room == "" {
		return
	}
	ctl.hub.Remove(room, c)

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	closed, err := ctl.orch.Leave(cleanupCtx, room, c.user)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", c.sid).Str("room", string(room)).Msg("disconnect cleanup")
		return
	}
	for _, cp := range closed {
		ctl.hub.Broadcast(room, nil, push{Type: "producerClosed", Data: cp})
	}
	ctl.hub.Broadcast(room, nil, push{Type: "userLeft", Data: gin.H{"id": c.user.ID, "name": c.user.Name}})
}
