package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/adapters/signal"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/admission"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/app"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/config"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/core"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
)

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator, ctl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("MeetSessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	// Session bootstrap. A real deployment puts an identity provider in
	// front; the signaling layer only cares that these keys are set.
	api.POST("/session", func(c *gin.Context) {
		var req struct {
			Name   string `json:"name"`
			ImgSrc string `json:"imgSrc"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
		user, err := domain.NewUser(req.Name, req.ImgSrc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sess := sessions.Default(c)
		sess.Set("user_id", string(user.ID))
		sess.Set("user_name", user.Name)
		sess.Set("user_avatar", user.Avatar)
		if err := sess.Save(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session save"})
			return
		}
		c.JSON(http.StatusOK, user)
	})

	api.POST("/meet", func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
			return
		}
		m, err := orch.Meets.Create(c.Request.Context(), user.ID)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("create meet")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create meet"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"data":    m,
			"message": "meet created successfully",
			"status":  http.StatusOK,
		})
	})

	api.GET("/meet/waiters", func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
			return
		}
		roomID := domain.RoomID(c.Query("roomId"))
		if roomID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing roomId"})
			return
		}
		entries, err := orch.Waiting(c.Request.Context(), roomID, user.ID)
		if err != nil {
			status, msg := mapError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		c.JSON(http.StatusOK, entries)
	})

	api.POST("/meet/admit", decideHandler(orch, true))
	api.POST("/meet/reject", decideHandler(orch, false))

	api.GET("/ws/signal", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	return r
}

func decideHandler(orch *app.Orchestrator, admit bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
			return
		}
		var req struct {
			RoomID string `json:"roomId" binding:"required"`
			UserID string `json:"userId" binding:"required"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
		err := orch.Decide(c.Request.Context(), domain.RoomID(req.RoomID), user.ID, domain.UserID(req.UserID), admit)
		if err != nil {
			status, msg := mapError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func currentUser(c *gin.Context) (domain.User, bool) {
	sess := sessions.Default(c)
	uid, _ := sess.Get("user_id").(string)
	if uid == "" {
		return domain.User{}, false
	}
	name, _ := sess.Get("user_name").(string)
	avatar, _ := sess.Get("user_avatar").(string)
	return domain.User{ID: domain.UserID(uid), Name: name, Avatar: avatar}, true
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrRoomNotFound):
		return http.StatusNotFound, "room not found"
	case errors.Is(err, app.ErrNotOwner):
		return http.StatusForbidden, "not the room owner"
	case errors.Is(err, admission.ErrNotWaiting):
		return http.StatusNotFound, "no waiting entry"
	case errors.Is(err, admission.ErrAlreadyDecided):
		return http.StatusConflict, "already decided"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
