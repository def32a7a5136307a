// Package http is the signaling/ops surface over the orchestrator: a
// REST session API, the inbound AI webhook, and a websocket event
// stream.
package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chorus/internal/app/orch"
	"chorus/internal/config"
)

// ClientTokenMiddleware tags every client with a cookie token so logs
// can correlate requests.
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

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(ClientTokenMiddleware())

	api := &API{orch: o, cfg: cfg}

	log.Info().Str("module", "adapters.http").Msg("router setup")

	g := r.Group("/api")
	g.GET("/rooms", api.listRooms)
	g.POST("/rooms/:room", api.createRoom)
	g.DELETE("/rooms/:room", api.closeRoom)
	g.GET("/rooms/:room/peers", api.listPeers)
	g.POST("/rooms/:room/peers/:peer", api.createPeer)
	g.DELETE("/rooms/:room/peers/:peer", api.closePeer)
	g.POST("/rooms/:room/peers/:peer/transports", api.createTransport)
	g.DELETE("/rooms/:room/peers/:peer/transports/:transport", api.closeTransport)
	g.POST("/rooms/:room/peers/:peer/transports/:transport/producers", api.createProducer)
	g.DELETE("/rooms/:room/peers/:peer/producers/:producer", api.closeProducer)
	g.POST("/rooms/:room/peers/:peer/consumers", api.createConsumer)
	g.POST("/rooms/:room/peers/:peer/consumers/:consumer/resume", api.resumeConsumer)
	g.POST("/rooms/:room/peers/:peer/consumers/:consumer/pause", api.pauseConsumer)

	g.POST("/ai/events", api.receiveAIEvent)
	g.GET("/hook/status", api.hookStatus)

	g.GET("/ws/events", func(c *gin.Context) {
		api.streamEvents(ctx, c)
	})

	return r
}
