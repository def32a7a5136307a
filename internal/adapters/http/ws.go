package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chorus/internal/event"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type eventEnvelope struct {
	Type  event.Type  `json:"type"`
	Event event.Event `json:"event"`
}

// streamEvents pushes every domain event to the websocket client until
// it disconnects or the server shuts down.
func (a *API) streamEvents(ctx context.Context, c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "adapters.ws").Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	sid := c.GetString("client_token")
	events, cancel := a.orch.Subscribe()
	defer cancel()

	pingPeriod := a.cfg.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	// Reader only services control frames; clients don't talk back.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Info().Str("module", "adapters.ws").Str("sid", sid).Msg("event stream opened")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(eventEnvelope{Type: e.Type(), Event: e}); err != nil {
				log.Debug().Str("module", "adapters.ws").Str("sid", sid).Err(err).Msg("event stream closed")
				return
			}
		}
	}
}
