package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const statePushPeriod = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS streams pool snapshots to the UI. Writes only; inbound
// frames are drained to keep control messages flowing.
func (s *Server) handleStateWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "httpapi").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "httpapi").Str("sid", c.GetString("client_token")).Msg("state stream opened")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statePushPeriod)
	defer ticker.Stop()
	defer ws.Close()

	for {
		select {
		case <-done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			payload, err := json.Marshal(gin.H{
				"loops":  s.pool.Snapshots(),
				"detail": s.pool.DetailSlot(),
			})
			if err != nil {
				log.Error().Err(err).Str("module", "httpapi").Msg("state marshal")
				return
			}
			if err := ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Warn().Err(err).Str("module", "httpapi").Msg("state stream write")
				return
			}
		}
	}
}
