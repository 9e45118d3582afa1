package dashboard

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// sessionFeed streams session snapshots over a websocket until the client goes away
func (s *Server) sessionFeed(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.session.Subscribe()
	defer unsubscribe()
	navigations, stopListening := s.nav.listen()
	defer stopListening()

	// Reader only watches for close and pongs
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	s.logger.Debug().Str("client_ip", c.ClientIP()).Msg("Session feed connected")

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				s.logger.Debug().Err(err).Msg("Session feed write failed")
				return
			}
		case nav := <-navigations:
			s.logger.Info().Str("reason", nav.Reason).Str("client_ip", c.ClientIP()).Msg("Sending browser to login")
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(nav); err != nil {
				s.logger.Debug().Err(err).Msg("Session feed write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			s.logger.Debug().Msg("Session feed disconnected")
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
