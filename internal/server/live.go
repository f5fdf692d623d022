package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const liveWriteTimeout = 5 * time.Second

var liveUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		return host == strings.ToLower(strings.TrimSpace(u.Host))
	},
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := liveUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("live upgrade failed")
		return
	}
	s.serveLive(conn)
}

// serveLive pushes the latest summary on connect and again every refresh
// interval until the client goes away.
func (s *Server) serveLive(conn *websocket.Conn) {
	defer conn.Close()

	if err := s.pushSummary(conn); err != nil {
		return
	}

	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ticker.C:
			if err := s.pushSummary(conn); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) pushSummary(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	return conn.WriteJSON(s.buildSummary())
}
