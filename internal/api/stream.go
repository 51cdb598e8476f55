package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	streamBuffer = 8
	writeWait    = 10 * time.Second
	pingPeriod   = 30 * time.Second
)

// handleStream upgrades to a websocket and pushes the full match state once
// on connect and again after every mutation.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	e := s.entry(id)
	if e == nil {
		matchNotFound(w, id)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "match", id, "error", err)
		return
	}
	defer conn.Close()

	ch := make(chan []byte, streamBuffer)
	e.mu.Lock()
	first, err := json.Marshal(e.match.State())
	e.subs[ch] = struct{}{}
	subs := len(e.subs)
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.subs, ch)
		e.mu.Unlock()
	}()
	if err != nil {
		slog.Error("encode match state failed", "match", id, "error", err)
		return
	}
	slog.Info("stream client connected", "match", id, "subscribers", subs)

	// The reader only exists to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	frame := first
	for {
		if frame != nil {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			frame = nil
		}
		select {
		case frame = <-ch:
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			slog.Info("stream client disconnected", "match", id)
			return
		case <-r.Context().Done():
			return
		}
	}
}
