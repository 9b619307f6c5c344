package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/enquirywitch/enquirywitch/internal/security"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// reloadMessage tells clients the story changed.
type reloadMessage struct {
	Action   string `json:"action"`
	FilePath string `json:"filePath,omitempty"`
	Story    string `json:"story"`
}

// liveConn is one browser tab listening for reloads.
type liveConn struct {
	conn *websocket.Conn
	send chan []byte
}

func (s *Server) upgrader() *websocket.Upgrader {
	origins := s.cfg.Server.GetCORSOrigins()
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return security.OriginAllowed(r.Header.Get("Origin"), r.Host, origins)
		},
	}
}

// serveWebSocket upgrades a live-reload connection.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	lc := &liveConn{conn: conn, send: make(chan []byte, 4)}
	s.registerConnection(lc)
	go s.writePump(lc)
	s.readPump(lc)
}

// readPump drains client messages so control frames are handled, and
// unregisters the connection when the client goes away.
func (s *Server) readPump(lc *liveConn) {
	defer func() {
		s.unregisterConnection(lc)
		lc.conn.Close()
	}()

	lc.conn.SetReadLimit(512)
	_ = lc.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	lc.conn.SetPongHandler(func(string) error {
		return lc.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := lc.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer of lc.conn.
func (s *Server) writePump(lc *liveConn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		lc.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-lc.send:
			_ = lc.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = lc.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := lc.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Debug("WebSocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = lc.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := lc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// registerConnection adds a WebSocket connection to the tracked connections.
func (s *Server) registerConnection(lc *liveConn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.connections[lc] = true
	s.log.Debug("WebSocket connection registered", zap.Int("active", len(s.connections)))
}

// unregisterConnection removes a WebSocket connection from tracked connections.
func (s *Server) unregisterConnection(lc *liveConn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.connections[lc] {
		delete(s.connections, lc)
		close(lc.send)
	}
	s.log.Debug("WebSocket connection unregistered", zap.Int("active", len(s.connections)))
}

// BroadcastReload sends a reload message to all connected WebSocket clients.
func (s *Server) BroadcastReload(filePath string) {
	s.connMu.RLock()
	defer s.connMu.RUnlock()

	if len(s.connections) == 0 {
		return
	}

	data, err := json.Marshal(reloadMessage{Action: "reload", FilePath: filePath, Story: s.Story().Name})
	if err != nil {
		s.log.Error("Unable to encode reload message", zap.Error(err))
		return
	}

	s.log.Info("Broadcasting reload", zap.String("file", filePath), zap.Int("connections", len(s.connections)))
	for lc := range s.connections {
		select {
		case lc.send <- data:
		default:
			// Slow client; it will catch up on the next reload.
		}
	}
}

// ConnectionCount returns the number of live-reload clients.
func (s *Server) ConnectionCount() int {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return len(s.connections)
}
