package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/fieldline/trajet/internal/feed"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Outbound buffer per connection. Events are dropped when it fills.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsConn is one websocket peer watching a session's feed.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	log  *slog.Logger
}

// streamWS upgrades the connection and forwards the session's live feed
// over the websocket until the peer disconnects or the hub closes.
func (s *server) streamWS(c *gin.Context) {
	sess, err := s.reg.Get(c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &wsConn{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		log:  s.log,
	}

	sub := sess.Feed().Subscribe()
	go client.forward(sub)
	go client.writePump()
	client.readPump(sub)
}

// forward marshals feed events into the send buffer. A peer that cannot
// keep up loses events rather than stalling the hub.
func (w *wsConn) forward(sub *feed.Subscriber) {
	defer close(w.send)
	for ev := range sub.C {
		data, err := json.Marshal(ev)
		if err != nil {
			w.log.Error("marshal feed event", "error", err)
			continue
		}
		select {
		case w.send <- data:
		default:
		}
	}
}

// readPump drains inbound frames so control messages are processed. Any
// payload from the peer is ignored; the stream is one-way.
func (w *wsConn) readPump(sub *feed.Subscriber) {
	defer func() {
		sub.Cancel()
		w.conn.Close()
	}()
	w.conn.SetReadLimit(maxMessageSize)
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				w.log.Debug("websocket read", "error", err)
			}
			return
		}
	}
}

// writePump pushes buffered events and pings to the peer.
func (w *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		w.conn.Close()
	}()
	for {
		select {
		case data, ok := <-w.send:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				w.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
