package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mahaj/duo-relay/pkg/model"
	"github.com/sirupsen/logrus"
)

// Limits bounds a single websocket connection.
type Limits struct {
	// Time allowed to write a message to the peer.
	WriteWait time.Duration
	// Time allowed to read the next pong message from the peer.
	PongWait time.Duration
	// Maximum message size allowed from peer.
	MaxMessageSize int64
	// Outbound frames buffered per client before it is evicted.
	BufferSize    int
	AllowedOrigin string
}

// Send pings to peer with this period. Must be less than pongWait.
func (l Limits) pingPeriod() time.Duration {
	return (l.PongWait * 9) / 10
}

func (l Limits) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return l.AllowedOrigin == "*" || r.Header.Get("Origin") == l.AllowedOrigin
		},
	}
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames. Closed by the hub.
	send chan []byte

	// Connection ID, used for logging only.
	ID string

	limits Limits
	log    logrus.FieldLogger

	// Owned by the hub goroutine.
	closed  bool
	evicted bool
}

// Send queues env for the write pump. It is only called from the hub
// goroutine. A client whose buffer is full is evicted and refuses every
// later frame.
func (c *Client) Send(env model.Envelope) bool {
	if c.closed || c.evicted {
		return false
	}
	frame, err := json.Marshal(env)
	if err != nil {
		c.log.WithError(err).Error("Failed to marshal envelope")
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.evicted = true
		c.log.Warn("Send buffer full, evicting client")
		go func() {
			select {
			case c.hub.unregister <- c:
			case <-c.hub.done:
			}
		}()
		return false
	}
}

// readPump pumps envelopes from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(c.limits.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.limits.PongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(c.limits.PongWait)); return nil })
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("Unexpected close")
			}
			return
		}

		in := inbound{client: c}
		if err := json.Unmarshal(frame, &in.env); err != nil || in.env.Event == "" {
			in.malformed = true
		}

		select {
		case c.hub.inbound <- in:
		case <-c.hub.done:
			return
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.limits.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.limits.WriteWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One envelope per frame; clients parse each frame as JSON.
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.limits.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs handles websocket requests from the peer. Identity is claimed
// later with a user-login event.
func serveWs(hub *Hub, limits Limits, log logrus.FieldLogger) http.HandlerFunc {
	upgrader := limits.upgrader()
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("Websocket upgrade failed")
			return
		}

		id := uuid.NewString()
		client := &Client{
			hub:    hub,
			conn:   conn,
			send:   make(chan []byte, limits.BufferSize),
			ID:     id,
			limits: limits,
			log:    log.WithFields(logrus.Fields{"conn_id": id, "remote": r.RemoteAddr}),
		}
		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		// Allow collection of memory referenced by the caller by doing all work in
		// new goroutines.
		go client.writePump()
		go client.readPump()
	}
}
