package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/crystal-mush/gridadmin/pkg/blocksync"
	"github.com/crystal-mush/gridadmin/pkg/events"
	"github.com/crystal-mush/gridadmin/pkg/world"
)

const (
	wsSendBuffer   = 64
	wsWriteTimeout = 5 * time.Second
)

// WSMessage is the JSON frame sent to websocket clients.
type WSMessage struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source world.PlayerID   `json:"source,omitempty"`
	Entity world.EntityID   `json:"entity,omitempty"`
	Grids  []world.EntityID `json:"grids,omitempty"`
	Data   map[string]any   `json:"data,omitempty"`
}

// messageOf converts a bus event into a client frame.
func messageOf(ev events.Event) WSMessage {
	msg := WSMessage{
		Type:   ev.Type.String(),
		Text:   ev.Text,
		Source: ev.Source,
		Entity: ev.Entity,
		Grids:  ev.Grids,
		Data:   ev.Data,
	}
	if ev.Type == events.EvBlockSync && len(ev.Payload) > 0 {
		if m, err := blocksync.Decode(ev.Payload); err == nil {
			msg.Data = map[string]any{"sync": m.SyncType.String()}
		}
	}
	return msg
}

// wsClient is a bus subscriber backed by a websocket connection. Events are
// queued and written by a single goroutine; a full queue drops the event.
type wsClient struct {
	conn   *websocket.Conn
	send   chan WSMessage
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
	log    zerolog.Logger
}

func newWSClient(conn *websocket.Conn, log zerolog.Logger) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan WSMessage, wsSendBuffer),
		done: make(chan struct{}),
		log:  log,
	}
}

func (c *wsClient) Receive(ev events.Event) {
	if c.closed.Load() {
		return
	}
	select {
	case c.send <- messageOf(ev):
	default:
		c.log.Warn().Str("type", ev.Type.String()).Msg("websocket client too slow, event dropped")
	}
}

func (c *wsClient) Closed() bool { return c.closed.Load() }

func (c *wsClient) close() {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsClient) writeLoop() {
	defer c.close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

// readLoop answers pings and detects disconnects.
func (c *wsClient) readLoop() {
	defer c.close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.queue(WSMessage{Type: "error", Text: "invalid JSON message"})
			continue
		}
		switch msg.Type {
		case "ping":
			c.queue(WSMessage{Type: "pong"})
		default:
			c.queue(WSMessage{Type: "error", Text: "unknown message type: " + msg.Type})
		}
	}
}

func (c *wsClient) queue(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
	}
}

// handleWebSocket streams bus events to an authenticated client. The token
// comes from ?token= or the Authorization header. With ?scope=all the client
// sees every event; otherwise only those addressed to its actor.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = bearerToken(r)
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	global := r.URL.Query().Get("scope") == "all"
	log := s.log.With().Int64("actor", int64(claims.Actor)).Str("remote", r.RemoteAddr).Logger()
	c := newWSClient(conn, log)
	if global {
		s.bus.SubscribeGlobal(c)
	} else {
		s.bus.Subscribe(claims.Actor, c)
	}
	c.queue(WSMessage{Type: "welcome", Data: map[string]any{"actor": claims.Actor, "global": global}})
	log.Info().Bool("global", global).Msg("websocket client connected")

	go c.writeLoop()
	go func() {
		c.readLoop()
		if global {
			s.bus.Cleanup()
		} else {
			s.bus.Unsubscribe(claims.Actor, c)
		}
		log.Info().Msg("websocket client disconnected")
	}()
}
