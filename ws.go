package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"

	"github.com/Seednode/partyhost/internal/apperr"
	"github.com/Seednode/partyhost/internal/party"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 64

	eventCreate = "room:create"
	eventJoin   = "room:join"
)

// Envelope is the frame used in both directions on a socket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type Client struct {
	id       string
	playerID string
	conn     *websocket.Conn
	send     chan []byte
}

// Hub tracks live sockets by connection id and implements party.Sender.
type Hub struct {
	mu      deadlock.RWMutex
	clients map[string]*Client
	log     zerolog.Logger
}

func newHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		log:     log,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.id] = c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.clients[c.id]; ok && cur == c {
		delete(h.clients, c.id)
		close(c.send)
	}
}

// Send never blocks. A client whose buffer is full misses the message.
func (h *Hub) Send(connID, event string, payload any) {
	data, err := json.Marshal(outbound{Type: event, Payload: payload})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("SERVE: Failed to encode message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}

	select {
	case c.send <- data:
	default:
		h.log.Warn().Str("conn", connID).Str("event", event).Msg("SERVE: Send buffer full, dropping message")
	}
}

func (h *Hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// closeAll disconnects every client, used on shutdown.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, id)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveWS(cfg *Config, log zerolog.Logger, d *party.Dispatcher, hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID, cookie := playerCookie(r)

		// Upgrade ignores w.Header(), so the cookie rides on the handshake response.
		header := http.Header{}
		if cookie != nil {
			header.Add("Set-Cookie", cookie.String())
		}

		conn, err := upgrader.Upgrade(w, r, header)
		if err != nil {
			log.Debug().Err(err).Str("ip", realIP(r)).Msg("SERVE: WebSocket upgrade failed")
			return
		}

		c := &Client{
			id:       uuid.NewString(),
			playerID: playerID,
			conn:     conn,
			send:     make(chan []byte, sendBuffer),
		}
		hub.register(c)

		log.Debug().Str("conn", c.id).Str("ip", realIP(r)).Int("clients", hub.count()).Msg("SERVE: WebSocket connected")

		go c.writePump()
		c.readPump(log, d, hub)
	}
}

func (c *Client) readPump(log zerolog.Logger, d *party.Dispatcher, hub *Hub) {
	defer func() {
		hub.unregister(c)
		d.Disconnect(c.id)
		_ = c.conn.Close()

		log.Debug().Str("conn", c.id).Msg("SERVE: WebSocket disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("conn", c.id).Msg("SERVE: WebSocket read failed")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			hub.Send(c.id, party.EventError, party.ErrorPayload{
				Code:    apperr.Code(apperr.ErrValidation),
				Message: "malformed message",
			})
			continue
		}

		if err := c.route(d, hub, env); err != nil {
			log.Debug().Err(err).Str("conn", c.id).Str("event", env.Type).Msg("SERVE: Event rejected")
		}
	}
}

func (c *Client) route(d *party.Dispatcher, hub *Hub, env Envelope) error {
	switch env.Type {
	case eventCreate:
		var req party.CreateRequest
		if err := party.Decode(env.Payload, &req); err != nil {
			hub.Send(c.id, party.EventError, party.ErrorPayload{Code: apperr.Code(err), Message: err.Error()})
			return err
		}
		req.PlayerID = c.playerID

		_, err := d.CreateRoom(c.id, req)

		return err
	case eventJoin:
		var req party.JoinRequest
		if err := party.Decode(env.Payload, &req); err != nil {
			hub.Send(c.id, party.EventError, party.ErrorPayload{Code: apperr.Code(err), Message: err.Error()})
			return err
		}
		req.PlayerID = c.playerID

		_, err := d.JoinRoom(c.id, req)

		return err
	default:
		return d.Dispatch(c.id, env.Type, env.Payload)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
