/*
ws.go - WebSocket event stream

PURPOSE:
  Bridges the in-process event bus to connected desktop clients. Each
  connection authenticates with a first message {type:"auth", userId:...}
  (the transport credential itself is verified by the reverse proxy), then
  receives the pushes its subscription covers: admins see every user's
  events, employees only their own.

HEARTBEAT:
  The server pings every 30 seconds; a connection that misses the pong
  deadline is pruned and its bus subscription released.

SEE ALSO:
  - engine/bus.go: Event fan-out semantics
  - server.go: /ws route
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/timegrid/overtime-engine/engine"
	"github.com/timegrid/overtime-engine/logger"
)

const (
	pingInterval   = 30 * time.Second
	pongWait       = 40 * time.Second
	writeWait      = 10 * time.Second
	authWait       = 10 * time.Second
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the reverse proxy enforces origin policy
	CheckOrigin: func(r *http.Request) bool { return true },
}

type authMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// Hub upgrades connections and wires them to the bus.
type Hub struct {
	bus   *engine.Bus
	store engine.TxStore
	log   *logger.Logger
}

func NewHub(bus *engine.Bus, store engine.TxStore, log *logger.Logger) *Hub {
	return &Hub{bus: bus, store: store, log: log.WithComponent("ws")}
}

// Serve handles one websocket connection for its whole lifetime.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub, userID, err := h.handshake(r.Context(), conn)
	if err != nil {
		h.log.Info().Err(err).Msg("websocket handshake rejected")
		return
	}
	defer h.bus.Unsubscribe(sub)

	log := h.log.WithUserID(userID)
	log.Info().Msg("websocket client connected")
	defer log.Info().Msg("websocket client disconnected")

	// reader: only pongs and the close frame matter
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// handshake reads the auth message and registers the bus subscription.
func (h *Hub) handshake(ctx context.Context, conn *websocket.Conn) (*engine.Subscription, string, error) {
	conn.SetReadDeadline(time.Now().Add(authWait))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, "", err
	}
	var msg authMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "auth" || msg.UserID == "" {
		conn.WriteJSON(map[string]string{"type": "auth:error", "error": "expected auth message"})
		return nil, "", &engine.InvalidInputError{Field: "auth", Reason: "expected {type:\"auth\", userId:...}"}
	}

	user, err := h.store.GetUser(ctx, msg.UserID)
	if err != nil {
		conn.WriteJSON(map[string]string{"type": "auth:error", "error": "unknown user"})
		return nil, "", err
	}

	sub := h.bus.Subscribe(user.ID, user.Role == engine.RoleAdmin, sendBufferSize)
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(map[string]string{"type": "auth:success"}); err != nil {
		h.bus.Unsubscribe(sub)
		return nil, "", err
	}
	return sub, user.ID, nil
}
