package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/platformforge/transfer-coordinator/infrastructure/logging"
	"github.com/platformforge/transfer-coordinator/infrastructure/serviceauth"
)

// subscriberFrame is the wire shape pushed to a UI subscriber: the channel
// it belongs to plus the coalesced payload.
type subscriberFrame struct {
	Channel string `json:"channel"`
	Payload any    `json:"payload"`
}

type subscriberConn struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

// SubscriberHub implements subscription.Transport by pushing frames over a
// WebSocket connection per UI client.
type SubscriberHub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*subscriberConn

	logger *logging.Logger
}

func NewSubscriberHub(logger *logging.Logger) *SubscriberHub {
	return &SubscriberHub{
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		clients:  make(map[string]*subscriberConn),
		logger:   logger,
	}
}

// onConnect is called once a client's WebSocket connection is upgraded and
// registered, with the clientID under which Push reaches that connection.
type onConnect func(clientID string, conn *websocket.Conn)

// ServeHTTP upgrades a control-plane subscription request, rejecting it
// with 401 when no service/bearer token is present (header or "token"
// query parameter), then hands the connection to attach for
// subscription-channel registration. It does not verify the token itself;
// coordinator.handleSubscriberSocket does that before calling it (§10.7).
func (h *SubscriberHub) ServeHTTP(w http.ResponseWriter, r *http.Request, clientID string, attach onConnect) {
	token := r.Header.Get(serviceauth.ServiceTokenHeader)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		http.Error(w, "missing subscription token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.WithError(err).Warn("subscriber websocket upgrade failed")
		}
		return
	}

	h.mu.Lock()
	h.clients[clientID] = &subscriberConn{conn: conn}
	h.mu.Unlock()

	attach(clientID, conn)
}

// Disconnect removes and closes a subscriber's connection.
func (h *SubscriberHub) Disconnect(clientID string) {
	h.mu.Lock()
	sc, ok := h.clients[clientID]
	delete(h.clients, clientID)
	h.mu.Unlock()
	if ok {
		sc.conn.Close()
	}
}

// Push implements subscription.Transport.
func (h *SubscriberHub) Push(ctx context.Context, clientID, channel string, payload any) error {
	h.mu.RLock()
	sc, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return nil // client disconnected; nothing to push to
	}

	frame := subscriberFrame{Channel: channel, Payload: payload}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.conn.WriteMessage(websocket.TextMessage, data)
}
