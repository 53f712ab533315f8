package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	xferrors "github.com/platformforge/transfer-coordinator/infrastructure/errors"
)

var instanceUpgrader = websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096}

// handleInstanceSocket upgrades a source/target instance's duplex RPC
// connection and attaches it to the transport hub, keyed by the path's
// {instanceId}.
func (c *Coordinator) handleInstanceSocket(w http.ResponseWriter, r *http.Request) {
	if !c.authorize(r) {
		writeError(w, xferrors.Unauthorized("missing or invalid service token"))
		return
	}
	instanceID, err := strconv.Atoi(mux.Vars(r)["instanceId"])
	if err != nil {
		writeError(w, xferrors.InvalidInput("instanceId", "must be an integer"))
		return
	}

	conn, err := instanceUpgrader.Upgrade(w, r, nil)
	if err != nil {
		if c.logger != nil {
			c.logger.WithError(err).Warn("instance websocket upgrade failed")
		}
		return
	}

	c.hub.Attach(instanceID, conn)
	if c.logger != nil {
		c.logger.WithFields(map[string]interface{}{"instance_id": instanceID}).Info("instance attached")
	}
}

// subscriptionAction is the frame shape a UI subscriber sends over its
// websocket to add/remove a channel subscription, and the JSON body of the
// non-streaming POST /subscriptions fallback.
type subscriptionAction struct {
	Action  string `json:"action"` // "subscribe" or "unsubscribe"
	Channel string `json:"channel"`
}

// handleSubscriberSocket upgrades a UI client's subscription connection and
// reads subscribe/unsubscribe frames from it for the life of the
// connection (spec §4.4).
func (c *Coordinator) handleSubscriberSocket(w http.ResponseWriter, r *http.Request) {
	if !c.authorize(r) {
		writeError(w, xferrors.Unauthorized("missing or invalid service token"))
		return
	}
	clientID := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())

	c.subHub.ServeHTTP(w, r, clientID, func(clientID string, conn *websocket.Conn) {
		defer cancel()
		defer c.subs.Disconnect(clientID)
		defer c.subHub.Disconnect(clientID)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var action subscriptionAction
			if err := json.Unmarshal(data, &action); err != nil {
				continue
			}
			c.applySubscriptionAction(ctx, clientID, action)
		}
	})
}

// handleSetSubscription is the non-streaming equivalent of a subscriber
// socket's subscribe/unsubscribe frame, for clients that prefer request/
// response polling over a persistent connection.
func (c *Coordinator) handleSetSubscription(w http.ResponseWriter, r *http.Request) {
	if !c.authorize(r) {
		writeError(w, xferrors.Unauthorized("missing or invalid service token"))
		return
	}
	clientID := queryString(r, "clientId", "")
	if clientID == "" {
		writeError(w, xferrors.MissingParameter("clientId"))
		return
	}
	var action subscriptionAction
	if err := decodeJSON(r, &action); err != nil {
		writeError(w, xferrors.InvalidInput("body", "malformed JSON"))
		return
	}
	c.applySubscriptionAction(r.Context(), clientID, action)
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (c *Coordinator) applySubscriptionAction(ctx context.Context, clientID string, action subscriptionAction) {
	if action.Channel == "" {
		return
	}
	switch action.Action {
	case "unsubscribe":
		c.subs.Unsubscribe(clientID, action.Channel)
	default:
		c.subs.Subscribe(ctx, clientID, action.Channel)
	}
}
