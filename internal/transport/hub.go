package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	xferrors "github.com/platformforge/transfer-coordinator/infrastructure/errors"
	"github.com/platformforge/transfer-coordinator/infrastructure/logging"
	"github.com/platformforge/transfer-coordinator/infrastructure/resilience"
)

// envelope is the wire frame for every instance RPC: a request carries
// Type+Payload and gets a response echoing the same ID.
type envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// instanceConn is one live duplex connection to an instance, with a
// pending-request table correlating responses by envelope ID.
type instanceConn struct {
	id   int
	conn *websocket.Conn

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan envelope

	breaker *resilience.CircuitBreaker
	logger  *logging.Logger
}

// Hub manages live connections to every instance and implements
// InstanceClient by dispatching correlated request/response pairs over
// each instance's single duplex connection.
type Hub struct {
	mu        sync.RWMutex
	instances map[int]*instanceConn

	retryConfig resilience.RetryConfig
	callTimeout time.Duration
	logger      *logging.Logger
}

// Config controls per-call retry/timeout behavior.
type Config struct {
	CallTimeout time.Duration
	RetryConfig resilience.RetryConfig
}

func DefaultConfig() Config {
	return Config{
		CallTimeout: 15 * time.Second,
		RetryConfig: resilience.DefaultRetryConfig(),
	}
}

func NewHub(cfg Config, logger *logging.Logger) *Hub {
	if cfg.CallTimeout <= 0 {
		cfg = DefaultConfig()
	}
	return &Hub{
		instances:   make(map[int]*instanceConn),
		retryConfig: cfg.RetryConfig,
		callTimeout: cfg.CallTimeout,
		logger:      logger,
	}
}

// Attach registers a live connection for instanceID, starting its read
// loop, and replaces any previous connection for that instance.
func (h *Hub) Attach(instanceID int, conn *websocket.Conn) {
	ic := &instanceConn{
		id:      instanceID,
		conn:    conn,
		pending: make(map[string]chan envelope),
		breaker: resilience.New(resilience.DefaultServiceCBConfig(h.logger)),
		logger:  h.logger,
	}

	h.mu.Lock()
	if old, ok := h.instances[instanceID]; ok {
		old.conn.Close()
	}
	h.instances[instanceID] = ic
	h.mu.Unlock()

	go ic.readLoop()
}

// Detach closes and removes instanceID's connection, if any.
func (h *Hub) Detach(instanceID int) {
	h.mu.Lock()
	ic, ok := h.instances[instanceID]
	delete(h.instances, instanceID)
	h.mu.Unlock()
	if ok {
		ic.conn.Close()
	}
}

func (ic *instanceConn) readLoop() {
	for {
		_, data, err := ic.conn.ReadMessage()
		if err != nil {
			ic.failAllPending(err)
			return
		}
		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			if ic.logger != nil {
				ic.logger.WithError(err).Warn("discarding malformed instance frame")
			}
			continue
		}

		ic.pendingMu.Lock()
		ch, ok := ic.pending[msg.ID]
		if ok {
			delete(ic.pending, msg.ID)
		}
		ic.pendingMu.Unlock()

		if ok {
			ch <- msg
		}
	}
}

func (ic *instanceConn) failAllPending(err error) {
	ic.pendingMu.Lock()
	defer ic.pendingMu.Unlock()
	for id, ch := range ic.pending {
		close(ch)
		delete(ic.pending, id)
	}
}

// call sends a request frame and awaits its correlated response, wrapped
// in the instance's circuit breaker and a bounded retry for transient
// transport errors (never for a semantic success=false response).
func (h *Hub) call(ctx context.Context, instanceID int, msgType string, payload any) (json.RawMessage, error) {
	h.mu.RLock()
	ic, ok := h.instances[instanceID]
	h.mu.RUnlock()
	if !ok {
		return nil, xferrors.NotFound("instance connection", fmt.Sprintf("%d", instanceID))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, xferrors.Internal("marshal instance request", err)
	}

	var result json.RawMessage
	err = ic.breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, h.retryConfig, func() error {
			res, callErr := ic.roundTrip(ctx, msgType, body, h.callTimeout)
			if callErr != nil {
				return callErr
			}
			result = res
			return nil
		})
	})
	if err != nil {
		if h.logger != nil {
			h.logger.LogInstanceRPC(ctx, fmt.Sprintf("%d", instanceID), msgType, err)
		}
		return nil, err
	}
	if h.logger != nil {
		h.logger.LogInstanceRPC(ctx, fmt.Sprintf("%d", instanceID), msgType, nil)
	}
	return result, nil
}

func (ic *instanceConn) roundTrip(ctx context.Context, msgType string, body json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	id := uuid.New().String()
	ch := make(chan envelope, 1)

	ic.pendingMu.Lock()
	ic.pending[id] = ch
	ic.pendingMu.Unlock()

	frame, err := json.Marshal(envelope{ID: id, Type: msgType, Payload: body})
	if err != nil {
		ic.pendingMu.Lock()
		delete(ic.pending, id)
		ic.pendingMu.Unlock()
		return nil, err
	}

	ic.writeMu.Lock()
	err = ic.conn.WriteMessage(websocket.TextMessage, frame)
	ic.writeMu.Unlock()
	if err != nil {
		ic.pendingMu.Lock()
		delete(ic.pending, id)
		ic.pendingMu.Unlock()
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("instance connection closed while awaiting %s", msgType)
		}
		return resp.Payload, nil
	case <-callCtx.Done():
		ic.pendingMu.Lock()
		delete(ic.pending, id)
		ic.pendingMu.Unlock()
		return nil, callCtx.Err()
	}
}
